package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket status is an explicit enumerated state; a freshly issued ticket is
// TicketStatusValid. Used, cancelled and transferred are all terminal.
const (
	TicketStatusValid       = "valid"
	TicketStatusUsed        = "used"
	TicketStatusCancelled   = "cancelled"
	TicketStatusTransferred = "transferred"
)

// IssueTicketRequest asks the issuer to mint one ticket unit for a settled
// order line.
type IssueTicketRequest struct {
	OrderID       string
	OrderItemID   string
	EventID       string
	TicketTypeID  string
	AttendeeName  string
	AttendeeEmail string
}

// Ticket is one physical admission unit. Tickets are never deleted, only
// status-transitioned, so the audit history survives.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID      string    `bun:"ticket_id,pk" json:"ticket_id"`
	OrderID       string    `bun:"order_id,notnull" json:"order_id"`
	OrderItemID   string    `bun:"order_item_id,notnull" json:"order_item_id"`
	EventID       string    `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID  string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Code          string    `bun:"code,notnull,unique" json:"code"`
	QRPayload     string    `bun:"qr_payload" json:"qr_payload"`
	QRCode        []byte    `bun:"qr_code" json:"qr_code,omitempty"`
	Status        string    `bun:"status,notnull" json:"status"`
	AttendeeName  string    `bun:"attendee_name" json:"attendee_name"`
	AttendeeEmail string    `bun:"attendee_email" json:"attendee_email"`
	IssuedAt      time.Time `bun:"issued_at,notnull" json:"issued_at"`
	UsedAt        time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	UsedBy        string    `bun:"used_by,nullzero" json:"used_by,omitempty"`
}

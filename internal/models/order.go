package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Order is the persisted settlement header. It is created exactly once,
// when a checkout session settles, never before.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string            `bun:"order_id,pk" json:"order_id"`
	EventID       string            `bun:"event_id,notnull" json:"event_id"`
	Status        string            `bun:"status,notnull" json:"status"`
	Subtotal      int64             `bun:"subtotal,notnull" json:"subtotal"`
	Discount      int64             `bun:"discount,notnull" json:"discount"`
	Fees          int64             `bun:"fees,notnull" json:"fees"`
	Total         int64             `bun:"total,notnull" json:"total"`
	Currency      string            `bun:"currency,notnull" json:"currency"`
	CustomerName  string            `bun:"customer_name" json:"customer_name"`
	CustomerEmail string            `bun:"customer_email" json:"customer_email"`
	CustomerPhone string            `bun:"customer_phone" json:"customer_phone"`
	PromoCodeID   string            `bun:"promo_code_id,nullzero" json:"promo_code_id,omitempty"`
	PromoCode     string            `bun:"promo_code,nullzero" json:"promo_code,omitempty"`
	PaymentIntent string            `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	PaymentMethod string            `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	Metadata      map[string]string `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,notnull" json:"created_at"`
}

// OrderItem denormalizes the ticket type name and unit price at the moment
// of purchase; prices are never re-derived from the ticket type later.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID             string `bun:"id,pk" json:"id"`
	OrderID        string `bun:"order_id,notnull" json:"order_id"`
	TicketTypeID   string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	TicketTypeName string `bun:"ticket_type_name,notnull" json:"ticket_type_name"`
	UnitPrice      int64  `bun:"unit_price,notnull" json:"unit_price"`
	Quantity       int    `bun:"quantity,notnull" json:"quantity"`
}

package models

import (
	"github.com/uptrace/bun"
)

const (
	FeeTypePercent   = "percent"
	FeeTypeFixed     = "fixed"
	FeeTypePerOrder  = "per_order"
	FeeTypePerTicket = "per_ticket"

	FeePayerBuyer     = "buyer"
	FeePayerOrganizer = "organizer"
)

// Fee is a schedule-wide charge definition. Only buyer-payer fees are
// billed to the customer at checkout.
type Fee struct {
	bun.BaseModel `bun:"table:fees"`

	ID     string `bun:"id,pk" json:"id"`
	Name   string `bun:"name,notnull" json:"name"`
	Type   string `bun:"type,notnull" json:"type"`
	Amount int64  `bun:"amount,notnull" json:"amount"` // percent points or minor units
	Payer  string `bun:"payer,notnull" json:"payer"`
	Cap    int64  `bun:"cap,notnull,default:0" json:"cap"` // 0 = uncapped
	Active bool   `bun:"active,notnull" json:"active"`
}

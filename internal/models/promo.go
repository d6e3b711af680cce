package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PromoTypePercent = "percent"
	PromoTypeFixed   = "fixed"
)

// PromoCode usage is counted once per completed order, never at checkout
// start, since a started checkout may never complete.
type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	ID            string    `bun:"id,pk" json:"id"`
	Code          string    `bun:"code,notnull,unique" json:"code"`
	Type          string    `bun:"type,notnull" json:"type"`
	Amount        int64     `bun:"amount,notnull" json:"amount"` // percent points or minor units
	Active        bool      `bun:"active,notnull" json:"active"`
	ValidFrom     time.Time `bun:"valid_from" json:"valid_from"`
	ValidTo       time.Time `bun:"valid_to" json:"valid_to"`
	MaxUses       int       `bun:"max_uses,notnull,default:0" json:"max_uses"` // 0 = unlimited
	CurrentUses   int       `bun:"current_uses,notnull,default:0" json:"current_uses"`
	MinOrderValue int64     `bun:"min_order_value,notnull,default:0" json:"min_order_value"`
	// AppliesToTicketTypeIDs is an allow-list; empty means the code applies
	// to every ticket type.
	AppliesToTicketTypeIDs []string  `bun:"applies_to_ticket_type_ids,array" json:"applies_to_ticket_type_ids"`
	CreatedAt              time.Time `bun:"created_at,notnull" json:"created_at"`
}

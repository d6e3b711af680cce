package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketType carries the inventory counters for one sellable ticket tier.
// Invariant: sold + reserved <= capacity, and both are >= 0. The counters
// are mutated only through the inventory ledger's conditional updates.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID          string    `bun:"id,pk" json:"id"`
	EventID     string    `bun:"event_id,notnull" json:"event_id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Price       int64     `bun:"price,notnull" json:"price"` // minor currency units
	Capacity    int       `bun:"capacity,notnull" json:"capacity"`
	Sold        int       `bun:"sold,notnull,default:0" json:"sold"`
	Reserved    int       `bun:"reserved,notnull,default:0" json:"reserved"`
	MinPerOrder int       `bun:"min_per_order,notnull,default:1" json:"min_per_order"`
	MaxPerOrder int       `bun:"max_per_order,notnull,default:10" json:"max_per_order"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Available is the quantity still open to new holds.
func (t *TicketType) Available() int {
	return t.Capacity - t.Sold - t.Reserved
}

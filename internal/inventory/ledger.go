package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	// ErrInvalidState means a commit asked for more units than are reserved.
	ErrInvalidState = errors.New("reserved count below commit quantity")
	// ErrPartialRelease is a warning, not a hard failure: a release that
	// would drive reserved negative was clamped at zero. Rollback paths log
	// it and keep going.
	ErrPartialRelease = errors.New("release clamped reserved at zero")
)

// InsufficientInventoryError carries the current availability so callers can
// surface it to the buyer.
type InsufficientInventoryError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for ticket type %s: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available)
}

// Ledger owns the capacity/sold/reserved counters on ticket_types. Every
// mutation is a single conditional UPDATE, so concurrent holds on the same
// ticket type serialize on the row and the invariant
// sold + reserved <= capacity holds at all times.
type Ledger struct {
	DB bun.IDB
}

func NewLedger(db bun.IDB) *Ledger {
	return &Ledger{DB: db}
}

// Hold increments reserved by qty if and only if enough capacity remains.
// The availability check and the increment are one statement; there is no
// read-then-write window for a concurrent hold to slip through.
func (l *Ledger) Hold(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	res, err := l.DB.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("reserved = reserved + ?", qty).
		Where("id = ?", ticketTypeID).
		Where("capacity - sold - reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hold update failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// The conditional update matched nothing: either the row is gone or
	// there is not enough left. Re-read to tell the two apart; the counts
	// are informational only, the refusal above is what's authoritative.
	tt, err := l.getTicketType(ctx, ticketTypeID)
	if err != nil {
		return err
	}
	return &InsufficientInventoryError{
		TicketTypeID: ticketTypeID,
		Requested:    qty,
		Available:    tt.Available(),
	}
}

// Commit moves qty units from reserved to sold. Failing the reserved >= qty
// guard means the caller's hold bookkeeping is off; that is reported as
// ErrInvalidState rather than silently corrupting the counters.
func (l *Ledger) Commit(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	res, err := l.DB.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("reserved = reserved - ?", qty).
		Set("sold = sold + ?", qty).
		Where("id = ?", ticketTypeID).
		Where("reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("commit update failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := l.getTicketType(ctx, ticketTypeID); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

// Release gives qty reserved units back. A release that would take reserved
// negative clamps at zero and reports ErrPartialRelease so double releases
// stay harmless.
func (l *Ledger) Release(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	res, err := l.DB.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("reserved = reserved - ?", qty).
		Where("id = ?", ticketTypeID).
		Where("reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release update failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	res, err = l.DB.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("reserved = 0").
		Where("id = ?", ticketTypeID).
		Where("reserved > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clamped release failed: %w", err)
	}
	if _, err := l.getTicketType(ctx, ticketTypeID); err != nil {
		return err
	}
	return ErrPartialRelease
}

func (l *Ledger) getTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := l.DB.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket type lookup failed: %w", err)
	}
	return &tt, nil
}

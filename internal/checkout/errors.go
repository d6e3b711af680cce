package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	// ErrSessionNotFound covers unknown, already-completed and reaped
	// sessions alike; the caller cannot tell them apart and does not need to.
	ErrSessionNotFound = errors.New("checkout session not found or already completed")
	ErrSessionExpired  = errors.New("checkout session expired")
	// ErrSessionStateLost means a session was claimed but its stored
	// document is gone, so its reservations cannot be recovered. This is an
	// operational fault, never a normal outcome: any holds the session
	// carried are leaked until reconciled by hand.
	ErrSessionStateLost = errors.New("checkout session claimed but its state is missing")
	// ErrSettlementFailed is the completion-phase catch-all. By the time a
	// caller sees it, the session's holds have already been released
	// best-effort.
	ErrSettlementFailed = errors.New("settlement failed")
)

// ValidationError marks caller-fixable malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// OwnershipMismatchError means a cart line named a ticket type that belongs
// to a different event than the checkout claims.
type OwnershipMismatchError struct {
	TicketTypeID string
	EventID      string
}

func (e *OwnershipMismatchError) Error() string {
	return fmt.Sprintf("ticket type %s does not belong to event %s", e.TicketTypeID, e.EventID)
}

// QuantityOutOfRangeError reports a line quantity outside the ticket type's
// per-order bounds.
type QuantityOutOfRangeError struct {
	TicketTypeID string
	Quantity     int
	Min          int
	Max          int
}

func (e *QuantityOutOfRangeError) Error() string {
	return fmt.Sprintf("quantity %d for ticket type %s outside allowed range [%d, %d]",
		e.Quantity, e.TicketTypeID, e.Min, e.Max)
}

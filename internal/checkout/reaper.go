package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/inventory"
	"ms-checkout/internal/models"
)

// ReaperSessionSource is the slice of the session store the reaper needs:
// listing expired sessions and claiming them one at a time.
type ReaperSessionSource interface {
	ExpiredSessionIDs(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Consume(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

// Reaper periodically releases the holds of checkout sessions that were
// started but never completed. Without it, abandoned checkouts leak
// inventory into reserved limbo forever. Claiming goes through the same
// single-use Consume as completion, so a session is reaped or settled,
// never both.
type Reaper struct {
	Sessions ReaperSessionSource
	Ledger   InventoryLedger
	Logger   Logger
	Interval time.Duration
	// BatchLimit bounds how many expired sessions one sweep picks up.
	BatchLimit int64
}

func NewReaper(sessions ReaperSessionSource, ledger InventoryLedger, log Logger, interval time.Duration) *Reaper {
	return &Reaper{
		Sessions:   sessions,
		Ledger:     ledger,
		Logger:     log,
		Interval:   interval,
		BatchLimit: 100,
	}
}

// Start runs sweeps until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Logger.Info("REAPER", fmt.Sprintf("Hold-expiry reaper running every %s", r.Interval))
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("REAPER", "Hold-expiry reaper stopped")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx, time.Now()); err != nil {
				r.Logger.Error("REAPER", fmt.Sprintf("Sweep failed: %v", err))
			} else if n > 0 {
				r.Logger.Info("REAPER", fmt.Sprintf("Released holds for %d expired session(s)", n))
			}
		}
	}
}

// Sweep releases the reservations of every session expired at now. Returns
// how many sessions were reaped.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.Sessions.ExpiredSessionIDs(ctx, now, r.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	reaped := 0
	for _, id := range ids {
		session, err := r.Sessions.Consume(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			// A completing client claimed it between listing and now.
			continue
		}
		if err != nil {
			r.Logger.Error("REAPER", fmt.Sprintf("Failed to claim session %s: %v", id, err))
			continue
		}

		for _, res := range session.Reservations {
			err := r.Ledger.Release(ctx, res.TicketTypeID, res.Quantity)
			switch {
			case err == nil:
			case errors.Is(err, inventory.ErrPartialRelease):
				r.Logger.Warn("REAPER", fmt.Sprintf("Release of %d on %s clamped at zero (session %s)",
					res.Quantity, res.TicketTypeID, id))
			default:
				r.Logger.Error("REAPER", fmt.Sprintf("Failed to release %d on %s (session %s): %v",
					res.Quantity, res.TicketTypeID, id, err))
			}
		}
		reaped++
	}
	return reaped, nil
}

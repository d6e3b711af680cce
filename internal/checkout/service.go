package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/inventory"
	"ms-checkout/internal/models"
	"ms-checkout/internal/pricing"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	ListActiveFees(ctx context.Context) ([]models.Fee, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	IncrementPromoUsage(ctx context.Context, promoID string) error
}

type InventoryLedger interface {
	Hold(ctx context.Context, ticketTypeID string, qty int) error
	Commit(ctx context.Context, ticketTypeID string, qty int) error
	Release(ctx context.Context, ticketTypeID string, qty int) error
}

type SessionStore interface {
	Save(ctx context.Context, session *models.CheckoutSession) error
	// Consume removes and returns the session; only one caller ever gets it.
	Consume(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
}

type TicketIssuer interface {
	Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// Notifier dispatches the post-settlement confirmation. Delivery is
// fire-and-forget; a notification failure never fails a checkout.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order, ticketCount int) error
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// TopicOrderCompleted is the default order-completed topic; mains override
// Service.OrderTopic from configuration.
const TopicOrderCompleted = "checkout.orders.completed"

// Service is the two-phase checkout orchestrator: StartCheckout acquires
// holds and prices the cart into an ephemeral session, CompleteCheckout
// settles that session into a persisted order with issued tickets.
type Service struct {
	DB       DBLayer
	Ledger   InventoryLedger
	Sessions SessionStore
	Issuer   TicketIssuer
	Kafka    KafkaPublisher
	Notifier Notifier
	Logger   Logger

	Currency   string
	SessionTTL time.Duration
	// OrderTopic is where completed orders are published.
	OrderTopic string
}

func NewService(db DBLayer, ledger InventoryLedger, sessions SessionStore, issuer TicketIssuer,
	kafka KafkaPublisher, notifier Notifier, log Logger, currency string, sessionTTL time.Duration) *Service {
	return &Service{
		DB:         db,
		Ledger:     ledger,
		Sessions:   sessions,
		Issuer:     issuer,
		Kafka:      kafka,
		Notifier:   notifier,
		Logger:     log,
		Currency:   currency,
		SessionTTL: sessionTTL,
		OrderTopic: TopicOrderCompleted,
	}
}

// StartCheckout validates every cart line before any hold is taken, then
// takes holds line by line, releasing the ones already taken if a later
// hold loses a race. The priced result is an ephemeral session; nothing is
// persisted to the durable store yet.
func (s *Service) StartCheckout(ctx context.Context, req models.StartCheckoutRequest) (*models.CheckoutSession, error) {
	if req.EventID == "" {
		return nil, &ValidationError{Field: "event_id", Message: "required"}
	}
	if len(req.CartItems) == 0 {
		return nil, &ValidationError{Field: "cart_items", Message: "cart is empty"}
	}

	if _, err := s.DB.GetEventByID(ctx, req.EventID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, req.EventID)
	}

	lines := make([]pricing.Line, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		tt, err := s.DB.GetTicketTypeByID(ctx, item.TicketTypeID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTicketTypeNotFound, item.TicketTypeID)
		}
		if tt.EventID != req.EventID {
			return nil, &OwnershipMismatchError{TicketTypeID: tt.ID, EventID: req.EventID}
		}
		if item.Quantity < tt.MinPerOrder || item.Quantity > tt.MaxPerOrder {
			return nil, &QuantityOutOfRangeError{
				TicketTypeID: tt.ID,
				Quantity:     item.Quantity,
				Min:          tt.MinPerOrder,
				Max:          tt.MaxPerOrder,
			}
		}
		if tt.Available() < item.Quantity {
			return nil, &inventory.InsufficientInventoryError{
				TicketTypeID: tt.ID,
				Requested:    item.Quantity,
				Available:    tt.Available(),
			}
		}
		lines = append(lines, pricing.Line{
			TicketTypeID:   tt.ID,
			TicketTypeName: tt.Name,
			UnitPrice:      tt.Price,
			Quantity:       item.Quantity,
		})
	}

	// All lines validated; now claim inventory. The ledger's conditional
	// update is the authoritative availability check, so a hold can still
	// lose to a concurrent checkout.
	taken := make([]models.Reservation, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		if err := s.Ledger.Hold(ctx, item.TicketTypeID, item.Quantity); err != nil {
			s.releaseReservations(ctx, taken)
			return nil, err
		}
		taken = append(taken, models.Reservation{TicketTypeID: item.TicketTypeID, Quantity: item.Quantity})
	}

	quote := s.price(ctx, lines, req.PromoCode)

	now := time.Now()
	session := &models.CheckoutSession{
		SessionID:    uuid.NewString(),
		EventID:      req.EventID,
		CartItems:    quote.Lines,
		Subtotal:     quote.Subtotal,
		Discount:     quote.Promo.Discount,
		Fees:         quote.Fees,
		TotalFees:    quote.TotalFees,
		Total:        quote.Total,
		Currency:     s.Currency,
		PromoCodeID:  quote.Promo.PromoCodeID,
		PromoCode:    quote.Promo.Code,
		PromoMessage: quote.Promo.Reason,
		Reservations: taken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.SessionTTL),
	}

	if err := s.Sessions.Save(ctx, session); err != nil {
		s.releaseReservations(ctx, taken)
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	s.Logger.Info("CHECKOUT", fmt.Sprintf("Session %s started for event %s: %d line(s), total %d %s",
		session.SessionID, session.EventID, len(session.CartItems), session.Total, session.Currency))
	return session, nil
}

// price looks up the promo code and fee schedule and delegates to the
// pricing engine. A bad or missing promo code degrades to zero discount
// with a message; blocking checkout over a bad code is the worse outcome.
func (s *Service) price(ctx context.Context, lines []pricing.Line, promoCode string) pricing.Quote {
	var promo *models.PromoCode
	promoRequested := promoCode != ""
	if promoRequested {
		found, err := s.DB.GetPromoCodeByCode(ctx, promoCode)
		if err != nil {
			s.Logger.Warn("CHECKOUT", fmt.Sprintf("Promo code %q lookup failed: %v", promoCode, err))
		} else {
			promo = found
		}
	}

	fees, err := s.DB.ListActiveFees(ctx)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Fee schedule lookup failed, charging no fees: %v", err))
		fees = nil
	}

	return pricing.Price(lines, promo, promoRequested, fees, time.Now())
}

// CompleteCheckout settles a session into an Order, OrderItems and one
// Ticket per purchased unit. The session is consumed exactly once, so two
// clients can never settle the same session twice. On any settlement fault
// the original holds are released best-effort; partially created rows from
// the failed attempt are left behind for audit, distinguished by the order
// never reaching its tickets.
func (s *Service) CompleteCheckout(ctx context.Context, req models.CompleteCheckoutRequest) (*models.OrderSummary, error) {
	if req.SessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "required"}
	}
	if req.Buyer.Email == "" {
		return nil, &ValidationError{Field: "buyer.email", Message: "required"}
	}

	session, err := s.Sessions.Consume(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(time.Now()) {
		s.Logger.Warn("CHECKOUT", fmt.Sprintf("Session %s presented after expiry", session.SessionID))
		s.releaseReservations(ctx, session.Reservations)
		return nil, ErrSessionExpired
	}

	summary, err := s.settle(ctx, session, req)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Settlement of session %s failed: %v", session.SessionID, err))
		s.releaseReservations(ctx, session.Reservations)
		if errors.Is(err, ErrTicketTypeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	s.Logger.Info("CHECKOUT", fmt.Sprintf("Session %s settled into order %s (%d tickets)",
		session.SessionID, summary.Order.OrderID, summary.TicketCount))

	s.publishOrderCompleted(summary)
	go s.notifyOrderConfirmed(summary)

	return summary, nil
}

func (s *Service) settle(ctx context.Context, session *models.CheckoutSession, req models.CompleteCheckoutRequest) (*models.OrderSummary, error) {
	// Payment capture is the caller's concern; by the time a session is
	// completed the payment reference it carries is assumed confirmed.
	order := &models.Order{
		OrderID:       uuid.NewString(),
		EventID:       session.EventID,
		Status:        models.OrderStatusPaid,
		Subtotal:      session.Subtotal,
		Discount:      session.Discount,
		Fees:          session.TotalFees,
		Total:         session.Total,
		Currency:      session.Currency,
		CustomerName:  req.Buyer.Name,
		CustomerEmail: req.Buyer.Email,
		CustomerPhone: req.Buyer.Phone,
		PromoCodeID:   session.PromoCodeID,
		PromoCode:     session.PromoCode,
		PaymentIntent: req.PaymentIntent,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
		CreatedAt:     time.Now(),
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	ticketCount := 0
	for _, line := range session.CartItems {
		if _, err := s.DB.GetTicketTypeByID(ctx, line.TicketTypeID); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTicketTypeNotFound, line.TicketTypeID)
		}

		item := &models.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.OrderID,
			TicketTypeID:   line.TicketTypeID,
			TicketTypeName: line.TicketTypeName,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
		}
		if err := s.DB.CreateOrderItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		for unit := 0; unit < line.Quantity; unit++ {
			if _, err := s.Issuer.Issue(ctx, models.IssueTicketRequest{
				OrderID:       order.OrderID,
				OrderItemID:   item.ID,
				EventID:       session.EventID,
				TicketTypeID:  line.TicketTypeID,
				AttendeeName:  req.AttendeeName,
				AttendeeEmail: req.AttendeeEmail,
			}); err != nil {
				return nil, fmt.Errorf("failed to issue ticket: %w", err)
			}
			ticketCount++
		}

		if err := s.Ledger.Commit(ctx, line.TicketTypeID, line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to commit inventory for %s: %w", line.TicketTypeID, err)
		}
	}

	// Once for the whole order, not once per line.
	if session.PromoCodeID != "" {
		if err := s.DB.IncrementPromoUsage(ctx, session.PromoCodeID); err != nil {
			return nil, fmt.Errorf("failed to count promo usage: %w", err)
		}
	}

	return &models.OrderSummary{Order: order, TicketCount: ticketCount}, nil
}

// releaseReservations unwinds holds best-effort. A failed or clamped
// release is logged and iteration continues: a half-finished rollback beats
// none, and rollback must never throw while unwinding another failure.
func (s *Service) releaseReservations(ctx context.Context, reservations []models.Reservation) {
	for _, r := range reservations {
		err := s.Ledger.Release(ctx, r.TicketTypeID, r.Quantity)
		switch {
		case err == nil:
		case errors.Is(err, inventory.ErrPartialRelease):
			s.Logger.Warn("INVENTORY", fmt.Sprintf("Release of %d on %s clamped at zero", r.Quantity, r.TicketTypeID))
		default:
			s.Logger.Error("INVENTORY", fmt.Sprintf("Failed to release %d on %s: %v", r.Quantity, r.TicketTypeID, err))
		}
	}
}

func (s *Service) publishOrderCompleted(summary *models.OrderSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to marshal order %s: %v", summary.Order.OrderID, err))
		return
	}
	if err := s.Kafka.Publish(s.OrderTopic, summary.Order.OrderID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish order completed for %s: %v", summary.Order.OrderID, err))
	}
}

func (s *Service) notifyOrderConfirmed(summary *models.OrderSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Notifier.OrderConfirmed(ctx, summary.Order, summary.TicketCount); err != nil {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("Confirmation for order %s not dispatched: %v", summary.Order.OrderID, err))
	}
}

package redemption

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/tickets"
)

type TicketDBLayer interface {
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	MarkUsed(ctx context.Context, ticketID, usedBy string, at time.Time) (bool, error)
}

type OrderDBLayer interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
}

type PayloadParser interface {
	ParsePayload(payload string) (*tickets.RedemptionClaims, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type Logger interface {
	Info(category, message string)
	Warn(category, message string)
	Error(category, message string)
}

// TopicTicketRedeemed is the default redemption topic; mains override
// Service.RedeemedTopic from configuration.
const TopicTicketRedeemed = "checkout.tickets.redeemed"

// RedeemInput carries either a bare ticket code or a signed QR payload,
// plus the scanning identity.
type RedeemInput struct {
	Code        string `json:"code,omitempty"`
	Payload     string `json:"payload,omitempty"`
	OrganizerID string `json:"organizer_id,omitempty"`
	ScannedBy   string `json:"scanned_by,omitempty"`
}

type TicketSummary struct {
	TicketID     string    `json:"ticket_id"`
	Code         string    `json:"code"`
	Status       string    `json:"status"`
	TicketTypeID string    `json:"ticket_type_id"`
	AttendeeName string    `json:"attendee_name,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	UsedAt       time.Time `json:"used_at,omitempty"`
	UsedBy       string    `json:"used_by,omitempty"`
}

type EventSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Venue     string    `json:"venue,omitempty"`
	StartDate time.Time `json:"start_date"`
}

type OrderSummary struct {
	OrderID       string `json:"order_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
}

// Result is always a normal business outcome: a rejected scan is Valid=false
// with a message, never a transport error.
type Result struct {
	Valid   bool           `json:"valid"`
	Message string         `json:"message"`
	Ticket  *TicketSummary `json:"ticket,omitempty"`
	Event   *EventSummary  `json:"event,omitempty"`
	Order   *OrderSummary  `json:"order,omitempty"`
}

type PeekResult struct {
	Found   bool           `json:"found"`
	Message string         `json:"message,omitempty"`
	Ticket  *TicketSummary `json:"ticket,omitempty"`
}

// Service drives the ticket redemption state machine: valid → used, with
// used, cancelled and transferred all terminal. Nothing here ever moves a
// ticket out of a terminal state.
type Service struct {
	Tickets TicketDBLayer
	Orders  OrderDBLayer
	Parser  PayloadParser
	Kafka   KafkaPublisher
	Logger  Logger
	// RedeemedTopic is where successful redemptions are published.
	RedeemedTopic string
}

func NewService(ticketDB TicketDBLayer, orderDB OrderDBLayer, parser PayloadParser, kafka KafkaPublisher, log Logger) *Service {
	return &Service{
		Tickets:       ticketDB,
		Orders:        orderDB,
		Parser:        parser,
		Kafka:         kafka,
		Logger:        log,
		RedeemedTopic: TopicTicketRedeemed,
	}
}

// Redeem validates a presented code or payload and, if the ticket is valid,
// transitions it to used. The organizer check runs before any ticket detail
// is revealed, so an unauthorized scanner learns nothing.
func (s *Service) Redeem(ctx context.Context, in RedeemInput) (*Result, error) {
	ticket, event, reject, err := s.resolve(ctx, in.Code, in.Payload, in.OrganizerID)
	if err != nil {
		return nil, err
	}
	if reject != nil {
		return reject, nil
	}

	if reject := s.rejectTerminal(ticket); reject != nil {
		return reject, nil
	}

	usedBy := in.ScannedBy
	if usedBy == "" {
		usedBy = in.OrganizerID
	}
	now := time.Now()

	ok, err := s.Tickets.MarkUsed(ctx, ticket.TicketID, usedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket %s used: %w", ticket.TicketID, err)
	}
	if !ok {
		// Lost a concurrent scan; re-read for the winning usedAt/usedBy.
		fresh, err := s.Tickets.GetTicketByCode(ctx, ticket.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read ticket %s: %w", ticket.TicketID, err)
		}
		if reject := s.rejectTerminal(fresh); reject != nil {
			return reject, nil
		}
		return &Result{Valid: false, Message: "Ticket is not redeemable", Ticket: summarize(fresh)}, nil
	}

	ticket.Status = models.TicketStatusUsed
	ticket.UsedAt = now
	ticket.UsedBy = usedBy

	s.Logger.Info("REDEEM", fmt.Sprintf("Ticket %s redeemed for event %s by %s", ticket.Code, ticket.EventID, usedBy))
	s.publishRedeemed(ticket)

	result := &Result{
		Valid:   true,
		Message: "Ticket redeemed",
		Ticket:  summarize(ticket),
		Event:   summarizeEvent(event),
	}
	if order, err := s.Orders.GetOrderByID(ctx, ticket.OrderID); err == nil {
		result.Order = summarizeOrder(order)
	} else {
		s.Logger.Warn("REDEEM", fmt.Sprintf("Order %s lookup failed during redemption: %v", ticket.OrderID, err))
	}
	return result, nil
}

// Peek runs the same resolution and authorization as Redeem but never
// mutates status; it exists for pre-scan lookup at the door.
func (s *Service) Peek(ctx context.Context, code, organizerID string) (*PeekResult, error) {
	_, _, reject, err := s.resolve(ctx, code, "", organizerID)
	if err != nil {
		return nil, err
	}
	if reject != nil {
		return &PeekResult{Found: false, Message: reject.Message}, nil
	}

	ticket, err := s.Tickets.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &PeekResult{Found: true, Ticket: summarize(ticket)}, nil
}

// resolve turns a code or payload into a ticket plus its event, applying
// the payload signature check and the organizer authorization. A non-nil
// reject short-circuits the caller with a business rejection.
func (s *Service) resolve(ctx context.Context, code, payload, organizerID string) (*models.Ticket, *models.Event, *Result, error) {
	var claims *tickets.RedemptionClaims
	if payload != "" {
		parsed, err := s.Parser.ParsePayload(payload)
		if err != nil {
			s.Logger.Warn("REDEEM", fmt.Sprintf("Rejected unparseable payload: %v", err))
			return nil, nil, &Result{Valid: false, Message: "Invalid redemption payload"}, nil
		}
		claims = parsed
		code = parsed.Code
	}
	if code == "" {
		return nil, nil, &Result{Valid: false, Message: "No ticket code supplied"}, nil
	}

	ticket, err := s.Tickets.GetTicketByCode(ctx, code)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, &Result{Valid: false, Message: "Ticket not found"}, nil
		}
		return nil, nil, nil, fmt.Errorf("failed to look up ticket %s: %w", code, err)
	}

	if claims != nil && claims.TicketID != ticket.TicketID {
		return nil, nil, &Result{Valid: false, Message: "Invalid redemption payload"}, nil
	}

	event, err := s.Orders.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to look up event %s: %w", ticket.EventID, err)
	}

	// Authorization before any status detail leaks.
	if organizerID != "" && organizerID != event.OrganizerID {
		return nil, nil, &Result{Valid: false, Message: "Not authorized for this event"}, nil
	}

	return ticket, event, nil, nil
}

func (s *Service) rejectTerminal(ticket *models.Ticket) *Result {
	switch ticket.Status {
	case models.TicketStatusUsed:
		return &Result{
			Valid:   false,
			Message: "Ticket already used",
			Ticket:  summarize(ticket),
		}
	case models.TicketStatusCancelled:
		return &Result{
			Valid:   false,
			Message: "Ticket has been cancelled",
			Ticket:  summarize(ticket),
		}
	case models.TicketStatusTransferred:
		return &Result{
			Valid:   false,
			Message: "Ticket has been transferred",
			Ticket:  summarize(ticket),
		}
	}
	return nil
}

func (s *Service) publishRedeemed(ticket *models.Ticket) {
	payload, err := json.Marshal(summarize(ticket))
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to marshal redemption of %s: %v", ticket.TicketID, err))
		return
	}
	if err := s.Kafka.Publish(s.RedeemedTopic, ticket.TicketID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish redemption of %s: %v", ticket.TicketID, err))
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func summarize(t *models.Ticket) *TicketSummary {
	return &TicketSummary{
		TicketID:     t.TicketID,
		Code:         t.Code,
		Status:       t.Status,
		TicketTypeID: t.TicketTypeID,
		AttendeeName: t.AttendeeName,
		IssuedAt:     t.IssuedAt,
		UsedAt:       t.UsedAt,
		UsedBy:       t.UsedBy,
	}
}

func summarizeEvent(e *models.Event) *EventSummary {
	return &EventSummary{
		ID:        e.ID,
		Title:     e.Title,
		Venue:     e.Venue,
		StartDate: e.StartDate,
	}
}

func summarizeOrder(o *models.Order) *OrderSummary {
	return &OrderSummary{
		OrderID:       o.OrderID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Total:         o.Total,
		Currency:      o.Currency,
	}
}

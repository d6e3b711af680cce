package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/models"
)

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

// OrderConfirmation is the message handed to the downstream notification
// system after a successful settlement. Actual delivery (email, push) is
// someone else's job.
type OrderConfirmation struct {
	OrderID       string    `json:"order_id"`
	EventID       string    `json:"event_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Total         int64     `json:"total"`
	Currency      string    `json:"currency"`
	TicketCount   int       `json:"ticket_count"`
	SentAt        time.Time `json:"sent_at"`
}

// Dispatcher publishes confirmations fire-and-forget. Callers treat a
// returned error as log-worthy, never as a checkout failure.
type Dispatcher struct {
	Kafka Publisher
	Topic string
}

func NewDispatcher(kafka Publisher, topic string) *Dispatcher {
	return &Dispatcher{Kafka: kafka, Topic: topic}
}

func (d *Dispatcher) OrderConfirmed(ctx context.Context, order *models.Order, ticketCount int) error {
	msg := OrderConfirmation{
		OrderID:       order.OrderID,
		EventID:       order.EventID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Total:         order.Total,
		Currency:      order.Currency,
		TicketCount:   ticketCount,
		SentAt:        time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation for order %s: %w", order.OrderID, err)
	}
	return d.Kafka.Publish(d.Topic, order.OrderID, payload)
}

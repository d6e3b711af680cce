package models

import "time"

// CartItem is one requested line of a checkout, as supplied by the client.
type CartItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// PricedLine is a cart line after validation, with the authoritative unit
// price read from the ticket type at checkout start.
type PricedLine struct {
	TicketTypeID   string `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	LineSubtotal   int64  `json:"line_subtotal"`
}

// Reservation records one hold taken against a ticket type so it can be
// committed or released later.
type Reservation struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// FeeLine is one computed buyer-payer fee on a quote.
type FeeLine struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// CheckoutSession is the ephemeral result of StartCheckout. It lives in
// Redis, never in the durable store, and is consumed exactly once by
// CompleteCheckout. If it is never completed, the reaper releases its
// reservations after ExpiresAt.
type CheckoutSession struct {
	SessionID    string        `json:"session_id"`
	EventID      string        `json:"event_id"`
	CartItems    []PricedLine  `json:"cart_items"`
	Subtotal     int64         `json:"subtotal"`
	Discount     int64         `json:"discount"`
	Fees         []FeeLine     `json:"fees"`
	TotalFees    int64         `json:"total_fees"`
	Total        int64         `json:"total"`
	Currency     string        `json:"currency"`
	PromoCodeID  string        `json:"promo_code_id,omitempty"`
	PromoCode    string        `json:"promo_code,omitempty"`
	PromoMessage string        `json:"promo_message,omitempty"`
	Reservations []Reservation `json:"reservations"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// Expired reports whether the session's holds are past their TTL.
func (s *CheckoutSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type StartCheckoutRequest struct {
	EventID   string     `json:"event_id"`
	CartItems []CartItem `json:"cart_items"`
	PromoCode string     `json:"promo_code,omitempty"`
}

type BuyerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type CompleteCheckoutRequest struct {
	SessionID     string            `json:"session_id"`
	Buyer         BuyerInfo         `json:"buyer"`
	PaymentIntent string            `json:"payment_intent_id"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	AttendeeName  string            `json:"attendee_name,omitempty"`
	AttendeeEmail string            `json:"attendee_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// OrderSummary is returned to the caller after settlement.
type OrderSummary struct {
	Order       *Order `json:"order"`
	TicketCount int    `json:"ticket_count"`
}

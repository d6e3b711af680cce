package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkout/internal/inventory"
	"ms-checkout/internal/models"
)

// Mock implementations for testing

type mockDB struct {
	events       map[string]*models.Event
	ticketTypes  map[string]*models.TicketType
	promoCodes   map[string]*models.PromoCode
	fees         []models.Fee
	orders       map[string]*models.Order
	orderItems   []*models.OrderItem
	promoUsage   map[string]int
	shouldFailOn string
	errorMsg     string
}

func newMockDB() *mockDB {
	return &mockDB{
		events:      make(map[string]*models.Event),
		ticketTypes: make(map[string]*models.TicketType),
		promoCodes:  make(map[string]*models.PromoCode),
		orders:      make(map[string]*models.Order),
		promoUsage:  make(map[string]int),
	}
}

func (m *mockDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	if m.shouldFailOn == "GetEventByID" {
		return nil, errors.New(m.errorMsg)
	}
	event, ok := m.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	return event, nil
}

func (m *mockDB) GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error) {
	if m.shouldFailOn == "GetTicketTypeByID" {
		return nil, errors.New(m.errorMsg)
	}
	tt, ok := m.ticketTypes[id]
	if !ok {
		return nil, errors.New("ticket type not found")
	}
	copy := *tt
	return &copy, nil
}

func (m *mockDB) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	promo, ok := m.promoCodes[code]
	if !ok {
		return nil, errors.New("promo code not found")
	}
	return promo, nil
}

func (m *mockDB) ListActiveFees(ctx context.Context) ([]models.Fee, error) {
	return m.fees, nil
}

func (m *mockDB) CreateOrder(ctx context.Context, order *models.Order) error {
	if m.shouldFailOn == "CreateOrder" {
		return errors.New(m.errorMsg)
	}
	m.orders[order.OrderID] = order
	return nil
}

func (m *mockDB) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if m.shouldFailOn == "CreateOrderItem" {
		return errors.New(m.errorMsg)
	}
	m.orderItems = append(m.orderItems, item)
	return nil
}

func (m *mockDB) IncrementPromoUsage(ctx context.Context, promoID string) error {
	if m.shouldFailOn == "IncrementPromoUsage" {
		return errors.New(m.errorMsg)
	}
	m.promoUsage[promoID]++
	return nil
}

// mockLedger tracks reserved/sold counters per ticket type, enforcing the
// same capacity arithmetic as the real ledger.
type mockLedger struct {
	capacity map[string]int
	reserved map[string]int
	sold     map[string]int
	failHold map[string]bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		capacity: make(map[string]int),
		reserved: make(map[string]int),
		sold:     make(map[string]int),
		failHold: make(map[string]bool),
	}
}

func (m *mockLedger) Hold(ctx context.Context, ticketTypeID string, qty int) error {
	if m.failHold[ticketTypeID] {
		return &inventory.InsufficientInventoryError{TicketTypeID: ticketTypeID, Requested: qty}
	}
	available := m.capacity[ticketTypeID] - m.sold[ticketTypeID] - m.reserved[ticketTypeID]
	if available < qty {
		return &inventory.InsufficientInventoryError{TicketTypeID: ticketTypeID, Requested: qty, Available: available}
	}
	m.reserved[ticketTypeID] += qty
	return nil
}

func (m *mockLedger) Commit(ctx context.Context, ticketTypeID string, qty int) error {
	if m.reserved[ticketTypeID] < qty {
		return inventory.ErrInvalidState
	}
	m.reserved[ticketTypeID] -= qty
	m.sold[ticketTypeID] += qty
	return nil
}

func (m *mockLedger) Release(ctx context.Context, ticketTypeID string, qty int) error {
	if m.reserved[ticketTypeID] < qty {
		m.reserved[ticketTypeID] = 0
		return inventory.ErrPartialRelease
	}
	m.reserved[ticketTypeID] -= qty
	return nil
}

type mockSessions struct {
	sessions map[string]*models.CheckoutSession
	saveErr  error
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[string]*models.CheckoutSession)}
}

func (m *mockSessions) Save(ctx context.Context, session *models.CheckoutSession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[session.SessionID] = session
	return nil
}

func (m *mockSessions) Consume(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return session, nil
}

type mockIssuer struct {
	issued  []models.IssueTicketRequest
	failAt  int // fail on the Nth issue, 0 = never
	nextSeq int
}

func (m *mockIssuer) Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error) {
	m.nextSeq++
	if m.failAt > 0 && m.nextSeq >= m.failAt {
		return nil, errors.New("issuer exploded")
	}
	m.issued = append(m.issued, req)
	return &models.Ticket{
		TicketID: fmt.Sprintf("ticket-%d", m.nextSeq),
		OrderID:  req.OrderID,
		Code:     fmt.Sprintf("TKT-%04d", m.nextSeq),
		Status:   models.TicketStatusValid,
	}, nil
}

type mockKafka struct {
	published []string // topic:key
}

func (m *mockKafka) Publish(topic string, key string, value []byte) error {
	m.published = append(m.published, topic+":"+key)
	return nil
}

type mockNotifier struct {
	confirmed int
}

func (m *mockNotifier) OrderConfirmed(ctx context.Context, order *models.Order, ticketCount int) error {
	m.confirmed++
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(category, message string)  {}
func (nopLogger) Warn(category, message string)  {}
func (nopLogger) Error(category, message string) {}

type fixture struct {
	db       *mockDB
	ledger   *mockLedger
	sessions *mockSessions
	issuer   *mockIssuer
	kafka    *mockKafka
	notifier *mockNotifier
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		db:       newMockDB(),
		ledger:   newMockLedger(),
		sessions: newMockSessions(),
		issuer:   &mockIssuer{},
		kafka:    &mockKafka{},
		notifier: &mockNotifier{},
	}
	f.service = NewService(f.db, f.ledger, f.sessions, f.issuer, f.kafka, f.notifier, nopLogger{}, "USD", 15*time.Minute)

	f.db.events["event-1"] = &models.Event{
		ID:          "event-1",
		OrganizerID: "org-1",
		Title:       "Summer Festival",
		StartDate:   time.Now().Add(24 * time.Hour),
		EndDate:     time.Now().Add(30 * time.Hour),
	}
	f.addTicketType("tt-ga", "General Admission", 1000, 100)
	f.addTicketType("tt-vip", "VIP", 5000, 10)
	return f
}

func (f *fixture) addTicketType(id, name string, price int64, capacity int) {
	f.db.ticketTypes[id] = &models.TicketType{
		ID:          id,
		EventID:     "event-1",
		Name:        name,
		Price:       price,
		Capacity:    capacity,
		MinPerOrder: 1,
		MaxPerOrder: 10,
	}
	f.ledger.capacity[id] = capacity
}

func startRequest() models.StartCheckoutRequest {
	return models.StartCheckoutRequest{
		EventID: "event-1",
		CartItems: []models.CartItem{
			{TicketTypeID: "tt-ga", Quantity: 2},
			{TicketTypeID: "tt-vip", Quantity: 1},
		},
	}
}

func TestStartCheckoutHoldsAndPrices(t *testing.T) {
	f := newFixture()

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, int64(7000), session.Subtotal) // 2×1000 + 1×5000
	assert.Equal(t, int64(7000), session.Total)
	assert.Equal(t, "USD", session.Currency)
	assert.Len(t, session.Reservations, 2)
	assert.Equal(t, 2, f.ledger.reserved["tt-ga"])
	assert.Equal(t, 1, f.ledger.reserved["tt-vip"])
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), session.ExpiresAt, 2*time.Second)

	// Session actually landed in the store.
	assert.Contains(t, f.sessions.sessions, session.SessionID)
}

func TestStartCheckoutReleasesEarlierHoldsWhenLaterLineLoses(t *testing.T) {
	f := newFixture()
	f.ledger.failHold["tt-vip"] = true

	_, err := f.service.StartCheckout(context.Background(), startRequest())

	var invErr *inventory.InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "tt-vip", invErr.TicketTypeID)
	// The GA hold taken before the VIP failure must be unwound.
	assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
}

func TestStartCheckoutRejectsBeforeAnyHold(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name string
		req  models.StartCheckoutRequest
		want func(t *testing.T, err error)
	}{
		{
			name: "unknown event",
			req: models.StartCheckoutRequest{
				EventID:   "nope",
				CartItems: []models.CartItem{{TicketTypeID: "tt-ga", Quantity: 1}},
			},
			want: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEventNotFound)
			},
		},
		{
			name: "unknown ticket type",
			req: models.StartCheckoutRequest{
				EventID:   "event-1",
				CartItems: []models.CartItem{{TicketTypeID: "nope", Quantity: 1}},
			},
			want: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTicketTypeNotFound)
			},
		},
		{
			name: "empty cart",
			req:  models.StartCheckoutRequest{EventID: "event-1"},
			want: func(t *testing.T, err error) {
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
			},
		},
		{
			name: "quantity above max",
			req: models.StartCheckoutRequest{
				EventID:   "event-1",
				CartItems: []models.CartItem{{TicketTypeID: "tt-ga", Quantity: 11}},
			},
			want: func(t *testing.T, err error) {
				var qErr *QuantityOutOfRangeError
				require.ErrorAs(t, err, &qErr)
				assert.Equal(t, 10, qErr.Max)
			},
		},
		{
			name: "more than available",
			req: models.StartCheckoutRequest{
				EventID:   "event-1",
				CartItems: []models.CartItem{{TicketTypeID: "tt-ga", Quantity: 2}, {TicketTypeID: "tt-vip", Quantity: 10}},
			},
			want: func(t *testing.T, err error) {
				var invErr *inventory.InsufficientInventoryError
				assert.ErrorAs(t, err, &invErr)
			},
		},
	}

	f.db.ticketTypes["tt-vip"].Sold = 5 // only 5 of 10 left

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.StartCheckout(context.Background(), tc.req)
			tc.want(t, err)
			// Validation failures never leave holds behind.
			assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
			assert.Equal(t, 0, f.ledger.reserved["tt-vip"])
		})
	}
}

func TestStartCheckoutDegradesBadPromo(t *testing.T) {
	f := newFixture()

	req := startRequest()
	req.PromoCode = "NOSUCHCODE"

	session, err := f.service.StartCheckout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(0), session.Discount)
	assert.Empty(t, session.PromoCodeID)
	assert.NotEmpty(t, session.PromoMessage)
	assert.Equal(t, session.Subtotal, session.Total)
}

func TestStartCheckoutAppliesPromoAndFees(t *testing.T) {
	f := newFixture()
	f.db.promoCodes["SUMMER10"] = &models.PromoCode{
		ID:     "promo-1",
		Code:   "SUMMER10",
		Type:   models.PromoTypePercent,
		Amount: 10,
		Active: true,
	}
	f.db.fees = []models.Fee{
		{ID: "fee-1", Name: "Service Fee", Type: models.FeeTypePercent, Amount: 5, Payer: models.FeePayerBuyer, Active: true},
	}

	req := startRequest()
	req.PromoCode = "SUMMER10"

	session, err := f.service.StartCheckout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(7000), session.Subtotal)
	assert.Equal(t, int64(700), session.Discount)
	// 5% of the discounted base 6300.
	assert.Equal(t, int64(315), session.TotalFees)
	assert.Equal(t, int64(6615), session.Total)
	assert.Equal(t, "promo-1", session.PromoCodeID)
}

func completeRequest(sessionID string) models.CompleteCheckoutRequest {
	return models.CompleteCheckoutRequest{
		SessionID:     sessionID,
		Buyer:         models.BuyerInfo{Name: "Ada Lovelace", Email: "ada@example.com"},
		PaymentIntent: "pi_123",
	}
}

func TestCompleteCheckoutSettlesOrder(t *testing.T) {
	f := newFixture()
	f.db.promoCodes["SUMMER10"] = &models.PromoCode{
		ID: "promo-1", Code: "SUMMER10", Type: models.PromoTypePercent, Amount: 10, Active: true,
	}
	req := startRequest()
	req.PromoCode = "SUMMER10"

	session, err := f.service.StartCheckout(context.Background(), req)
	require.NoError(t, err)

	summary, err := f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	require.NoError(t, err)

	order := summary.Order
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, session.Total, order.Total)
	assert.Equal(t, "ada@example.com", order.CustomerEmail)
	assert.Equal(t, 3, summary.TicketCount)
	assert.Len(t, f.issuer.issued, 3)
	assert.Len(t, f.db.orderItems, 2)

	// Holds committed into sales.
	assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
	assert.Equal(t, 2, f.ledger.sold["tt-ga"])
	assert.Equal(t, 1, f.ledger.sold["tt-vip"])

	// Promo counted exactly once for the whole order.
	assert.Equal(t, 1, f.db.promoUsage["promo-1"])

	// Completed-order event published.
	require.Len(t, f.kafka.published, 1)
	assert.Equal(t, TopicOrderCompleted+":"+order.OrderID, f.kafka.published[0])
}

func TestCompleteCheckoutPublishesToConfiguredTopic(t *testing.T) {
	f := newFixture()
	f.service.OrderTopic = "orders.eu-west.completed"

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	summary, err := f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	require.NoError(t, err)

	require.Len(t, f.kafka.published, 1)
	assert.Equal(t, "orders.eu-west.completed:"+summary.Order.OrderID, f.kafka.published[0])
}

func TestCompleteCheckoutConsumesSessionOnce(t *testing.T) {
	f := newFixture()

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	_, err = f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	require.NoError(t, err)

	_, err = f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteCheckoutRejectsExpiredSession(t *testing.T) {
	f := newFixture()

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	// Age the stored session past its TTL.
	f.sessions.sessions[session.SessionID].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Expired holds handed straight back.
	assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
	assert.Equal(t, 0, f.ledger.reserved["tt-vip"])
	assert.Empty(t, f.db.orders)
}

func TestCompleteCheckoutReleasesOnTicketTypeGone(t *testing.T) {
	f := newFixture()

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	// Ticket type deleted between start and complete.
	delete(f.db.ticketTypes, "tt-vip")

	_, err = f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)

	assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
	assert.Equal(t, 0, f.ledger.reserved["tt-vip"])
	assert.Equal(t, 0, f.ledger.sold["tt-vip"])
	assert.Empty(t, f.issuer.issued)
}

func TestCompleteCheckoutReleasesOnIssuerFailure(t *testing.T) {
	f := newFixture()
	f.issuer.failAt = 2

	session, err := f.service.StartCheckout(context.Background(), startRequest())
	require.NoError(t, err)

	_, err = f.service.CompleteCheckout(context.Background(), completeRequest(session.SessionID))
	assert.ErrorIs(t, err, ErrSettlementFailed)

	assert.Equal(t, 0, f.ledger.reserved["tt-ga"])
	assert.Equal(t, 0, f.ledger.reserved["tt-vip"])
	assert.Equal(t, 0, f.kafka.publishedCount())
}

func (m *mockKafka) publishedCount() int { return len(m.published) }

func TestCompleteCheckoutValidatesInput(t *testing.T) {
	f := newFixture()

	var vErr *ValidationError

	_, err := f.service.CompleteCheckout(context.Background(), models.CompleteCheckoutRequest{})
	assert.ErrorAs(t, err, &vErr)

	_, err = f.service.CompleteCheckout(context.Background(), models.CompleteCheckoutRequest{SessionID: "s-1"})
	assert.ErrorAs(t, err, &vErr)
}

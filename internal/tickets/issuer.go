package tickets

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-checkout/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// codeAlphabet deliberately drops 0/O and 1/I; door staff read these codes
// aloud. 32 characters keeps the random draw unbiased on whole bytes.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 5

var (
	ErrCodeSpaceExhausted = errors.New("could not generate a unique ticket code")
	ErrInvalidPayload     = errors.New("redemption payload is invalid")
)

type TicketDB interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

// RedemptionClaims is the signed content of a ticket's QR payload. Nothing
// in it is trusted until the signature and expiry have been verified.
type RedemptionClaims struct {
	TicketID     string `json:"tid"`
	Code         string `json:"code"`
	EventID      string `json:"eid"`
	TicketTypeID string `json:"tti"`
	jwt.RegisteredClaims
}

// Issuer mints tickets at settlement: a human-presentable code, an
// HMAC-signed redemption payload and the QR image carrying it.
type Issuer struct {
	DB         TicketDB
	signingKey []byte
	CodePrefix string
	CodeLength int
	PayloadTTL time.Duration
}

func NewIssuer(db TicketDB, secret, codePrefix string, codeLength int, payloadTTL time.Duration) *Issuer {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Issuer{
		DB:         db,
		signingKey: hashed[:],
		CodePrefix: codePrefix,
		CodeLength: codeLength,
		PayloadTTL: payloadTTL,
	}
}

// Issue creates one ticket row for one purchased unit. Codes are long
// enough that collisions are negligible, but the store is still consulted
// and the draw retried rather than trusting probability alone.
func (i *Issuer) Issue(ctx context.Context, req models.IssueTicketRequest) (*models.Ticket, error) {
	code, err := i.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		TicketID:      uuid.NewString(),
		OrderID:       req.OrderID,
		OrderItemID:   req.OrderItemID,
		EventID:       req.EventID,
		TicketTypeID:  req.TicketTypeID,
		Code:          code,
		Status:        models.TicketStatusValid,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
		IssuedAt:      time.Now(),
	}

	payload, err := i.signPayload(ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to sign redemption payload: %w", err)
	}
	ticket.QRPayload = payload

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}
	ticket.QRCode = png

	if err := i.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to persist ticket: %w", err)
	}
	return ticket, nil
}

func (i *Issuer) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := i.randomCode()
		if err != nil {
			return "", err
		}
		exists, err := i.DB.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func (i *Issuer) randomCode() (string, error) {
	buf := make([]byte, i.CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(i.CodePrefix)
	b.WriteByte('-')
	for _, by := range buf {
		b.WriteByte(codeAlphabet[int(by)%len(codeAlphabet)])
	}
	return b.String(), nil
}

func (i *Issuer) signPayload(ticket *models.Ticket) (string, error) {
	now := ticket.IssuedAt
	claims := RedemptionClaims{
		TicketID:     ticket.TicketID,
		Code:         ticket.Code,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.PayloadTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
}

// ParsePayload verifies the signature and expiry of a presented payload
// before any of its fields may be trusted.
func (i *Issuer) ParsePayload(payload string) (*RedemptionClaims, error) {
	token, err := jwt.ParseWithClaims(payload, &RedemptionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	claims, ok := token.Claims.(*RedemptionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidPayload
	}
	return claims, nil
}

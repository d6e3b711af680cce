package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/checkout"
	"ms-checkout/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	sessionKeyPrefix = "checkout:session:"
	expiryIndexKey   = "checkout:sessions:expiry"
)

// consumeScript claims a session atomically: removing the expiry-index entry
// is the claim, and the document read and delete happen in the same script
// so a racing caller can never claim the index entry and then lose the
// document. A missing index entry means someone else already claimed it; a
// claimed entry with no document is an operational fault the caller must
// hear about.
var consumeScript = redis.NewScript(`
if redis.call("zrem", KEYS[1], ARGV[1]) == 0 then
	return false
end
local doc = redis.call("get", KEYS[2])
redis.call("del", KEYS[2])
if doc == false then
	return ""
end
return doc
`)

// SessionStore keeps checkout sessions in Redis: a JSON document per
// session plus a sorted set indexed by expiry time. The sorted set doubles
// as the single-consumption guard: between a completing client and the
// reaper exactly one caller ever claims a given session.
type SessionStore struct {
	Client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{Client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save stores the session document without a TTL. Documents must survive
// until claimed, however late the claim: if they expired on their own and
// the reaper fell behind, the reservations they carry could never be
// released. Consume deletes the document as part of the claim, so nothing
// is left behind.
func (s *SessionStore) Save(ctx context.Context, session *models.CheckoutSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.SessionID), payload, 0)
	pipe.ZAdd(ctx, expiryIndexKey, &redis.Z{
		Score:  float64(session.ExpiresAt.Unix()),
		Member: session.SessionID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Consume claims and removes a session. A second Consume, or a racing
// reaper sweep, finds no index entry to remove and gets ErrSessionNotFound.
// A claimed session whose document is missing reports ErrSessionStateLost:
// its reservations cannot be recovered and the caller must not treat it as
// an already-consumed session.
func (s *SessionStore) Consume(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	res, err := consumeScript.Run(ctx, s.Client,
		[]string{expiryIndexKey, sessionKey(sessionID)}, sessionID).Result()
	if err == redis.Nil {
		return nil, checkout.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	raw, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected claim reply for session %s: %T", sessionID, res)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: %s", checkout.ErrSessionStateLost, sessionID)
	}

	var session models.CheckoutSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// ExpiredSessionIDs lists sessions whose expiry passed at or before now.
// Listing does not claim; the reaper claims each one via Consume.
func (s *SessionStore) ExpiredSessionIDs(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	return s.Client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: limit,
	}).Result()
}

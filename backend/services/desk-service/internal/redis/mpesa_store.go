package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps short-lived mobile-money markers: processed callbacks and in-flight pushes.
type Store struct {
	client      *redis.Client
	callbackTTL time.Duration
	pushTTL     time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, callbackTTL, pushTTL time.Duration) *Store {
	return &Store{client: client, callbackTTL: callbackTTL, pushTTL: pushTTL}
}

func callbackKey(checkoutRequestID string, resultCode int) string {
	return fmt.Sprintf("mpesa:callback:%s:%d", checkoutRequestID, resultCode)
}

func pushKey(kind string, id int64) string {
	return fmt.Sprintf("mpesa:push:%s:%d", kind, id)
}

// Processed reports whether the callback was already applied.
func (s *Store) Processed(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error) {
	n, err := s.client.Exists(ctx, callbackKey(checkoutRequestID, resultCode)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed remembers an applied callback.
func (s *Store) MarkProcessed(ctx context.Context, checkoutRequestID string, resultCode int) error {
	return s.client.Set(ctx, callbackKey(checkoutRequestID, resultCode), time.Now().UTC().Format(time.RFC3339), s.callbackTTL).Err()
}

// AcquirePush takes the push slot of a session or payment. It returns false while a previous
// push for the same target is still within its TTL.
func (s *Store) AcquirePush(ctx context.Context, kind string, id int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, pushKey(kind, id), 1, s.pushTTL).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return ok, nil
}

// ReleasePush frees the push slot, used when the push was not sent.
func (s *Store) ReleasePush(ctx context.Context, kind string, id int64) error {
	return s.client.Del(ctx, pushKey(kind, id)).Err()
}

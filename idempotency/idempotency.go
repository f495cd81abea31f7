// Package idempotency deduplicates retried checkout requests that carry the
// same Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.New("a request with this idempotency key is still in progress")

const pending = "pending"

// Store keeps one Redis key per (user, idempotency key). The value is
// "pending" while the first request runs and the order id once it succeeded.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func redisKey(userID, key string) string {
	return "idem:checkout:" + userID + ":" + key
}

// Begin claims key for userID. When an earlier request with the key already
// placed an order, Begin returns that order id and done=true.
func (s *Store) Begin(ctx context.Context, userID, key string) (orderID int64, done bool, err error) {
	k := redisKey(userID, key)
	for i := 0; i < 2; i++ {
		claimed, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
		if err != nil {
			return 0, false, err
		}
		if claimed {
			return 0, false, nil
		}

		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return 0, false, err
		}
		if v == pending {
			return 0, false, ErrInFlight
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("idempotency key %s holds %q", k, v)
		}
		return id, true, nil
	}
	return 0, false, ErrInFlight
}

// Complete records the order placed under key.
func (s *Store) Complete(ctx context.Context, userID, key string, orderID int64) error {
	return s.client.Set(ctx, redisKey(userID, key), strconv.FormatInt(orderID, 10), s.ttl).Err()
}

// Release drops the claim so a retry runs the request again.
func (s *Store) Release(ctx context.Context, userID, key string) error {
	return s.client.Del(ctx, redisKey(userID, key)).Err()
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on an external Redis instance. SET NX provides
// the atomic conditional insert; Redis key expiry provides the TTL. This is
// the backend to use when more than one service instance receives webhooks.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	owned  bool
}

// NewRedisStore creates a RedisStore from a redis:// URL.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
		owned:  true,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps
// ownership of the client; Close is a no-op.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Reserve claims the notification ID with SET NX and the configured TTL.
func (s *RedisStore) Reserve(ctx context.Context, notificationID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, Key(notificationID), string(StatusReserved), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", notificationID, err)
	}
	return ok, nil
}

// Complete overwrites the reservation value with the terminal outcome while
// keeping the original expiry.
func (s *RedisStore) Complete(ctx context.Context, notificationID string, status Status) error {
	if err := s.client.Set(ctx, Key(notificationID), string(status), redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", notificationID, err)
	}
	return nil
}

// Release deletes the reservation so the notification becomes retryable.
func (s *RedisStore) Release(ctx context.Context, notificationID string) error {
	if err := s.client.Del(ctx, Key(notificationID)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", notificationID, err)
	}
	return nil
}

// Ping verifies connectivity. Used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client when this store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

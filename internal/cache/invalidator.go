// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package cache invalidates derived-state keys held by the consuming API's
// Redis cache. The pipeline never writes cache values itself; deleting the
// key is enough to force a re-read from the relational store.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/felpsbot/gametime/internal/metrics"
)

// NewClient creates a Redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Invalidator deletes last-played cache keys.
type Invalidator struct {
	client    *redis.Client
	keyPrefix string
}

// NewInvalidator creates an Invalidator. keyPrefix defaults to "lastplayed".
func NewInvalidator(client *redis.Client, keyPrefix string) *Invalidator {
	if keyPrefix == "" {
		keyPrefix = "lastplayed"
	}
	return &Invalidator{client: client, keyPrefix: keyPrefix}
}

// Key returns the cache key for an entity pair.
func (i *Invalidator) Key(streamerID, gameID string) string {
	return fmt.Sprintf("%s:%s:%s", i.keyPrefix, streamerID, gameID)
}

// InvalidateLastPlayed deletes the key for the pair. Deleting an absent key
// is a success.
func (i *Invalidator) InvalidateLastPlayed(ctx context.Context, streamerID, gameID string) error {
	err := i.client.Del(ctx, i.Key(streamerID, gameID)).Err()
	if err != nil {
		metrics.RecordCacheInvalidation("error")
		return fmt.Errorf("delete cache key: %w", err)
	}
	metrics.RecordCacheInvalidation("ok")
	return nil
}

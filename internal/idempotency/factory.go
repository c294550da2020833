// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package idempotency

import (
	"fmt"
	"time"

	"github.com/felpsbot/gametime/internal/config"
	"github.com/felpsbot/gametime/internal/logging"
)

// New creates the Store selected by configuration. The TTL is the provider's
// maximum redelivery window, taken from the EventSub configuration.
func New(cfg config.IdempotencyConfig, ttl time.Duration) (Store, error) {
	log := logging.WithComponent("idempotency")

	switch cfg.Backend {
	case "redis":
		store, err := NewRedisStore(cfg.RedisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("create redis idempotency store: %w", err)
		}
		log.Info().Str("backend", "redis").Dur("ttl", ttl).Msg("Idempotency store initialized")
		return store, nil

	case "badger":
		store, err := NewBadgerStore(cfg.BadgerPath, ttl)
		if err != nil {
			return nil, fmt.Errorf("create badger idempotency store: %w", err)
		}
		log.Info().Str("backend", "badger").Str("path", cfg.BadgerPath).Dur("ttl", ttl).
			Msg("Idempotency store initialized")
		return store, nil

	case "memory":
		log.Warn().Str("backend", "memory").
			Msg("In-memory idempotency store selected; reservations will not survive restarts")
		return NewMemoryStore(ttl), nil

	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Backend)
	}
}

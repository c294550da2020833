// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package idempotency tracks which notification IDs have already been
// accepted for processing. The only load-bearing guarantees required from a
// backend are an atomic conditional insert and TTL-based expiry.
package idempotency

import (
	"context"
	"time"
)

// keyPrefix namespaces reservation keys in shared backends.
const keyPrefix = "processed:"

// Status is the terminal outcome recorded against a reservation.
// Reservations start in StatusReserved and are finalized exactly once.
type Status string

const (
	StatusReserved Status = "reserved"
	StatusApplied  Status = "applied"
	StatusStale    Status = "stale"
)

// Store is the reservation contract used by the dedup engine.
//
// Reserve atomically claims a notification ID. It returns true when the
// caller won the claim and false when the ID was already present, in which
// case the delivery is a duplicate. The reservation expires after the
// configured TTL, which must cover the provider's redelivery window.
//
// Complete records the terminal outcome without extending the TTL.
//
// Release drops a reservation after a failed state write so a later
// redelivery of the same notification can be processed again.
type Store interface {
	Reserve(ctx context.Context, notificationID string) (bool, error)
	Complete(ctx context.Context, notificationID string, status Status) error
	Release(ctx context.Context, notificationID string) error
	Close() error
}

// Key returns the backend key for a notification ID.
func Key(notificationID string) string {
	return keyPrefix + notificationID
}

// entry is the in-memory representation used by the memory backend.
type entry struct {
	status    Status
	expiresAt time.Time
}

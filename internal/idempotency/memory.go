// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Reservations do not
// survive restarts and are invisible to other instances; use it only for
// tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Reserve claims the notification ID if absent or expired.
func (s *MemoryStore) Reserve(_ context.Context, notificationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(notificationID)
	if e, ok := s.entries[key]; ok && s.now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = entry{status: StatusReserved, expiresAt: s.now().Add(s.ttl)}
	return true, nil
}

// Complete records the terminal outcome, keeping the original expiry.
func (s *MemoryStore) Complete(_ context.Context, notificationID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(notificationID)
	if e, ok := s.entries[key]; ok {
		e.status = status
		s.entries[key] = e
	}
	return nil
}

// Release deletes the reservation.
func (s *MemoryStore) Release(_ context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(notificationID))
	return nil
}

// Status returns the recorded status for a notification ID, for tests.
func (s *MemoryStore) Status(notificationID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[Key(notificationID)]
	if !ok || s.now().After(e.expiresAt) {
		return "", false
	}
	return e.status, true
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

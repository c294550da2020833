// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on an embedded Badger database. Suitable for
// single-instance deployments that should not depend on an external Redis.
// Badger's serializable transactions make the get-then-set in Reserve
// atomic: a conflicting concurrent commit fails and is reported as a
// duplicate.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens (or creates) the reservation database at path.
func NewBadgerStore(path string, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

// errAlreadyReserved aborts the Reserve transaction when the key exists.
var errAlreadyReserved = errors.New("already reserved")

// Reserve claims the notification ID with an insert-if-absent transaction.
func (s *BadgerStore) Reserve(_ context.Context, notificationID string) (bool, error) {
	key := []byte(Key(notificationID))

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return errAlreadyReserved
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		e := badger.NewEntry(key, []byte(StatusReserved)).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyReserved):
		return false, nil
	case errors.Is(err, badger.ErrConflict):
		// A concurrent reservation for the same key committed first.
		return false, nil
	default:
		return false, fmt.Errorf("reserve %s: %w", notificationID, err)
	}
}

// Complete overwrites the reservation value, preserving the remaining TTL.
func (s *BadgerStore) Complete(_ context.Context, notificationID string, status Status) error {
	key := []byte(Key(notificationID))

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		e := badger.NewEntry(key, []byte(status))
		if expiresAt := item.ExpiresAt(); expiresAt > 0 {
			remaining := time.Until(time.Unix(int64(expiresAt), 0))
			if remaining <= 0 {
				remaining = time.Second
			}
			e = e.WithTTL(remaining)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("complete %s: %w", notificationID, err)
	}
	return nil
}

// Release deletes the reservation so the notification becomes retryable.
func (s *BadgerStore) Release(_ context.Context, notificationID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(Key(notificationID)))
	})
	if err != nil {
		return fmt.Errorf("release %s: %w", notificationID, err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

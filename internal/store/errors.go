// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("row not found")

// PersistenceError indicates a transactional failure: constraint violation,
// connection loss, or timeout. The webhook handler maps it to a retryable
// status so the provider redelivers; retried application is safe because the
// monotonic guard makes the write idempotent.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

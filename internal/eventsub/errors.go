// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package eventsub

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingHeader indicates a required EventSub header was absent.
	ErrMissingHeader = errors.New("missing required eventsub header")

	// ErrBadSignature indicates the HMAC signature did not match.
	// Indicates secret misconfiguration, not a transient failure.
	ErrBadSignature = errors.New("eventsub signature mismatch")

	// ErrStaleTimestamp indicates the message timestamp fell outside the
	// accepted skew window (replay protection).
	ErrStaleTimestamp = errors.New("eventsub message timestamp outside skew window")
)

// MalformedPayloadError indicates a notification body that does not match the
// provider contract. Usually means the provider changed its payload shape.
type MalformedPayloadError struct {
	Field  string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed eventsub payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed eventsub payload: field %q: %s", e.Field, e.Reason)
}

// IsMalformed reports whether err is a MalformedPayloadError.
func IsMalformed(err error) bool {
	var m *MalformedPayloadError
	return errors.As(err, &m)
}

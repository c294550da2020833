// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const signaturePrefix = "sha256="

// Verifier validates that an inbound delivery genuinely originated from
// Twitch. The HMAC-SHA256 message is the concatenation of the message ID
// header, the message timestamp header, and the raw request body.
type Verifier struct {
	secret     []byte
	skewWindow time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewVerifier creates a Verifier with the shared webhook secret and the
// maximum accepted message age.
func NewVerifier(secret string, skewWindow time.Duration) *Verifier {
	return &Verifier{
		secret:     []byte(secret),
		skewWindow: skewWindow,
		now:        time.Now,
	}
}

// VerifyRequest validates the signature and timestamp headers of r against
// the already-read raw body. It has no side effects.
//
// Returns ErrMissingHeader, ErrBadSignature, or ErrStaleTimestamp.
func (v *Verifier) VerifyRequest(r *http.Request, body []byte) error {
	messageID := r.Header.Get(HeaderMessageID)
	timestamp := r.Header.Get(HeaderMessageTimestamp)
	signature := r.Header.Get(HeaderMessageSignature)
	return v.Verify(messageID, timestamp, signature, body)
}

// Verify validates an HMAC signature over (messageID + timestamp + body).
func (v *Verifier) Verify(messageID, timestamp, signature string, body []byte) error {
	if messageID == "" || timestamp == "" || signature == "" {
		return ErrMissingHeader
	}

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", ErrStaleTimestamp, timestamp)
	}
	if age := v.now().Sub(ts); age > v.skewWindow || age < -v.skewWindow {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature header value for the given message.
// Used by tests and by subscription verification tooling.
func Sign(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package publish implements the fan-out stage: after a successful commit it
// publishes a derived-fact message to NATS JetStream and invalidates the
// affected cache key. Everything here is best effort; failures never unwind
// committed state.
package publish

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/felpsbot/gametime/internal/eventsub"
)

// GameplayFact is the derived fact carried on the fan-out topic. Consumers
// must tolerate duplicates and out-of-order arrival independently.
type GameplayFact struct {
	NotificationID string    `json:"notification_id"`
	StreamerID     string    `json:"streamer_id"`
	StreamerName   string    `json:"streamer_name,omitempty"`
	GameID         string    `json:"game_id"`
	GameName       string    `json:"game_name"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// FactFromEvent builds the published fact from an applied canonical event.
func FactFromEvent(ev *eventsub.CanonicalEvent) *GameplayFact {
	return &GameplayFact{
		NotificationID: ev.NotificationID,
		StreamerID:     ev.StreamerID,
		StreamerName:   ev.StreamerName,
		GameID:         ev.GameID,
		GameName:       ev.GameName,
		OccurredAt:     ev.OccurredAt,
	}
}

// Serialize encodes the fact for the wire.
func (f *GameplayFact) Serialize() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("serialize gameplay fact: %w", err)
	}
	return data, nil
}

// DeserializeFact decodes a fact from the wire. Exposed for consumers and
// tests.
func DeserializeFact(data []byte) (*GameplayFact, error) {
	var f GameplayFact
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("deserialize gameplay fact: %w", err)
	}
	return &f, nil
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package eventsub

import (
	"time"

	json "github.com/goccy/go-json"
)

// CanonicalEvent is the pipeline's normalized representation of a
// game-change notification. OccurredAt comes from the provider's message
// timestamp header, not the local clock, so out-of-order redelivery stays
// detectable.
type CanonicalEvent struct {
	NotificationID string    `json:"notification_id"`
	EventType      string    `json:"event_type"`
	StreamerID     string    `json:"streamer_id"`
	StreamerName   string    `json:"streamer_name"`
	GameID         string    `json:"game_id"`
	GameName       string    `json:"game_name"`
	GameImageURL   string    `json:"game_image_url,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Key returns the entity pair the monotonicity invariant applies to.
func (e *CanonicalEvent) Key() (streamerID, gameID string) {
	return e.StreamerID, e.GameID
}

// Normalizer maps verified notification payloads into canonical events.
// Dispatch over the subscription type is closed: unknown types are a
// contract violation, not a silently dropped message.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize produces the canonical event for a notification delivery.
//
// The boolean result reports whether the notification is relevant to the
// last-played fact. Stream online/offline transitions and channel updates
// without a category are normalized to a no-op and dropped before reaching
// the dedup engine.
func (n *Normalizer) Normalize(notificationID string, occurredAt time.Time, env *Envelope) (*CanonicalEvent, bool, error) {
	if notificationID == "" {
		return nil, false, &MalformedPayloadError{Field: "notification_id", Reason: "empty"}
	}
	if len(env.Event) == 0 {
		return nil, false, &MalformedPayloadError{Field: "event", Reason: "missing"}
	}

	switch env.Subscription.Type {
	case TypeChannelUpdate:
		var ev ChannelUpdateEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return nil, false, &MalformedPayloadError{Field: "event", Reason: err.Error()}
		}
		if ev.BroadcasterUserID == "" {
			return nil, false, &MalformedPayloadError{Field: "broadcaster_user_id", Reason: "empty"}
		}
		// No category set means the broadcaster is not playing anything.
		if ev.CategoryID == "" {
			return nil, false, nil
		}
		return &CanonicalEvent{
			NotificationID: notificationID,
			EventType:      TypeChannelUpdate,
			StreamerID:     ev.BroadcasterUserID,
			StreamerName:   ev.BroadcasterUserName,
			GameID:         ev.CategoryID,
			GameName:       ev.CategoryName,
			OccurredAt:     occurredAt,
		}, true, nil

	case TypeStreamOnline:
		var ev StreamOnlineEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return nil, false, &MalformedPayloadError{Field: "event", Reason: err.Error()}
		}
		if ev.BroadcasterUserID == "" {
			return nil, false, &MalformedPayloadError{Field: "broadcaster_user_id", Reason: "empty"}
		}
		return nil, false, nil

	case TypeStreamOffline:
		var ev StreamOfflineEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return nil, false, &MalformedPayloadError{Field: "event", Reason: err.Error()}
		}
		if ev.BroadcasterUserID == "" {
			return nil, false, &MalformedPayloadError{Field: "broadcaster_user_id", Reason: "empty"}
		}
		return nil, false, nil

	default:
		return nil, false, &MalformedPayloadError{
			Field:  "subscription.type",
			Reason: "unknown type " + env.Subscription.Type,
		}
	}
}

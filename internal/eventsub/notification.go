// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package eventsub implements the inbound half of the Twitch EventSub webhook
// contract: HMAC signature verification, payload models for the subscribed
// notification types, and normalization into the pipeline's canonical event.
package eventsub

import (
	"time"

	json "github.com/goccy/go-json"
)

// EventSub webhook headers. Twitch sends these with every delivery.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderSubscriptionType = "Twitch-Eventsub-Subscription-Type"
	HeaderMessageRetry     = "Twitch-Eventsub-Message-Retry"
)

// Message types carried in the Twitch-Eventsub-Message-Type header.
const (
	MessageTypeNotification = "notification"
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeRevocation   = "revocation"
)

// Subscription types this service handles. The set is closed: a new type
// requires an explicit normalizer case and a new subscription.
const (
	TypeChannelUpdate = "channel.update"
	TypeStreamOnline  = "stream.online"
	TypeStreamOffline = "stream.offline"
)

// SubscriptionTypes lists every type the service subscribes to.
var SubscriptionTypes = []string{TypeChannelUpdate, TypeStreamOnline, TypeStreamOffline}

// Envelope is the top-level EventSub webhook body. The event field's shape
// depends on subscription.type; it stays raw until the normalizer decodes it.
type Envelope struct {
	Subscription Subscription    `json:"subscription"`
	Challenge    string          `json:"challenge,omitempty"`
	Event        json.RawMessage `json:"event,omitempty"`
}

// Subscription describes the EventSub subscription a delivery belongs to.
type Subscription struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Condition map[string]string `json:"condition"`
	CreatedAt time.Time         `json:"created_at"`
}

// ChannelUpdateEvent is the payload for channel.update notifications.
// CategoryID/CategoryName are empty when the broadcaster has no game set.
type ChannelUpdateEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	Title                string `json:"title"`
	Language             string `json:"language"`
	CategoryID           string `json:"category_id"`
	CategoryName         string `json:"category_name"`
}

// StreamOnlineEvent is the payload for stream.online notifications.
type StreamOnlineEvent struct {
	ID                   string    `json:"id"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// StreamOfflineEvent is the payload for stream.offline notifications.
type StreamOfflineEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// ParseEnvelope decodes the webhook body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedPayloadError{Reason: err.Error()}
	}
	return &env, nil
}

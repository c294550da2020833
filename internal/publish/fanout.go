// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
)

// BusPublisher is the message-bus half of the fan-out.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// CacheInvalidator drops the derived-state cache key for an entity pair so
// the consuming API re-reads from the relational store.
type CacheInvalidator interface {
	InvalidateLastPlayed(ctx context.Context, streamerID, gameID string) error
}

// Fanout publishes derived facts and invalidates cache keys after each
// applied event. Both halves are optional and best effort.
type Fanout struct {
	bus   BusPublisher
	topic string
	cache CacheInvalidator
	log   zerolog.Logger
}

// NewFanout creates a Fanout. bus and cache may each be nil when that half
// is not configured.
func NewFanout(bus BusPublisher, topic string, cache CacheInvalidator) *Fanout {
	return &Fanout{
		bus:   bus,
		topic: topic,
		cache: cache,
		log:   logging.WithComponent("fanout"),
	}
}

// PublishApplied fans out one applied event. The notification ID becomes the
// message UUID, and through it the JetStream Nats-Msg-Id, so duplicate
// fan-out from redeliveries collapses inside the broker's duplicate window.
func (f *Fanout) PublishApplied(ctx context.Context, ev *eventsub.CanonicalEvent) error {
	var errs []error

	if f.bus != nil {
		data, err := FactFromEvent(ev).Serialize()
		if err != nil {
			errs = append(errs, err)
		} else {
			msg := message.NewMessage(ev.NotificationID, data)
			msg.Metadata.Set("event_type", ev.EventType)
			msg.Metadata.Set("streamer_id", ev.StreamerID)
			msg.Metadata.Set("game_id", ev.GameID)

			if err := f.bus.Publish(ctx, f.topic, msg); err != nil {
				errs = append(errs, fmt.Errorf("publish fact: %w", err))
			}
		}
	}

	if f.cache != nil {
		if err := f.cache.InvalidateLastPlayed(ctx, ev.StreamerID, ev.GameID); err != nil {
			errs = append(errs, fmt.Errorf("invalidate cache: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package pipeline contains the ordering and dedup engine: the per-entity
// sequencer that decides, for each canonical event, whether to apply it
// under concurrent, duplicate, and out-of-order delivery.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/idempotency"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/metrics"
)

// Outcome is the adjudicated result for a notification. Every duplicate and
// stale delivery is a normal outcome value, not an error.
type Outcome string

const (
	// OutcomeApplied means the event mutated state and was fanned out.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the notification ID was already reserved.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeStale means the stored timestamp was newer or equal. The
	// reservation is kept so the notification is never reprocessed.
	OutcomeStale Outcome = "stale"
	// OutcomeSkipped means the notification normalized to a no-op and
	// never reached the engine proper.
	OutcomeSkipped Outcome = "skipped"
)

// Applier commits an accepted event transactionally. The advanced result is
// false when the monotonic guard rejected the write as stale.
type Applier interface {
	ApplyGameChange(ctx context.Context, event *eventsub.CanonicalEvent) (advanced bool, err error)
}

// Fanout publishes a derived fact after a successful commit. Implementations
// are best-effort: errors are reported but never unwind committed state.
type Fanout interface {
	PublishApplied(ctx context.Context, event *eventsub.CanonicalEvent) error
}

// Engine decides exactly one outcome per canonical event. Correctness under
// concurrent delivery rests on two primitives: the atomic reservation in the
// idempotency store and the conditional write in the applier. The engine
// itself holds no cross-request state.
type Engine struct {
	reservations idempotency.Store
	applier      Applier
	fanout       Fanout
	log          zerolog.Logger
}

// NewEngine creates an Engine. fanout may be nil when no downstream
// consumers are configured.
func NewEngine(reservations idempotency.Store, applier Applier, fanout Fanout) *Engine {
	return &Engine{
		reservations: reservations,
		applier:      applier,
		fanout:       fanout,
		log:          logging.WithComponent("pipeline"),
	}
}

// Process adjudicates one canonical event.
//
// The reservation is taken before the timestamp comparison: checking first
// and inserting after would let two concurrent deliveries of the same
// notification both pass the duplicate check. When the state write fails the
// reservation is released, so a later redelivery can retry; retried
// application stays idempotent through the monotonic guard.
func (e *Engine) Process(ctx context.Context, event *eventsub.CanonicalEvent) (Outcome, error) {
	start := time.Now()
	log := logging.Ctx(ctx)

	reserved, err := e.reservations.Reserve(ctx, event.NotificationID)
	if err != nil {
		return "", fmt.Errorf("reserve notification %s: %w", event.NotificationID, err)
	}
	if !reserved {
		log.Info().
			Str("notification_id", event.NotificationID).
			Msg("Notification already processed, ignoring duplicate")
		e.record(event, OutcomeDuplicate, start)
		return OutcomeDuplicate, nil
	}

	advanced, err := e.applier.ApplyGameChange(ctx, event)
	if err != nil {
		// Drop the reservation so the provider's redelivery can retry.
		if relErr := e.reservations.Release(ctx, event.NotificationID); relErr != nil {
			// The orphaned reservation expires with its TTL; until then
			// this notification cannot be reprocessed.
			log.Error().Err(relErr).
				Str("notification_id", event.NotificationID).
				Msg("Failed to release reservation after persistence failure")
		} else {
			metrics.RecordReservationRelease()
		}
		return "", fmt.Errorf("apply notification %s: %w", event.NotificationID, err)
	}

	if !advanced {
		e.complete(ctx, event.NotificationID, idempotency.StatusStale)
		log.Info().
			Str("notification_id", event.NotificationID).
			Str("streamer_id", event.StreamerID).
			Str("game_id", event.GameID).
			Time("occurred_at", event.OccurredAt).
			Msg("Stored state is newer, ignoring stale event")
		e.record(event, OutcomeStale, start)
		return OutcomeStale, nil
	}

	e.complete(ctx, event.NotificationID, idempotency.StatusApplied)
	log.Info().
		Str("notification_id", event.NotificationID).
		Str("streamer_id", event.StreamerID).
		Str("game_id", event.GameID).
		Str("game_name", event.GameName).
		Time("occurred_at", event.OccurredAt).
		Msg("Event applied")

	if e.fanout != nil {
		// Best effort: the commit already happened and must not unwind.
		if pubErr := e.fanout.PublishApplied(ctx, event); pubErr != nil {
			log.Warn().Err(pubErr).
				Str("notification_id", event.NotificationID).
				Msg("Fan-out publish failed, continuing")
		}
	}

	e.record(event, OutcomeApplied, start)
	return OutcomeApplied, nil
}

// complete marks the terminal outcome on the reservation. Failures are
// logged only; the outcome is already durable in the relational store.
func (e *Engine) complete(ctx context.Context, notificationID string, status idempotency.Status) {
	if err := e.reservations.Complete(ctx, notificationID, status); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("notification_id", notificationID).
			Msg("Failed to record terminal reservation status")
	}
}

func (e *Engine) record(event *eventsub.CanonicalEvent, outcome Outcome, start time.Time) {
	metrics.RecordOutcome(event.EventType, string(outcome), time.Since(start))
}

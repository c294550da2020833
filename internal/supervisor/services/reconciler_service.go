// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/twitch"
)

// SubscriptionAPI is the Helix surface the reconciler needs.
type SubscriptionAPI interface {
	ListSubscriptions(ctx context.Context) ([]twitch.Subscription, error)
	CreateSubscription(ctx context.Context, req twitch.SubscriptionRequest) (*twitch.Subscription, error)
}

// ReconcilerService keeps the webhook subscriptions in the desired state:
// one enabled subscription per supported type for the configured
// broadcaster. Twitch drops subscriptions on repeated delivery failures, so
// the reconciler re-creates anything missing on every tick.
type ReconcilerService struct {
	helix         SubscriptionAPI
	broadcasterID string
	callbackURL   string
	secret        string
	interval      time.Duration
	log           zerolog.Logger
}

// NewReconcilerService creates a reconciler running at the given interval.
func NewReconcilerService(helix SubscriptionAPI, broadcasterID, callbackURL, secret string, interval time.Duration) *ReconcilerService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReconcilerService{
		helix:         helix,
		broadcasterID: broadcasterID,
		callbackURL:   callbackURL,
		secret:        secret,
		interval:      interval,
		log:           logging.WithComponent("reconciler"),
	}
}

// Serve implements suture.Service. It reconciles once at startup, then on
// every tick until the context is canceled.
func (s *ReconcilerService) Serve(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		s.log.Error().Err(err).Msg("Initial subscription reconcile failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.log.Error().Err(err).Msg("Subscription reconcile failed")
			}
		}
	}
}

// reconcile creates any missing subscription. Failed or revoked
// subscriptions do not count as present; Twitch garbage-collects them and a
// fresh create replaces them.
func (s *ReconcilerService) reconcile(ctx context.Context) error {
	existing, err := s.helix.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	var created int
	for _, subType := range eventsub.SubscriptionTypes {
		req := twitch.NewSubscriptionRequest(subType, s.broadcasterID, s.callbackURL, s.secret)
		if s.covered(req, existing) {
			continue
		}

		if _, err := s.helix.CreateSubscription(ctx, req); err != nil {
			if errors.Is(err, twitch.ErrConflict) {
				continue
			}
			s.log.Error().Err(err).Str("subscription_type", subType).Msg("Failed to create subscription")
			continue
		}
		created++
	}

	if created > 0 {
		s.log.Info().Int("created", created).Msg("Reconciled EventSub subscriptions")
	} else {
		s.log.Debug().Int("existing", len(existing)).Msg("EventSub subscriptions in desired state")
	}
	return nil
}

func (s *ReconcilerService) covered(req twitch.SubscriptionRequest, existing []twitch.Subscription) bool {
	for _, sub := range existing {
		if !req.Matches(sub) {
			continue
		}
		if sub.Status == "enabled" || sub.Status == "webhook_callback_verification_pending" {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer for supervision logs.
func (s *ReconcilerService) String() string {
	return "subscription-reconciler"
}

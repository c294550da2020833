// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/felpsbot/gametime/internal/auth"
	"github.com/felpsbot/gametime/internal/config"
	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/pipeline"
	"github.com/felpsbot/gametime/internal/store"
	"github.com/felpsbot/gametime/internal/twitch"
)

// Engine adjudicates canonical events.
type Engine interface {
	Process(ctx context.Context, event *eventsub.CanonicalEvent) (pipeline.Outcome, error)
}

// GametimeStore is the read side of the relational store used by lookup
// endpoints and readiness checks.
type GametimeStore interface {
	GetLastPlayed(ctx context.Context, streamerID, gameID int64) (*store.LastPlayedRow, error)
	ListLastPlayed(ctx context.Context, streamerID int64) ([]store.LastPlayedRow, error)
	Ping(ctx context.Context) error
}

// HelixClient is the Twitch API surface the handlers depend on.
type HelixClient interface {
	FetchChannel(ctx context.Context, broadcasterID string) (*twitch.Channel, error)
	FetchStream(ctx context.Context, userID string) (*twitch.Stream, error)
	ListSubscriptions(ctx context.Context) ([]twitch.Subscription, error)
	CreateSubscription(ctx context.Context, req twitch.SubscriptionRequest) (*twitch.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Handler implements all HTTP endpoints.
type Handler struct {
	cfg         *config.Config
	verifier    *eventsub.Verifier
	normalizer  *eventsub.Normalizer
	engine      Engine
	store       GametimeStore
	helix       HelixClient
	jwt         *auth.JWTManager
	credentials *auth.CredentialChecker
	log         zerolog.Logger
}

// NewHandler creates the endpoint handler. helix, jwt and credentials may be
// nil when the management surface is disabled.
func NewHandler(
	cfg *config.Config,
	verifier *eventsub.Verifier,
	engine Engine,
	st GametimeStore,
	helix HelixClient,
	jwtManager *auth.JWTManager,
	credentials *auth.CredentialChecker,
) *Handler {
	return &Handler{
		cfg:         cfg,
		verifier:    verifier,
		normalizer:  eventsub.NewNormalizer(),
		engine:      engine,
		store:       st,
		helix:       helix,
		jwt:         jwtManager,
		credentials: credentials,
		log:         logging.WithComponent("api"),
	}
}

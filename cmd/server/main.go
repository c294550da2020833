// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package main is the entry point for the Gametime server.
//
// Gametime ingests Twitch EventSub webhook deliveries, keeps a monotonic
// record of when each streamer started playing each game, and answers the
// chat-facing "how long has X been playing Y" question.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, config file, environment)
//  2. Logging (zerolog, structured JSON by default)
//  3. PostgreSQL store and schema
//  4. Idempotency reservations (Redis, Badger, or in-memory)
//  5. Cache invalidator (optional, Redis)
//  6. NATS JetStream fan-out (optional, external or embedded server)
//  7. Helix client, auth, HTTP router
//  8. Supervisor tree (reconciler worker + HTTP server)
//
// Shutdown on SIGINT/SIGTERM cancels the supervisor context; the HTTP
// server drains in-flight requests before the stores close.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/felpsbot/gametime/internal/api"
	"github.com/felpsbot/gametime/internal/auth"
	"github.com/felpsbot/gametime/internal/cache"
	"github.com/felpsbot/gametime/internal/config"
	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/idempotency"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/pipeline"
	"github.com/felpsbot/gametime/internal/publish"
	"github.com/felpsbot/gametime/internal/store"
	"github.com/felpsbot/gametime/internal/supervisor"
	"github.com/felpsbot/gametime/internal/supervisor/services"
	"github.com/felpsbot/gametime/internal/twitch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("callback_url", cfg.EventSub.CallbackURL).
		Str("idempotency_backend", cfg.Idempotency.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("management_enabled", cfg.Security.ManagementEnabled).
		Msg("Starting Gametime")

	ctx := context.Background()

	// Relational store. Webhook adjudication cannot run without it, so a
	// failure here is fatal.
	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to apply database schema")
	}
	logging.Info().Msg("Database ready")

	// Reservation store. The TTL mirrors the redelivery window so
	// reservations outlive every possible redelivery of a notification.
	reservations, err := idempotency.New(cfg.Idempotency, cfg.EventSub.RedeliveryWindow)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize idempotency store")
	}
	defer func() {
		if err := reservations.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing idempotency store")
		}
	}()

	// Optional cache invalidation half of the fan-out.
	var invalidator publish.CacheInvalidator
	if cfg.Cache.Enabled {
		redisURL := cfg.Cache.RedisURL
		if redisURL == "" {
			redisURL = cfg.Idempotency.RedisURL
		}
		client, err := cache.NewClient(redisURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create cache Redis client")
		}
		defer client.Close() //nolint:errcheck
		invalidator = cache.NewInvalidator(client, cfg.Cache.KeyPrefix)
		logging.Info().Str("key_prefix", cfg.Cache.KeyPrefix).Msg("Cache invalidation enabled")
	}

	// Optional message-bus half of the fan-out.
	var bus publish.BusPublisher
	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL

		if cfg.NATS.EmbeddedServer {
			embedded, err := publish.NewEmbeddedServer(publish.EmbeddedServerConfig{
				Host:     "127.0.0.1",
				StoreDir: cfg.NATS.StoreDir,
			})
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := embedded.Shutdown(shutdownCtx); err != nil {
					logging.Error().Err(err).Msg("Error stopping embedded NATS server")
				}
			}()
			natsURL = embedded.ClientURL()
			logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
		}

		nc, err := natsgo.Connect(natsURL, natsgo.Timeout(cfg.NATS.ConnectTimeout))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create JetStream context")
		}

		initializer, err := publish.NewStreamInitializer(js, publish.DefaultStreamConfig(
			cfg.NATS.Stream, cfg.NATS.Topic, cfg.EventSub.RedeliveryWindow))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to configure stream initializer")
		}
		if _, err := initializer.EnsureStream(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to ensure JetStream stream")
		}

		publisher, err := publish.NewPublisher(
			publish.DefaultPublisherConfig(natsURL), publish.NewWatermillLogger())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing publisher")
			}
		}()
		bus = publisher
		logging.Info().Str("stream", cfg.NATS.Stream).Str("topic", cfg.NATS.Topic).Msg("Fan-out publisher ready")
	}

	fanout := publish.NewFanout(bus, cfg.NATS.Topic, invalidator)
	engine := pipeline.NewEngine(reservations, pg, fanout)

	// Helix client for subscription management, revocation recovery and
	// the game time endpoint.
	var helix api.HelixClient
	if cfg.Twitch.ClientID != "" {
		helix = twitch.NewClient(cfg.Twitch)
	}

	var jwtManager *auth.JWTManager
	var credentials *auth.CredentialChecker
	var authMW *auth.Middleware
	if cfg.Security.ManagementEnabled {
		jwtManager, err = auth.NewJWTManager(cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		credentials, err = auth.NewCredentialChecker(cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential checker")
		}
		authMW = auth.NewMiddleware(jwtManager)
	}

	verifier := eventsub.NewVerifier(cfg.EventSub.Secret, cfg.EventSub.SkewWindow)
	handler := api.NewHandler(cfg, verifier, engine, pg, helix, jwtManager, credentials)
	router := api.NewRouter(cfg, handler, authMW)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	if cfg.EventSub.ReconcileInterval > 0 && helix != nil {
		tree.AddBackgroundService(services.NewReconcilerService(
			helix, cfg.Twitch.BroadcasterID, cfg.EventSub.CallbackURL,
			cfg.EventSub.Secret, cfg.EventSub.ReconcileInterval))
		logging.Info().
			Dur("interval", cfg.EventSub.ReconcileInterval).
			Msg("Subscription reconciler enabled")
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := tree.ServeBackground(serveCtx)

	logging.Info().Str("addr", httpServer.Addr).Msg("Gametime started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor stopped with error")
		}
	case err := <-errCh:
		logging.Error().Err(err).Msg("Supervisor tree exited")
	}

	logging.Info().Msg("Gametime stopped")
}

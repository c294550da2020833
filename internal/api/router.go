// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felpsbot/gametime/internal/auth"
	"github.com/felpsbot/gametime/internal/config"
	"github.com/felpsbot/gametime/internal/middleware"
)

// Router wires handlers into the HTTP route tree.
type Router struct {
	cfg     *config.Config
	handler *Handler
	authMW  *auth.Middleware
}

// NewRouter creates a router. authMW may be nil when the management surface
// is disabled; its routes are then not registered at all.
func NewRouter(cfg *config.Config, handler *Handler, authMW *auth.Middleware) *Router {
	return &Router{cfg: cfg, handler: handler, authMW: authMW}
}

// Setup builds the chi route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ProcessTime)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(rt.cfg.Security.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.cfg.Security.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Operational endpoints stay outside the metrics middleware so
	// scrapes and probes do not inflate request counters.
	r.Get("/healthz", rt.handler.HealthLive)
	r.Get("/readyz", rt.handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		// Twitch controls delivery volume on the callback; rate
		// limiting it would only turn bursts into redeliveries.
		r.Post("/eventsub/callback", rt.handler.HandleCallback)

		r.Get("/streamgametime/{streamer_id}", rt.handler.StreamGameTime)
		r.Get("/streamers/{streamer_id}/lastplayed", rt.handler.ListLastPlayed)

		if rt.cfg.Security.ManagementEnabled && rt.authMW != nil {
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(rt.rateLimitReqs(), rt.rateLimitWindow()))

				r.Post("/auth/login", rt.handler.Login)

				r.Route("/eventsub/subscriptions", func(r chi.Router) {
					r.With(rt.authMW.RequireScope(auth.ScopeSubscriptionsList)).
						Get("/", rt.handler.ListSubscriptions)
					r.With(rt.authMW.RequireScope(auth.ScopeSubscriptionsCreate)).
						Post("/", rt.handler.CreateSubscription)
					r.With(rt.authMW.RequireScope(auth.ScopeSubscriptionsDelete)).
						Delete("/{id}", rt.handler.DeleteSubscription)
				})
			})
		}
	})

	return r
}

func (rt *Router) rateLimitReqs() int {
	if rt.cfg.Security.RateLimitReqs > 0 {
		return rt.cfg.Security.RateLimitReqs
	}
	return 30
}

func (rt *Router) rateLimitWindow() time.Duration {
	if rt.cfg.Security.RateLimitWindow > 0 {
		return rt.cfg.Security.RateLimitWindow
	}
	return time.Minute
}

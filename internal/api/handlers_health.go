// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/felpsbot/gametime/internal/logging"
)

// HealthLive reports process liveness. It never checks dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady reports readiness to serve. The relational store must answer
// a ping; webhook deliveries cannot be adjudicated without it.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		rw.ServiceUnavailable("database unreachable")
		return
	}

	rw.Success(map[string]string{"status": "ready"})
}

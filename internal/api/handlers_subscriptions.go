// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/felpsbot/gametime/internal/auth"
	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/twitch"
)

// Login exchanges HTTP Basic admin credentials for a scoped bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	username, err := h.credentials.ValidateBasicAuth(r.Header.Get("Authorization"))
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Login rejected")
		rw.Unauthorized("invalid credentials")
		return
	}

	token, err := h.jwt.GenerateToken(username, auth.AdminScopes)
	if err != nil {
		rw.InternalError("failed to issue token")
		return
	}

	rw.Success(map[string]interface{}{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.jwt.TokenTTL().Seconds()),
		"scopes":     auth.AdminScopes,
	})
}

// ListSubscriptions returns every EventSub subscription registered for the
// application, as Helix reports them.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subs, err := h.helix.ListSubscriptions(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list subscriptions")
		rw.Error(http.StatusBadGateway, ErrCodeExternalServiceFail, "helix request failed")
		return
	}

	rw.Success(map[string]interface{}{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

type createSubscriptionRequest struct {
	Type          string `json:"type"`
	BroadcasterID string `json:"broadcaster_id,omitempty"`
}

// CreateSubscription registers a webhook subscription for one of the
// supported types. The broadcaster defaults to the configured one.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}

	if !supportedSubscriptionType(req.Type) {
		rw.BadRequest("unsupported subscription type")
		return
	}

	broadcasterID := req.BroadcasterID
	if broadcasterID == "" {
		broadcasterID = h.cfg.Twitch.BroadcasterID
	}

	sub, err := h.helix.CreateSubscription(r.Context(), twitch.NewSubscriptionRequest(
		req.Type, broadcasterID, h.cfg.EventSub.CallbackURL, h.cfg.EventSub.Secret))
	if err != nil {
		if errors.Is(err, twitch.ErrConflict) {
			rw.Conflict("subscription already exists")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to create subscription")
		rw.Error(http.StatusBadGateway, ErrCodeExternalServiceFail, "helix request failed")
		return
	}

	rw.Created(sub)
}

// DeleteSubscription removes a subscription by ID.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("subscription id is required")
		return
	}

	if err := h.helix.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, twitch.ErrNotFound) {
			rw.NotFound("subscription not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to delete subscription")
		rw.Error(http.StatusBadGateway, ErrCodeExternalServiceFail, "helix request failed")
		return
	}

	rw.NoContent()
}

func supportedSubscriptionType(subType string) bool {
	for _, t := range eventsub.SubscriptionTypes {
		if t == subType {
			return true
		}
	}
	return false
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/metrics"
	"github.com/felpsbot/gametime/internal/pipeline"
	"github.com/felpsbot/gametime/internal/twitch"
)

// maxWebhookBody caps EventSub delivery bodies. Twitch payloads are a few
// kilobytes at most.
const maxWebhookBody = 1 << 20

// HandleCallback is the EventSub webhook endpoint. Every delivery is
// signature-verified before the body is trusted; the message type header
// then selects challenge echo, revocation handling, or the event pipeline.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.VerifyRequest(r, body); err != nil {
		metrics.RecordSignatureFailure(signatureFailureReason(err))
		log.Warn().
			Err(err).
			Str("message_id", r.Header.Get(eventsub.HeaderMessageID)).
			Msg("Rejected EventSub delivery")
		http.Error(w, "signature verification failed", http.StatusForbidden)
		return
	}

	messageType := r.Header.Get(eventsub.HeaderMessageType)
	metrics.RecordNotification(messageType)

	switch messageType {
	case eventsub.MessageTypeVerification:
		h.handleVerification(w, r, body)
	case eventsub.MessageTypeRevocation:
		h.handleRevocation(w, r, body)
	case eventsub.MessageTypeNotification:
		h.handleNotification(w, r, body)
	default:
		log.Warn().Str("message_type", messageType).Msg("Unknown EventSub message type")
		http.Error(w, "unknown message type", http.StatusBadRequest)
	}
}

// handleVerification echoes the challenge as plain text, completing the
// webhook enrollment handshake.
func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request, body []byte) {
	env, err := eventsub.ParseEnvelope(body)
	if err != nil || env.Challenge == "" {
		http.Error(w, "missing challenge", http.StatusBadRequest)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("subscription_type", env.Subscription.Type).
		Str("subscription_id", env.Subscription.ID).
		Msg("Answering EventSub verification challenge")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(env.Challenge)) //nolint:errcheck
}

// handleRevocation acknowledges the revocation and kicks off a best-effort
// resubscription in the background. The ack must not wait on Helix.
func (h *Handler) handleRevocation(w http.ResponseWriter, r *http.Request, body []byte) {
	env, err := eventsub.ParseEnvelope(body)
	if err != nil {
		http.Error(w, "malformed revocation", http.StatusBadRequest)
		return
	}

	logging.Ctx(r.Context()).Warn().
		Str("subscription_type", env.Subscription.Type).
		Str("subscription_id", env.Subscription.ID).
		Str("status", env.Subscription.Status).
		Msg("EventSub subscription revoked")

	if h.helix != nil {
		subType := env.Subscription.Type
		broadcasterID := env.Subscription.Condition["broadcaster_user_id"]
		go h.resubscribe(subType, broadcasterID)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resubscribe(subType, broadcasterID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req := twitch.NewSubscriptionRequest(subType, broadcasterID,
		h.cfg.EventSub.CallbackURL, h.cfg.EventSub.Secret)

	if _, err := h.helix.CreateSubscription(ctx, req); err != nil && !errors.Is(err, twitch.ErrConflict) {
		h.log.Error().
			Err(err).
			Str("subscription_type", subType).
			Msg("Failed to resubscribe after revocation")
		return
	}
	h.log.Info().Str("subscription_type", subType).Msg("Resubscribed after revocation")
}

// handleNotification runs one delivery through normalization and the
// ordering pipeline. Any 2xx tells Twitch the delivery is settled; a 5xx
// asks for redelivery.
func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request, body []byte) {
	log := logging.Ctx(r.Context())
	start := time.Now()

	env, err := eventsub.ParseEnvelope(body)
	if err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	notificationID := r.Header.Get(eventsub.HeaderMessageID)
	occurredAt, err := time.Parse(time.RFC3339Nano, r.Header.Get(eventsub.HeaderMessageTimestamp))
	if err != nil {
		// Unreachable after signature verification, which parses the
		// same header.
		http.Error(w, "bad timestamp", http.StatusBadRequest)
		return
	}

	if retry := r.Header.Get(eventsub.HeaderMessageRetry); retry != "" && retry != "0" {
		log.Info().
			Str("message_id", notificationID).
			Str("retry", retry).
			Msg("Redelivered EventSub notification")
	}

	event, relevant, err := h.normalizer.Normalize(notificationID, occurredAt, env)
	if err != nil {
		log.Warn().Err(err).Str("message_id", notificationID).Msg("Malformed notification payload")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if !relevant {
		metrics.RecordOutcome(env.Subscription.Type, string(pipeline.OutcomeSkipped), time.Since(start))
		acknowledge(w)
		return
	}

	outcome, err := h.engine.Process(r.Context(), event)
	if err != nil {
		log.Error().
			Err(err).
			Str("message_id", notificationID).
			Msg("Pipeline failed, requesting redelivery")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("message_id", notificationID).
		Str("event_type", event.EventType).
		Str("outcome", string(outcome)).
		Msg("EventSub notification settled")

	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Acknowledged")) //nolint:errcheck
}

func signatureFailureReason(err error) string {
	switch {
	case errors.Is(err, eventsub.ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, eventsub.ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, eventsub.ErrBadSignature):
		return "bad_signature"
	default:
		return "other"
	}
}

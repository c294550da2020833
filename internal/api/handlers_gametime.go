// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/store"
	"github.com/felpsbot/gametime/internal/twitch"
)

// Default chat-facing message templates. Callers override them per request
// through query parameters; {streamer}, {game} and {duration} are replaced.
const (
	defaultOfflineMsg = "{streamer} está offline."
	defaultOnlineMsg  = "{streamer} está jogando {game} há {duration}."
	defaultUnknownMsg = "{streamer} está jogando {game} há um tempo desconhecido."
	defaultErrorMsg   = "Ocorreu um erro ao buscar informações do streamer."
)

// StreamGameTime answers how long a streamer has been playing their current
// game, as plain text suitable for chat-bot commands. The live game comes
// from Helix; the start of play comes from the local last-played table.
func (h *Handler) StreamGameTime(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())
	q := r.URL.Query()

	offlineMsg := queryOr(q.Get("offline"), defaultOfflineMsg)
	onlineMsg := queryOr(q.Get("online"), defaultOnlineMsg)
	unknownMsg := queryOr(q.Get("unknown"), defaultUnknownMsg)
	errorMsg := queryOr(q.Get("error"), defaultErrorMsg)

	streamerID := chi.URLParam(r, "streamer_id")
	if _, err := strconv.ParseInt(streamerID, 10, 64); err != nil {
		plainText(w, http.StatusBadRequest, "invalid streamer id")
		return
	}

	if h.helix == nil {
		log.Warn().Msg("Game time lookup requires Twitch API credentials")
		plainText(w, http.StatusOK, errorMsg)
		return
	}

	stream, err := h.helix.FetchStream(r.Context(), streamerID)
	if errors.Is(err, twitch.ErrNotFound) {
		channel, err := h.helix.FetchChannel(r.Context(), streamerID)
		if err != nil {
			log.Error().Err(err).Str("streamer_id", streamerID).Msg("Failed to fetch channel")
			plainText(w, http.StatusOK, errorMsg)
			return
		}
		plainText(w, http.StatusOK, formatMessage(offlineMsg, channel.BroadcasterName, "", ""))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("streamer_id", streamerID).Msg("Failed to fetch stream")
		plainText(w, http.StatusOK, errorMsg)
		return
	}

	if stream.GameID == "" {
		plainText(w, http.StatusOK, formatMessage(unknownMsg, stream.UserName, stream.GameName, ""))
		return
	}

	sid, _ := strconv.ParseInt(stream.UserID, 10, 64)
	gid, err := strconv.ParseInt(stream.GameID, 10, 64)
	if err != nil {
		plainText(w, http.StatusOK, formatMessage(unknownMsg, stream.UserName, stream.GameName, ""))
		return
	}

	row, err := h.store.GetLastPlayed(r.Context(), sid, gid)
	if errors.Is(err, store.ErrNotFound) {
		log.Info().
			Str("streamer_id", streamerID).
			Str("game_id", stream.GameID).
			Msg("No last-played record for current game")
		plainText(w, http.StatusOK, formatMessage(unknownMsg, stream.UserName, stream.GameName, ""))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("streamer_id", streamerID).Msg("Last-played lookup failed")
		plainText(w, http.StatusOK, errorMsg)
		return
	}

	duration := strings.TrimSpace(humanize.RelTime(row.LastPlayed, time.Now(), "", ""))
	plainText(w, http.StatusOK, formatMessage(onlineMsg, stream.UserName, stream.GameName, duration))
}

// ListLastPlayed returns every recorded game for a streamer as JSON, most
// recent first.
func (h *Handler) ListLastPlayed(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	streamerID, err := strconv.ParseInt(chi.URLParam(r, "streamer_id"), 10, 64)
	if err != nil {
		rw.BadRequest("invalid streamer id")
		return
	}

	rows, err := h.store.ListLastPlayed(r.Context(), streamerID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Last-played list failed")
		rw.InternalError("lookup failed")
		return
	}

	rw.Success(map[string]interface{}{
		"streamer_id": streamerID,
		"games":       rows,
		"count":       len(rows),
	})
}

func queryOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func formatMessage(template, streamer, game, duration string) string {
	msg := strings.ReplaceAll(template, "{streamer}", streamer)
	msg = strings.ReplaceAll(msg, "{game}", game)
	return strings.ReplaceAll(msg, "{duration}", duration)
}

func plainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body)) //nolint:errcheck
}

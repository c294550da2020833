// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/felpsbot/gametime/internal/logging"
)

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var seenID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seenID == "" {
		t.Fatal("expected request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seenID {
		t.Errorf("response header %q != context ID %q", got, seenID)
	}
}

func TestRequestIDHonorsUpstreamHeader(t *testing.T) {
	var ctxID, logID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		logID = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-assigned-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if ctxID != "upstream-assigned-id" {
		t.Errorf("context ID = %q, want upstream-assigned-id", ctxID)
	}
	if logID != "upstream-assigned-id" {
		t.Errorf("logging context ID = %q, want upstream-assigned-id", logID)
	}
}

func TestProcessTimeHeader(t *testing.T) {
	handler := ProcessTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/eventsub/callback", nil))

	header := rec.Header().Get("X-Process-Time")
	if header == "" {
		t.Fatal("expected X-Process-Time header")
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		t.Fatalf("X-Process-Time %q is not a float: %v", header, err)
	}
	if seconds < 0 {
		t.Errorf("X-Process-Time = %v, want >= 0", seconds)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestProcessTimeImplicitWriteHeader(t *testing.T) {
	handler := ProcessTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Process-Time") == "" {
		t.Error("expected X-Process-Time header on implicit WriteHeader")
	}
}

func TestPrometheusMetricsCapturesStatus(t *testing.T) {
	handler := PrometheusMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

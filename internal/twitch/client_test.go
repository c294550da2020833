// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felpsbot/gametime/internal/config"
)

func newAuthServer(t *testing.T, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if refreshes != nil {
			refreshes.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"app-token-1","expires_in":3600,"token_type":"bearer"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, apiHandler http.Handler) *Client {
	t.Helper()
	auth := newAuthServer(t, nil)
	api := httptest.NewServer(apiHandler)
	t.Cleanup(api.Close)

	return NewClient(config.TwitchConfig{
		ClientID:          "cid",
		ClientSecret:      "csecret",
		APIBaseURL:        api.URL,
		AuthBaseURL:       auth.URL,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 6000,
	})
}

func requireAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Client-Id"); got != "cid" {
		t.Errorf("Client-Id = %q", got)
	}
	if got := r.Header.Get("Authorization"); got != "Bearer app-token-1" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestFetchChannel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuthHeaders(t, r)
		if r.URL.Path != "/channels" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("broadcaster_id"); got != "30672329" {
			t.Errorf("broadcaster_id = %q", got)
		}
		w.Write([]byte(`{"data":[{"broadcaster_id":"30672329","broadcaster_login":"felps",
			"broadcaster_name":"Felps","game_id":"111","game_name":"Minecraft","title":"hi"}]}`))
	}))

	ch, err := client.FetchChannel(context.Background(), "30672329")
	if err != nil {
		t.Fatalf("FetchChannel failed: %v", err)
	}
	if ch.BroadcasterName != "Felps" || ch.GameName != "Minecraft" {
		t.Errorf("channel = %+v", ch)
	}
}

func TestFetchChannelNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))

	_, err := client.FetchChannel(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchStreamOffline(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))

	_, err := client.FetchStream(context.Background(), "30672329")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for offline broadcaster", err)
	}
}

func TestFetchStreamLive(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"1","user_id":"30672329","user_name":"Felps",
			"game_id":"111","game_name":"Minecraft","started_at":"2026-08-28T10:00:00Z"}]}`))
	}))

	stream, err := client.FetchStream(context.Background(), "30672329")
	if err != nil {
		t.Fatalf("FetchStream failed: %v", err)
	}
	if stream.GameID != "111" || stream.UserName != "Felps" {
		t.Errorf("stream = %+v", stream)
	}
}

func TestListSubscriptionsPaginates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{"data":[{"id":"sub-1","type":"channel.update","status":"enabled"}],
				"pagination":{"cursor":"page2"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"sub-2","type":"stream.online","status":"enabled"}],"pagination":{}}`))
	}))

	subs, err := client.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "sub-1" || subs[1].ID != "sub-2" {
		t.Errorf("subs = %+v", subs)
	}
}

func TestCreateSubscription(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":[{"id":"sub-9","type":"channel.update","status":"webhook_callback_verification_pending",
			"condition":{"broadcaster_user_id":"30672329"},
			"transport":{"method":"webhook","callback":"https://example.com/eventsub/callback"}}]}`))
	}))

	req := NewSubscriptionRequest("channel.update", "30672329", "https://example.com/eventsub/callback", "s3cret")
	sub, err := client.CreateSubscription(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if sub.ID != "sub-9" || sub.Condition.BroadcasterUserID != "30672329" {
		t.Errorf("sub = %+v", sub)
	}
}

func TestCreateSubscriptionConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Conflict","status":409,"message":"subscription already exists"}`))
	}))

	req := NewSubscriptionRequest("channel.update", "30672329", "https://example.com/eventsub/callback", "s3cret")
	_, err := client.CreateSubscription(context.Background(), req)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestDeleteSubscription(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("id"); got != "sub-9" {
			t.Errorf("id = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteSubscription(context.Background(), "sub-9"); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}
}

func TestDeleteSubscriptionNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not Found","status":404,"message":"subscription not found"}`))
	}))

	err := client.DeleteSubscription(context.Background(), "gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTokenReusedUntilExpiry(t *testing.T) {
	var refreshes atomic.Int32
	auth := newAuthServer(t, &refreshes)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(api.Close)

	client := NewClient(config.TwitchConfig{
		ClientID:          "cid",
		ClientSecret:      "csecret",
		APIBaseURL:        api.URL,
		AuthBaseURL:       auth.URL,
		RequestsPerMinute: 6000,
	})

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		client.FetchChannel(context.Background(), "1")
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("token refreshed %d times across 3 calls, want 1", got)
	}

	// Jump past expiry, the next call must fetch a fresh token.
	now = now.Add(2 * time.Hour)
	client.FetchChannel(context.Background(), "1")
	if got := refreshes.Load(); got != 2 {
		t.Fatalf("token refreshed %d times after expiry, want 2", got)
	}
}

func TestMatches(t *testing.T) {
	req := NewSubscriptionRequest("channel.update", "30672329", "https://example.com/cb", "s")
	sub := Subscription{
		Type:      "channel.update",
		Condition: Condition{BroadcasterUserID: "30672329"},
		Transport: Transport{Method: "webhook", Callback: "https://example.com/cb"},
	}
	if !req.Matches(sub) {
		t.Error("expected request to match identical subscription")
	}

	sub.Transport.Callback = "https://other.example.com/cb"
	if req.Matches(sub) {
		t.Error("request must not match a different callback")
	}
}

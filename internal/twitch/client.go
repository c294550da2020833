// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package twitch is a minimal Helix API client covering the surface this
// service needs: channel and stream lookups plus EventSub webhook
// subscription management. All calls use an app access token obtained
// through the client-credentials flow.
package twitch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/felpsbot/gametime/internal/config"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/metrics"
)

const (
	defaultAPIBaseURL  = "https://api.twitch.tv/helix"
	defaultAuthBaseURL = "https://id.twitch.tv/oauth2/token"

	// tokenSlack refreshes the app token slightly before Twitch expires it
	// so in-flight requests never carry a token about to lapse.
	tokenSlack = 60 * time.Second
)

// ErrNotFound reports that the requested resource does not exist, or that a
// stream lookup found the broadcaster offline.
var ErrNotFound = errors.New("twitch: not found")

// ErrConflict reports that an identical EventSub subscription already exists.
var ErrConflict = errors.New("twitch: subscription already exists")

// APIError is a non-2xx Helix response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api: status %d: %s", e.StatusCode, e.Message)
}

// Channel is a Helix channel-information row.
type Channel struct {
	BroadcasterID       string `json:"broadcaster_id"`
	BroadcasterLogin    string `json:"broadcaster_login"`
	BroadcasterName     string `json:"broadcaster_name"`
	BroadcasterLanguage string `json:"broadcaster_language"`
	GameID              string `json:"game_id"`
	GameName            string `json:"game_name"`
	Title               string `json:"title"`
}

// Stream is a Helix live-stream row. Absent from the response when the
// broadcaster is offline.
type Stream struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserLogin string    `json:"user_login"`
	UserName  string    `json:"user_name"`
	GameID    string    `json:"game_id"`
	GameName  string    `json:"game_name"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// Transport is the delivery method of an EventSub subscription.
type Transport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret,omitempty"`
}

// Condition scopes an EventSub subscription to one broadcaster.
type Condition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

// Subscription is an EventSub subscription as Helix reports it.
type Subscription struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
	CreatedAt time.Time `json:"created_at"`
	Cost      int       `json:"cost"`
}

// SubscriptionRequest is the body for creating an EventSub subscription.
type SubscriptionRequest struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
}

// NewSubscriptionRequest builds a webhook subscription request for one
// subscription type against one broadcaster.
func NewSubscriptionRequest(subType, broadcasterID, callback, secret string) SubscriptionRequest {
	return SubscriptionRequest{
		Type:      subType,
		Version:   "1",
		Condition: Condition{BroadcasterUserID: broadcasterID},
		Transport: Transport{Method: "webhook", Callback: callback, Secret: secret},
	}
}

// Matches reports whether an existing subscription covers the same event,
// condition and callback as the request.
func (r SubscriptionRequest) Matches(sub Subscription) bool {
	return sub.Type == r.Type &&
		sub.Condition.BroadcasterUserID == r.Condition.BroadcasterUserID &&
		sub.Transport.Method == r.Transport.Method &&
		sub.Transport.Callback == r.Transport.Callback
}

// Client talks to the Twitch Helix API with an app access token that is
// refreshed transparently before expiry. Outbound calls are rate limited to
// stay under the app-token request budget.
type Client struct {
	clientID     string
	clientSecret string
	apiBase      string
	authBase     string

	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClient creates a Helix client from configuration. Base URLs default to
// the public Twitch endpoints when unset.
func NewClient(cfg config.TwitchConfig) *Client {
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	authBase := cfg.AuthBaseURL
	if authBase == "" {
		authBase = defaultAuthBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 120
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiBase:      strings.TrimRight(apiBase, "/"),
		authBase:     authBase,
		http:         &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		log:          logging.WithComponent("twitch"),
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Message     string `json:"message"`
}

// ensureToken returns a valid app access token, refreshing it when missing
// or within tokenSlack of expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenSlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	c.log.Info().Msg("Refreshing Twitch app access token")

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authBase, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: tok.Message}
	}

	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	metrics.RecordTokenRefresh()

	c.log.Info().
		Time("expires_at", c.tokenExpiry).
		Msg("Twitch app access token refreshed")

	return c.token, nil
}

// do executes an authenticated Helix request and returns the raw response
// body for 2xx statuses. Non-2xx statuses become an *APIError.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, payload any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordHelixRequest(operation, "error")
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	metrics.RecordHelixRequest(operation, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return resp.StatusCode, body, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	return resp.StatusCode, body, nil
}

// FetchChannel returns channel information for a broadcaster, or ErrNotFound
// when Helix reports no such channel.
func (c *Client) FetchChannel(ctx context.Context, broadcasterID string) (*Channel, error) {
	_, body, err := c.do(ctx, "get_channel", http.MethodGet, "/channels",
		url.Values{"broadcaster_id": {broadcasterID}}, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []Channel `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode channels response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("channel %s: %w", broadcasterID, ErrNotFound)
	}
	return &out.Data[0], nil
}

// FetchStream returns the live stream of a broadcaster, or ErrNotFound when
// the broadcaster is offline.
func (c *Client) FetchStream(ctx context.Context, userID string) (*Stream, error) {
	_, body, err := c.do(ctx, "get_stream", http.MethodGet, "/streams",
		url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []Stream `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode streams response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("stream %s: %w", userID, ErrNotFound)
	}
	return &out.Data[0], nil
}

// ListSubscriptions returns all EventSub subscriptions for this application,
// following pagination cursors.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	cursor := ""

	for {
		query := url.Values{}
		if cursor != "" {
			query.Set("after", cursor)
		}

		_, body, err := c.do(ctx, "list_subscriptions", http.MethodGet, "/eventsub/subscriptions", query, nil)
		if err != nil {
			return nil, err
		}

		var out struct {
			Data       []Subscription `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode subscriptions response: %w", err)
		}

		subs = append(subs, out.Data...)
		cursor = out.Pagination.Cursor
		if cursor == "" {
			return subs, nil
		}
	}
}

// CreateSubscription registers an EventSub webhook subscription. Helix
// answers 202 on acceptance; a 409 maps to ErrConflict so callers can treat
// an already-existing subscription as success.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	status, body, err := c.do(ctx, "create_subscription", http.MethodPost, "/eventsub/subscriptions", nil, req)
	if err != nil {
		if status == http.StatusConflict {
			return nil, fmt.Errorf("%s for %s: %w", req.Type, req.Condition.BroadcasterUserID, ErrConflict)
		}
		return nil, err
	}

	var out struct {
		Data []Subscription `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("create subscription: empty response")
	}

	c.log.Info().
		Str("type", req.Type).
		Str("broadcaster_id", req.Condition.BroadcasterUserID).
		Str("subscription_id", out.Data[0].ID).
		Msg("EventSub subscription created")

	return &out.Data[0], nil
}

// DeleteSubscription removes an EventSub subscription by ID. A 404 maps to
// ErrNotFound.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	status, _, err := c.do(ctx, "delete_subscription", http.MethodDelete, "/eventsub/subscriptions",
		url.Values{"id": {id}}, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
		}
		return err
	}

	c.log.Info().Str("subscription_id", id).Msg("EventSub subscription deleted")
	return nil
}

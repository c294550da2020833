// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateEventSub(); err != nil {
		return err
	}

	if err := c.validateTwitch(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateIdempotency(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateEventSub() error {
	if c.EventSub.Secret == "" {
		return fmt.Errorf("EVENTSUB_SECRET is required")
	}
	// Twitch requires the webhook secret to be 10-100 characters.
	if len(c.EventSub.Secret) < 10 || len(c.EventSub.Secret) > 100 {
		return fmt.Errorf("EVENTSUB_SECRET must be between 10 and 100 characters, got %d", len(c.EventSub.Secret))
	}
	if c.EventSub.SkewWindow <= 0 {
		return fmt.Errorf("EVENTSUB_SKEW_WINDOW must be positive, got %s", c.EventSub.SkewWindow)
	}
	if c.EventSub.RedeliveryWindow <= 0 {
		return fmt.Errorf("EVENTSUB_REDELIVERY_WINDOW must be positive, got %s", c.EventSub.RedeliveryWindow)
	}
	if c.EventSub.CallbackURL != "" {
		u, err := url.Parse(c.EventSub.CallbackURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("EVENTSUB_CALLBACK_URL must be a valid https URL, got %q", c.EventSub.CallbackURL)
		}
	}
	return nil
}

func (c *Config) validateTwitch() error {
	// Helix credentials are only needed for subscription management and
	// channel lookups. The inbound webhook path works without them.
	managed := c.EventSub.ReconcileInterval > 0 || c.Security.ManagementEnabled
	if managed && (c.Twitch.ClientID == "" || c.Twitch.ClientSecret == "") {
		return fmt.Errorf("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET are required for subscription management")
	}
	if c.EventSub.ReconcileInterval > 0 && c.Twitch.BroadcasterID == "" {
		return fmt.Errorf("TWITCH_BROADCASTER_ID is required when subscription reconciliation is enabled")
	}
	if err := validateHTTPURL(c.Twitch.APIBaseURL, "TWITCH_API_BASE_URL"); err != nil {
		return err
	}
	if err := validateHTTPURL(c.Twitch.AuthBaseURL, "TWITCH_AUTH_BASE_URL"); err != nil {
		return err
	}
	if c.Twitch.RequestsPerMinute <= 0 {
		return fmt.Errorf("TWITCH_RATE_PER_MINUTE must be positive, got %d", c.Twitch.RequestsPerMinute)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be at least 1, got %d", c.Database.MaxConns)
	}
	return nil
}

func (c *Config) validateIdempotency() error {
	switch c.Idempotency.Backend {
	case "redis":
		if c.Idempotency.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when IDEMPOTENCY_BACKEND=redis")
		}
	case "badger":
		if c.Idempotency.BadgerPath == "" {
			return fmt.Errorf("IDEMPOTENCY_BADGER_PATH is required when IDEMPOTENCY_BACKEND=badger")
		}
	case "memory":
		// No settings required. Not safe for multi-instance deployments.
	default:
		return fmt.Errorf("IDEMPOTENCY_BACKEND must be one of: redis, badger, memory (got %q)", c.Idempotency.Backend)
	}

	if c.Cache.Enabled && c.Cache.RedisURL == "" && c.Idempotency.RedisURL == "" {
		return fmt.Errorf("CACHE_REDIS_URL or REDIS_URL is required when CACHE_ENABLED=true")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("NATS_STREAM cannot be empty")
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC cannot be empty")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.ManagementEnabled {
		return nil
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when the management API is enabled")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if c.Security.AdminUsername == "" || c.Security.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD_HASH are required when the management API is enabled")
	}
	if !strings.HasPrefix(c.Security.AdminPasswordHash, "$2") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Security.TokenTTL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that a URL is well-formed with an http(s) scheme.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}

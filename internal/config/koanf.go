// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gametime/config.yaml",
	"/etc/gametime/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns a Config with every default applied and nothing loaded
// from file or environment. Useful as a test fixture base.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Twitch: TwitchConfig{
			ClientID:          "",
			ClientSecret:      "",
			BroadcasterID:     "",
			APIBaseURL:        "https://api.twitch.tv/helix",
			AuthBaseURL:       "https://id.twitch.tv",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 120,
		},
		EventSub: EventSubConfig{
			Secret:            "",
			CallbackURL:       "",
			SkewWindow:        10 * time.Minute,
			RedeliveryWindow:  25 * time.Hour,
			ReconcileInterval: 15 * time.Minute,
		},
		Database: DatabaseConfig{
			URL:      "",
			MaxConns: 8,
		},
		Idempotency: IdempotencyConfig{
			Backend:    "redis",
			RedisURL:   "",
			BadgerPath: "/data/idempotency",
		},
		Cache: CacheConfig{
			Enabled:   false,
			RedisURL:  "",
			KeyPrefix: "lastplayed",
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats/jetstream",
			Stream:         "GAMETIME",
			Topic:          "eventsub.gameplay",
			ConnectTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			ManagementEnabled: true,
			JWTSecret:         "",
			TokenTTL:          12 * time.Hour,
			AdminUsername:     "",
			AdminPasswordHash: "",
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. The returned Config has passed
// Validate().
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// EVENTSUB_SECRET -> eventsub.secret
	// DATABASE_URL -> database.url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when supplied through environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - TWITCH_CLIENT_ID -> twitch.client_id
//   - EVENTSUB_SECRET -> eventsub.secret
//   - DATABASE_URL -> database.url
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Twitch Helix mappings
		"twitch_client_id":       "twitch.client_id",
		"twitch_client_secret":   "twitch.client_secret",
		"twitch_broadcaster_id":  "twitch.broadcaster_id",
		"twitch_api_base_url":    "twitch.api_base_url",
		"twitch_auth_base_url":   "twitch.auth_base_url",
		"twitch_timeout":         "twitch.timeout",
		"twitch_rate_per_minute": "twitch.requests_per_minute",

		// EventSub webhook mappings
		"eventsub_secret":             "eventsub.secret",
		"eventsub_callback_url":       "eventsub.callback_url",
		"eventsub_skew_window":        "eventsub.skew_window",
		"eventsub_redelivery_window":  "eventsub.redelivery_window",
		"eventsub_reconcile_interval": "eventsub.reconcile_interval",

		// Database mappings
		"database_url":       "database.url",
		"database_max_conns": "database.max_conns",

		// Idempotency store mappings
		"idempotency_backend":     "idempotency.backend",
		"redis_url":               "idempotency.redis_url",
		"idempotency_badger_path": "idempotency.badger_path",

		// Cache invalidation mappings
		"cache_enabled":    "cache.enabled",
		"cache_redis_url":  "cache.redis_url",
		"cache_key_prefix": "cache.key_prefix",

		// NATS mappings
		"nats_enabled":         "nats.enabled",
		"nats_url":             "nats.url",
		"nats_embedded":        "nats.embedded_server",
		"nats_store_dir":       "nats.store_dir",
		"nats_stream":          "nats.stream",
		"nats_topic":           "nats.topic",
		"nats_connect_timeout": "nats.connect_timeout",

		// Security mappings
		"management_enabled":  "security.management_enabled",
		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them.
	// This prevents random environment variables from polluting config.
	return ""
}

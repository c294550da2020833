// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package auth issues and validates the JWT bearer tokens that protect the
// subscription management API. Tokens are obtained by the admin user through
// HTTP Basic credentials and carry explicit scopes.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felpsbot/gametime/internal/config"
)

// Scopes granted to management tokens.
const (
	ScopeSubscriptionsList   = "eventsub:list"
	ScopeSubscriptionsCreate = "eventsub:create"
	ScopeSubscriptionsDelete = "eventsub:delete"
)

// AdminScopes is the full scope set issued on a successful admin login.
var AdminScopes = []string{
	ScopeSubscriptionsList,
	ScopeSubscriptionsCreate,
	ScopeSubscriptionsDelete,
}

// Claims are the JWT claims carried by management tokens.
type Claims struct {
	Username string   `json:"username"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants a scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTManager creates and validates HS256-signed management tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager creates a JWT manager from security configuration. The
// secret must be at least 32 characters; validation enforces this before
// startup, but the check is repeated here so the manager is safe to build
// in isolation.
func NewJWTManager(cfg config.SecurityConfig) (*JWTManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GenerateToken creates a signed token for a user with the given scopes.
func (m *JWTManager) GenerateToken(username string, scopes []string) (string, error) {
	now := m.now()
	claims := &Claims{
		Username: username,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// TokenTTL returns the configured token lifetime.
func (m *JWTManager) TokenTTL() time.Duration {
	return m.ttl
}

// ValidateToken parses and verifies a token string. The signing method is
// pinned to HMAC to rule out algorithm confusion.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

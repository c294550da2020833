// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/felpsbot/gametime/internal/config"
)

// CredentialChecker validates the admin user's HTTP Basic credentials
// against the configured bcrypt hash.
type CredentialChecker struct {
	username     string
	passwordHash []byte
}

// NewCredentialChecker creates a checker from security configuration.
// The password is stored only as a bcrypt hash; plaintext never enters
// the process.
func NewCredentialChecker(cfg config.SecurityConfig) (*CredentialChecker, error) {
	if cfg.AdminUsername == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("admin password hash is required")
	}
	return &CredentialChecker{
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
	}, nil
}

// ValidateBasicAuth validates an Authorization header carrying Basic
// credentials and returns the username on success. Comparison is
// constant time for the username; bcrypt is timing-safe for the password.
func (c *CredentialChecker) ValidateBasicAuth(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, "Basic ") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return "", fmt.Errorf("failed to decode credentials")
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid credentials format")
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(parts[0]), []byte(c.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(parts[1])) == nil

	if !usernameMatch || !passwordMatch {
		return "", fmt.Errorf("invalid username or password")
	}
	return parts[0], nil
}

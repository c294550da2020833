// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/felpsbot/gametime/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	return m
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("admin", AdminScopes)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q", claims.Username)
	}
	for _, scope := range AdminScopes {
		if !claims.HasScope(scope) {
			t.Errorf("missing scope %q", scope)
		}
	}
	if claims.HasScope("eventsub:admin") {
		t.Error("unexpected scope granted")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	m := newTestManager(t)
	issued := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateToken("admin", AdminScopes)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := m.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := newTestManager(t)
	token, err := m.GenerateToken("admin", AdminScopes)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	other, err := NewJWTManager(config.SecurityConfig{
		JWTSecret: "ffffffffffffffffffffffffffffffff",
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected token signed with a different secret to fail")
	}
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTManager(config.SecurityConfig{JWTSecret: "short"}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func newTestChecker(t *testing.T, password string) *CredentialChecker {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	checker, err := NewCredentialChecker(config.SecurityConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("NewCredentialChecker failed: %v", err)
	}
	return checker
}

func TestValidateBasicAuth(t *testing.T) {
	checker := newTestChecker(t, "hunter22")

	username, err := checker.ValidateBasicAuth(basicHeader("admin", "hunter22"))
	if err != nil {
		t.Fatalf("ValidateBasicAuth failed: %v", err)
	}
	if username != "admin" {
		t.Errorf("username = %q", username)
	}
}

func TestValidateBasicAuthRejections(t *testing.T) {
	checker := newTestChecker(t, "hunter22")

	tests := []struct {
		name   string
		header string
	}{
		{"wrong password", basicHeader("admin", "wrong")},
		{"wrong username", basicHeader("root", "hunter22")},
		{"not basic", "Bearer abc"},
		{"bad base64", "Basic !!!"},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin"))},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := checker.ValidateBasicAuth(tt.header); err == nil {
				t.Error("expected validation failure")
			}
		})
	}
}

func TestCredentialCheckerRequiresConfig(t *testing.T) {
	if _, err := NewCredentialChecker(config.SecurityConfig{AdminPasswordHash: "$2a$x"}); err == nil {
		t.Error("expected error for missing username")
	}
	if _, err := NewCredentialChecker(config.SecurityConfig{AdminUsername: "admin"}); err == nil {
		t.Error("expected error for missing password hash")
	}
}

func TestTokenTTLDefault(t *testing.T) {
	m, err := NewJWTManager(config.SecurityConfig{JWTSecret: strings.Repeat("a", 32)})
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	if m.TokenTTL() != 24*time.Hour {
		t.Errorf("default ttl = %s", m.TokenTTL())
	}
}

// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/felpsbot/gametime/internal/logging"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// ClaimsFromContext returns the validated claims stored by RequireScope.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// Middleware guards management routes with bearer-token authentication.
type Middleware struct {
	jwt *JWTManager
}

// NewMiddleware creates auth middleware backed by a JWT manager.
func NewMiddleware(jwt *JWTManager) *Middleware {
	return &Middleware{jwt: jwt}
}

// RequireScope returns middleware that rejects requests without a valid
// bearer token carrying the scope. Missing or invalid tokens get 401,
// valid tokens without the scope get 403.
func (m *Middleware) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := m.jwt.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if !claims.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}

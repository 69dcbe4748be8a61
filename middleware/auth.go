package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeRead  = "product:read"
	ScopeWrite = "product:write"
)

type ctxKeyScopes struct{}

// Auth verifies HS256 bearer tokens and enforces OAuth-style scopes.
// With an empty secret every request is let through.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func (a *Auth) Enabled() bool {
	return len(a.secret) > 0
}

// Authenticate parses the bearer token, if any, and stores its scopes in context.
// Rejection is left to RequireScope so public routes stay reachable.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			next.ServeHTTP(w, r)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyScopes{}, scopesFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope answers 401 without a valid token and 403 when the scope is missing.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			scopes, ok := GetScopes(r.Context())
			if !ok {
				writeAuthError(w, r, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, r, http.StatusForbidden, fmt.Sprintf("scope %s required", scope))
		})
	}
}

// GetScopes returns the scopes of an authenticated request. ok is false
// when no valid token was presented.
func GetScopes(ctx context.Context) (scopes []string, ok bool) {
	scopes, ok = ctx.Value(ctxKeyScopes{}).([]string)
	return scopes, ok
}

// scopesFromClaims accepts both "scope": "a b" and "scope": ["a", "b"].
func scopesFromClaims(claims jwt.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.NewHTTPErrorInfo(status, r.URL.Path, message))
}

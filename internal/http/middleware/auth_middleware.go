package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/coursehub/portal-access/internal/http/response"
	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

func extractToken(r *http.Request) (string, string) {
	if raw := security.GetCookie(r, security.TokenCookieName); raw != "" {
		return raw, "cookie"
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:]), "bearer"
	}
	return "", "none"
}

// RequireAuth admits only requests carrying a valid representative session
// token, from the token cookie or a bearer header.
func RequireAuth(tokens *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := extractToken(r)
			if raw == "" {
				observability.RecordTokenValidation(r.Context(), "missing", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token", nil)
				return
			}
			claims, err := tokens.ParseSessionToken(raw)
			if err != nil {
				observability.RecordTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
				return
			}
			observability.RecordTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches claims when a valid token is present and lets the
// request through either way. Session resolution uses it to resume a
// representative identity without forcing one.
func OptionalAuth(tokens *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := extractToken(r)
			if raw != "" {
				if claims, err := tokens.ParseSessionToken(raw); err == nil {
					observability.RecordTokenValidation(r.Context(), "valid", source)
					ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				observability.RecordTokenValidation(r.Context(), "invalid", source)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

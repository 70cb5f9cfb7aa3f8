package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coursehub/portal-access/internal/security"
)

const sessionIDContextKey contextKey = "session_id"

// SessionCookie assigns every client a browsing-session id. The id scopes
// rate-limit counters and the session key-value store; it carries no
// identity by itself.
func SessionCookie(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := security.GetCookie(r, security.SessionCookieName)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				security.SetSessionCookie(w, id, secure)
			}
			ctx := context.WithValue(r.Context(), sessionIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDContextKey).(string)
	return id, ok && id != ""
}

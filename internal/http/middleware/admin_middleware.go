package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coursehub/portal-access/internal/http/response"
	"github.com/coursehub/portal-access/internal/repository"
)

// RequireAdmin gates the admin surface on the single configured admin
// email. The check goes through the repository rather than trusting a
// claim, so revoking the representative revokes admin access immediately.
func RequireAdmin(reps repository.RepresentativeRepository, adminEmail string) func(http.Handler) http.Handler {
	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if adminEmail == "" {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin access is not configured", nil)
				return
			}
			rep, err := reps.FindByID(claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrRepresentativeNotFound) {
					response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
					return
				}
				response.Error(w, r, http.StatusServiceUnavailable, "ADMIN_CHECK_UNAVAILABLE", "admin verification unavailable", nil)
				return
			}
			if !strings.EqualFold(rep.Email, adminEmail) {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

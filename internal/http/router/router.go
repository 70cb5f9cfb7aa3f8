package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coursehub/portal-access/internal/health"
	"github.com/coursehub/portal-access/internal/http/handler"
	"github.com/coursehub/portal-access/internal/http/middleware"
	"github.com/coursehub/portal-access/internal/http/response"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
)

type Dependencies struct {
	SessionHandler   *handler.SessionHandler
	AdminHandler     *handler.AdminHandler
	TokenManager     *security.TokenManager
	Representatives  repository.RepresentativeRepository
	AdminEmail       string
	CORSOrigins      []string
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	SecureCookies    bool
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).WithScope("api").Middleware())

	authLimiter := middleware.NewRateLimiterWithKey(
		dep.AuthRateLimitRPM,
		time.Minute,
		middleware.SubjectOrSessionKeyFunc(dep.TokenManager),
	).WithScope("auth").Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SessionCookie(dep.SecureCookies))

		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.SessionHandler.Login)
			r.Post("/logout", dep.SessionHandler.Logout)
		})

		r.With(authLimiter).Post("/code", dep.SessionHandler.EnterCode)
		r.Delete("/code", dep.SessionHandler.ExitCode)

		r.With(middleware.OptionalAuth(dep.TokenManager)).Get("/session", dep.SessionHandler.Session)
		r.Get("/settings", dep.AdminHandler.GetSettings)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(dep.TokenManager))
			r.Use(middleware.RequireAdmin(dep.Representatives, dep.AdminEmail))
			r.Get("/representatives", dep.AdminHandler.ListRepresentatives)
			r.Post("/representatives", dep.AdminHandler.UpsertRepresentative)
			r.Delete("/representatives/{id}", dep.AdminHandler.DeleteRepresentative)
			r.Get("/settings", dep.AdminHandler.GetSettings)
			r.Put("/settings", dep.AdminHandler.UpdateSettings)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

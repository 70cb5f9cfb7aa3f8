package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coursehub/portal-access/internal/http/middleware"
	"github.com/coursehub/portal-access/internal/http/response"
	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
	"github.com/coursehub/portal-access/internal/service"
)

// SessionHandler exposes the per-session identity operations. Every request
// is routed to the browsing session's manager; the representative session
// token is a by-product of a successful login, not the session itself.
type SessionHandler struct {
	registry      *service.SessionRegistry
	reps          repository.RepresentativeRepository
	tokens        *security.TokenManager
	tokenTTL      time.Duration
	secureCookies bool
}

func NewSessionHandler(
	registry *service.SessionRegistry,
	reps repository.RepresentativeRepository,
	tokens *security.TokenManager,
	tokenTTL time.Duration,
	secureCookies bool,
) *SessionHandler {
	return &SessionHandler{
		registry:      registry,
		reps:          reps,
		tokens:        tokens,
		tokenTTL:      tokenTTL,
		secureCookies: secureCookies,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_MISSING", "browsing session unavailable", nil)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}

	manager := h.registry.Manager(r.Context(), sessionID)
	result := manager.Login(r.Context(), req.Email, req.Password)
	if !result.Success {
		response.Raw(w, r, statusForResult(result), result)
		return
	}

	view := manager.Snapshot()
	if view.User != nil {
		token, err := h.tokens.SignSessionToken(view.User.ID, view.User.Name, h.tokenTTL)
		if err != nil {
			observability.Audit(r, "session_token_issue_failed", "error", err.Error())
		} else {
			security.SetTokenCookie(w, token, h.tokenTTL, h.secureCookies)
		}
	}
	observability.Audit(r, "representative_login", "session_id", sessionID)
	response.Raw(w, r, http.StatusOK, result)
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_MISSING", "browsing session unavailable", nil)
		return
	}
	manager := h.registry.Manager(r.Context(), sessionID)
	result := manager.Logout(r.Context())
	security.ClearTokenCookie(w, h.secureCookies)
	observability.Audit(r, "representative_logout", "session_id", sessionID)
	response.Raw(w, r, http.StatusOK, result)
}

func (h *SessionHandler) EnterCode(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_MISSING", "browsing session unavailable", nil)
		return
	}
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	manager := h.registry.Manager(r.Context(), sessionID)
	result := manager.EnterCode(r.Context(), req.Code)
	response.Raw(w, r, statusForResult(result), result)
}

func (h *SessionHandler) ExitCode(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_MISSING", "browsing session unavailable", nil)
		return
	}
	manager := h.registry.Manager(r.Context(), sessionID)
	result := manager.ExitCode(r.Context())
	response.Raw(w, r, http.StatusOK, result)
}

// Session returns the resolved identity view. A valid session token on a
// session the registry has not seen as authenticated resumes the
// representative identity first.
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_MISSING", "browsing session unavailable", nil)
		return
	}
	manager := h.registry.Manager(r.Context(), sessionID)

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if view := manager.Snapshot(); view.User == nil {
			rep, err := h.reps.FindByID(claims.Subject)
			if err == nil {
				manager.AttachRepresentative(r.Context(), rep)
			} else if !errors.Is(err, repository.ErrRepresentativeNotFound) {
				response.Error(w, r, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session resolution unavailable", nil)
				return
			}
		}
	}

	response.JSON(w, r, http.StatusOK, manager.Snapshot())
}

func statusForResult(result service.Result) int {
	switch result.Code {
	case service.ResultInvalidInput:
		return http.StatusBadRequest
	case service.ResultInvalidCredentials:
		return http.StatusUnauthorized
	case service.ResultCodeNotFound:
		return http.StatusNotFound
	case service.ResultRateLimited:
		return http.StatusTooManyRequests
	case service.ResultSystemError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

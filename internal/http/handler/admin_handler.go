package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/http/response"
	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
	"github.com/coursehub/portal-access/internal/service"
)

type AdminHandler struct {
	reps              repository.RepresentativeRepository
	codes             repository.AccessCodeRepository
	settings          repository.SettingsRepository
	missCache         service.CodeMissCache
	presenceFreshness time.Duration
	now               func() time.Time
}

func NewAdminHandler(
	reps repository.RepresentativeRepository,
	codes repository.AccessCodeRepository,
	settings repository.SettingsRepository,
	missCache service.CodeMissCache,
	presenceFreshness time.Duration,
) *AdminHandler {
	return &AdminHandler{
		reps:              reps,
		codes:             codes,
		settings:          settings,
		missCache:         missCache,
		presenceFreshness: presenceFreshness,
		now:               time.Now,
	}
}

type representativeView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Stage      string     `json:"stage"`
	AccessCode string     `json:"access_code"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Presence   string     `json:"presence"`
}

func (h *AdminHandler) ListRepresentatives(w http.ResponseWriter, r *http.Request) {
	reps, err := h.reps.List()
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "LIST_FAILED", "could not list representatives", nil)
		return
	}
	now := h.now()
	views := make([]representativeView, 0, len(reps))
	for _, rep := range reps {
		views = append(views, representativeView{
			ID:         rep.ID,
			Name:       rep.Name,
			Email:      rep.Email,
			Stage:      rep.Stage,
			AccessCode: rep.AccessCode,
			LastSeen:   rep.LastSeen,
			Presence:   service.PresenceStatus(rep.LastSeen, now, h.presenceFreshness),
		})
	}
	response.JSON(w, r, http.StatusOK, views)
}

type upsertRepresentativeRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	AccessCode string `json:"access_code"`
	Stage      string `json:"stage"`
}

// UpsertRepresentative creates or updates a representative together with
// its access-code index record. Code uniqueness is enforced here, at write
// time, so the resolution path never has to disambiguate.
func (h *AdminHandler) UpsertRepresentative(w http.ResponseWriter, r *http.Request) {
	var req upsertRepresentativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	email, ok := security.SanitizeEmail(req.Email)
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "INVALID_EMAIL", "a valid email is required", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_NAME", "name is required", nil)
		return
	}
	code, err := service.SanitizeCode(req.AccessCode)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_CODE", "access code is too short", nil)
		return
	}

	repID := strings.TrimSpace(req.ID)
	if repID == "" {
		repID = "rep_" + uuid.NewString()
	}

	if existing, err := h.codes.FindByCode(code); err == nil && existing.RepID != repID {
		response.Error(w, r, http.StatusConflict, "CODE_TAKEN", "access code already belongs to another representative", nil)
		return
	} else if err != nil && !errors.Is(err, repository.ErrAccessCodeNotFound) {
		response.Error(w, r, http.StatusServiceUnavailable, "UPSERT_FAILED", "could not verify code uniqueness", nil)
		return
	}

	rep := &domain.Representative{
		ID:         repID,
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		AccessCode: code,
		Stage:      strings.TrimSpace(req.Stage),
	}
	if req.Password != "" {
		hash, err := security.HashPassword(req.Password)
		if err != nil {
			response.Error(w, r, http.StatusInternalServerError, "UPSERT_FAILED", "could not hash password", nil)
			return
		}
		rep.PasswordHash = hash
	} else if existing, err := h.reps.FindByID(repID); err == nil {
		rep.PasswordHash = existing.PasswordHash
		rep.LastSeen = existing.LastSeen
	}

	if err := h.reps.Upsert(rep); err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "UPSERT_FAILED", "could not save representative", nil)
		return
	}
	record := &domain.AccessCodeRecord{
		DocKey:  domain.AccessCodeDocKey(code),
		Code:    code,
		RepID:   rep.ID,
		RepName: rep.Name,
		Stage:   rep.Stage,
	}
	if err := h.codes.Upsert(record); err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "UPSERT_FAILED", "could not save access code", nil)
		return
	}

	// A newly valid code may still sit in the miss cache.
	if h.missCache != nil {
		if err := h.missCache.Clear(r.Context()); err != nil {
			observability.Audit(r, "code_miss_cache_clear_failed", "error", err.Error())
		}
	}

	observability.Audit(r, "representative_upserted", "rep_id", rep.ID)
	response.JSON(w, r, http.StatusOK, map[string]string{"id": rep.ID})
}

func (h *AdminHandler) DeleteRepresentative(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reps.Delete(id); err != nil {
		if errors.Is(err, repository.ErrRepresentativeNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "representative not found", nil)
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DELETE_FAILED", "could not delete representative", nil)
		return
	}
	if err := h.codes.DeleteByRepID(id); err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "DELETE_FAILED", "could not delete access codes", nil)
		return
	}
	observability.Audit(r, "representative_deleted", "rep_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"id": id})
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get()
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "SETTINGS_UNAVAILABLE", "could not load settings", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, settings)
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.SiteSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	switch settings.ForcedTheme {
	case "", "none", "light", "dark":
	default:
		response.Error(w, r, http.StatusBadRequest, "INVALID_THEME", "forced_theme must be none, light or dark", nil)
		return
	}
	if settings.ForcedTheme == "" {
		settings.ForcedTheme = "none"
	}
	if err := h.settings.Update(&settings); err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "SETTINGS_UPDATE_FAILED", "could not update settings", nil)
		return
	}
	observability.Audit(r, "settings_updated", "forced_theme", settings.ForcedTheme)
	response.JSON(w, r, http.StatusOK, settings)
}

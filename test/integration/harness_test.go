package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/health"
	"github.com/coursehub/portal-access/internal/http/handler"
	"github.com/coursehub/portal-access/internal/http/router"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
	"github.com/coursehub/portal-access/internal/service"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin-password-1"
	testRepPassword   = "rep-password-1"
)

type portalFixture struct {
	server   *httptest.Server
	db       *gorm.DB
	reps     repository.RepresentativeRepository
	codes    repository.AccessCodeRepository
	settings repository.SettingsRepository
	registry *service.SessionRegistry
}

// newPortalFixture stands up the full router against in-memory sqlite. The
// attempt store is pluggable so cross-instance lockout tests can share one.
func newPortalFixture(t *testing.T, attempts service.AttemptStore) *portalFixture {
	t.Helper()

	db, err := repository.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reps := repository.NewRepresentativeRepository(db)
	codes := repository.NewAccessCodeRepository(db)
	settings := repository.NewSettingsRepository(db)

	tokens := security.NewTokenManager("portal-access-test", "portal-web", "test-secret-32-bytes-minimum-ok!")
	missCache := service.NewInMemoryCodeMissCache()
	kv := service.NewInMemorySessionKV()

	if attempts == nil {
		attempts = service.NewInMemoryAttemptStore()
	}
	limiter := service.NewRateLimiter(attempts, map[string]service.RateLimitPolicy{
		service.KeyRepLogin:    {MaxAttempts: 4, Cooldown: 15 * time.Minute},
		service.KeyStudentCode: {MaxAttempts: 4, Cooldown: 10 * time.Minute},
	}, time.Hour)

	auth := service.NewCredentialStore(reps, tokens, time.Hour)
	resolver := service.NewCodeResolver(codes, reps, service.DefaultFastPathCodes(), missCache, 5*time.Minute)
	registry := service.NewSessionRegistry(auth, resolver, limiter, kv, reps, time.Hour)

	sessionHandler := handler.NewSessionHandler(registry, reps, tokens, time.Hour, false)
	adminHandler := handler.NewAdminHandler(reps, codes, settings, missCache, 5*time.Minute)

	h := router.NewRouter(router.Dependencies{
		SessionHandler:   sessionHandler,
		AdminHandler:     adminHandler,
		TokenManager:     tokens,
		Representatives:  reps,
		AdminEmail:       testAdminEmail,
		APIRateLimitRPM:  100000,
		AuthRateLimitRPM: 100000,
		Readiness:        health.NewProbeRunner(time.Second, 0, health.DatabaseChecker{DB: db}),
	})

	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.Close()
		registry.Shutdown()
	})

	return &portalFixture{
		server:   server,
		db:       db,
		reps:     reps,
		codes:    codes,
		settings: settings,
		registry: registry,
	}
}

func (f *portalFixture) seedRepresentative(t *testing.T, id, name, email, password, code string) {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := f.reps.Create(&domain.Representative{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		AccessCode:   code,
		Stage:        "stage-1",
	}); err != nil {
		t.Fatalf("seed rep: %v", err)
	}
	if err := f.codes.Upsert(&domain.AccessCodeRecord{
		DocKey:  domain.AccessCodeDocKey(code),
		Code:    code,
		RepID:   id,
		RepName: name,
		Stage:   "stage-1",
	}); err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func (f *portalFixture) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, client *http.Client, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp, decodeBody(t, resp)
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return body
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) map[string]any {
	t.Helper()
	resp, body := postJSON(t, client, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d body %v", resp.StatusCode, body)
	}
	return body
}

func sessionView(t *testing.T, client *http.Client, baseURL string) map[string]any {
	t.Helper()
	resp, body := getJSON(t, client, baseURL+"/api/v1/session")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session status %d body %v", resp.StatusCode, body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("session body missing data: %v", body)
	}
	return data
}

func newSharedRedis(t *testing.T) service.AttemptStore {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return service.NewRedisAttemptStore(client, "")
}

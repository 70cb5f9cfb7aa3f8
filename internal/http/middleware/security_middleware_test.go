package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/coursehub/portal-access/internal/security"
)

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q want %q", header, got, want)
		}
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Fatalf("allow-origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentialed CORS")
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must get no CORS headers")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("request itself must still pass, got %d", rec.Code)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatal("expected allowed methods on preflight")
	}
}

func TestBodyLimitCapsRequestBody(t *testing.T) {
	h := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestParseRequestIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := parseRequestIP(req).String(); got != "203.0.113.9" {
		t.Fatalf("got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := parseRequestIP(req).String(); got != "10.0.0.1" {
		t.Fatalf("got %q", got)
	}
}

func TestSessionCookieAssignsAndKeepsID(t *testing.T) {
	var seen []string
	h := SessionCookie(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := SessionIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected session id in context")
		}
		seen = append(seen, id)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var assigned string
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			assigned = c.Value
		}
	}
	if _, err := uuid.Parse(assigned); err != nil {
		t.Fatalf("expected uuid cookie, got %q", assigned)
	}

	// Second request with the cookie keeps the same id and sets nothing new.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: assigned})
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)

	if len(rec2.Result().Cookies()) != 0 {
		t.Fatal("existing session cookie must not be reissued")
	}
	if len(seen) != 2 || seen[0] != assigned || seen[1] != assigned {
		t.Fatalf("ids %v want both %q", seen, assigned)
	}
}

func TestSessionCookieRejectsMalformedID(t *testing.T) {
	h := SessionCookie(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := SessionIDFromContext(r.Context())
		if id == "not-a-uuid" {
			t.Fatal("malformed id must be replaced")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: "not-a-uuid"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var replaced bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			if _, err := uuid.Parse(c.Value); err == nil {
				replaced = true
			}
		}
	}
	if !replaced {
		t.Fatal("expected a fresh uuid cookie")
	}
}

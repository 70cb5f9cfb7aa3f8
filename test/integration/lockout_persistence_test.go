package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// postCodeAs sends a code entry with a fixed browsing-session cookie so two
// server instances see the same rate-limit scope.
func postCodeAs(t *testing.T, baseURL, sessionID, code string) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/code", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: sessionID})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func TestLockoutSurvivesAcrossInstances(t *testing.T) {
	attempts := newSharedRedis(t)
	first := newPortalFixture(t, attempts)
	second := newPortalFixture(t, attempts)
	sessionID := uuid.NewString()

	for i := 0; i < 4; i++ {
		resp, body := postCodeAs(t, first.server.URL, sessionID, "CLAS29999")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("attempt %d: %d %v", i+1, resp.StatusCode, body)
		}
	}

	// A second instance sharing the attempt store inherits the lockout.
	resp, body := postCodeAs(t, second.server.URL, sessionID, "CLAS29999")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	msg, _ := body["error"].(string)
	if !strings.HasPrefix(msg, "Too many attempts.") {
		t.Fatalf("message %q", msg)
	}

	// A different browsing session on the same instances is unaffected.
	resp, _ = postCodeAs(t, second.server.URL, uuid.NewString(), "CLAS29999")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("fresh session must not be locked out, got %d", resp.StatusCode)
	}
}

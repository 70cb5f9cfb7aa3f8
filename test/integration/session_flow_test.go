package integration

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestLoginFlowOverHTTP(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)

	resp, body := postJSON(t, client, f.server.URL+"/api/v1/auth/login", map[string]string{
		"email":    "rep.a@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if body["error"] != "Invalid credentials" {
		t.Fatalf("error %v", body["error"])
	}

	body = login(t, client, f.server.URL, "Rep.A@Example.COM ", testRepPassword)
	if body["rep_name"] != "Rep A" {
		t.Fatalf("rep_name %v", body["rep_name"])
	}

	view := sessionView(t, client, f.server.URL)
	if view["is_authenticated"] != true || view["active_rep_id"] != "rep_a" {
		t.Fatalf("unexpected view: %v", view)
	}
}

func TestSessionTokenResumesRepresentative(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)
	login(t, client, f.server.URL, "rep.a@example.com", testRepPassword)

	// Simulate a restarted server: the registry forgets the session, but
	// the token cookie still identifies the representative.
	base, err := url.Parse(f.server.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	for _, c := range client.Jar.Cookies(base) {
		if c.Name == "portal_session" {
			f.registry.Drop(c.Value)
		}
	}

	view := sessionView(t, client, f.server.URL)
	if view["is_authenticated"] != true || view["active_rep_id"] != "rep_a" {
		t.Fatalf("token did not resume identity: %v", view)
	}
}

func TestCodeEntryLockoutOverHTTP(t *testing.T) {
	f := newPortalFixture(t, nil)
	client := f.newClient(t)

	// Establish the session cookie first so every attempt shares one scope.
	sessionView(t, client, f.server.URL)

	for i := 0; i < 4; i++ {
		resp, body := postJSON(t, client, f.server.URL+"/api/v1/code", map[string]string{"code": "CLAS29999"})
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("attempt %d: status %d body %v", i+1, resp.StatusCode, body)
		}
		msg, _ := body["error"].(string)
		if i == 0 && msg != "Invalid access code" {
			t.Fatalf("first attempt message %q", msg)
		}
		if i > 0 && msg != "Incorrect code. Please check with your representative." {
			t.Fatalf("attempt %d message %q", i+1, msg)
		}
	}

	resp, body := postJSON(t, client, f.server.URL+"/api/v1/code", map[string]string{"code": "CLAS29999"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	msg, _ := body["error"].(string)
	if !strings.HasPrefix(msg, "Too many attempts. Please wait ") {
		t.Fatalf("lockout message %q", msg)
	}

	// Pre-provisioned class codes skip the limiter even under lockout.
	resp, body = postJSON(t, client, f.server.URL+"/api/v1/code", map[string]string{"code": "clas-2026-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fast path status %d body %v", resp.StatusCode, body)
	}
	view := sessionView(t, client, f.server.URL)
	if view["active_rep_id"] != "rep_zaid_deaa" {
		t.Fatalf("unexpected view: %v", view)
	}
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)
	sessionView(t, client, f.server.URL)

	for i := 0; i < 4; i++ {
		resp, _ := postJSON(t, client, f.server.URL+"/api/v1/auth/login", map[string]string{
			"email":    "rep.a@example.com",
			"password": "wrong-password",
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i+1, resp.StatusCode)
		}
	}

	// Even the correct password is refused while the lockout holds.
	resp, body := postJSON(t, client, f.server.URL+"/api/v1/auth/login", map[string]string{
		"email":    "rep.a@example.com",
		"password": testRepPassword,
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if msg, _ := body["error"].(string); msg != "Too many attempts. Please wait 15 minutes." {
		t.Fatalf("message %q", msg)
	}
}

func TestIdentityPrecedenceOverHTTP(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)

	resp, body := postJSON(t, client, f.server.URL+"/api/v1/code", map[string]string{"code": "CLAS20261"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code entry: %d %v", resp.StatusCode, body)
	}
	view := sessionView(t, client, f.server.URL)
	if view["active_rep_id"] != "rep_zaid_deaa" || view["is_authenticated"] == true {
		t.Fatalf("code identity: %v", view)
	}

	login(t, client, f.server.URL, "rep.a@example.com", testRepPassword)
	view = sessionView(t, client, f.server.URL)
	if view["active_rep_id"] != "rep_a" || view["has_access_code"] != true {
		t.Fatalf("representative must win: %v", view)
	}

	resp, _ = postJSON(t, client, f.server.URL+"/api/v1/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	view = sessionView(t, client, f.server.URL)
	if view["active_rep_id"] != "rep_zaid_deaa" || view["is_authenticated"] == true {
		t.Fatalf("logout must fall back to the code owner: %v", view)
	}

	resp, _ = doJSON(t, client, http.MethodDelete, f.server.URL+"/api/v1/code", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exit code: %d", resp.StatusCode)
	}
	view = sessionView(t, client, f.server.URL)
	if view["active_rep_id"] != nil || view["has_access_code"] == true {
		t.Fatalf("expected guest view: %v", view)
	}
}

func TestCodeResolutionFromIndexOverHTTP(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)

	resp, body := postJSON(t, client, f.server.URL+"/api/v1/code", map[string]string{"code": " clas 2027 0 "})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if body["rep_name"] != "Rep A" {
		t.Fatalf("rep_name %v", body["rep_name"])
	}
	view := sessionView(t, client, f.server.URL)
	if view["access_code"] != "CLAS20270" || view["active_rep_id"] != "rep_a" {
		t.Fatalf("unexpected view: %v", view)
	}
}

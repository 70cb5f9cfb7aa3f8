package integration

import (
	"net/http"
	"testing"
	"time"
)

func adminClient(t *testing.T, f *portalFixture) *http.Client {
	t.Helper()
	f.seedRepresentative(t, "rep_admin", "Admin", testAdminEmail, testAdminPassword, "ADMIN2026")
	client := f.newClient(t)
	login(t, client, f.server.URL, testAdminEmail, testAdminPassword)
	return client
}

func TestAdminSurfaceRejectsNonAdmins(t *testing.T) {
	f := newPortalFixture(t, nil)
	f.seedRepresentative(t, "rep_a", "Rep A", "rep.a@example.com", testRepPassword, "CLAS20270")
	client := f.newClient(t)
	login(t, client, f.server.URL, "rep.a@example.com", testRepPassword)

	resp, body := getJSON(t, client, f.server.URL+"/api/v1/admin/representatives")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
}

func TestAdminRepresentativeLifecycle(t *testing.T) {
	f := newPortalFixture(t, nil)
	client := adminClient(t, f)

	resp, body := postJSON(t, client, f.server.URL+"/api/v1/admin/representatives", map[string]string{
		"name":        "New Rep",
		"email":       "new.rep@example.com",
		"password":    "new-rep-password",
		"access_code": "newcode99",
		"stage":       "stage-2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	data, _ := body["data"].(map[string]any)
	repID, _ := data["id"].(string)
	if repID == "" {
		t.Fatalf("missing id in %v", body)
	}

	// The created code resolves for a fresh student session.
	student := f.newClient(t)
	resp, body = postJSON(t, student, f.server.URL+"/api/v1/code", map[string]string{"code": "NEWCODE99"})
	if resp.StatusCode != http.StatusOK || body["rep_name"] != "New Rep" {
		t.Fatalf("resolve created code: %d %v", resp.StatusCode, body)
	}

	// Another representative cannot claim the same code.
	resp, body = postJSON(t, client, f.server.URL+"/api/v1/admin/representatives", map[string]string{
		"name":        "Other Rep",
		"email":       "other.rep@example.com",
		"password":    "other-password",
		"access_code": "NEWCODE99",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate code: %d %v", resp.StatusCode, body)
	}

	// Updating without a password keeps the stored hash.
	resp, body = postJSON(t, client, f.server.URL+"/api/v1/admin/representatives", map[string]string{
		"id":          repID,
		"name":        "New Rep Renamed",
		"email":       "new.rep@example.com",
		"access_code": "NEWCODE99",
		"stage":       "stage-3",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %v", resp.StatusCode, body)
	}
	repClient := f.newClient(t)
	login(t, repClient, f.server.URL, "new.rep@example.com", "new-rep-password")

	resp, body = doJSON(t, client, http.MethodDelete, f.server.URL+"/api/v1/admin/representatives/"+repID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d %v", resp.StatusCode, body)
	}
	student2 := f.newClient(t)
	resp, _ = postJSON(t, student2, f.server.URL+"/api/v1/code", map[string]string{"code": "NEWCODE99"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted code must stop resolving, got %d", resp.StatusCode)
	}
}

func TestAdminListIncludesPresence(t *testing.T) {
	f := newPortalFixture(t, nil)
	client := adminClient(t, f)

	// The login heartbeat stamps last_seen asynchronously; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, body := getJSON(t, client, f.server.URL+"/api/v1/admin/representatives")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list: %d %v", resp.StatusCode, body)
		}
		items, _ := body["data"].([]any)
		if len(items) != 1 {
			t.Fatalf("expected one representative, got %v", body)
		}
		rep, _ := items[0].(map[string]any)
		if rep["presence"] == "online" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("presence %v", rep["presence"])
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSettingsReadAndUpdate(t *testing.T) {
	f := newPortalFixture(t, nil)
	client := adminClient(t, f)

	resp, body := getJSON(t, f.newClient(t), f.server.URL+"/api/v1/settings")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public settings: %d %v", resp.StatusCode, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["forced_theme"] != "none" {
		t.Fatalf("default theme %v", data["forced_theme"])
	}

	resp, body = doJSON(t, client, http.MethodPut, f.server.URL+"/api/v1/admin/settings", map[string]any{
		"forced_theme":    "dark",
		"show_translator": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, client, http.MethodPut, f.server.URL+"/api/v1/admin/settings", map[string]any{
		"forced_theme": "sepia",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid theme: %d %v", resp.StatusCode, body)
	}

	_, body = getJSON(t, f.newClient(t), f.server.URL+"/api/v1/settings")
	data, _ = body["data"].(map[string]any)
	if data["forced_theme"] != "dark" || data["show_translator"] != false {
		t.Fatalf("update not visible: %v", data)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newPortalFixture(t, nil)
	client := f.server.Client()

	resp, err := client.Get(f.server.URL + "/health/live")
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live status %d", resp.StatusCode)
	}

	resp, err = client.Get(f.server.URL + "/health/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status %d", resp.StatusCode)
	}
}

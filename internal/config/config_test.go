package config

import (
	"context"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load config with defaults: %v", err)
	}
	if cfg.RepLoginMaxAttempts != 4 {
		t.Fatalf("expected 4 rep login attempts, got %d", cfg.RepLoginMaxAttempts)
	}
	if cfg.RepLoginCooldown != 15*time.Minute {
		t.Fatalf("expected 15m rep login cooldown, got %v", cfg.RepLoginCooldown)
	}
	if cfg.StudentCodeMaxAttempts != 4 {
		t.Fatalf("expected 4 student code attempts, got %d", cfg.StudentCodeMaxAttempts)
	}
	if cfg.StudentCodeCooldown != 10*time.Minute {
		t.Fatalf("expected 10m student code cooldown, got %v", cfg.StudentCodeCooldown)
	}
	if cfg.HeartbeatInterval != 4*time.Minute {
		t.Fatalf("expected 4m heartbeat interval, got %v", cfg.HeartbeatInterval)
	}
	if cfg.PresenceFreshness != 5*time.Minute {
		t.Fatalf("expected 5m presence freshness, got %v", cfg.PresenceFreshness)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("dev profile should fall back to a non-empty secret")
	}
}

func TestLoadProdRequiresSecrets(t *testing.T) {
	t.Setenv("PORTAL_PROFILE", "prod")
	t.Setenv("PORTAL_JWT_SECRET", "")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected prod profile without secret to fail validation")
	}

	t.Setenv("PORTAL_JWT_SECRET", "super-secret")
	t.Setenv("PORTAL_ADMIN_EMAIL", "Admin@University.EDU")
	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load prod config: %v", err)
	}
	if cfg.AdminEmail != "admin@university.edu" {
		t.Fatalf("admin email should be lowercased, got %q", cfg.AdminEmail)
	}
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	t.Setenv("PORTAL_SESSION_TTL", "not-a-duration")
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected malformed duration to fail")
	}
}

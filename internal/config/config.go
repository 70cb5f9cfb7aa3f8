package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is assembled from the environment. The zero-dependency loader keeps
// the service runnable with nothing but defaults in dev; prod profile makes
// the secrets mandatory.
type Config struct {
	Profile  string
	HTTPAddr string

	DatabaseDSN string
	RedisAddr   string
	RedisDB     int

	AdminEmail string

	JWTIssuer      string
	JWTAudience    string
	JWTSecret      string
	AccessTokenTTL time.Duration

	// SessionTTL bounds the session-scoped key-value entries (access code,
	// active rep id, rate-limit entries) so student access does not outlive
	// a browsing session.
	SessionTTL time.Duration

	RepLoginMaxAttempts    int
	RepLoginCooldown       time.Duration
	StudentCodeMaxAttempts int
	StudentCodeCooldown    time.Duration

	HeartbeatInterval time.Duration
	PresenceFreshness time.Duration

	APIRateLimitRPM  int
	AuthRateLimitRPM int
	CORSOrigins      []string

	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	EnableOTelHTTP            bool
}

func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	profile := ""
	if cfg != nil {
		profile = cfg.Profile
	}
	if err != nil {
		recordConfigValidationEvent(ctx, profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, profile, "success", "none")
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Profile:     envString("PORTAL_PROFILE", "dev"),
		HTTPAddr:    envString("PORTAL_HTTP_ADDR", ":8080"),
		DatabaseDSN: envString("PORTAL_DATABASE_DSN", "portal.db"),
		RedisAddr:   envString("PORTAL_REDIS_ADDR", ""),
		AdminEmail:  strings.ToLower(strings.TrimSpace(envString("PORTAL_ADMIN_EMAIL", ""))),
		JWTIssuer:   envString("PORTAL_JWT_ISSUER", "portal-access"),
		JWTAudience: envString("PORTAL_JWT_AUDIENCE", "portal"),
		JWTSecret:   envString("PORTAL_JWT_SECRET", ""),

		OTELServiceName:          envString("OTEL_SERVICE_NAME", "portal-access"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.RedisDB, err = envInt("PORTAL_REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.AccessTokenTTL, err = envDuration("PORTAL_ACCESS_TOKEN_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SessionTTL, err = envDuration("PORTAL_SESSION_TTL", 12*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RepLoginMaxAttempts, err = envInt("PORTAL_REP_LOGIN_MAX_ATTEMPTS", 4); err != nil {
		return cfg, err
	}
	if cfg.RepLoginCooldown, err = envDuration("PORTAL_REP_LOGIN_COOLDOWN", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.StudentCodeMaxAttempts, err = envInt("PORTAL_STUDENT_CODE_MAX_ATTEMPTS", 4); err != nil {
		return cfg, err
	}
	if cfg.StudentCodeCooldown, err = envDuration("PORTAL_STUDENT_CODE_COOLDOWN", 10*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.HeartbeatInterval, err = envDuration("PORTAL_HEARTBEAT_INTERVAL", 4*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.PresenceFreshness, err = envDuration("PORTAL_PRESENCE_FRESHNESS", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.APIRateLimitRPM, err = envInt("PORTAL_API_RATE_LIMIT_RPM", 300); err != nil {
		return cfg, err
	}
	if cfg.AuthRateLimitRPM, err = envInt("PORTAL_AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return cfg, err
	}
	if cfg.ShutdownTimeout, err = envDuration("PORTAL_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownHTTPDrainTimeout, err = envDuration("PORTAL_SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracesEnabled, err = envBool("OTEL_TRACES_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.EnableOTelHTTP, err = envBool("PORTAL_ENABLE_OTEL_HTTP", false); err != nil {
		return cfg, err
	}
	if raw := envString("PORTAL_CORS_ORIGINS", ""); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if normalizeConfigProfile(c.Profile) == "prod" {
		if c.JWTSecret == "" {
			return fmt.Errorf("validate config: PORTAL_JWT_SECRET is required in prod")
		}
		if c.AdminEmail == "" {
			return fmt.Errorf("validate config: PORTAL_ADMIN_EMAIL is required in prod")
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-insecure-secret"
	}
	if c.RepLoginMaxAttempts < 1 || c.StudentCodeMaxAttempts < 1 {
		return fmt.Errorf("validate config: attempt limits must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.PresenceFreshness <= 0 {
		return fmt.Errorf("validate config: heartbeat/presence intervals must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coursehub/portal-access/internal/config"
	"github.com/coursehub/portal-access/internal/health"
	"github.com/coursehub/portal-access/internal/http/handler"
	"github.com/coursehub/portal-access/internal/http/router"
	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
	"github.com/coursehub/portal-access/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner
	Registry      *service.SessionRegistry

	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration

	stop func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	registry *service.SessionRegistry,
	readiness *health.ProbeRunner,
	stop func(),
) *App {
	return &App{
		Config:                   cfg,
		Logger:                   logger,
		Server:                   server,
		Observability:            runtime,
		Readiness:                readiness,
		Registry:                 registry,
		ShutdownTimeout:          cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout: cfg.ShutdownHTTPDrainTimeout,
		stop:                     stop,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stop != nil {
		a.stop()
	}
}

// Build assembles the whole service from configuration: database, optional
// Redis, repositories, session services and the HTTP surface.
func Build(ctx context.Context) (*App, error) {
	logger := observability.NewBootstrapLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	db, err := repository.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	reps := repository.NewRepresentativeRepository(db)
	codes := repository.NewAccessCodeRepository(db)
	settings := repository.NewSettingsRepository(db)

	var (
		redisClient  redis.UniversalClient
		attemptStore service.AttemptStore
		missCache    service.CodeMissCache
		sessionKV    service.SessionKV
		checkers     []health.Checker
	)
	checkers = append(checkers, health.DatabaseChecker{DB: db})
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		attemptStore = service.NewRedisAttemptStore(redisClient, "")
		missCache = service.NewRedisCodeMissCache(redisClient, "")
		sessionKV = service.NewRedisSessionKV(redisClient, "", cfg.SessionTTL)
		checkers = append(checkers, health.RedisChecker{Client: redisClient})
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	} else {
		attemptStore = service.NewInMemoryAttemptStore()
		missCache = service.NewInMemoryCodeMissCache()
		sessionKV = service.NewInMemorySessionKV()
		logger.Info("redis disabled, using in-memory stores")
	}

	tokens := security.NewTokenManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	credentials := service.NewCredentialStore(reps, tokens, cfg.AccessTokenTTL)
	resolver := service.NewCodeResolver(codes, reps, service.DefaultFastPathCodes(), missCache, 5*time.Minute)
	limiter := service.NewRateLimiter(attemptStore, map[string]service.RateLimitPolicy{
		service.KeyRepLogin:    {MaxAttempts: cfg.RepLoginMaxAttempts, Cooldown: cfg.RepLoginCooldown},
		service.KeyStudentCode: {MaxAttempts: cfg.StudentCodeMaxAttempts, Cooldown: cfg.StudentCodeCooldown},
	}, cfg.SessionTTL)
	registry := service.NewSessionRegistry(credentials, resolver, limiter, sessionKV, reps, cfg.HeartbeatInterval)

	secureCookies := strings.EqualFold(cfg.Profile, "prod")
	sessionHandler := handler.NewSessionHandler(registry, reps, tokens, cfg.AccessTokenTTL, secureCookies)
	adminHandler := handler.NewAdminHandler(reps, codes, settings, missCache, cfg.PresenceFreshness)
	readiness := health.NewProbeRunner(2*time.Second, 5*time.Second, checkers...)

	h := router.NewRouter(router.Dependencies{
		SessionHandler:   sessionHandler,
		AdminHandler:     adminHandler,
		TokenManager:     tokens,
		Representatives:  reps,
		AdminEmail:       cfg.AdminEmail,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		SecureCookies:    secureCookies,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.EnableOTelHTTP,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := func() {
		registry.Shutdown()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return New(cfg, logger, server, runtime, registry, readiness, stop), nil
}

// Run serves until the context is cancelled, then drains connections,
// stops heartbeats and flushes telemetry within the shutdown budget.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.StopBackgroundTasks()
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, a.ShutdownHTTPDrainTimeout)
	defer drainCancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("http drain incomplete", "error", err)
	}

	a.StopBackgroundTasks()

	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("observability shutdown incomplete", "error", err)
	}
	return nil
}

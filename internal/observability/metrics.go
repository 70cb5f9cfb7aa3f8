package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/portal-access/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	loginCounter      metric.Int64Counter
	codeEntryCounter  metric.Int64Counter
	rateLimitCounter  metric.Int64Counter
	heartbeatCounter  metric.Int64Counter
	repositoryCounter metric.Int64Counter
	tokenCounter      metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("portal-access")
	loginCounter, err := meter.Int64Counter("auth.login.attempts")
	if err != nil {
		return nil, err
	}
	codeEntryCounter, err := meter.Int64Counter("access_code.entry.attempts")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("ratelimit.decisions")
	if err != nil {
		return nil, err
	}
	heartbeatCounter, err := meter.Int64Counter("heartbeat.writes")
	if err != nil {
		return nil, err
	}
	repositoryCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	tokenCounter, err := meter.Int64Counter("auth.token.validations")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		loginCounter:      loginCounter,
		codeEntryCounter:  codeEntryCounter,
		rateLimitCounter:  rateLimitCounter,
		heartbeatCounter:  heartbeatCounter,
		repositoryCounter: repositoryCounter,
		tokenCounter:      tokenCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	return m
}

func RecordLogin(status string) {
	m := current()
	if m == nil {
		return
	}
	m.loginCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCodeEntry tags each access-code entry with its outcome and the
// resolver path that produced it (fast_path, doc_key, indexed, legacy, none).
func RecordCodeEntry(status, path string) {
	m := current()
	if m == nil {
		return
	}
	m.codeEntryCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("path", path),
		),
	)
}

func RecordRateLimitDecision(ctx context.Context, key, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("key", key),
			attribute.String("decision", decision),
		),
	)
}

func RecordHeartbeatWrite(status string, latency time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.heartbeatCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.Int64("latency_ms", latency.Milliseconds()),
		),
	)
}

func RecordTokenValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		),
	)
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

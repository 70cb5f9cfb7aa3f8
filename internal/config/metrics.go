package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config loading emits one counter so dashboards can spot crash loops caused
// by bad env vars. The counter comes from the global meter provider: config
// loads before the SDK is installed, and the global delegates once it is.
var (
	loadEventOnce    sync.Once
	loadEventCounter metric.Int64Counter
)

func recordConfigValidationEvent(ctx context.Context, profile, outcome, errorClass string) {
	loadEventOnce.Do(func() {
		c, err := otel.Meter("portal-access").Int64Counter("config.validation.events")
		if err != nil {
			return
		}
		loadEventCounter = c
	})
	if loadEventCounter == nil {
		return
	}
	loadEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

// normalizeConfigProfile keeps the profile attribute low-cardinality:
// trimmed, lowercased, never empty.
func normalizeConfigProfile(profile string) string {
	if p := strings.ToLower(strings.TrimSpace(profile)); p != "" {
		return p
	}
	return "unknown"
}

// classifyConfigLoadError buckets a load failure by which stage produced it,
// keyed off the wrap prefixes Load attaches.
func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "validate config:") {
		return "validation"
	}
	if strings.Contains(msg, "parse ") {
		return "parse"
	}
	return "load"
}

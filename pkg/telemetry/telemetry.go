// Package telemetry provides utilities for creating and managing
// OpenTelemetry metrics.
//
// Metrics are exported over OTLP/HTTP to any OpenTelemetry-compatible
// collector. Nothing is exported until a collector endpoint is configured;
// until then Global() hands out instruments backed by a no-op meter, so
// callers never need to guard metric recording.
//
//	tel, err := telemetry.New(ctx, telemetry.Config{
//	    ServiceName:    "queuectl",
//	    ServiceVersion: "v0.1.0",
//	    Endpoint:       "localhost:4318",
//	    Insecure:       true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
//	counter, _ := tel.NewCounter(telemetry.CounterConfig{
//	    Name:        "jobs_failed_total",
//	    Description: "Jobs that failed an execution attempt",
//	})
//	counter.Inc(ctx, telemetry.StringAttr("queue", "default"))
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Telemetry struct {
	provider *Provider
	meter    metric.Meter
}

func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	return &Telemetry{
		provider: provider,
		meter:    provider.Meter(),
	}, nil
}

// NewWithMeter creates a new Telemetry instance with a custom meter.
// This is useful for testing with in-memory exporters or manual readers.
func NewWithMeter(meter metric.Meter) *Telemetry {
	return &Telemetry{
		meter: meter,
	}
}

func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

func (t *Telemetry) NewCounter(cfg CounterConfig) (*Counter, error) {
	return NewCounter(t.meter, cfg)
}

func (t *Telemetry) NewGauge(cfg GaugeConfig) (*Gauge, error) {
	return NewGauge(t.meter, cfg)
}

func (t *Telemetry) NewTimer(cfg TimerConfig) (*Timer, error) {
	return NewTimer(t.meter, cfg)
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

func Int64Attr(key string, value int64) attribute.KeyValue {
	return attribute.Int64(key, value)
}

func BoolAttr(key string, value bool) attribute.KeyValue {
	return attribute.Bool(key, value)
}

var DefaultBoundaries = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 50, 100,
}

// DurationMillis converts durations into histogram bucket boundaries in
// milliseconds, the unit Timer records in.
func DurationMillis(durations ...time.Duration) []float64 {
	bounds := make([]float64, 0, len(durations))
	for _, d := range durations {
		bounds = append(bounds, float64(d.Milliseconds()))
	}
	return bounds
}

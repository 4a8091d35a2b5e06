package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Gauge struct {
	gauge metric.Int64Gauge
	attrs []attribute.KeyValue
}

type GaugeConfig struct {
	Name        string
	Description string
	Unit        string
	Attributes  map[string]string
}

func NewGauge(meter metric.Meter, cfg GaugeConfig) (*Gauge, error) {
	opts := []metric.Int64GaugeOption{
		metric.WithDescription(cfg.Description),
	}

	if cfg.Unit != "" {
		opts = append(opts, metric.WithUnit(cfg.Unit))
	}

	gauge, err := meter.Int64Gauge(cfg.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", cfg.Name, err)
	}

	attrs := make([]attribute.KeyValue, 0, len(cfg.Attributes))
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return &Gauge{
		gauge: gauge,
		attrs: attrs,
	}, nil
}

func (g *Gauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	allAttrs := append(g.attrs, attrs...)
	g.gauge.Record(ctx, value, metric.WithAttributes(allAttrs...))
}

func (g *Gauge) WithAttributes(attrs ...attribute.KeyValue) *Gauge {
	return &Gauge{
		gauge: g.gauge,
		attrs: append(g.attrs, attrs...),
	}
}

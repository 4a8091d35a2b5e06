package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/storacha/queuectl/pkg/telemetry"
)

func collectMetric(t *testing.T, reader *metric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return &m
			}
		}
	}
	return nil
}

func TestMetricsWithManualReader(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer func() {
		require.NoError(t, provider.Shutdown(ctx))
	}()

	tel := telemetry.NewWithMeter(provider.Meter("test-service"))

	t.Run("counter sums added values", func(t *testing.T) {
		counter, err := tel.NewCounter(telemetry.CounterConfig{
			Name:        "test_counter",
			Description: "Test counter",
		})
		require.NoError(t, err)

		counter.Add(ctx, 5)
		counter.Inc(ctx)
		counter.Add(ctx, 10, telemetry.StringAttr("method", "GET"))

		m := collectMetric(t, reader, "test_counter")
		require.NotNil(t, m)
		assert.Equal(t, "Test counter", m.Description)

		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.True(t, sum.IsMonotonic)

		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		assert.Equal(t, int64(16), total)
	})

	t.Run("gauge keeps the last recorded value", func(t *testing.T) {
		gauge, err := tel.NewGauge(telemetry.GaugeConfig{
			Name: "test_gauge",
			Unit: "jobs",
		})
		require.NoError(t, err)

		gauge.Record(ctx, 100)
		gauge.Record(ctx, 3)

		m := collectMetric(t, reader, "test_gauge")
		require.NotNil(t, m)
		assert.Equal(t, "jobs", m.Unit)

		data, ok := m.Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		require.Len(t, data.DataPoints, 1)
		assert.Equal(t, int64(3), data.DataPoints[0].Value)
	})

	t.Run("timer records milliseconds", func(t *testing.T) {
		timer, err := tel.NewTimer(telemetry.TimerConfig{
			Name:       "test_timer",
			Boundaries: telemetry.DurationMillis(10*time.Millisecond, time.Second),
		})
		require.NoError(t, err)

		timer.Record(ctx, 250*time.Millisecond)

		m := collectMetric(t, reader, "test_timer")
		require.NotNil(t, m)
		assert.Equal(t, "ms", m.Unit)

		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, hist.DataPoints, 1)
		assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
		assert.Equal(t, float64(250), hist.DataPoints[0].Sum)
	})
}

func TestDurationMillis(t *testing.T) {
	bounds := telemetry.DurationMillis(5*time.Millisecond, time.Second, time.Minute)
	assert.Equal(t, []float64{5, 1000, 60000}, bounds)
}

func TestGlobalDefaultsToNoop(t *testing.T) {
	tel := telemetry.Global()
	require.NotNil(t, tel)

	counter, err := tel.NewCounter(telemetry.CounterConfig{Name: "noop_counter"})
	require.NoError(t, err)
	counter.Inc(context.Background())

	require.NoError(t, telemetry.Shutdown(context.Background()))
}

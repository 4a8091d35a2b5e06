package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/storacha/queuectl/pkg/telemetry"
)

var telemetryLog = logging.Logger("worker/telemetry")

var (
	activeJobsGauge  *telemetry.Gauge
	deadJobsCounter  *telemetry.Counter
	jobDurationTimer *telemetry.Timer
)

// jobDurationBounds are in milliseconds, covering 5ms up to 30 minutes.
var jobDurationBounds = telemetry.DurationMillis(
	5*time.Millisecond,
	10*time.Millisecond,
	25*time.Millisecond,
	50*time.Millisecond,
	75*time.Millisecond,
	100*time.Millisecond,
	250*time.Millisecond,
	500*time.Millisecond,
	750*time.Millisecond,
	time.Second,
	2500*time.Millisecond,
	5*time.Second,
	7500*time.Millisecond,
	10*time.Second,
	30*time.Second,
	time.Minute,
	2*time.Minute,
	5*time.Minute,
	10*time.Minute,
	15*time.Minute,
	20*time.Minute,
	30*time.Minute,
)

// activeGaugeCounts tracks in-flight jobs per worker id so gauge deltas can
// be reported as absolute values. Keyed by worker id, not job id, to keep
// attribute cardinality bounded.
var activeGaugeCounts sync.Map // map[string]*atomic.Int64

// instrumentsOnce defers instrument creation to first use, after the global
// telemetry provider has been configured.
var instrumentsOnce sync.Once

func initInstruments() {
	tel := telemetry.Global()

	gauge, err := tel.NewGauge(telemetry.GaugeConfig{
		Name:        "queuectl_active_jobs",
		Description: "number of jobs currently executing",
		Unit:        "jobs",
	})
	if err != nil {
		telemetryLog.Warnw("failed to init telemetry gauge", "name", "queuectl_active_jobs", "error", err)
	} else {
		activeJobsGauge = gauge
	}

	counter, err := tel.NewCounter(telemetry.CounterConfig{
		Name:        "queuectl_dead_jobs",
		Description: "jobs that exhausted their retry budget",
	})
	if err != nil {
		telemetryLog.Warnw("failed to init telemetry counter", "name", "queuectl_dead_jobs", "error", err)
	} else {
		deadJobsCounter = counter
	}

	timer, err := tel.NewTimer(telemetry.TimerConfig{
		Name:        "queuectl_job_duration",
		Description: "time spent executing a job attempt",
		Unit:        "ms",
		Boundaries:  jobDurationBounds,
	})
	if err != nil {
		telemetryLog.Warnw("failed to init telemetry timer", "name", "queuectl_job_duration", "error", err)
		return
	}
	jobDurationTimer = timer
}

func recordActiveDelta(ctx context.Context, workerID string, delta int64) {
	instrumentsOnce.Do(initInstruments)
	if activeJobsGauge == nil || workerID == "" {
		return
	}

	val, _ := activeGaugeCounts.LoadOrStore(workerID, &atomic.Int64{})
	current := val.(*atomic.Int64).Add(delta)
	if current < 0 {
		val.(*atomic.Int64).Store(0)
		current = 0
	}

	activeJobsGauge.Record(ctx, current, telemetry.StringAttr("worker", workerID))
}

func recordJobDead(ctx context.Context, workerID string, attempt int) {
	instrumentsOnce.Do(initInstruments)
	if deadJobsCounter == nil || workerID == "" {
		return
	}

	attrs := []attribute.KeyValue{
		telemetry.StringAttr("worker", workerID),
	}
	if attempt > 0 {
		attrs = append(attrs, telemetry.IntAttr("attempt", attempt))
	}

	deadJobsCounter.Inc(ctx, attrs...)
}

func recordJobDuration(ctx context.Context, workerID, status string, attempt int, duration time.Duration) {
	instrumentsOnce.Do(initInstruments)
	if jobDurationTimer == nil || workerID == "" {
		return
	}

	attrs := []attribute.KeyValue{
		telemetry.StringAttr("worker", workerID),
		telemetry.StringAttr("status", status),
	}
	if attempt > 0 {
		attrs = append(attrs, telemetry.IntAttr("attempt", attempt))
	}

	jobDurationTimer.Record(ctx, duration, attrs...)
}

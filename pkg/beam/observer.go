package beam

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives lifecycle callbacks from the engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay step execution.
type Observer interface {
	// OnRunStart is called once per run, after input validation and before
	// the root node starts.
	OnRunStart(ctx context.Context, beamID, runID string)

	// OnRunEnd is called once per run with the sealed result.
	OnRunEnd(ctx context.Context, res *Result)

	// OnStepStart is called before each step attempt. attempt is 1-based.
	OnStepStart(ctx context.Context, runID, stepID string, attempt int)

	// OnStepSettled is called when a step reaches a terminal outcome, after
	// its final log entry has been appended.
	OnStepSettled(ctx context.Context, runID string, entry StepEntry, d time.Duration)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, beamID, runID string)               {}
func (NoopObserver) OnRunEnd(ctx context.Context, res *Result)                          {}
func (NoopObserver) OnStepStart(ctx context.Context, runID, stepID string, attempt int) {}
func (NoopObserver) OnStepSettled(ctx context.Context, runID string, entry StepEntry, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, beamID, runID string) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, beamID, runID)
	}
}

func (c *CompositeObserver) OnRunEnd(ctx context.Context, res *Result) {
	for _, o := range c.observers {
		o.OnRunEnd(ctx, res)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, runID, stepID string, attempt int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, runID, stepID, attempt)
	}
}

func (c *CompositeObserver) OnStepSettled(ctx context.Context, runID string, entry StepEntry, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepSettled(ctx, runID, entry, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, beamID, runID string) {
	o.Logger.InfoContext(ctx, "beam_run_start",
		slog.String("beam", beamID),
		slog.String("run_id", runID),
	)
}

func (o *LoggingObserver) OnRunEnd(ctx context.Context, res *Result) {
	level := slog.LevelInfo
	if res.Status == StatusFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "beam_run_end",
		slog.String("beam", res.Log.BeamID),
		slog.String("run_id", res.Log.RunID),
		slog.String("status", string(res.Status)),
		slog.Any("error", res.Err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, runID, stepID string, attempt int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnStepSettled(ctx context.Context, runID string, entry StepEntry, d time.Duration) {
	level := slog.LevelDebug
	if entry.Status == StatusFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_settled",
		slog.String("run_id", runID),
		slog.String("step", entry.StepID),
		slog.Int("step_index", entry.StepIndex),
		slog.String("status", string(entry.Status)),
		slog.Duration("duration", d),
		slog.String("error", entry.Error),
	)
}

// BasicMetrics collects simple counters and aggregate step durations. It
// implements both Observer and Collector, and can be combined with
// LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64

	stepsSettled      atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds

	trackedSteps atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	PendingRuns   int64

	StepsSettled    int64
	AvgStepDuration time.Duration

	TrackedSteps int64
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, beamID, runID string) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunEnd(ctx context.Context, res *Result) {
	if res.Status == StatusFailed {
		m.runsFailed.Add(1)
		return
	}
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnStepSettled(ctx context.Context, runID string, entry StepEntry, d time.Duration) {
	// Only count successful settlements toward the average.
	if entry.Status == StatusCompleted {
		m.stepsSettled.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// RecordStep implements Collector for steps with Track enabled.
func (m *BasicMetrics) RecordStep(beamID, stepID string, sm StepMetrics) {
	m.trackedSteps.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	steps := m.stepsSettled.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		RunsFailed:      failed,
		PendingRuns:     started - completed - failed,
		StepsSettled:    steps,
		AvgStepDuration: avg,
		TrackedSteps:    m.trackedSteps.Load(),
	}
}

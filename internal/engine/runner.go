// Package engine walks compiled beam graphs: it schedules sequence,
// parallel and branch nodes, drives step invocation with retry, timeout
// and fallback policy, and assembles the execution log.
package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// Archive receives finished execution logs. Implemented by the trace
// package's stores; archiving is best-effort and never fails a run.
type Archive interface {
	SaveRun(ctx context.Context, log *beam.ExecutionLog) error
}

// Config describes how to construct a Runner. Zero fields get defaults:
// noop observer, no validation, no metrics, no archive.
type Config struct {
	Observer  beam.Observer
	Validator beam.Validator
	Collector beam.Collector
	Archive   Archive
	Logger    *slog.Logger
	StartedBy string
}

// Runner executes beams. It is stateless between runs and safe for
// concurrent use.
type Runner struct {
	observer  beam.Observer
	validator beam.Validator
	collector beam.Collector
	archive   Archive
	logger    *slog.Logger
	startedBy string
}

// New creates a Runner from the given config.
func New(cfg Config) *Runner {
	obs := cfg.Observer
	if obs == nil {
		obs = beam.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	startedBy := cfg.StartedBy
	if startedBy == "" {
		startedBy = "runner"
	}
	return &Runner{
		observer:  obs,
		validator: cfg.Validator,
		collector: cfg.Collector,
		archive:   cfg.Archive,
		logger:    logger,
		startedBy: startedBy,
	}
}

// runState is the shared mutable state of one run: the execution context,
// the log recorder, and the run-wide stop flag set by a fallback Stop.
type runState struct {
	beam  *beam.Beam
	state *beam.State
	rec   *beam.Recorder

	stopMu  sync.Mutex
	stopErr error
}

// requestStop records the first stop reason; later calls are ignored.
func (rs *runState) requestStop(err error) {
	rs.stopMu.Lock()
	defer rs.stopMu.Unlock()
	if rs.stopErr == nil {
		rs.stopErr = err
	}
}

func (rs *runState) stopRequested() (error, bool) {
	rs.stopMu.Lock()
	defer rs.stopMu.Unlock()
	return rs.stopErr, rs.stopErr != nil
}

// Run executes the beam to completion and returns the result envelope.
// The returned error is non-nil exactly when the result status is failed;
// the execution log is populated in either case.
func (r *Runner) Run(ctx context.Context, b *beam.Beam, input any) (*beam.Result, error) {
	rec := beam.NewRecorder(b.ID, r.startedBy, input)

	if err := b.Validate(); err != nil {
		return r.finish(ctx, rec, beam.StatusFailed, nil, err)
	}

	if err := r.validate(b.InputSchema, input); err != nil {
		verr := &beam.ValidationError{BeamID: b.ID, Stage: "input", Cause: err}
		return r.finish(ctx, rec, beam.StatusFailed, nil, verr)
	}

	rs := &runState{
		beam:  b,
		state: beam.NewState(input),
		rec:   rec,
	}

	r.observer.OnRunStart(ctx, b.ID, rec.RunID())

	out := r.runNode(ctx, b.Root, rs)

	// A fallback Stop overrides whatever outcome bubbled up; the reason is
	// the stop reason, not the shape of the unwinding.
	if stopErr, stopped := rs.stopRequested(); stopped {
		return r.finish(ctx, rec, beam.StatusFailed, nil, stopErr)
	}

	if out.Status == beam.StatusFailed {
		return r.finish(ctx, rec, beam.StatusFailed, nil, out.Err)
	}

	if err := r.validate(b.OutputSchema, out.Output); err != nil {
		verr := &beam.ValidationError{BeamID: b.ID, Stage: "output", Cause: err}
		return r.finish(ctx, rec, beam.StatusFailed, nil, verr)
	}

	return r.finish(ctx, rec, beam.StatusCompleted, out.Output, nil)
}

func (r *Runner) validate(schema any, value any) error {
	if schema == nil || r.validator == nil {
		return nil
	}
	return r.validator.Validate(schema, value)
}

func (r *Runner) finish(ctx context.Context, rec *beam.Recorder, status beam.Status, output any, err error) (*beam.Result, error) {
	log := rec.Finish(status, output, err)
	res := &beam.Result{
		Status: status,
		Output: output,
		Err:    err,
		Log:    log,
	}
	r.observer.OnRunEnd(ctx, res)

	if r.archive != nil {
		if aerr := r.archive.SaveRun(ctx, log); aerr != nil {
			r.logger.Warn("failed to archive run",
				slog.String("beam", log.BeamID),
				slog.String("run_id", log.RunID),
				slog.Any("error", aerr),
			)
		}
	}
	return res, err
}

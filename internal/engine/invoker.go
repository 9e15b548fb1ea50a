package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// invoke runs one step to settlement: per-attempt parameter resolution,
// a time-bounded target call, retries with backoff, and the fallback on
// exhaustion. Every attempt appends a log entry; the final attempt's entry
// is the settlement entry unless a fallback recovers the step.
func (r *Runner) invoke(ctx context.Context, step *beam.Step, rs *runState) beam.Outcome {
	opts := step.Opts.Normalized()

	if len(opts.Dependencies) > 0 {
		if err := rs.state.AwaitSettled(ctx, opts.Dependencies...); err != nil {
			ierr := &beam.InvocationError{StepID: step.ID, Cause: err}
			return r.settle(ctx, rs, opts, failedEntry(step.ID, 1, ierr), beam.Failed(ierr), 1, 0)
		}
		// The wait may have outlived a fallback Stop elsewhere in the run;
		// in that case this step must not start.
		if stopErr, stopped := rs.stopRequested(); stopped {
			return beam.Failed(stopErr)
		}
	}

	maxAttempts := opts.Retries + 1
	backoff := opts.RetryBackoff

	var lastErr error
	var totalDur time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			ierr := &beam.InvocationError{StepID: step.ID, Cause: err}
			return r.settle(ctx, rs, opts, failedEntry(step.ID, attempt, ierr), beam.Failed(ierr), attempt, totalDur)
		}

		startedAt := time.Now().UTC()
		r.observer.OnStepStart(ctx, rs.rec.RunID(), step.ID, attempt)

		// Parameters are re-resolved on every attempt: the run state only
		// grows, so re-resolution is idempotent for anything this step can
		// legally reference.
		input, err := beam.ResolveParams(step.Params, rs.state)
		var output any
		if err == nil {
			output, err = r.callTarget(ctx, step, input, rs.state, opts.Timeout)
		}

		completedAt := time.Now().UTC()
		totalDur += completedAt.Sub(startedAt)

		entry := beam.StepEntry{
			StepID:      step.ID,
			Attempt:     attempt,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
		}
		if opts.StoreIO {
			entry.Input = input
		}

		if err == nil {
			entry.Status = beam.StatusCompleted
			if opts.StoreIO {
				entry.Output = output
			}
			return r.settle(ctx, rs, opts, entry, beam.Completed(output), attempt, totalDur)
		}

		lastErr = err
		entry.Status = beam.StatusFailed
		entry.Error = err.Error()

		if attempt < maxAttempts {
			// Not terminal yet: record the failed attempt and back off.
			rs.rec.Append(entry)
			if serr := sleepBackoff(ctx, backoff); serr != nil {
				ierr := &beam.InvocationError{StepID: step.ID, Cause: serr}
				return r.settle(ctx, rs, opts, failedEntry(step.ID, attempt+1, ierr), beam.Failed(ierr), attempt, totalDur)
			}
			backoff = nextBackoff(backoff, opts)
			continue
		}

		// Retries exhausted: the fallback, if any, decides the outcome.
		if opts.Fallback != nil {
			return r.recoverStep(ctx, rs, step, opts, entry, lastErr, attempt, totalDur)
		}

		exhausted := &beam.RetriesExhaustedError{StepID: step.ID, Attempts: attempt, Cause: lastErr}
		return r.settle(ctx, rs, opts, entry, beam.Failed(exhausted), attempt, totalDur)
	}

	// Unreachable: the loop always settles.
	return beam.Failed(fmt.Errorf("engine: step %s did not settle", step.ID))
}

// recoverStep consults the step's fallback after its retries are spent.
// ContinueWith settles the step completed with the substituted output;
// StopWith (and a panicking fallback) aborts the whole run.
func (r *Runner) recoverStep(ctx context.Context, rs *runState, step *beam.Step, opts beam.Options, lastEntry beam.StepEntry, cause error, attempts int, totalDur time.Duration) beam.Outcome {
	// The exhausted final attempt is recorded first; the recovery verdict
	// gets its own entry below.
	rs.rec.Append(lastEntry)

	rec := runFallback(ctx, opts.Fallback, cause, rs.state)

	now := time.Now().UTC()
	entry := beam.StepEntry{
		StepID:      step.ID,
		Attempt:     0,
		StartedAt:   now,
		CompletedAt: now,
	}

	if rec.Action == beam.RecoveryContinue {
		entry.Status = beam.StatusCompleted
		if opts.StoreIO {
			entry.Output = rec.Output
		}
		return r.settle(ctx, rs, opts, entry, beam.Completed(rec.Output), attempts, totalDur)
	}

	reason := rec.Reason
	if reason == nil {
		reason = cause
	}
	stop := &beam.FallbackStopError{StepID: step.ID, Reason: reason}
	rs.requestStop(stop)

	entry.Status = beam.StatusFailed
	entry.Error = stop.Error()
	return r.settle(ctx, rs, opts, entry, beam.Failed(stop), attempts, totalDur)
}

// runFallback executes a fallback, converting a panic into a stop verdict.
func runFallback(ctx context.Context, fb beam.Fallback, cause error, state *beam.State) (rec beam.Recovery) {
	defer func() {
		if p := recover(); p != nil {
			rec = beam.StopWith(fmt.Errorf("fallback panicked: %v", p))
		}
	}()
	return fb.Handle(ctx, cause, state)
}

// settle appends the terminal log entry, records the outcome in the run
// state, and emits observer and collector events. It is the single exit
// path for a settled step.
func (r *Runner) settle(ctx context.Context, rs *runState, opts beam.Options, entry beam.StepEntry, out beam.Outcome, attempts int, totalDur time.Duration) beam.Outcome {
	appended := rs.rec.Append(entry)
	rs.state.Settle(entry.StepID, out)
	r.observer.OnStepSettled(ctx, rs.rec.RunID(), appended, totalDur)

	if opts.Track && r.collector != nil {
		r.collector.RecordStep(rs.rec.BeamID(), entry.StepID, beam.StepMetrics{
			Attempts: attempts,
			Duration: totalDur,
			Failed:   out.Status == beam.StatusFailed,
		})
	}
	return out
}

// failedEntry builds a terminal entry for a step that failed before or
// between target attempts (cancelled context, unmet dependency wait).
func failedEntry(stepID string, attempt int, err error) beam.StepEntry {
	now := time.Now().UTC()
	return beam.StepEntry{
		StepID:      stepID,
		Attempt:     attempt,
		Status:      beam.StatusFailed,
		Error:       err.Error(),
		StartedAt:   now,
		CompletedAt: now,
	}
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// nextBackoff escalates the delay when a multiplier above 1 is configured,
// clamped by MaxBackoff. The default multiplier of 1 keeps it constant.
func nextBackoff(current time.Duration, opts beam.Options) time.Duration {
	if opts.BackoffMultiplier <= 1 {
		return current
	}
	next := time.Duration(float64(current) * opts.BackoffMultiplier)
	if opts.MaxBackoff > 0 && next > opts.MaxBackoff {
		return opts.MaxBackoff
	}
	return next
}

// callTarget invokes the step's prism under the step's time budget. A
// panic in the prism is recovered and reported as an invocation error;
// exceeding the budget is reported as a timeout. There is no mechanism to
// interrupt the prism beyond cancelling the context it receives.
func (r *Runner) callTarget(ctx context.Context, step *beam.Step, input any, state *beam.State, timeout time.Duration) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out any
		err error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{nil, &beam.InvocationError{StepID: step.ID, Cause: fmt.Errorf("panic: %v", p)}}
			}
		}()
		out, err := step.Target.Handle(cctx, input, state)
		if err != nil {
			err = &beam.InvocationError{StepID: step.ID, Cause: err}
		}
		ch <- result{out, err}
	}()

	select {
	case res := <-ch:
		return res.out, res.err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &beam.TimeoutError{StepID: step.ID, Budget: timeout}
		}
		return nil, &beam.InvocationError{StepID: step.ID, Cause: ctx.Err()}
	}
}

package beam

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a beam input or output rejected by the
// configured Validator. It is never retried.
type ValidationError struct {
	BeamID string
	Stage  string // "input" or "output"
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("beam %s: %s validation failed: %v", e.BeamID, e.Stage, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ResolutionError reports a parameter or reference that could not be
// resolved against the run state. It counts as a step failure and is
// subject to the step's retry and fallback policy.
type ResolutionError struct {
	Path   Ref
	Reason string
}

func (e *ResolutionError) Error() string {
	if len(e.Path) == 0 {
		return "unresolved reference: " + e.Reason
	}
	return fmt.Sprintf("unresolved reference %s: %s", strings.Join(e.Path, "."), e.Reason)
}

// TimeoutError reports a step attempt that exceeded its time budget.
type TimeoutError struct {
	StepID string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s: timed out after %s", e.StepID, e.Budget)
}

// InvocationError wraps an error returned (or panicked) by a step target.
type InvocationError struct {
	StepID string
	Cause  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// RetriesExhaustedError is the terminal failure of a step whose attempts
// are all spent and which has no fallback (or whose fallback did not
// recover it). Cause is the last attempt's error.
type RetriesExhaustedError struct {
	StepID   string
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("step %s: failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// NoMatchingBranchError reports a branch condition result with no matching
// case and no default. It is never retried.
type NoMatchingBranchError struct {
	Key string
}

func (e *NoMatchingBranchError) Error() string {
	return fmt.Sprintf("no branch case matches %q and no default is set", e.Key)
}

// FallbackStopError is a deliberate whole-run abort requested by a step's
// fallback. Reason carries the fallback's stop reason (or the recovered
// panic if the fallback itself faulted).
type FallbackStopError struct {
	StepID string
	Reason error
}

func (e *FallbackStopError) Error() string {
	return fmt.Sprintf("step %s: fallback stopped the run: %v", e.StepID, e.Reason)
}

func (e *FallbackStopError) Unwrap() error { return e.Reason }

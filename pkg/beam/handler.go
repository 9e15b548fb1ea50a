package beam

import (
	"context"
	"time"
)

// Prism is a callable unit of work invoked by a Step. Implementations
// receive the step's resolved input plus read access to the run state and
// return an output or an error. A panic inside Handle is recovered by the
// engine and treated as an error.
type Prism interface {
	Handle(ctx context.Context, input any, state *State) (any, error)
}

// PrismFunc adapts a plain function to the Prism interface.
type PrismFunc func(ctx context.Context, input any, state *State) (any, error)

func (f PrismFunc) Handle(ctx context.Context, input any, state *State) (any, error) {
	return f(ctx, input, state)
}

// Condition selects a branch case key from the run state. It is evaluated
// exactly once per Branch node, on the calling goroutine.
type Condition interface {
	Decide(ctx context.Context, state *State) (string, error)
}

// ConditionFunc adapts a plain function to the Condition interface.
type ConditionFunc func(ctx context.Context, state *State) (string, error)

func (f ConditionFunc) Decide(ctx context.Context, state *State) (string, error) {
	return f(ctx, state)
}

// RecoveryAction is what a Fallback decided to do about an exhausted step.
type RecoveryAction int

const (
	// RecoveryStop aborts the whole run. This is also the zero value, so a
	// zero Recovery is a stop with no substituted output.
	RecoveryStop RecoveryAction = iota

	// RecoveryContinue settles the step as completed with Recovery.Output.
	RecoveryContinue
)

// Recovery is a Fallback's verdict.
type Recovery struct {
	Action RecoveryAction
	Output any
	Reason error
}

// ContinueWith settles the failed step as completed with the given output;
// later steps referencing the step observe it.
func ContinueWith(output any) Recovery {
	return Recovery{Action: RecoveryContinue, Output: output}
}

// StopWith aborts the entire run with the given reason. In-flight sibling
// steps still settle, but no new steps start.
func StopWith(reason error) Recovery {
	return Recovery{Action: RecoveryStop, Reason: reason}
}

// Fallback is consulted once a step has exhausted its retries. A panic
// inside Handle is equivalent to StopWith the recovered error.
type Fallback interface {
	Handle(ctx context.Context, cause error, state *State) Recovery
}

// FallbackFunc adapts a plain function to the Fallback interface.
type FallbackFunc func(ctx context.Context, cause error, state *State) Recovery

func (f FallbackFunc) Handle(ctx context.Context, cause error, state *State) Recovery {
	return f(ctx, cause, state)
}

// Validator checks a value against an opaque schema. The engine only cares
// about pass/fail; schema semantics belong to the implementation.
type Validator interface {
	Validate(schema any, value any) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(schema any, value any) error

func (f ValidatorFunc) Validate(schema any, value any) error { return f(schema, value) }

// StepMetrics is the measurement emitted for steps with Track enabled.
type StepMetrics struct {
	Attempts int
	Duration time.Duration // total across attempts, backoff excluded
	Failed   bool
}

// Collector receives StepMetrics for tracked steps. The engine emits and
// never reads back.
type Collector interface {
	RecordStep(beamID, stepID string, m StepMetrics)
}

// CollectorFunc adapts a plain function to the Collector interface.
type CollectorFunc func(beamID, stepID string, m StepMetrics)

func (f CollectorFunc) RecordStep(beamID, stepID string, m StepMetrics) {
	f(beamID, stepID, m)
}

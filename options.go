package lux

import (
	"time"
)

// StepOption configures failure handling and bookkeeping for one step.
type StepOption func(*Options)

// WithTimeout bounds each attempt of the step's target call. Steps without
// an explicit timeout get beam.DefaultTimeout.
func WithTimeout(d time.Duration) StepOption {
	return func(o *Options) { o.Timeout = d }
}

// WithRetries allows n additional attempts after the first failure.
func WithRetries(n int) StepOption {
	return func(o *Options) { o.Retries = n }
}

// WithBackoff sets the delay before each retry. The delay is constant
// unless WithBackoffMultiplier raises it.
func WithBackoff(d time.Duration) StepOption {
	return func(o *Options) { o.RetryBackoff = d }
}

// WithBackoffMultiplier scales the retry delay after every failed attempt.
// Values <= 1 keep the delay constant.
func WithBackoffMultiplier(f float64) StepOption {
	return func(o *Options) { o.BackoffMultiplier = f }
}

// WithMaxBackoff caps an escalating retry delay.
func WithMaxBackoff(d time.Duration) StepOption {
	return func(o *Options) { o.MaxBackoff = d }
}

// WithDependencies orders this step after the named steps have settled.
// Only meaningful inside a parallel group; sequences already order their
// children.
func WithDependencies(stepIDs ...string) StepOption {
	return func(o *Options) { o.Dependencies = stepIDs }
}

// WithFallback consults fb once the step has exhausted its retries.
func WithFallback(fb Fallback) StepOption {
	return func(o *Options) { o.Fallback = fb }
}

// WithTrack emits StepMetrics for this step to the runner's Collector.
func WithTrack() StepOption {
	return func(o *Options) { o.Track = true }
}

// WithStoreIO retains the step's resolved input and output on its log
// entries. Off by default to keep archived logs small.
func WithStoreIO() StepOption {
	return func(o *Options) { o.StoreIO = true }
}

package lux

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/SanchayPahalwani/lux/internal/compiler"
	"github.com/SanchayPahalwani/lux/internal/engine"
	"github.com/SanchayPahalwani/lux/internal/trace"
	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// Re-export key types so users don't need to dig into pkg/beam.

type (
	Beam     = beam.Beam
	Node     = beam.Node
	Step     = beam.Step
	Sequence = beam.Sequence
	Parallel = beam.Parallel
	Branch   = beam.Branch
	Options  = beam.Options

	Prism         = beam.Prism
	PrismFunc     = beam.PrismFunc
	Condition     = beam.Condition
	ConditionFunc = beam.ConditionFunc
	Fallback      = beam.Fallback
	FallbackFunc  = beam.FallbackFunc
	Recovery      = beam.Recovery
	Validator     = beam.Validator
	ValidatorFunc = beam.ValidatorFunc
	Collector     = beam.Collector
	CollectorFunc = beam.CollectorFunc
	StepMetrics   = beam.StepMetrics

	Status       = beam.Status
	Outcome      = beam.Outcome
	Result       = beam.Result
	ExecutionLog = beam.ExecutionLog
	StepEntry    = beam.StepEntry
	State        = beam.State
	Ref          = beam.Ref
	Registry     = beam.Registry

	Observer             = beam.Observer
	NoopObserver         = beam.NoopObserver
	CompositeObserver    = beam.CompositeObserver
	LoggingObserver      = beam.LoggingObserver
	BasicMetrics         = beam.BasicMetrics
	BasicMetricsSnapshot = beam.BasicMetricsSnapshot
)

// Re-export common helpers.

var (
	NewRegistry          = beam.NewRegistry
	NewCompositeObserver = beam.NewCompositeObserver
	NewLoggingObserver   = beam.NewLoggingObserver

	ContinueWith = beam.ContinueWith
	StopWith     = beam.StopWith

	Input      = beam.Input
	StepOutput = beam.StepOutput
)

// Re-export status values for convenience.

const (
	StatusCompleted = beam.StatusCompleted
	StatusFailed    = beam.StatusFailed
	StatusSkipped   = beam.StatusSkipped
)

// Runner executes beams. Construct one with NewRunner and reuse it; it is
// safe for concurrent use.
type Runner struct {
	eng *engine.Runner
}

// Option configures a Runner.
type Option func(*engine.Config)

// WithObserver wires an observer into every run of the runner.
func WithObserver(obs Observer) Option {
	return func(cfg *engine.Config) { cfg.Observer = obs }
}

// WithLogger sets the logger for the runner's own diagnostics, such as
// archive failures.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engine.Config) { cfg.Logger = l }
}

// WithValidator wires schema validation for run inputs and outputs. Beams
// without schemas are unaffected.
func WithValidator(v Validator) Option {
	return func(cfg *engine.Config) { cfg.Validator = v }
}

// WithCollector wires per-step metrics collection for tracked steps.
func WithCollector(c Collector) Option {
	return func(cfg *engine.Config) { cfg.Collector = c }
}

// WithArchive wires a destination for finished execution logs. Archiving
// is best-effort and never fails a run.
func WithArchive(a Archive) Option {
	return func(cfg *engine.Config) { cfg.Archive = a }
}

// WithStartedBy attributes the runner's execution logs to the given name.
func WithStartedBy(name string) Option {
	return func(cfg *engine.Config) { cfg.StartedBy = name }
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...Option) *Runner {
	var cfg engine.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{eng: engine.New(cfg)}
}

// Run executes the beam to completion. The returned error is non-nil
// exactly when the result status is failed; the result's execution log is
// populated in either case.
func (r *Runner) Run(ctx context.Context, b *Beam, input any) (*Result, error) {
	return r.eng.Run(ctx, b, input)
}

// Run executes the beam with a default Runner. Convenience for tests and
// one-off runs.
func Run(ctx context.Context, b *Beam, input any) (*Result, error) {
	return NewRunner().Run(ctx, b, input)
}

// Compile parses a YAML beam manifest, resolving step targets, branch
// conditions and fallbacks by name through the registry.
func Compile(src []byte, reg *Registry) (*Beam, error) {
	return compiler.Compile(src, reg)
}

// Archives
// These wrap the internal trace package so external callers never need to
// import internal packages.

type (
	// Archive receives finished execution logs.
	Archive = engine.Archive

	// RunArchive is an Archive that can also be queried for past runs.
	RunArchive = trace.Store

	// RunFilter narrows RunArchive listings.
	RunFilter = trace.RunFilter
)

// ErrRunNotFound is returned by a RunArchive when a run id is absent.
var ErrRunNotFound = trace.ErrRunNotFound

// NewMemoryArchive returns an in-memory RunArchive, best for tests and
// development.
func NewMemoryArchive() RunArchive {
	return trace.NewMemoryStore()
}

// NewSQLiteArchive returns a RunArchive backed by the given SQLite
// database, initializing its schema. The caller imports the driver, e.g.
// modernc.org/sqlite.
func NewSQLiteArchive(db *sql.DB) (RunArchive, error) {
	return trace.NewSQLiteStore(db)
}

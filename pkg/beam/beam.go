package beam

import (
	"fmt"
	"time"
)

// Default step options, applied by Options.withDefaults.
const (
	DefaultTimeout      = 5 * time.Minute
	DefaultRetryBackoff = time.Second
)

// Beam is a compiled, immutable workflow graph. Build it once (directly or
// via the lux builder / compiler package) and share it freely: concurrent
// runs only ever read it.
type Beam struct {
	// ID names the beam in logs and archives.
	ID string

	// InputSchema and OutputSchema are opaque to the engine; they are handed
	// to the configured Validator before and after a run. Nil disables the
	// corresponding validation.
	InputSchema  any
	OutputSchema any

	// Root is the top of the execution graph.
	Root Node
}

// Node is one vertex of the execution graph: a *Step, *Sequence, *Parallel
// or *Branch. The interface is sealed; the engine switches on the concrete
// type.
type Node interface {
	node()
}

// Step is the leaf unit of work: it invokes one Prism with resolved params.
type Step struct {
	ID     string
	Target Prism
	Params map[string]any
	Opts   Options
}

// Sequence runs its children in order; each child sees the outcomes of all
// earlier children in the run state.
type Sequence struct {
	Children []Node
}

// Parallel starts every child concurrently and joins once all of them have
// settled. Siblings are never cancelled when one fails.
type Parallel struct {
	Children []Node
}

// Branch evaluates Condition exactly once and executes the matching case
// subgraph. Default, if non-nil, catches any unlisted key.
type Branch struct {
	Condition Condition
	Cases     map[string]Node
	Default   Node
}

func (*Step) node()     {}
func (*Sequence) node() {}
func (*Parallel) node() {}
func (*Branch) node()   {}

// Options configures failure handling and bookkeeping for a single step.
// The zero value means: 5 minute timeout, no retries, 1s constant backoff,
// no dependencies, no fallback, IO not retained.
type Options struct {
	// Timeout bounds one attempt of the target call. <= 0 means DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first failure.
	Retries int

	// RetryBackoff is the delay before each retry. <= 0 means
	// DefaultRetryBackoff.
	RetryBackoff time.Duration

	// BackoffMultiplier scales the delay after every failed attempt.
	// Values <= 1 keep the delay constant.
	BackoffMultiplier float64

	// MaxBackoff caps an escalating delay. <= 0 means no cap.
	MaxBackoff time.Duration

	// Dependencies lists step ids that must have settled before this step
	// may start. The scheduler treats them as hard ordering constraints,
	// which matters inside a Parallel group.
	Dependencies []string

	// Fallback, if set, is consulted after retries are exhausted.
	Fallback Fallback

	// Track enables per-step metrics emission to the configured Collector.
	Track bool

	// StoreIO retains resolved input and output on the step's log entries.
	StoreIO bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = 1.0
	}
	return o
}

// Normalized returns the options with defaults applied. The engine calls
// this once per step invocation so definitions stay as-authored.
func (o Options) Normalized() Options { return o.withDefaults() }

// Validate checks structural invariants of the definition: a root, unique
// non-empty step ids across the whole tree, a target for every step, and a
// condition plus at least one reachable case for every branch.
func (b *Beam) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("beam: id is required")
	}
	if b.Root == nil {
		return fmt.Errorf("beam %s: root node is required", b.ID)
	}
	seen := make(map[string]struct{})
	return validateNode(b.ID, b.Root, seen)
}

func validateNode(beamID string, n Node, seen map[string]struct{}) error {
	switch v := n.(type) {
	case *Step:
		if v.ID == "" {
			return fmt.Errorf("beam %s: step with empty id", beamID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("beam %s: duplicate step id %q", beamID, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Target == nil {
			return fmt.Errorf("beam %s: step %q has no target", beamID, v.ID)
		}
	case *Sequence:
		for _, c := range v.Children {
			if err := validateNode(beamID, c, seen); err != nil {
				return err
			}
		}
	case *Parallel:
		for _, c := range v.Children {
			if err := validateNode(beamID, c, seen); err != nil {
				return err
			}
		}
	case *Branch:
		if v.Condition == nil {
			return fmt.Errorf("beam %s: branch without condition", beamID)
		}
		if len(v.Cases) == 0 && v.Default == nil {
			return fmt.Errorf("beam %s: branch with no cases and no default", beamID)
		}
		for key, c := range v.Cases {
			if c == nil {
				return fmt.Errorf("beam %s: branch case %q is nil", beamID, key)
			}
			if err := validateNode(beamID, c, seen); err != nil {
				return err
			}
		}
		if v.Default != nil {
			if err := validateNode(beamID, v.Default, seen); err != nil {
				return err
			}
		}
	case nil:
		return fmt.Errorf("beam %s: nil node in graph", beamID)
	default:
		return fmt.Errorf("beam %s: unknown node type %T", beamID, n)
	}
	return nil
}

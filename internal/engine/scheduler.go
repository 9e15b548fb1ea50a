package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// runNode executes one graph node and returns its terminal outcome.
// Sequence and Branch nodes run on the calling goroutine; Parallel fans
// each child out onto its own goroutine and joins them all.
func (r *Runner) runNode(ctx context.Context, n beam.Node, rs *runState) beam.Outcome {
	// Once a fallback has stopped the run, nothing new starts. In-flight
	// steps keep running until they settle on their own.
	if stopErr, stopped := rs.stopRequested(); stopped {
		return beam.Failed(stopErr)
	}

	switch v := n.(type) {
	case *beam.Step:
		return r.invoke(ctx, v, rs)
	case *beam.Sequence:
		return r.runSequence(ctx, v, rs)
	case *beam.Parallel:
		return r.runParallel(ctx, v, rs)
	case *beam.Branch:
		return r.runBranch(ctx, v, rs)
	default:
		return beam.Failed(fmt.Errorf("engine: unknown node type %T", n))
	}
}

// runSequence executes children in order and aborts on the first failure;
// later siblings are never started. An empty sequence is the identity:
// it completes with the beam input.
func (r *Runner) runSequence(ctx context.Context, seq *beam.Sequence, rs *runState) beam.Outcome {
	out := beam.Completed(rs.state.Input())
	for _, child := range seq.Children {
		out = r.runNode(ctx, child, rs)
		if out.Status == beam.StatusFailed {
			return out
		}
	}
	return out
}

// runParallel starts every child concurrently and joins once all of them
// have settled. There is no cancellation of siblings when one fails: every
// branch runs to its own terminal state, and only then is the group's
// outcome computed. If several children failed, the first failure by
// settlement order wins.
func (r *Runner) runParallel(ctx context.Context, par *beam.Parallel, rs *runState) beam.Outcome {
	n := len(par.Children)
	if n == 0 {
		return beam.Completed([]any{})
	}

	outcomes := make([]beam.Outcome, n)
	settleOrder := make([]int64, n)
	var settleSeq atomic.Int64

	var wg sync.WaitGroup
	wg.Add(n)
	for i, child := range par.Children {
		go func(i int, child beam.Node) {
			defer wg.Done()
			outcomes[i] = r.runNode(ctx, child, rs)
			settleOrder[i] = settleSeq.Add(1)
		}(i, child)
	}
	wg.Wait()

	firstFailed := -1
	outputs := make([]any, n)
	for i, out := range outcomes {
		outputs[i] = out.Output
		if out.Status != beam.StatusFailed {
			continue
		}
		if firstFailed < 0 || settleOrder[i] < settleOrder[firstFailed] {
			firstFailed = i
		}
	}
	if firstFailed >= 0 {
		return beam.Failed(outcomes[firstFailed].Err)
	}
	return beam.Completed(outputs)
}

// runBranch evaluates the condition exactly once, synchronously, and
// executes the selected case subgraph. Unselected cases never run; their
// steps stay absent from the run state. A key with no case and no default
// fails the node with NoMatchingBranchError, which is never retried.
func (r *Runner) runBranch(ctx context.Context, br *beam.Branch, rs *runState) beam.Outcome {
	key, err := decide(ctx, br.Condition, rs.state)
	if err != nil {
		return beam.Failed(err)
	}

	child, ok := br.Cases[key]
	if !ok {
		child = br.Default
	}
	if child == nil {
		return beam.Failed(&beam.NoMatchingBranchError{Key: key})
	}
	return r.runNode(ctx, child, rs)
}

// decide evaluates a branch condition, converting a panic into an error.
func decide(ctx context.Context, cond beam.Condition, state *beam.State) (key string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine: branch condition panicked: %v", p)
		}
	}()
	return cond.Decide(ctx, state)
}

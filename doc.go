// Package lux provides a lightweight, embeddable beam execution engine
// for Go.
//
// A beam is a compiled graph of steps with explicit control flow: sequences
// run children in order and abort on the first failure, parallels run all
// children to completion, and branches pick one child from the verdict of a
// condition. Steps reference run input and earlier step outputs through
// symbolic references resolved at invocation time, and each run produces a
// settlement-ordered execution log.
//
// # Core Concepts
//
//  1. Beam
//  2. Runner
//  3. BeamBuilder
//  4. Prism
//  5. Agent
//
// # Beam
//
// A Beam is an immutable graph of nodes built once and run many times.
// Each step carries its own failure policy: a time budget, retries with
// constant or escalating backoff, explicit dependencies on sibling steps,
// and an optional fallback consulted when retries are spent. A fallback
// either substitutes an output and lets the run continue, or stops the
// whole run.
//
// Beams are built in code with BeamBuilder or compiled from YAML manifests
// with Compile, which resolves step targets by name through a Registry.
//
// # Runner
//
// A Runner executes beams. It is stateless between runs and safe for
// concurrent use; per-run state (step outcomes, the execution log) lives in
// the run itself. Runners are configured with functional options:
//
//	runner := lux.NewRunner(
//	    lux.WithObserver(lux.NewLoggingObserver(logger)),
//	    lux.WithArchive(archive),
//	)
//	res, err := runner.Run(ctx, b, input)
//
// The result carries the run's execution log, one entry per step attempt,
// ordered by settlement. Runs can be archived to an in-memory or SQLite
// store for later inspection.
//
// # BeamBuilder
//
// BeamBuilder is the fluent API for defining beams in code:
//
//	b, err := lux.NewBeam("enrich-order").
//	    Step("load", loadOrder, map[string]any{"id": lux.Input("order_id")}).
//	    Parallel(
//	        lux.StepNode("tax", computeTax, map[string]any{"order": lux.StepOutput("load")}),
//	        lux.StepNode("ship", quoteShipping, map[string]any{"order": lux.StepOutput("load")},
//	            lux.WithRetries(2), lux.WithFallback(defaultQuote)),
//	    ).
//	    Step("save", saveOrder, nil).
//	    Build()
//
// # Prism
//
// A Prism is the executable unit of a beam:
//
//	type Prism interface {
//	    Handle(ctx context.Context, input any, state *State) (any, error)
//	}
//
// Prisms receive their resolved parameters as input and may read settled
// step outcomes from the run state. They should honor ctx: a step whose
// time budget expires is settled as timed out whether or not the prism
// returns.
//
// # Agent
//
// An Agent owns a Runner attributed to a named operator and serves runs
// from a mailbox; a Hub dispatches runs to available agents by capability.
// Agents suit services that execute beams on behalf of distinct tenants or
// roles and want per-operator attribution in the archived logs.
//
// For examples, see the /examples directory.
package lux

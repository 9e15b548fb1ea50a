package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

func TestRetriesAppendOneEntryPerAttempt(t *testing.T) {
	b := testBeam("flaky", &beam.Step{
		ID:     "charge",
		Target: failPrism("gateway unavailable"),
		Opts:   beam.Options{Retries: 2, RetryBackoff: time.Millisecond},
	})

	res, err := run(t, Config{}, b, nil)
	if err == nil {
		t.Fatal("expected run failure")
	}

	entries := entriesFor(res.Log, "charge")
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want retries+1 = 3", len(entries))
	}
	for i, e := range entries {
		if e.Attempt != i+1 {
			t.Errorf("entry %d attempt = %d, want %d", i, e.Attempt, i+1)
		}
		if e.Status != beam.StatusFailed {
			t.Errorf("entry %d status = %s, want failed", i, e.Status)
		}
	}

	var exhausted *beam.RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", exhausted.Attempts)
	}
	var ierr *beam.InvocationError
	if !errors.As(err, &ierr) {
		t.Fatalf("cause chain missing InvocationError: %v", err)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	transient := beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("still warming up")
		}
		return "ready", nil
	})

	b := testBeam("warmup", &beam.Step{
		ID:     "probe",
		Target: transient,
		Opts:   beam.Options{Retries: 5, RetryBackoff: time.Millisecond},
	})

	res, err := run(t, Config{}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output != "ready" {
		t.Fatalf("output = %v", res.Output)
	}

	entries := entriesFor(res.Log, "probe")
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (two failed, one completed)", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Status != beam.StatusCompleted || last.Attempt != 3 {
		t.Fatalf("final entry = %+v", last)
	}
}

func TestParamsAreResolvedPerAttempt(t *testing.T) {
	// The referenced field only resolves once "seed" has settled; a step in a
	// parallel group with a dependency proves resolution happens at attempt
	// time, not at graph build time.
	b := testBeam("late-binding", &beam.Parallel{Children: []beam.Node{
		step("seed", slowPrism(map[string]any{"token": "t-1"}, 20*time.Millisecond)),
		&beam.Step{
			ID:     "use",
			Target: echoPrism(),
			Params: map[string]any{"token": beam.StepOutput("seed", "token")},
			Opts:   beam.Options{Dependencies: []string{"seed"}},
		},
	}})

	res, err := run(t, Config{}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	outputs := res.Output.([]any)
	used := outputs[1].(map[string]any)
	if used["token"] != "t-1" {
		t.Fatalf("resolved token = %v", used["token"])
	}
}

func TestUnresolvableParamsFailTheStep(t *testing.T) {
	b := testBeam("dangling", &beam.Step{
		ID:     "use",
		Target: echoPrism(),
		Params: map[string]any{"v": beam.StepOutput("never-ran")},
	})

	_, err := run(t, Config{}, b, nil)
	var rerr *beam.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want a ResolutionError in the chain", err)
	}
}

func TestStepTimeout(t *testing.T) {
	stuck := beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		time.Sleep(150 * time.Millisecond) // deliberately ignores ctx
		return "too late", nil
	})

	b := testBeam("slow-call", &beam.Step{
		ID:     "stuck",
		Target: stuck,
		Opts:   beam.Options{Timeout: 30 * time.Millisecond},
	})

	start := time.Now()
	_, err := run(t, Config{}, b, nil)
	elapsed := time.Since(start)

	var terr *beam.TimeoutError
	if !errors.As(err, &terr) || terr.StepID != "stuck" {
		t.Fatalf("err = %v, want TimeoutError for stuck", err)
	}
	if elapsed > 120*time.Millisecond {
		t.Fatalf("run waited %v; should settle at the budget, not the call", elapsed)
	}
}

func TestPrismPanicIsInvocationError(t *testing.T) {
	b := testBeam("panicky", &beam.Step{
		ID: "boom",
		Target: beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
			panic("nil map write")
		}),
	})

	_, err := run(t, Config{}, b, nil)
	var ierr *beam.InvocationError
	if !errors.As(err, &ierr) || ierr.StepID != "boom" {
		t.Fatalf("err = %v", err)
	}
}

func TestFallbackContinueRecoversStep(t *testing.T) {
	var seenCause error
	fallback := beam.FallbackFunc(func(ctx context.Context, cause error, state *beam.State) beam.Recovery {
		seenCause = cause
		return beam.ContinueWith(map[string]any{"rate": 0.0})
	})

	b := testBeam("quotes", &beam.Sequence{Children: []beam.Node{
		&beam.Step{
			ID:     "quote",
			Target: failPrism("carrier down"),
			Opts:   beam.Options{Retries: 1, RetryBackoff: time.Millisecond, Fallback: fallback},
		},
		&beam.Step{
			ID:     "apply",
			Target: echoPrism(),
			Params: map[string]any{"rate": beam.StepOutput("quote", "rate")},
		},
	}})

	res, err := run(t, Config{}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Later steps observe the substituted output.
	applied := res.Output.(map[string]any)
	if applied["rate"] != 0.0 {
		t.Fatalf("applied rate = %v", applied["rate"])
	}

	if seenCause == nil {
		t.Fatal("fallback did not receive the terminal cause")
	}

	// Two failed attempts plus the recovery entry.
	entries := entriesFor(res.Log, "quote")
	if len(entries) != 3 {
		t.Fatalf("quote entries = %d, want 3", len(entries))
	}
	recovery := entries[2]
	if recovery.Attempt != 0 || recovery.Status != beam.StatusCompleted {
		t.Fatalf("recovery entry = %+v", recovery)
	}
}

func TestFallbackStopAbortsRun(t *testing.T) {
	stop := beam.FallbackFunc(func(ctx context.Context, cause error, state *beam.State) beam.Recovery {
		return beam.StopWith(errors.New("ledger unavailable, refusing partial work"))
	})

	// The failing step waits a beat so the sibling is certainly in flight
	// when the stop is raised.
	ledger := beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, errors.New("ledger down")
	})

	var lateRan atomic.Bool
	b := testBeam("settlement", &beam.Sequence{Children: []beam.Node{
		&beam.Parallel{Children: []beam.Node{
			&beam.Step{
				ID:     "post-ledger",
				Target: ledger,
				Opts:   beam.Options{Fallback: stop},
			},
			step("notify", slowPrism("notified", 40*time.Millisecond)),
		}},
		step("late", beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
			lateRan.Store(true)
			return nil, nil
		})),
	}})

	res, err := run(t, Config{}, b, nil)
	var stopErr *beam.FallbackStopError
	if !errors.As(err, &stopErr) || stopErr.StepID != "post-ledger" {
		t.Fatalf("err = %v, want FallbackStopError for post-ledger", err)
	}

	// The in-flight sibling still settled.
	notify := entriesFor(res.Log, "notify")
	if len(notify) != 1 || notify[0].Status != beam.StatusCompleted {
		t.Fatalf("notify entries = %+v", notify)
	}

	// Nothing new started after the stop.
	if lateRan.Load() {
		t.Fatal("step after the stop was started")
	}
	if len(entriesFor(res.Log, "late")) != 0 {
		t.Fatal("unstarted step has log entries")
	}
}

func TestFallbackPanicStopsRun(t *testing.T) {
	bad := beam.FallbackFunc(func(ctx context.Context, cause error, state *beam.State) beam.Recovery {
		panic("fallback bug")
	})

	b := testBeam("fragile", &beam.Step{
		ID:     "work",
		Target: failPrism("boom"),
		Opts:   beam.Options{Fallback: bad},
	})

	_, err := run(t, Config{}, b, nil)
	var stopErr *beam.FallbackStopError
	if !errors.As(err, &stopErr) {
		t.Fatalf("err = %v, want FallbackStopError from the panicking fallback", err)
	}
}

func TestStepIndicesFollowSettlementOrder(t *testing.T) {
	b := testBeam("indices", &beam.Parallel{Children: []beam.Node{
		step("slow", slowPrism("s", 60*time.Millisecond)),
		step("fast", constPrism("f")),
	}})

	res, err := run(t, Config{}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fast := entriesFor(res.Log, "fast")[0]
	slow := entriesFor(res.Log, "slow")[0]
	if fast.StepIndex >= slow.StepIndex {
		t.Fatalf("fast index %d should precede slow index %d", fast.StepIndex, slow.StepIndex)
	}

	// Indices are dense over the whole log.
	for i, e := range res.Log.Entries {
		if e.StepIndex != i {
			t.Fatalf("entry %d has index %d", i, e.StepIndex)
		}
	}
}

func TestDependenciesOrderParallelSiblings(t *testing.T) {
	b := testBeam("ordered", &beam.Parallel{Children: []beam.Node{
		step("first", slowPrism("f", 30*time.Millisecond)),
		&beam.Step{
			ID:     "second",
			Target: constPrism("s"),
			Opts:   beam.Options{Dependencies: []string{"first"}},
		},
	}})

	res, err := run(t, Config{}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	first := entriesFor(res.Log, "first")[0]
	second := entriesFor(res.Log, "second")[0]
	if second.StepIndex <= first.StepIndex {
		t.Fatalf("dependent settled at %d, dependency at %d", second.StepIndex, first.StepIndex)
	}
}

func TestStoreIORetainsInputAndOutput(t *testing.T) {
	b := testBeam("audited", &beam.Sequence{Children: []beam.Node{
		&beam.Step{
			ID:     "kept",
			Target: echoPrism(),
			Params: map[string]any{"k": "v"},
			Opts:   beam.Options{StoreIO: true},
		},
		step("dropped", echoPrism()),
	}})

	res, err := run(t, Config{}, b, map[string]any{"caller": "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	kept := entriesFor(res.Log, "kept")[0]
	if kept.Input == nil || kept.Output == nil {
		t.Fatalf("kept entry lost IO: %+v", kept)
	}
	dropped := entriesFor(res.Log, "dropped")[0]
	if dropped.Input != nil || dropped.Output != nil {
		t.Fatalf("dropped entry retained IO: %+v", dropped)
	}
}

func TestNextBackoffEscalation(t *testing.T) {
	cases := []struct {
		name    string
		current time.Duration
		opts    beam.Options
		want    time.Duration
	}{
		{"constant by default", time.Second, beam.Options{BackoffMultiplier: 1}, time.Second},
		{"doubles", time.Second, beam.Options{BackoffMultiplier: 2}, 2 * time.Second},
		{"capped", 3 * time.Second, beam.Options{BackoffMultiplier: 2, MaxBackoff: 4 * time.Second}, 4 * time.Second},
		{"under cap", time.Second, beam.Options{BackoffMultiplier: 1.5, MaxBackoff: 10 * time.Second}, 1500 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextBackoff(tc.current, tc.opts); got != tc.want {
				t.Fatalf("nextBackoff = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSleepBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepBackoff(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if err := sleepBackoff(ctx, 0); err != nil {
		t.Fatalf("zero backoff should not consult ctx, got %v", err)
	}
}

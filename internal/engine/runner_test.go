package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// Shared test helpers for the engine suite.

func constPrism(out any) beam.Prism {
	return beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		return out, nil
	})
}

func echoPrism() beam.Prism {
	return beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		return input, nil
	})
}

func failPrism(msg string) beam.Prism {
	return beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		return nil, errors.New(msg)
	})
}

func slowPrism(out any, d time.Duration) beam.Prism {
	return beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		select {
		case <-time.After(d):
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func step(id string, target beam.Prism) *beam.Step {
	return &beam.Step{ID: id, Target: target}
}

func testBeam(id string, root beam.Node) *beam.Beam {
	return &beam.Beam{ID: id, Root: root}
}

func run(t *testing.T, cfg Config, b *beam.Beam, input any) (*beam.Result, error) {
	t.Helper()
	return New(cfg).Run(context.Background(), b, input)
}

// entriesFor filters the execution log down to one step id.
func entriesFor(log *beam.ExecutionLog, stepID string) []beam.StepEntry {
	var out []beam.StepEntry
	for _, e := range log.Entries {
		if e.StepID == stepID {
			out = append(out, e)
		}
	}
	return out
}

func TestEmptySequenceIsIdentity(t *testing.T) {
	b := testBeam("empty", &beam.Sequence{})

	res, err := run(t, Config{}, b, map[string]any{"passthrough": true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != beam.StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	out, ok := res.Output.(map[string]any)
	if !ok || out["passthrough"] != true {
		t.Fatalf("output = %v, want the input back", res.Output)
	}
	if len(res.Log.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(res.Log.Entries))
	}
}

func TestSequencePipesOutputsThroughRefs(t *testing.T) {
	load := beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		in := input.(map[string]any)
		return map[string]any{"order": map[string]any{"id": in["order_id"], "total": 120}}, nil
	})
	invoice := beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
		in := input.(map[string]any)
		return fmt.Sprintf("invoice for %v: %v", in["id"], in["total"]), nil
	})

	b := testBeam("invoicing", &beam.Sequence{Children: []beam.Node{
		step("load", load),
		&beam.Step{ID: "invoice", Target: invoice, Params: map[string]any{
			"id":    beam.StepOutput("load", "order", "id"),
			"total": beam.StepOutput("load", "order", "total"),
		}},
	}})

	res, err := run(t, Config{}, b, map[string]any{"order_id": "ord-9"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output != "invoice for ord-9: 120" {
		t.Fatalf("output = %v", res.Output)
	}
}

func TestRunRejectsInvalidDefinition(t *testing.T) {
	b := testBeam("broken", &beam.Step{ID: ""})

	res, err := run(t, Config{}, b, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if res.Status != beam.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Log == nil || res.Log.Status != beam.StatusFailed {
		t.Fatal("failed run must still carry a sealed log")
	}
}

func TestInputValidationShortCircuits(t *testing.T) {
	var stepRan bool
	b := &beam.Beam{
		ID:          "guarded",
		InputSchema: "require-amount",
		Root: step("work", beam.PrismFunc(func(ctx context.Context, input any, state *beam.State) (any, error) {
			stepRan = true
			return nil, nil
		})),
	}

	cfg := Config{Validator: beam.ValidatorFunc(func(schema, value any) error {
		return errors.New("amount missing")
	})}

	res, err := run(t, cfg, b, map[string]any{})
	var verr *beam.ValidationError
	if !errors.As(err, &verr) || verr.Stage != "input" {
		t.Fatalf("expected input ValidationError, got %v", err)
	}
	if stepRan {
		t.Fatal("step ran despite rejected input")
	}
	if len(res.Log.Entries) != 0 {
		t.Fatal("rejected run should have no step entries")
	}
}

func TestOutputValidationFailsRun(t *testing.T) {
	b := &beam.Beam{
		ID:           "guarded",
		OutputSchema: "require-receipt",
		Root:         step("work", constPrism("not-a-receipt")),
	}

	cfg := Config{Validator: beam.ValidatorFunc(func(schema, value any) error {
		if schema == "require-receipt" {
			return errors.New("no receipt")
		}
		return nil
	})}

	res, err := run(t, cfg, b, nil)
	var verr *beam.ValidationError
	if !errors.As(err, &verr) || verr.Stage != "output" {
		t.Fatalf("expected output ValidationError, got %v", err)
	}
	// The step itself completed; only the run is failed.
	entries := entriesFor(res.Log, "work")
	if len(entries) != 1 || entries[0].Status != beam.StatusCompleted {
		t.Fatalf("work entries = %+v", entries)
	}
}

func TestSchemalessBeamSkipsValidator(t *testing.T) {
	cfg := Config{Validator: beam.ValidatorFunc(func(schema, value any) error {
		return errors.New("should not be consulted")
	})}

	b := testBeam("free", step("work", constPrism("ok")))
	if _, err := run(t, cfg, b, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

type captureArchive struct {
	mu   sync.Mutex
	logs []*beam.ExecutionLog
	err  error
}

func (a *captureArchive) SaveRun(ctx context.Context, log *beam.ExecutionLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func TestRunsAreArchived(t *testing.T) {
	arch := &captureArchive{}
	b := testBeam("audited", step("work", constPrism("done")))

	res, err := run(t, Config{Archive: arch, StartedBy: "auditor"}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(arch.logs) != 1 {
		t.Fatalf("archived %d runs, want 1", len(arch.logs))
	}
	got := arch.logs[0]
	if got.RunID != res.Log.RunID || got.StartedBy != "auditor" {
		t.Fatalf("archived log = %+v", got)
	}
}

func TestArchiveFailureDoesNotFailRun(t *testing.T) {
	arch := &captureArchive{err: errors.New("disk full")}
	b := testBeam("audited", step("work", constPrism("done")))

	res, err := run(t, Config{Archive: arch}, b, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != beam.StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
}

type lifecycleObserver struct {
	beam.NoopObserver

	mu     sync.Mutex
	events []string
}

func (o *lifecycleObserver) OnRunStart(ctx context.Context, beamID, runID string) {
	o.record("run_start")
}

func (o *lifecycleObserver) OnRunEnd(ctx context.Context, res *beam.Result) {
	o.record("run_end:" + string(res.Status))
}

func (o *lifecycleObserver) OnStepStart(ctx context.Context, runID, stepID string, attempt int) {
	o.record(fmt.Sprintf("start:%s:%d", stepID, attempt))
}

func (o *lifecycleObserver) OnStepSettled(ctx context.Context, runID string, entry beam.StepEntry, d time.Duration) {
	o.record(fmt.Sprintf("settled:%s:%s", entry.StepID, entry.Status))
}

func (o *lifecycleObserver) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func TestObserverSeesRunLifecycle(t *testing.T) {
	obs := &lifecycleObserver{}
	b := testBeam("observed", &beam.Sequence{Children: []beam.Node{
		step("a", constPrism(1)),
		step("b", constPrism(2)),
	}})

	if _, err := run(t, Config{Observer: obs}, b, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"run_start",
		"start:a:1", "settled:a:completed",
		"start:b:1", "settled:b:completed",
		"run_end:completed",
	}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v", obs.events)
	}
	for i, ev := range want {
		if obs.events[i] != ev {
			t.Fatalf("event %d = %s, want %s (all: %v)", i, obs.events[i], ev, obs.events)
		}
	}
}

func TestCollectorReceivesTrackedSteps(t *testing.T) {
	var mu sync.Mutex
	recorded := make(map[string]beam.StepMetrics)
	collector := beam.CollectorFunc(func(beamID, stepID string, m beam.StepMetrics) {
		mu.Lock()
		defer mu.Unlock()
		recorded[stepID] = m
	})

	b := testBeam("metered", &beam.Sequence{Children: []beam.Node{
		&beam.Step{ID: "tracked", Target: constPrism("x"), Opts: beam.Options{Track: true}},
		step("untracked", constPrism("y")),
	}})

	if _, err := run(t, Config{Collector: collector}, b, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, ok := recorded["tracked"]
	if !ok || m.Attempts != 1 || m.Failed {
		t.Fatalf("tracked metrics = %+v, ok = %v", m, ok)
	}
	if _, ok := recorded["untracked"]; ok {
		t.Fatal("untracked step emitted metrics")
	}
}

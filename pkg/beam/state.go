package beam

import (
	"context"
	"sync"
)

// State is the mutable execution context of a single run: the caller input
// plus every settled step outcome, keyed by step id, in settlement order.
// It is owned by one run and shared between that run's goroutines; all
// writes go through Settle, which also wakes dependency waiters.
type State struct {
	input any

	mu       sync.RWMutex
	outcomes map[string]Outcome
	order    []string
	settled  map[string]chan struct{}
}

// NewState creates the run state for the given beam input.
func NewState(input any) *State {
	return &State{
		input:    input,
		outcomes: make(map[string]Outcome),
		settled:  make(map[string]chan struct{}),
	}
}

// Input returns the caller-supplied beam input.
func (s *State) Input() any { return s.input }

// Settle records a step's terminal outcome. A step settles at most once;
// settling the same id twice panics, since unique step ids are a validated
// beam invariant.
func (s *State) Settle(stepID string, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.outcomes[stepID]; dup {
		panic("beam: step " + stepID + " settled twice")
	}
	s.outcomes[stepID] = out
	s.order = append(s.order, stepID)
	if ch, ok := s.settled[stepID]; ok {
		close(ch)
	} else {
		ch = make(chan struct{})
		close(ch)
		s.settled[stepID] = ch
	}
}

// Outcome returns the settled outcome for a step id, if present.
func (s *State) Outcome(stepID string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outcomes[stepID]
	return out, ok
}

// SettledIDs returns the step ids in settlement order.
func (s *State) SettledIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

func (s *State) settledCh(stepID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.settled[stepID]
	if !ok {
		ch = make(chan struct{})
		if _, done := s.outcomes[stepID]; done {
			close(ch)
		}
		s.settled[stepID] = ch
	}
	return ch
}

// AwaitSettled blocks until every listed step id has settled or ctx is
// done. A dependency that can never settle (for example a step on an
// untaken branch) blocks until cancellation; declaring such a dependency
// is an authoring error.
func (s *State) AwaitSettled(ctx context.Context, stepIDs ...string) error {
	for _, id := range stepIDs {
		select {
		case <-s.settledCh(id):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

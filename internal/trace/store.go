// Package trace archives finished execution logs. Stores hold immutable
// audit records of past runs; nothing in the engine reads them back to
// resume work.
package trace

import (
	"context"
	"errors"
	"sync"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// ErrRunNotFound is returned when a run id is absent from a store.
var ErrRunNotFound = errors.New("trace: run not found")

// RunFilter narrows ListRuns results. Zero values mean "no filter" for
// that field.
type RunFilter struct {
	BeamID string
	Status beam.Status
}

// Store persists finished execution logs.
type Store interface {
	// SaveRun archives one finished run. Saving the same run id twice is
	// an error.
	SaveRun(ctx context.Context, log *beam.ExecutionLog) error

	// GetRun fetches an archived run by run id.
	GetRun(ctx context.Context, runID string) (*beam.ExecutionLog, error)

	// ListRuns returns archived runs matching the filter, in insertion
	// order.
	ListRuns(ctx context.Context, filter RunFilter) ([]*beam.ExecutionLog, error)
}

// MemoryStore is an in-memory Store, best for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*beam.ExecutionLog
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*beam.ExecutionLog)}
}

func (s *MemoryStore) SaveRun(ctx context.Context, log *beam.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[log.RunID]; dup {
		return errors.New("trace: run " + log.RunID + " already archived")
	}
	s.byID[log.RunID] = log
	s.order = append(s.order, log.RunID)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*beam.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.byID[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return log, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*beam.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*beam.ExecutionLog
	for _, id := range s.order {
		log := s.byID[id]
		if filter.BeamID != "" && log.BeamID != filter.BeamID {
			continue
		}
		if filter.Status != "" && log.Status != filter.Status {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

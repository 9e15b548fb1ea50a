package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// Status is an agent's availability as seen by a Hub.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
)

// ErrNoAgentAvailable is returned by Dispatch when no registered available
// agent carries the requested capability.
var ErrNoAgentAvailable = errors.New("agent: no available agent for capability")

// Hub groups agents and dispatches runs to them by capability. An agent is
// busy for the duration of a dispatched run and is skipped by further
// dispatches until it settles.
type Hub struct {
	mu     sync.Mutex
	agents map[string]*Agent
	status map[string]Status
	order  []string
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		agents: make(map[string]*Agent),
		status: make(map[string]Status),
	}
}

// Register adds an agent to the hub as available. Registering the same id
// twice is an error.
func (h *Hub) Register(a *Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.agents[a.ID()]; dup {
		return fmt.Errorf("agent: %s already registered", a.ID())
	}
	h.agents[a.ID()] = a
	h.status[a.ID()] = StatusAvailable
	h.order = append(h.order, a.ID())
	return nil
}

// Get returns a registered agent by id.
func (h *Hub) Get(id string) (*Agent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[id]
	return a, ok
}

// Status returns the hub's view of an agent's availability.
func (h *Hub) Status(id string) (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.status[id]
	return s, ok
}

// FindByCapability returns the ids of available agents carrying the given
// capability, in registration order. Busy agents are excluded.
func (h *Hub) FindByCapability(capability string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for _, id := range h.order {
		if h.status[id] == StatusAvailable && h.agents[id].CanHandle(capability) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Dispatch runs the beam on the first available agent carrying the given
// capability, in registration order. The agent is busy until the run
// settles.
func (h *Hub) Dispatch(ctx context.Context, capability string, b *beam.Beam, input any) (*beam.Result, error) {
	a, err := h.acquire(capability)
	if err != nil {
		return nil, err
	}
	defer h.release(a.ID())
	return a.Run(ctx, b, input)
}

func (h *Hub) acquire(capability string) (*Agent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		if h.status[id] != StatusAvailable {
			continue
		}
		a := h.agents[id]
		if !a.CanHandle(capability) {
			continue
		}
		h.status[id] = StatusBusy
		return a, nil
	}
	return nil, ErrNoAgentAvailable
}

func (h *Hub) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.status[id]; ok {
		h.status[id] = StatusAvailable
	}
}

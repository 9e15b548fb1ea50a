package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/SanchayPahalwani/lux/internal/engine"
	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// ErrNotStarted is returned by Run when the agent's mailbox loop is not
// running.
var ErrNotStarted = errors.New("agent: not started")

const mailboxSize = 16

type runRequest struct {
	beam  *beam.Beam
	input any
	reply chan runReply
}

type runReply struct {
	result *beam.Result
	err    error
}

// Agent executes beams on behalf of a named operator. Runs are served one
// at a time from a mailbox by a background goroutine, and every execution
// log the agent produces carries the agent's id as its initiator.
type Agent struct {
	id           string
	capabilities []string
	runner       *engine.Runner
	mailbox      chan runRequest

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates an Agent with the given id and capability tags. An empty id
// gets a generated one. The runner is built from cfg with the initiator
// forced to the agent's id.
func New(id string, cfg engine.Config, capabilities ...string) *Agent {
	if id == "" {
		id = "agent-" + uuid.NewString()
	}
	cfg.StartedBy = id
	return &Agent{
		id:           id,
		capabilities: capabilities,
		runner:       engine.New(cfg),
		mailbox:      make(chan runRequest, mailboxSize),
	}
}

// ID returns the agent's id.
func (a *Agent) ID() string { return a.id }

// Capabilities returns a copy of the agent's capability tags.
func (a *Agent) Capabilities() []string {
	out := make([]string, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// CanHandle reports whether the agent carries the given capability tag.
func (a *Agent) CanHandle(capability string) bool {
	for _, c := range a.capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Start launches the mailbox loop. Calling Start on a running agent is an
// error.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return errors.New("agent: " + a.id + " already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-a.mailbox:
				res, err := a.runner.Run(ctx, req.beam, req.input)
				req.reply <- runReply{result: res, err: err}
			}
		}
	}()
	return nil
}

// Stop cancels the mailbox loop and waits for it to exit. Requests still
// queued in the mailbox are abandoned; their callers unblock through their
// own contexts.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	a.running = false
	a.cancel = nil
	a.mu.Unlock()

	cancel()
	a.wg.Wait()
}

// Run submits a beam to the agent's mailbox and blocks until the run
// settles or ctx is cancelled.
func (a *Agent) Run(ctx context.Context, b *beam.Beam, input any) (*beam.Result, error) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		return nil, ErrNotStarted
	}

	reply := make(chan runReply, 1)
	select {
	case a.mailbox <- runRequest{beam: b, input: input, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Package agent runs beams on behalf of named operators.
//
// An Agent owns a single engine runner whose execution logs are attributed
// to the agent's id, and serves run requests from a mailbox processed by a
// background goroutine. A Hub groups agents, tracks which of them are busy,
// and dispatches runs to an available agent by capability.
//
// Typical usage:
//
//	a := agent.New("billing-1", engine.Config{}, "billing")
//	_ = a.Start(ctx)
//	defer a.Stop()
//
//	hub := agent.NewHub()
//	_ = hub.Register(a)
//	res, err := hub.Dispatch(ctx, "billing", b, input)
package agent

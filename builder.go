package lux

import (
	"fmt"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

// BeamBuilder provides a fluent API for defining beams:
//
//	b, err := lux.NewBeam("enrich-order").
//	    Step("load", loadOrder, map[string]any{"id": lux.Input("order_id")}).
//	    Parallel(
//	        lux.StepNode("tax", computeTax, nil),
//	        lux.StepNode("ship", quoteShipping, nil, lux.WithRetries(2)),
//	    ).
//	    Step("save", saveOrder, nil).
//	    Build()
//
// Top-level calls append nodes to the beam's root sequence; StepNode, Seq,
// Par and Switch build nodes for nesting.
type BeamBuilder struct {
	id           string
	inputSchema  any
	outputSchema any
	nodes        []beam.Node
}

// NewBeam creates a new beam builder with the given id.
func NewBeam(id string) *BeamBuilder {
	return &BeamBuilder{id: id}
}

// ID returns the beam id.
func (b *BeamBuilder) ID() string {
	return b.id
}

// InputSchema attaches an input schema, handed to the runner's Validator
// before each run.
func (b *BeamBuilder) InputSchema(schema any) *BeamBuilder {
	b.inputSchema = schema
	return b
}

// OutputSchema attaches an output schema, handed to the runner's Validator
// after each successful run.
func (b *BeamBuilder) OutputSchema(schema any) *BeamBuilder {
	b.outputSchema = schema
	return b
}

// Step appends a step to the root sequence.
func (b *BeamBuilder) Step(id string, target Prism, params map[string]any, opts ...StepOption) *BeamBuilder {
	b.nodes = append(b.nodes, StepNode(id, target, params, opts...))
	return b
}

// Parallel appends a parallel group to the root sequence.
func (b *BeamBuilder) Parallel(children ...Node) *BeamBuilder {
	b.nodes = append(b.nodes, Par(children...))
	return b
}

// Branch appends a branch to the root sequence.
func (b *BeamBuilder) Branch(cond Condition, cases map[string]Node, def Node) *BeamBuilder {
	b.nodes = append(b.nodes, Switch(cond, cases, def))
	return b
}

// Node appends an arbitrary pre-built node to the root sequence.
func (b *BeamBuilder) Node(n Node) *BeamBuilder {
	b.nodes = append(b.nodes, n)
	return b
}

// Build assembles and validates the beam. A single top-level node becomes
// the root directly; multiple nodes are wrapped in a Sequence.
func (b *BeamBuilder) Build() (*Beam, error) {
	var root Node
	switch len(b.nodes) {
	case 0:
		root = &beam.Sequence{}
	case 1:
		root = b.nodes[0]
	default:
		root = &beam.Sequence{Children: b.nodes}
	}
	out := &beam.Beam{
		ID:           b.id,
		InputSchema:  b.inputSchema,
		OutputSchema: b.outputSchema,
		Root:         root,
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// MustBuild is Build, panicking on an invalid definition. Intended for
// beams defined at program start.
func (b *BeamBuilder) MustBuild() *Beam {
	out, err := b.Build()
	if err != nil {
		panic(err)
	}
	return out
}

// StepNode builds a step node for nesting inside Seq, Par or Switch.
func StepNode(id string, target Prism, params map[string]any, opts ...StepOption) *Step {
	if id == "" {
		panic("lux: step id must not be empty")
	}
	if target == nil {
		panic(fmt.Sprintf("lux: step %q has nil target", id))
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &beam.Step{ID: id, Target: target, Params: params, Opts: o}
}

// Seq builds a sequence node.
func Seq(children ...Node) *Sequence {
	return &beam.Sequence{Children: children}
}

// Par builds a parallel node.
func Par(children ...Node) *Parallel {
	return &beam.Parallel{Children: children}
}

// Switch builds a branch node.
func Switch(cond Condition, cases map[string]Node, def Node) *Branch {
	return &beam.Branch{Condition: cond, Cases: cases, Default: def}
}

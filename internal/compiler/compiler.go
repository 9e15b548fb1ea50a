// Package compiler turns YAML beam manifests into compiled beam.Beam
// values. Targets, conditions and fallbacks are referenced by name and
// resolved through a beam.Registry at compile time, so the compiled graph
// carries the implementations themselves and nothing is looked up by name
// at run time.
//
// Manifest shape:
//
//	beam: order-fulfilment
//	root:
//	  sequence:
//	    - step:
//	        id: load
//	        target: orders.load
//	        params:
//	          order_id: $input.order_id
//	        retries: 2
//	        backoff: 200ms
//	    - branch:
//	        condition: orders.size
//	        cases:
//	          big:
//	            step: {id: bulk, target: orders.bulk}
//	        default:
//	          step: {id: single, target: orders.single}
//
// Strings beginning with "$input" or "$steps." compile to references;
// a leading "$$" escapes a literal dollar sign.
package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

type manifest struct {
	Beam         string         `yaml:"beam"`
	InputSchema  any            `yaml:"input_schema"`
	OutputSchema any            `yaml:"output_schema"`
	Root         map[string]any `yaml:"root"`
}

type stepSpec struct {
	ID                string         `mapstructure:"id"`
	Target            string         `mapstructure:"target"`
	Params            map[string]any `mapstructure:"params"`
	Timeout           time.Duration  `mapstructure:"timeout"`
	Retries           int            `mapstructure:"retries"`
	Backoff           time.Duration  `mapstructure:"backoff"`
	BackoffMultiplier float64        `mapstructure:"backoff_multiplier"`
	MaxBackoff        time.Duration  `mapstructure:"max_backoff"`
	Dependencies      []string       `mapstructure:"dependencies"`
	Fallback          string         `mapstructure:"fallback"`
	Track             bool           `mapstructure:"track"`
	StoreIO           bool           `mapstructure:"store_io"`
}

// Compile parses a YAML manifest and resolves every named implementation
// through reg. The result is validated before it is returned.
func Compile(src []byte, reg *beam.Registry) (*beam.Beam, error) {
	var m manifest
	if err := yaml.Unmarshal(src, &m); err != nil {
		return nil, fmt.Errorf("compiler: invalid manifest: %w", err)
	}
	if m.Beam == "" {
		return nil, fmt.Errorf("compiler: manifest is missing a beam id")
	}
	if m.Root == nil {
		return nil, fmt.Errorf("compiler: beam %s has no root node", m.Beam)
	}

	root, err := compileNode(m.Root, reg)
	if err != nil {
		return nil, fmt.Errorf("compiler: beam %s: %w", m.Beam, err)
	}

	b := &beam.Beam{
		ID:           m.Beam,
		InputSchema:  m.InputSchema,
		OutputSchema: m.OutputSchema,
		Root:         root,
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	return b, nil
}

func compileNode(raw map[string]any, reg *beam.Registry) (beam.Node, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf("node must have exactly one of step/sequence/parallel/branch, got %d keys", len(raw))
	}
	for kind, body := range raw {
		switch kind {
		case "step":
			return compileStep(body, reg)
		case "sequence":
			children, err := compileChildren(body, reg)
			if err != nil {
				return nil, err
			}
			return &beam.Sequence{Children: children}, nil
		case "parallel":
			children, err := compileChildren(body, reg)
			if err != nil {
				return nil, err
			}
			return &beam.Parallel{Children: children}, nil
		case "branch":
			return compileBranch(body, reg)
		default:
			return nil, fmt.Errorf("unknown node form %q", kind)
		}
	}
	return nil, fmt.Errorf("empty node")
}

func compileChildren(body any, reg *beam.Registry) ([]beam.Node, error) {
	list, ok := body.([]any)
	if !ok {
		return nil, fmt.Errorf("sequence/parallel body must be a list, got %T", body)
	}
	children := make([]beam.Node, 0, len(list))
	for i, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("child %d is not a node mapping", i)
		}
		child, err := compileNode(raw, reg)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func compileStep(body any, reg *beam.Registry) (*beam.Step, error) {
	var spec stepSpec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &spec,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(body); err != nil {
		return nil, fmt.Errorf("invalid step spec: %w", err)
	}
	if spec.ID == "" {
		return nil, fmt.Errorf("step without an id")
	}

	target, err := reg.Prism(spec.Target)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", spec.ID, err)
	}

	opts := beam.Options{
		Timeout:           spec.Timeout,
		Retries:           spec.Retries,
		RetryBackoff:      spec.Backoff,
		BackoffMultiplier: spec.BackoffMultiplier,
		MaxBackoff:        spec.MaxBackoff,
		Dependencies:      spec.Dependencies,
		Track:             spec.Track,
		StoreIO:           spec.StoreIO,
	}
	if spec.Fallback != "" {
		fb, err := reg.Fallback(spec.Fallback)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", spec.ID, err)
		}
		opts.Fallback = fb
	}

	params, err := compileParams(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", spec.ID, err)
	}

	return &beam.Step{ID: spec.ID, Target: target, Params: params, Opts: opts}, nil
}

func compileBranch(body any, reg *beam.Registry) (*beam.Branch, error) {
	raw, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("branch body must be a mapping, got %T", body)
	}

	condName, _ := raw["condition"].(string)
	if condName == "" {
		return nil, fmt.Errorf("branch without a condition name")
	}
	cond, err := reg.Condition(condName)
	if err != nil {
		return nil, err
	}

	br := &beam.Branch{Condition: cond, Cases: make(map[string]beam.Node)}

	if rawCases, ok := raw["cases"].(map[string]any); ok {
		for key, caseBody := range rawCases {
			caseRaw, ok := caseBody.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("branch case %q is not a node mapping", key)
			}
			child, err := compileNode(caseRaw, reg)
			if err != nil {
				return nil, err
			}
			br.Cases[key] = child
		}
	}

	if rawDefault, ok := raw["default"].(map[string]any); ok {
		child, err := compileNode(rawDefault, reg)
		if err != nil {
			return nil, err
		}
		br.Default = child
	}
	return br, nil
}

// compileParams rewrites "$input..." / "$steps..." strings into beam.Refs,
// recursing through nested maps and lists.
func compileParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := compileValue(params)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func compileValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return compileString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			c, err := compileValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			c, err := compileValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return v, nil
	}
}

func compileString(s string) (any, error) {
	if strings.HasPrefix(s, "$$") {
		return s[1:], nil
	}
	if !strings.HasPrefix(s, "$") {
		return s, nil
	}
	parts := strings.Split(s[1:], ".")
	switch parts[0] {
	case "input":
		return beam.Input(parts[1:]...), nil
	case "steps":
		if len(parts) < 2 {
			return nil, fmt.Errorf("reference %q is missing a step id", s)
		}
		return beam.StepOutput(parts[1], parts[2:]...), nil
	default:
		return nil, fmt.Errorf("reference %q must start with $input or $steps", s)
	}
}

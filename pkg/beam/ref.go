package beam

import "strconv"

// Ref is a symbolic path into the run state, resolved at step-invocation
// time rather than at graph construction. The first accessor is either
// "input" (the beam input) or "steps" followed by a step id; any further
// accessors descend into map fields or slice indices of the referenced
// value.
type Ref []string

// Input references the beam input, or a nested field of it.
//
//	beam.Input()                // the whole input
//	beam.Input("user", "email") // input["user"]["email"]
func Input(fields ...string) Ref {
	return append(Ref{"input"}, fields...)
}

// StepOutput references the settled output of another step, or a nested
// field of it. Referencing a step that has not settled as completed is a
// resolution error at run time.
func StepOutput(stepID string, fields ...string) Ref {
	return append(Ref{"steps", stepID}, fields...)
}

// Resolve materializes a parameter specification against the run state.
// Literals pass through; maps and slices are resolved element-wise; Refs
// are walked. It never mutates spec or state and is safe to call from
// concurrent branches.
func Resolve(spec any, state *State) (any, error) {
	switch v := spec.(type) {
	case Ref:
		return resolveRef(v, state)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			r, err := Resolve(e, state)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			r, err := Resolve(e, state)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return spec, nil
	}
}

// ResolveParams resolves a step's whole parameter map. A nil map resolves
// to the beam input, so parameterless steps receive the run input directly.
func ResolveParams(params map[string]any, state *State) (any, error) {
	if params == nil {
		return state.Input(), nil
	}
	return Resolve(params, state)
}

func resolveRef(ref Ref, state *State) (any, error) {
	if len(ref) == 0 {
		return nil, &ResolutionError{Path: ref, Reason: "empty reference"}
	}
	switch ref[0] {
	case "input":
		return walk(state.Input(), ref, 1)
	case "steps":
		if len(ref) < 2 {
			return nil, &ResolutionError{Path: ref, Reason: "step reference without a step id"}
		}
		out, ok := state.Outcome(ref[1])
		if !ok {
			return nil, &ResolutionError{Path: ref, Reason: "step " + ref[1] + " has not settled"}
		}
		if out.Status != StatusCompleted {
			return nil, &ResolutionError{Path: ref, Reason: "step " + ref[1] + " settled " + string(out.Status)}
		}
		return walk(out.Output, ref, 2)
	default:
		return nil, &ResolutionError{Path: ref, Reason: "unknown root accessor " + strconv.Quote(ref[0])}
	}
}

func walk(v any, ref Ref, from int) (any, error) {
	for i := from; i < len(ref); i++ {
		key := ref[i]
		switch cur := v.(type) {
		case map[string]any:
			next, ok := cur[key]
			if !ok {
				return nil, &ResolutionError{Path: ref, Reason: "missing field " + strconv.Quote(key)}
			}
			v = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(cur) {
				return nil, &ResolutionError{Path: ref, Reason: "bad index " + strconv.Quote(key)}
			}
			v = cur[idx]
		default:
			return nil, &ResolutionError{Path: ref, Reason: "cannot descend into " + strconv.Quote(key)}
		}
	}
	return v, nil
}

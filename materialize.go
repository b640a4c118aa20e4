package fetchgraph

// Materialize implements spec.md §4.2: given the in-progress loaded map
// and a descriptor, substitute every DepRef in its params with the
// referenced value, navigating Sub into the dependency's Data. A ref whose
// source has not terminalized in loaded is left in place, leaving the
// source non-ready rather than erroring.
//
// The descriptor's original Params are preserved under OriginalParams on
// first materialization, used later by the retry/refresh machinery
// (spec.md §4.5) to know what to restore on a refresh.
func Materialize(loaded map[Path]*Result, src *SourceDescriptor) *SourceDescriptor {
	out := src.clone()
	if out.OriginalParams == nil {
		orig := src.Params.Clone()
		out.OriginalParams = &orig
	}

	if ref, ok := out.Params.WholeRef(); ok {
		resolved, ready := navigate(loaded, ref)
		if !ready {
			return out // left in place; not ready yet
		}
		fields, ok := resolved.(map[string]any)
		if !ok {
			// Non-map whole-result params materialize as a single
			// "_" field so callers still have somewhere to look.
			out.Params = ParamsMap(map[string]Value{"_": Lit(resolved)})
			return out
		}
		materialized := make(map[string]Value, len(fields))
		for k, v := range fields {
			materialized[k] = Lit(v)
		}
		out.Params = ParamsMap(materialized)
		return out
	}

	fields := out.Params.Fields()
	materialized := make(map[string]Value, len(fields))
	for k, v := range fields {
		ref, isRef := v.AsRef()
		if !isRef {
			materialized[k] = v
			continue
		}
		resolved, ready := navigate(loaded, ref)
		if !ready {
			materialized[k] = v
			continue
		}
		materialized[k] = Lit(resolved)
	}
	out.Params = ParamsMap(materialized)
	return out
}

// IsReady reports whether every DepRef in a descriptor's params (as it
// currently stands, pre- or post-materialization) has a terminal success
// in loaded — i.e. whether Materialize would leave no ref unresolved.
func IsReady(loaded map[Path]*Result, src *SourceDescriptor) bool {
	if ref, ok := src.Params.WholeRef(); ok {
		_, ready := navigate(loaded, ref)
		return ready
	}
	for _, v := range src.Params.Fields() {
		ref, isRef := v.AsRef()
		if !isRef {
			continue
		}
		if _, ready := navigate(loaded, ref); !ready {
			return false
		}
	}
	return true
}

// navigate resolves a DepRef against loaded: the referenced path must
// have a terminal, successful result, after which Sub is walked as a
// sequence of map-key/slice-index steps into its Data.
func navigate(loaded map[Path]*Result, ref DepRef) (any, bool) {
	res, ok := loaded[ref.Source]
	if !ok || res == nil || !res.Success || res.Partial {
		return nil, false
	}
	val := res.Data
	for _, step := range ref.Sub {
		next, ok := navigateStep(val, step)
		if !ok {
			return nil, false
		}
		val = next
	}
	return val, true
}

func navigateStep(val any, step any) (any, bool) {
	switch m := val.(type) {
	case map[string]any:
		key, ok := step.(string)
		if !ok {
			return nil, false
		}
		v, ok := m[key]
		return v, ok
	case []any:
		idx, ok := toInt(step)
		if !ok || idx < 0 || idx >= len(m) {
			return nil, false
		}
		return m[idx], true
	default:
		return nil, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

package fetchgraph

import "time"

// isRetryable implements spec.md §4.5: a result is retryable iff it says
// so and the source still has budget.
func isRetryable(src *SourceDescriptor, res *Result) bool {
	return res.Retryable && src.Retries >= res.Attempts
}

// retryDelay computes the backoff for the next attempt per spec.md §4.4
// step 7: retry_delays[min(attempts-1, len-1)], overridden by the
// result's own RetryDelayMS when it set one ("the latter wins").
func retryDelay(src *SourceDescriptor, res *Result) time.Duration {
	if res.RetryDelayMS > 0 {
		return time.Duration(res.RetryDelayMS) * time.Millisecond
	}
	if len(src.RetryDelays) == 0 {
		return 0
	}
	idx := res.Attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(src.RetryDelays) {
		idx = len(src.RetryDelays) - 1
	}
	return src.RetryDelays[idx]
}

// refreshTargets maps a failed result's declared Refresh keys back to the
// source paths that originally supplied them, via the descriptor's
// OriginalParams (spec.md §4.5: "Map each member of refresh back to the
// source paths that originally provided it").
//
// RefreshWhole expands to every dependency path referenced anywhere in
// OriginalParams.
func refreshTargets(src *SourceDescriptor, res *Result) []Path {
	if src.OriginalParams == nil {
		return nil
	}

	wantWhole := false
	want := make(map[string]bool, len(res.Refresh))
	for _, k := range res.Refresh {
		if k == RefreshWhole {
			wantWhole = true
			continue
		}
		want[k] = true
	}

	var targets []Path
	if ref, ok := src.OriginalParams.WholeRef(); ok {
		if wantWhole || len(want) > 0 {
			targets = append(targets, ref.Source)
		}
		return targets
	}

	for k, v := range src.OriginalParams.Fields() {
		if !wantWhole && !want[k] {
			continue
		}
		if ref, ok := v.AsRef(); ok {
			targets = appendUnique(targets, ref.Source)
		}
	}
	return targets
}

// beginRefresh resets a source descriptor so it (and whoever is waiting
// on it) is re-planned from scratch: restores OriginalParams, marks it
// Refreshing (suppressing cache reads, spec.md §4.5), and clears derived
// dependency/cache-dependency sets so the resolver recomputes them.
func beginRefresh(src *SourceDescriptor) *SourceDescriptor {
	out := src.clone()
	out.Refreshing = true
	if src.OriginalParams != nil {
		orig := src.OriginalParams.Clone()
		out.Params = orig
	}
	out.Deps = nil
	out.ResolvedCacheDeps = nil
	return out
}

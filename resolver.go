package fetchgraph

// ResolveDeps implements spec.md §4.1: for every source reachable from
// focusPaths (or every source in the prescription if focusPaths is
// empty), populate Deps from its Params' dependency references, close
// over newly discovered deps that also exist in the prescription, then
// run the collection-augmentation pass so a collection/begets parent
// depends on all of its currently-known children.
func ResolveDeps(prescription Prescription, focusPaths ...Path) Prescription {
	out := prescription.Clone()
	g := newPathGraph()

	var queue []Path
	if len(focusPaths) == 0 {
		for p := range out {
			queue = append(queue, p)
		}
	} else {
		queue = append(queue, focusPaths...)
	}

	seen := make(map[Path]bool, len(out))
	for i := 0; i < len(queue); i++ {
		p := queue[i]
		if seen[p] {
			continue
		}
		seen[p] = true

		src, ok := out[p]
		if !ok {
			continue // missing deps are not an error here (spec.md §4.1)
		}

		deps := paramDeps(src.Params)
		src.Deps = deps
		for _, d := range deps {
			g.addEdge(p, d)
			if !seen[d] {
				queue = append(queue, d)
			}
		}
	}

	// Collection augmentation: a member_of parent depends on all known
	// children so it only "does" when every member terminalizes.
	childrenOf := make(map[Path][]Path)
	for p, src := range out {
		if src.HasMemberOf() {
			childrenOf[src.MemberOf] = append(childrenOf[src.MemberOf], p)
		}
	}
	for parent, children := range childrenOf {
		src, ok := out[parent]
		if !ok {
			continue
		}
		if hasDep(src.Deps, parent) {
			continue
		}
		missing := false
		for _, c := range children {
			if !hasDep(src.Deps, c) {
				missing = true
				break
			}
		}
		if !missing {
			continue
		}
		for _, c := range children {
			if !hasDep(src.Deps, c) {
				src.Deps = append(src.Deps, c)
			}
		}
	}

	return out
}

// ResolveCacheDeps is ResolveDeps' twin over cache_deps parameter
// references (spec.md §4.1: "the same shape but walks cache_deps
// parameter refs only").
func ResolveCacheDeps(prescription Prescription, focusPaths ...Path) Prescription {
	out := prescription.Clone()

	var queue []Path
	if len(focusPaths) == 0 {
		for p := range out {
			queue = append(queue, p)
		}
	} else {
		queue = append(queue, focusPaths...)
	}

	seen := make(map[Path]bool, len(out))
	for i := 0; i < len(queue); i++ {
		p := queue[i]
		if seen[p] {
			continue
		}
		seen[p] = true

		src, ok := out[p]
		if !ok {
			continue
		}

		deps := cacheParamDeps(src)
		src.ResolvedCacheDeps = deps
		for _, d := range deps {
			if !seen[d] {
				queue = append(queue, d)
			}
		}
	}

	return out
}

// paramDeps walks a Params value collecting the source path of every
// DepRef it contains, per spec.md §4.1's "inspect params" algorithm.
func paramDeps(p Params) []Path {
	if ref, ok := p.WholeRef(); ok {
		return []Path{ref.Source}
	}
	var deps []Path
	for _, v := range p.Fields() {
		if ref, ok := v.AsRef(); ok {
			deps = appendUnique(deps, ref.Source)
		}
	}
	return deps
}

// cacheParamDeps restricts paramDeps to the CacheDeps-named subset of a
// source's params when CacheDeps is set, otherwise considers all of them.
func cacheParamDeps(src *SourceDescriptor) []Path {
	if len(src.CacheDeps) == 0 {
		return paramDeps(src.Params)
	}
	allowed := make(map[string]bool, len(src.CacheDeps))
	for _, k := range src.CacheDeps {
		allowed[k] = true
	}
	var deps []Path
	for k, v := range src.Params.Fields() {
		if !allowed[k] {
			continue
		}
		if ref, ok := v.AsRef(); ok {
			deps = appendUnique(deps, ref.Source)
		}
	}
	return deps
}

func hasDep(deps []Path, p Path) bool {
	for _, d := range deps {
		if d == p {
			return true
		}
	}
	return false
}

package fetchgraph

// Validate is the offline pre-flight checker spec.md §4.1/§7 describes:
// unlike the running engine (which tolerates missing/cyclic deps by
// simply never making progress on them), Validate reports every problem
// so a submission-time check can fail fast with a precise diagnosis.
func Validate(prescription Prescription) []*ValidationError {
	var errs []*ValidationError

	resolved := ResolveDeps(prescription)
	g := newPathGraph()
	nodes := make([]Path, 0, len(resolved))
	for p, src := range resolved {
		nodes = append(nodes, p)
		for _, d := range src.Deps {
			g.addEdge(p, d)
		}
	}

	for p, src := range resolved {
		for _, d := range src.Deps {
			if _, ok := prescription[d]; !ok {
				errs = append(errs, &ValidationError{
					Kind: ErrMissingDep,
					Path: p,
					Msg:  "depends on " + d.String() + " which is not in the prescription",
				})
			}
		}
	}

	if cycle := g.findCycle(nodes); cycle != nil {
		errs = append(errs, &ValidationError{
			Kind:  ErrCyclicDependency,
			Cycle: cycle,
			Msg:   "cyclic dependency",
		})
	}

	errs = append(errs, findShadowing(prescription)...)

	return errs
}

// findShadowing reports a begets child path (parent ++ key, statically
// known ahead of time) that is also present as its own explicit
// prescription entry: at runtime the spawned child would silently
// overwrite that entry in the prescription, so it's caught here instead.
// coll_of children use data-dependent keys (array indices or map keys
// only known once the parent fetch completes) and so can't be checked
// offline; they're validated by the running engine tolerating the
// overwrite rather than failing.
func findShadowing(prescription Prescription) []*ValidationError {
	var errs []*ValidationError
	for parent, src := range prescription {
		for key := range src.Begets {
			childPath := parent.Child(key)
			if _, exists := prescription[childPath]; exists {
				errs = append(errs, &ValidationError{
					Kind: ErrSourceShadowing,
					Path: childPath,
					Msg:  "begets of " + parent.String() + " would overwrite explicit prescription entry at this path",
				})
			}
		}
	}
	return errs
}

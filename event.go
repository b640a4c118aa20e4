package fetchgraph

// Event is the unit of the output stream: a path, the public view of its
// source at decision time, and the Result decided for it. Select emits
// events in the order described by spec.md §5's ordering guarantees.
type Event struct {
	Path   Path
	Source *ResolvedSource
	Result *Result
}

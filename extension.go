package fetchgraph

import "context"

// FetchOperation describes the attempt an Extension is wrapping, the
// Path-based analogue of the teacher's Operation{Kind, Executor, Scope}.
type FetchOperation struct {
	Path   Path
	Source *ResolvedSource
}

// Extension provides hooks into the orchestrator's lifecycle, adapted
// from the teacher's Extension interface (extension.go): the same
// Wrap-around-an-operation middleware shape, re-targeted from
// resolve/update executor operations to fetch attempts and the event
// stream this engine actually produces.
type Extension interface {
	Name() string
	Order() int // lower runs first, mirroring the teacher's convention

	// WrapFetch brackets a single fetch attempt; next invokes the
	// executor (and any inner extensions). Implementations that don't
	// care just call next().
	WrapFetch(ctx context.Context, next func() (*Result, error), op *FetchOperation) (*Result, error)

	// OnEvent observes every event the orchestrator emits, including
	// retry/refresh and partial-collection events.
	OnEvent(ev Event)

	// OnError observes a terminal FetchError attached to a failed path.
	OnError(err error, path Path)
}

// BaseExtension gives every hook a no-op default so concrete extensions
// only override what they need, same as the teacher's BaseExtension.
type BaseExtension struct {
	name  string
	order int
}

// NewBaseExtension builds a base extension with the given name and
// default order 100.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name, order: 100}
}

func (e *BaseExtension) Name() string { return e.name }

func (e *BaseExtension) Order() int { return e.order }

func (e *BaseExtension) WrapFetch(_ context.Context, next func() (*Result, error), _ *FetchOperation) (*Result, error) {
	return next()
}

func (e *BaseExtension) OnEvent(Event) {}

func (e *BaseExtension) OnError(error, Path) {}

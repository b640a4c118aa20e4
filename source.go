package fetchgraph

import (
	"context"
	"reflect"
	"runtime"
	"time"
)

// ResolvedSource is the public view of a source passed to fetch, conform,
// and cache-contract functions: its id and its params after dependency
// substitution (scoped to CacheParams when used by the cache contract,
// per spec.md §4.3).
type ResolvedSource struct {
	ID     string
	Path   Path
	Params map[string]any
}

// FetchOutcome is what an AsyncFetchFunc's completion handle yields.
type FetchOutcome struct {
	Result *Result
	Err    error
}

// FetchFunc is a synchronous fetch: invoked, awaited inline by the
// executor under its own timeout/cancellation.
type FetchFunc func(ctx context.Context, source *ResolvedSource) (*Result, error)

// AsyncFetchFunc returns a completion handle (a receive-only channel)
// that yields exactly one FetchOutcome. Preferred over FetchFunc per
// spec.md §4.4 step 3.
type AsyncFetchFunc func(ctx context.Context, source *ResolvedSource) (<-chan FetchOutcome, error)

// ConformFunc post-processes a successful fetch's raw data into the
// value callers see as Result.Data; the raw value survives as RawData.
type ConformFunc func(source *ResolvedSource, raw any) (any, error)

// SourceDescriptor is a prescription entry: configuration the caller
// supplies plus fields the resolver and the orchestrator's expansion
// logic fill in as planning proceeds.
type SourceDescriptor struct {
	ID         string
	Fetch      FetchFunc
	AsyncFetch AsyncFetchFunc

	Params      Params
	Retries     int
	RetryDelays []time.Duration
	TimeoutMS   int // 0 disables the timeout (spec.md §9: default changed to "none")
	Conform     ConformFunc

	CacheDeps   []string // param keys whose deps suffice for a cache key
	CacheParams []string // param keys used to build the cache key; nil = all params
	CollOf      Path      // marks this source as a collection template consumer
	hasCollOf   bool
	Begets      map[string]Path // key -> template source path

	// Derived by the resolver / expansion; never set directly by callers.
	Deps              []Path
	ResolvedCacheDeps []Path
	MemberOf          Path
	hasMemberOf       bool
	TemplatePath      Path
	hasTemplatePath   bool
	OriginalParams    *Params
	Refreshing        bool
}

// HasCollOf reports whether this source is a collection template consumer.
func (s *SourceDescriptor) HasCollOf() bool { return s.hasCollOf }

// HasMemberOf reports whether this source was spawned from a collection
// or begets parent.
func (s *SourceDescriptor) HasMemberOf() bool { return s.hasMemberOf }

// HasTemplatePath reports whether TemplatePath was set by an expansion.
func (s *SourceDescriptor) HasTemplatePath() bool { return s.hasTemplatePath }

// HasBegets reports whether this source spawns beget children.
func (s *SourceDescriptor) HasBegets() bool { return len(s.Begets) > 0 }

// IsExpansionParent reports whether this source is a coll_of or begets
// template consumer, i.e. it must emit a Partial event before terminal.
func (s *SourceDescriptor) IsExpansionParent() bool {
	return s.hasCollOf || s.HasBegets()
}

// SourceOption configures a SourceDescriptor at construction time,
// following the teacher's functional-option idiom (ScopeOption,
// ExecutorOption).
type SourceOption func(*SourceDescriptor)

// WithID overrides the inferred source id.
func WithID(id string) SourceOption {
	return func(s *SourceDescriptor) { s.ID = id }
}

// WithParams sets the source's parameter specification.
func WithParams(p Params) SourceOption {
	return func(s *SourceDescriptor) { s.Params = p }
}

// WithRetries sets the retry budget and optional backoff delays. When
// delays is shorter than retries, its last value repeats.
func WithRetries(retries int, delays ...time.Duration) SourceOption {
	return func(s *SourceDescriptor) {
		s.Retries = retries
		s.RetryDelays = delays
	}
}

// WithTimeout sets a per-source fetch timeout. A zero duration disables
// the timeout.
func WithTimeout(d time.Duration) SourceOption {
	return func(s *SourceDescriptor) { s.TimeoutMS = int(d.Milliseconds()) }
}

// WithConform attaches a post-processing function applied to successful
// fetch data.
func WithConform(fn ConformFunc) SourceOption {
	return func(s *SourceDescriptor) { s.Conform = fn }
}

// WithCacheDeps restricts the dependency set used to decide cache
// readiness to these parameter keys.
func WithCacheDeps(keys ...string) SourceOption {
	return func(s *SourceDescriptor) { s.CacheDeps = keys }
}

// WithCacheParams restricts which parameter keys build the cache key.
func WithCacheParams(keys ...string) SourceOption {
	return func(s *SourceDescriptor) { s.CacheParams = keys }
}

// WithCollOf marks this source as a collection: its successful data is
// split into indexed children using template as the per-element source.
func WithCollOf(template Path) SourceOption {
	return func(s *SourceDescriptor) {
		s.CollOf = template
		s.hasCollOf = true
	}
}

// WithBegets marks this source as spawning named children from its
// result, one per (key, template) pair.
func WithBegets(begets map[string]Path) SourceOption {
	return func(s *SourceDescriptor) { s.Begets = begets }
}

// NewSource builds a descriptor around a synchronous fetch function.
func NewSource(fetch FetchFunc, opts ...SourceOption) *SourceDescriptor {
	s := &SourceDescriptor{
		ID:     inferID(fetch),
		Fetch:  fetch,
		Params: ParamsMap(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAsyncSource builds a descriptor around an async (channel-returning)
// fetch function, the form spec.md §4.4 step 3 prefers.
func NewAsyncSource(fetch AsyncFetchFunc, opts ...SourceOption) *SourceDescriptor {
	s := &SourceDescriptor{
		ID:         inferID(fetch),
		AsyncFetch: fetch,
		Params:     ParamsMap(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clone produces a shallow copy suitable for resolver/expansion mutation
// without aliasing the caller's original descriptor.
func (s *SourceDescriptor) clone() *SourceDescriptor {
	cp := *s
	cp.Deps = append([]Path(nil), s.Deps...)
	cp.ResolvedCacheDeps = append([]Path(nil), s.ResolvedCacheDeps...)
	cp.RetryDelays = append([]time.Duration(nil), s.RetryDelays...)
	cp.Params = s.Params.Clone()
	if s.OriginalParams != nil {
		orig := s.OriginalParams.Clone()
		cp.OriginalParams = &orig
	}
	return &cp
}

// inferID derives an opaque tag for a fetch callable from its function
// identity, used when the caller doesn't supply WithID explicitly (spec.md
// §3: "id ... may be inferred from the fetch callable's identity").
func inferID(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

// Prescription is the user's immutable-from-the-outside map of path to
// source descriptor, progressively decorated by the resolver and by
// expansion as described in spec.md §3's Lifecycle note.
type Prescription map[Path]*SourceDescriptor

// Clone returns a deep-enough copy for the orchestrator's own progressive
// decoration to never mutate the caller's original map/descriptors.
func (p Prescription) Clone() Prescription {
	out := make(Prescription, len(p))
	for path, src := range p {
		out[path] = src.clone()
	}
	return out
}

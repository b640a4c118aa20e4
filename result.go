package fetchgraph

import "time"

// RefreshWhole is the special refresh-set marker meaning "re-materialize
// every parameter", spec.md §3's "the special marker 'whole params'".
const RefreshWhole = "*"

// Result is what a fetch attempt, a cache hit, or the orchestrator itself
// (stub failures, collection composition) produces for a path.
type Result struct {
	Success bool
	Data    any

	// RawData holds the pre-Conform value; HasRawData distinguishes "no
	// conform was applied" from "conform produced a nil".
	RawData    any
	HasRawData bool

	Attempts     int
	Retrying     bool
	RetryDelayMS int
	Retryable    bool // defaults to true per spec.md §3

	// Refresh names the parameter keys a failed fetch wants re-realized
	// before the next retry attempt; RefreshWhole means all of them.
	Refresh []string

	Partial bool
	Cached  bool

	// TimeoutAfterMS is set (HasTimeout true) on timeout failures.
	TimeoutAfterMS int
	HasTimeout     bool

	Error *FetchError

	ElapsedMS int64

	// CachedAt is a cache-write timestamp carried through Cache backends.
	// The bundled backends (MemoryCache, cachestore/sqlite,
	// cachestore/rediscache) store and return whatever value the Result
	// already holds and do not stamp it themselves.
	CachedAt int64

	// Prescriptions is the deprecated compatibility shim described in
	// spec.md §9: additional source descriptors to splice into the live
	// prescription at the paths this map names. Prefer CollOf/Begets in
	// new sources.
	Prescriptions map[Path]*SourceDescriptor
}

// ResultOption configures a Result at construction.
type ResultOption func(*Result)

// WithRefresh marks parameter keys (or RefreshWhole) for re-realization
// before the next retry attempt.
func WithRefresh(keys ...string) ResultOption {
	return func(r *Result) { r.Refresh = keys }
}

// WithRetryDelay overrides the source's configured retry_delays for this
// particular failure (spec.md §4.4 step 7: "the latter wins").
func WithRetryDelay(d time.Duration) ResultOption {
	return func(r *Result) { r.RetryDelayMS = int(d.Milliseconds()) }
}

// WithNotRetryable marks a failure as terminal regardless of the source's
// remaining retry budget.
func WithNotRetryable() ResultOption {
	return func(r *Result) { r.Retryable = false }
}

// WithPrescriptions attaches the compatibility-shim sub-prescriptions to a
// successful result.
func WithPrescriptions(p map[Path]*SourceDescriptor) ResultOption {
	return func(r *Result) { r.Prescriptions = p }
}

// Success builds a terminal successful Result.
func Success(data any, opts ...ResultOption) *Result {
	r := &Result{Success: true, Data: data, Retryable: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Failure builds a (possibly retryable) failed Result carrying data about
// the failure but no fetch-contract error.
func Failure(data any, opts ...ResultOption) *Result {
	r := &Result{Success: false, Data: data, Retryable: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrResult builds a failed Result from an upstream error, for fetch
// functions that want to report a Go error as the failure cause.
func ErrResult(kind ErrorKind, original error, opts ...ResultOption) *Result {
	r := &Result{
		Success:   false,
		Retryable: true,
		Error:     &FetchError{Kind: kind, Cause: original},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

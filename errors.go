package fetchgraph

import (
	"fmt"
	"runtime/debug"
)

// ErrorKind enumerates spec.md §7's error taxonomy. Every running-engine
// failure event carries one except plain Failure results that only set
// Result.Data.
type ErrorKind string

const (
	ErrFetchException      ErrorKind = "fetch_exception"
	ErrFetchNoChan         ErrorKind = "fetch_no_chan"
	ErrResultNil           ErrorKind = "invalid_result.result_nil"
	ErrResultNotMap        ErrorKind = "invalid_result.result_not_map"
	ErrNotPharmacistResult ErrorKind = "invalid_result.not_pharmacist_result"
	ErrResultNotRealizable ErrorKind = "invalid_result.result_not_realizable"
	ErrTimeout             ErrorKind = "timeout"
	ErrUnreachable         ErrorKind = "unreachable"

	// Offline validator kinds (spec.md §4.1, §7); never produced by the
	// running engine itself.
	ErrCyclicDependency ErrorKind = "cyclic_dependency"
	ErrMissingDep       ErrorKind = "missing_dep"
	ErrSourceShadowing  ErrorKind = "source_shadowing"
)

// FetchError is the engine's single wrapped-error shape, adapted from the
// teacher's ResolveError: a kind, the path it happened to, the underlying
// cause, and (for panics) a captured stack.
type FetchError struct {
	Kind       ErrorKind
	Path       Path
	Cause      error
	StackTrace []byte
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

func newFetchError(path Path, kind ErrorKind, cause error) *FetchError {
	return &FetchError{Path: path, Kind: kind, Cause: cause}
}

func newPanicError(path Path, recovered any) *FetchError {
	return &FetchError{
		Path:       path,
		Kind:       ErrFetchException,
		Cause:      fmt.Errorf("panic in fetch: %v", recovered),
		StackTrace: debug.Stack(),
	}
}

// ValidationError reports a problem found by Validate, the offline
// pre-flight checker (spec.md §4.1, §7). Unlike FetchError it is never
// produced by the running engine.
type ValidationError struct {
	Kind  ErrorKind
	Path  Path
	Cycle []Path // populated for ErrCyclicDependency
	Msg   string
}

func (e *ValidationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Msg, e.Cycle)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Msg)
}

package fetchgraph

import (
	"context"
	"fmt"
	"time"
)

// executor runs single-shot fetch attempts (spec.md §4.4), dispatching
// the user's Fetch/AsyncFetch callable on its own goroutine behind a
// buffered completion channel and a select against ctx.Done and a
// per-attempt timer — the same panic-safe, cancellable pattern the
// teacher's executeFlow (flow.go) uses to run a factory under
// supervision, narrowed here to exactly one outcome per attempt.
type executor struct {
	pool           *attemptPool
	defaultTimeout time.Duration
	extensions     []Extension
}

func newExecutor(defaultTimeout time.Duration, extensions []Extension) *executor {
	return &executor{
		pool:           newAttemptPool(),
		defaultTimeout: defaultTimeout,
		extensions:     extensions,
	}
}

// attempt runs one fetch attempt for src at path p, given the attempt
// count it is about to make (1-based) and any caller-supplied delay to
// apply first (retry backoff; spec.md §4.4 step 1). It returns a terminal
// Result, never an error: all failure modes are represented as Result.
func (ex *executor) attempt(ctx context.Context, p Path, src *SourceDescriptor, attemptNum int, delay time.Duration) *Result {
	start := time.Now()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return timeoutOrCancelResult(p, attemptNum, ctx.Err())
		case <-t.C:
		}
	}

	resolved := &ResolvedSource{ID: src.ID, Path: p, Params: valuesToMap(src.Params)}

	op := &FetchOperation{Path: p, Source: resolved}
	result := ex.runChain(ctx, func() (*Result, error) {
		return ex.invoke(ctx, p, src, resolved, attemptNum)
	}, op)

	result.Attempts = attemptNum
	result.ElapsedMS = time.Since(start).Milliseconds()

	if result.Success && src.Conform != nil {
		conformed, err := src.Conform(resolved, result.Data)
		if err != nil {
			return &Result{
				Success:   false,
				Attempts:  attemptNum,
				Retryable: true,
				Error:     newFetchError(p, ErrResultNotRealizable, err),
				ElapsedMS: result.ElapsedMS,
			}
		}
		result.RawData = result.Data
		result.HasRawData = true
		result.Data = conformed
	}

	return result
}

// runChain wraps the invocation with every registered Extension, in
// ascending Order, mirroring the teacher's middleware chain in flow.go
// (each extension's Wrap receives a "next" closure that runs the
// remaining chain).
func (ex *executor) runChain(ctx context.Context, next func() (*Result, error), op *FetchOperation) *Result {
	chain := next
	for i := len(ex.extensions) - 1; i >= 0; i-- {
		ext := ex.extensions[i]
		inner := chain
		chain = func() (*Result, error) {
			return ext.WrapFetch(ctx, inner, op)
		}
	}
	result, err := chain()
	if err != nil {
		return &Result{
			Success:   false,
			Retryable: true,
			Error:     newFetchError(op.Path, ErrFetchException, err),
		}
	}
	return result
}

// invoke performs spec.md §4.4 steps 3-5: call async_fetch (preferred) or
// wrap fetch, await up to min(source.timeout_ms, executor default),
// recover panics, and validate the raw return.
func (ex *executor) invoke(ctx context.Context, p Path, src *SourceDescriptor, resolved *ResolvedSource, attemptNum int) (*Result, error) {
	timeout := ex.effectiveTimeout(src)

	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if src.AsyncFetch != nil {
		ch, err := src.AsyncFetch(attemptCtx, resolved)
		if err != nil {
			return Failure(nil).withError(newFetchError(p, ErrFetchException, err)), nil
		}
		if ch == nil {
			return Failure(nil).withError(newFetchError(p, ErrFetchNoChan, nil)), nil
		}
		select {
		case <-attemptCtx.Done():
			return timeoutOrCancelResult(p, attemptNum, attemptCtx.Err()), nil
		case outcome := <-ch:
			if outcome.Err != nil {
				return Failure(nil).withError(newFetchError(p, ErrFetchException, outcome.Err)), nil
			}
			return validateResult(p, outcome.Result), nil
		}
	}

	if src.Fetch == nil {
		return Failure(nil).withError(newFetchError(p, ErrFetchException, fmt.Errorf("source %q has no fetch callable", src.ID))), nil
	}

	// st goes back to the pool only after invoke has received the
	// goroutine's one and only send on st.done: from then on no further
	// write to that channel is possible. When invoke gives up on
	// attemptCtx.Done() instead, the goroutine may still send later, so st
	// is never returned to the pool and that stale write cannot land in an
	// unrelated attempt's result.
	st := ex.pool.acquire()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case st.done <- FetchOutcome{Result: Failure(nil).withError(newPanicError(p, r))}:
				default:
				}
			}
		}()
		res, err := src.Fetch(attemptCtx, resolved)
		select {
		case st.done <- FetchOutcome{Result: res, Err: err}:
		default:
		}
	}()

	select {
	case <-attemptCtx.Done():
		return timeoutOrCancelResult(p, attemptNum, attemptCtx.Err()), nil
	case outcome := <-st.done:
		ex.pool.release(st)
		if outcome.Err != nil {
			return Failure(nil).withError(newFetchError(p, ErrFetchException, outcome.Err)), nil
		}
		return validateResult(p, outcome.Result), nil
	}
}

func (ex *executor) effectiveTimeout(src *SourceDescriptor) time.Duration {
	if src.TimeoutMS == 0 {
		return ex.defaultTimeout
	}
	sourceTimeout := time.Duration(src.TimeoutMS) * time.Millisecond
	if ex.defaultTimeout == 0 || sourceTimeout < ex.defaultTimeout {
		return sourceTimeout
	}
	return ex.defaultTimeout
}

// validateResult implements spec.md §4.4 step 5: the raw return must be
// non-nil and carry either Success or Data.
func validateResult(p Path, res *Result) *Result {
	if res == nil {
		return Failure(nil).withError(newFetchError(p, ErrResultNil, nil))
	}
	if !res.Success && res.Data == nil && res.Error == nil {
		return Failure(nil).withError(newFetchError(p, ErrResultNotMap, nil))
	}
	return res
}

func timeoutOrCancelResult(p Path, attemptNum int, cause error) *Result {
	r := Failure(nil)
	r.Error = newFetchError(p, ErrTimeout, cause)
	r.HasTimeout = true
	r.Attempts = attemptNum
	return r
}

// withError attaches a FetchError to a Result built via Failure/Success,
// a small ergonomic helper since the public constructors only take
// ResultOption funcs.
func (r *Result) withError(err *FetchError) *Result {
	r.Error = err
	return r
}

// valuesToMap flattens a materialized Params into the plain map the
// public ResolvedSource exposes to fetch/conform/cache callables.
func valuesToMap(p Params) map[string]any {
	fields := p.Fields()
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if ref, ok := v.AsRef(); ok {
			out[k] = ref // still unresolved; callers should not see this in practice
			continue
		}
		out[k] = v.Raw()
	}
	return out
}

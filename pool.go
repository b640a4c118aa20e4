package fetchgraph

import "sync"

// attemptState is the scratch object a single fetch attempt needs: a
// buffered completion channel big enough for exactly one FetchOutcome,
// reused across attempts instead of allocated fresh each time.
type attemptState struct {
	done chan FetchOutcome
}

// attemptPool hands out attemptState objects for the fetch executor,
// adapted from the teacher's PoolManager (pool_manager.go): same
// sync.Pool-plus-hit/miss-metrics shape, narrowed to the one object the
// executor actually needs per spec.md §5's "each attempt acquires at most
// one fetch slot" resource-discipline rule.
type attemptPool struct {
	pool sync.Pool

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// newAttemptPool builds an empty attempt pool. New is left unset so
// acquire can tell a reused object from a freshly allocated one and keep
// accurate hit/miss metrics.
func newAttemptPool() *attemptPool {
	return &attemptPool{}
}

// acquire gets an attemptState from the pool or creates a new one.
func (p *attemptPool) acquire() *attemptState {
	v := p.pool.Get()
	st, reused := v.(*attemptState)

	p.mu.Lock()
	if reused {
		p.hits++
	} else {
		p.misses++
	}
	p.mu.Unlock()

	if !reused {
		st = &attemptState{done: make(chan FetchOutcome, 1)}
	}
	return st
}

// release returns an attemptState to the pool. The channel is drained
// (non-blockingly) first so a stale outcome from a timed-out attempt
// never leaks into the next user of this slot.
//
// release may only be called once st's one-and-only send to st.done is
// known to have happened: that is what guarantees no further write to
// st.done is possible once the slot is back in the pool. executor.invoke
// calls it right after receiving that send, and never on its timeout
// path, where the fetch goroutine may still be running.
func (p *attemptPool) release(st *attemptState) {
	if st == nil {
		return
	}
	select {
	case <-st.done:
	default:
	}
	p.pool.Put(st)
}

// metrics reports (hits, misses) for observability.
func (p *attemptPool) metrics() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

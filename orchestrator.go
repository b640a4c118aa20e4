package fetchgraph

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// FillOptions configures a Fill call, the Path-keyed analogue of the
// teacher's ScopeOption-configured Scope (scope.go).
type FillOptions struct {
	InitialParams map[string]any
	TimeoutMS     int
	Cache         Cache
	Extensions    []Extension
	Registry      *Registry
}

// FillOption configures FillOptions, following the teacher's functional
// option idiom (ScopeOption, ExecutorOption).
type FillOption func(*FillOptions)

// WithInitialParams seeds loaded with pre-realized Results, exposed as
// spec.md §6's "initial_params (mapping exposed as pre-loaded Results)".
func WithInitialParams(params map[string]any) FillOption {
	return func(o *FillOptions) { o.InitialParams = params }
}

// WithFillTimeout bounds the whole fill; 0 disables the bound.
func WithFillTimeout(d time.Duration) FillOption {
	return func(o *FillOptions) { o.TimeoutMS = int(d.Milliseconds()) }
}

// WithFillCache installs the cache contract fill consults.
func WithFillCache(c Cache) FillOption {
	return func(o *FillOptions) { o.Cache = c }
}

// WithFillExtension registers an Extension on the fill.
func WithFillExtension(ext Extension) FillOption {
	return func(o *FillOptions) { o.Extensions = append(o.Extensions, ext) }
}

// WithFillRegistry stores a per-id cache dispatch registry on the handle.
// The orchestrator does not consult it itself; cache-key overrides take
// effect through the Registry a Cache backend was built with.
func WithFillRegistry(r *Registry) FillOption {
	return func(o *FillOptions) { o.Registry = r }
}

// retryInfo tracks the transient, per-path retry state the main loop
// needs across iterations but which never belongs in loaded (it isn't
// terminal): how many attempts have been made and the backoff before the
// next one.
type retryInfo struct {
	attempts  int
	nextDelay time.Duration
}

// Handle is the running fill: shared loaded state plus everything needed
// to drive further Select calls against it, mirroring the teacher's
// Scope as the one long-lived coordinator object a caller holds.
type Handle struct {
	mu sync.Mutex // serializes concurrent Select calls (single-writer cooperative, spec.md §5)

	prescription Prescription
	loaded       map[Path]*Result
	retryState   map[Path]*retryInfo

	cache      Cache
	registry   *Registry
	extensions []Extension
	executor   *executor

	ctx    context.Context
	cancel context.CancelFunc
}

// Fill starts a new coordination session over prescription. It never
// blocks; use Select to drive the loop and consume results.
func Fill(prescription Prescription, opts ...FillOption) *Handle {
	cfg := &FillOptions{}
	for _, opt := range opts {
		opt(cfg)
	}

	cache := cfg.Cache
	if cache == nil {
		cache = noCache{}
	}

	extensions := append([]Extension(nil), cfg.Extensions...)
	sort.Slice(extensions, func(i, j int) bool {
		return extensions[i].Order() < extensions[j].Order()
	})

	ctx := context.Background()
	cancel := func() {}
	if cfg.TimeoutMS > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	}

	loaded := make(map[Path]*Result, len(cfg.InitialParams))
	for k, v := range cfg.InitialParams {
		loaded[P(k)] = Success(v)
	}

	return &Handle{
		prescription: prescription.Clone(),
		loaded:       loaded,
		retryState:   make(map[Path]*retryInfo),
		cache:        cache,
		registry:     cfg.Registry,
		extensions:   extensions,
		executor:     newExecutor(0, extensions),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close releases the handle's timeout timer. Safe to call multiple times.
func (h *Handle) Close() { h.cancel() }

// Select implements spec.md §6's select(handle, paths) → Stream<Event>:
// it drives the main loop far enough to terminalize every requested
// path (or give up with stub failures) and streams one Event per
// decision as it happens.
func Select(h *Handle, paths []Path) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		h.mu.Lock()
		defer h.mu.Unlock()
		h.runLoop(paths, out)
	}()
	return out
}

func (h *Handle) runLoop(paths []Path, out chan<- Event) {
	pending := make(map[Path]bool)
	for _, p := range paths {
		if res, ok := h.loaded[p]; ok && !res.Partial {
			h.emit(out, p, h.sourceView(p), res)
			continue
		}
		pending[p] = true
	}
	if len(pending) == 0 {
		return
	}

	for {
		select {
		case <-h.ctx.Done():
			h.stubFail(pending, out)
			return
		default:
		}

		h.refreshDeps()

		if h.completeCollections(pending, out) {
			continue
		}
		if h.tryCache(pending, out) {
			continue
		}
		if h.fetch(pending, out) {
			continue
		}
		if h.expandSelection(pending) {
			continue
		}
		break
	}

	h.stubFail(pending, out)
}

// refreshDeps recomputes Deps/ResolvedCacheDeps across the whole live
// prescription, including any descriptors expansion spliced in since the
// last pass.
func (h *Handle) refreshDeps() {
	resolved := ResolveDeps(h.prescription)
	for p, src := range resolved {
		if cur, ok := h.prescription[p]; ok {
			cur.Deps = src.Deps
		}
	}
	resolvedCache := ResolveCacheDeps(h.prescription)
	for p, src := range resolvedCache {
		if cur, ok := h.prescription[p]; ok {
			cur.ResolvedCacheDeps = src.ResolvedCacheDeps
		}
	}
}

// completeCollections is main-loop action 1 (spec.md §4.6).
func (h *Handle) completeCollections(pending map[Path]bool, out chan<- Event) bool {
	acted := false
	for p, res := range h.loaded {
		if res == nil || !res.Partial {
			continue
		}
		src, ok := h.prescription[p]
		if !ok {
			continue
		}
		children := h.childrenOf(p)
		if !allTerminal(h.loaded, children) {
			continue
		}
		composed := composeCollection(h.loaded, p, src, children)
		final := Success(composed)
		h.loaded[p] = final
		delete(pending, p)
		h.emit(out, p, h.sourceView(p), final)
		h.cachePut(p, src, final)
		acted = true
	}
	return acted
}

// tryCache is main-loop action 2 (spec.md §4.3, §4.6).
func (h *Handle) tryCache(pending map[Path]bool, out chan<- Event) bool {
	acted := false
	for p := range pending {
		if _, ok := h.loaded[p]; ok {
			continue
		}
		src, ok := h.prescription[p]
		if !ok || src.Refreshing {
			continue
		}
		if !depsSatisfied(h.loaded, src.ResolvedCacheDeps) {
			continue
		}

		materialized := Materialize(h.loaded, src)
		resolved := &ResolvedSource{ID: materialized.ID, Path: p, Params: cacheScopedParams(materialized)}

		result, found, err := h.cache.Get(h.ctx, p, resolved)
		if err != nil || !found || result == nil {
			continue
		}
		result.Cached = true
		result.Attempts = 0
		h.loaded[p] = result
		delete(pending, p)
		delete(h.retryState, p)
		h.emit(out, p, resolved, result)
		acted = true
	}
	return acted
}

// fetch is main-loop action 3: dispatch every ready pending path's next
// attempt concurrently via errgroup, mirroring the teacher's goroutine
// supervision pattern at the batch level (spec.md §5: "every fetch whose
// deps are currently satisfied is dispatched simultaneously").
func (h *Handle) fetch(pending map[Path]bool, out chan<- Event) bool {
	var batch []Path
	for p := range pending {
		if _, ok := h.loaded[p]; ok {
			continue
		}
		src, ok := h.prescription[p]
		if !ok {
			continue
		}
		if !depsSatisfied(h.loaded, src.Deps) {
			continue
		}
		batch = append(batch, p)
	}
	if len(batch) == 0 {
		return false
	}

	type outcome struct {
		path     Path
		src      *SourceDescriptor
		result   *Result
		resolved *ResolvedSource
	}
	outcomes := make([]outcome, len(batch))

	g, ctx := errgroup.WithContext(h.ctx)
	for i, p := range batch {
		i, p := i, p
		g.Go(func() error {
			src := h.prescription[p]
			materialized := Materialize(h.loaded, src)
			resolved := &ResolvedSource{ID: materialized.ID, Path: p, Params: valuesToMap(materialized.Params)}

			info := h.retryState[p]
			attemptNum := 1
			var delay time.Duration
			if info != nil {
				attemptNum = info.attempts + 1
				delay = info.nextDelay
			}

			result := h.executor.attempt(ctx, p, materialized, attemptNum, delay)
			outcomes[i] = outcome{path: p, src: src, result: result, resolved: resolved}
			return nil
		})
	}
	_ = g.Wait() // per-attempt errors are represented as failure Results, never returned here

	for _, oc := range outcomes {
		h.handleFetchOutcome(oc.path, oc.src, oc.result, oc.resolved, pending, out)
	}
	return true
}

func (h *Handle) handleFetchOutcome(p Path, src *SourceDescriptor, result *Result, resolved *ResolvedSource, pending map[Path]bool, out chan<- Event) {
	if result.Success {
		delete(h.retryState, p)
		h.spliceCompatPrescriptions(result, pending)
		if src.IsExpansionParent() {
			h.expandParent(p, src, result, pending, out)
			return
		}
		h.loaded[p] = result
		delete(pending, p)
		h.emit(out, p, resolved, result)
		h.cachePut(p, src, result)
		return
	}

	if !isRetryable(src, result) {
		h.loaded[p] = result
		delete(pending, p)
		delete(h.retryState, p)
		h.emit(out, p, resolved, result)
		return
	}

	result.Retrying = true
	h.emit(out, p, resolved, result)

	targets := refreshTargets(Materialize(h.loaded, src), result)
	if len(targets) > 0 {
		for _, t := range targets {
			if tsrc, ok := h.prescription[t]; ok {
				h.prescription[t] = beginRefresh(tsrc)
			}
			delete(h.loaded, t)
			delete(h.retryState, t)
			pending[t] = true
		}
		refreshing := src.clone()
		refreshing.Refreshing = true
		if src.OriginalParams != nil {
			refreshing.Params = src.OriginalParams.Clone()
		}
		h.prescription[p] = refreshing
	}

	h.retryState[p] = &retryInfo{attempts: result.Attempts, nextDelay: retryDelay(src, result)}
}

// spliceCompatPrescriptions implements the deprecated Prescriptions
// compatibility shim (spec.md §9): descriptors a fetch returns alongside a
// successful result are spliced into the live prescription and folded into
// pending, re-planned exactly like any other newly-discovered path. Unlike
// CollOf/Begets this never marks the producing path Partial — the spec
// gives the shim no join semantics of its own.
func (h *Handle) spliceCompatPrescriptions(result *Result, pending map[Path]bool) {
	for cp, cs := range result.Prescriptions {
		h.prescription[cp] = cs
		pending[cp] = true
	}
}

// expandParent handles a successful collection/begets parent: splice the
// new child descriptors into the live prescription, mark the parent
// Partial, and fold the children into pending.
func (h *Handle) expandParent(p Path, src *SourceDescriptor, result *Result, pending map[Path]bool, out chan<- Event) {
	var added Prescription
	var err error
	if src.HasCollOf() {
		added, err = expandCollection(h.prescription, p, src, result.Data)
	} else {
		added, err = expandBegets(h.prescription, p, src, result.Data)
	}
	if err != nil {
		failure := Failure(nil, WithNotRetryable())
		failure.Error = newFetchError(p, ErrResultNotRealizable, err)
		h.loaded[p] = failure
		delete(pending, p)
		h.emit(out, p, h.sourceView(p), failure)
		return
	}

	partial := *result
	partial.Partial = true
	h.loaded[p] = &partial
	h.emit(out, p, h.sourceView(p), &partial)

	for cp, cs := range added {
		h.prescription[cp] = cs
		pending[cp] = true
	}
}

// expandSelection is main-loop action 4: broaden pending with every
// currently-known dependency and cache-dependency of paths already in
// pending (spec.md §4.6 steps a-e collapsed into a single saturating
// pass, since a Path-keyed static resolver makes the finer-grained
// cache-deps-first staging only a scheduling nicety, not a correctness
// requirement — documented in DESIGN.md).
func (h *Handle) expandSelection(pending map[Path]bool) bool {
	grew := false
	for {
		var toAdd []Path
		for p := range pending {
			src, ok := h.prescription[p]
			if !ok {
				continue
			}
			for _, d := range src.ResolvedCacheDeps {
				if !pending[d] {
					toAdd = append(toAdd, d)
				}
			}
			for _, d := range src.Deps {
				if !pending[d] {
					toAdd = append(toAdd, d)
				}
			}
		}
		if len(toAdd) == 0 {
			break
		}
		for _, p := range toAdd {
			pending[p] = true
		}
		grew = true
	}
	return grew
}

// stubFail emits {success: false, attempts: 0} for every pending path
// still lacking a success in loaded, the terminal fallback spec.md §4.6
// describes when no further action can fire.
func (h *Handle) stubFail(pending map[Path]bool, out chan<- Event) {
	for p := range pending {
		if res, ok := h.loaded[p]; ok && res.Success {
			continue
		}
		res := Failure(nil, WithNotRetryable())
		res.Error = newFetchError(p, ErrUnreachable, nil)
		h.loaded[p] = res
		h.emit(out, p, h.sourceView(p), res)
	}
}

func (h *Handle) cachePut(p Path, src *SourceDescriptor, result *Result) {
	if result.Cached {
		return
	}
	materialized := Materialize(h.loaded, src)
	resolved := &ResolvedSource{ID: materialized.ID, Path: p, Params: cacheScopedParams(materialized)}
	_ = h.cache.Put(h.ctx, p, resolved, result)
}

// cacheScopedParams restricts a materialized source's params to its
// CacheParams allowlist before they reach the Cache contract (spec.md
// §4.3: "Custom dispatch points keyed on source id... cache_params
// restricts the key to a param subset"). CacheParams nil means every
// param participates, matching CanonicalCacheKey's own default.
func cacheScopedParams(materialized *SourceDescriptor) map[string]any {
	all := valuesToMap(materialized.Params)
	if len(materialized.CacheParams) == 0 {
		return all
	}
	scoped := make(map[string]any, len(materialized.CacheParams))
	for _, k := range materialized.CacheParams {
		if v, ok := all[k]; ok {
			scoped[k] = v
		}
	}
	return scoped
}

func (h *Handle) childrenOf(parent Path) []Path {
	var children []Path
	for p, src := range h.prescription {
		if src.HasMemberOf() && src.MemberOf == parent {
			children = append(children, p)
		}
	}
	return children
}

func (h *Handle) sourceView(p Path) *ResolvedSource {
	src, ok := h.prescription[p]
	if !ok {
		return &ResolvedSource{Path: p}
	}
	return &ResolvedSource{ID: src.ID, Path: p, Params: valuesToMap(src.Params)}
}

func (h *Handle) emit(out chan<- Event, p Path, source *ResolvedSource, result *Result) {
	for _, ext := range h.extensions {
		ext.OnEvent(Event{Path: p, Source: source, Result: result})
		if result.Error != nil && !result.Retrying {
			ext.OnError(result.Error, p)
		}
	}
	select {
	case <-h.ctx.Done():
	case out <- Event{Path: p, Source: source, Result: result}:
	}
}

// depsSatisfied reports whether every path in deps has a terminal,
// successful (non-partial) result in loaded.
func depsSatisfied(loaded map[Path]*Result, deps []Path) bool {
	for _, d := range deps {
		res, ok := loaded[d]
		if !ok || res == nil || !res.Success || res.Partial {
			return false
		}
	}
	return true
}

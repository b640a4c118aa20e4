package fetchgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Cache is the external collaborator spec.md §4.3 describes: a get/put
// pair keyed by path and the resolved (post dependency-substitution)
// source. The core assumes nothing about storage; cachestore/ ships
// concrete backends (sqlite, redis) against this same interface.
type Cache interface {
	Get(ctx context.Context, path Path, source *ResolvedSource) (*Result, bool, error)
	Put(ctx context.Context, path Path, source *ResolvedSource, result *Result) error
}

// CacheKeyFunc computes a custom cache key for a source, overriding the
// canonical derivation (spec.md §4.3: "Custom dispatch points keyed on
// source id... custom cache_key").
type CacheKeyFunc func(source *ResolvedSource) string

// CacheParamsFunc computes a custom CacheParams list for a source.
type CacheParamsFunc func(source *ResolvedSource) []string

// Registry holds per-id dispatch overrides for cache-key derivation: a
// custom cache-key function and a custom cache-params function per source
// id. It has no per-id cache_deps override; cache dependencies come only
// from each source's CacheDeps field.
type Registry struct {
	keyFuncs    map[string]CacheKeyFunc
	paramsFuncs map[string]CacheParamsFunc
}

// NewRegistry builds an empty dispatch registry.
func NewRegistry() *Registry {
	return &Registry{
		keyFuncs:    map[string]CacheKeyFunc{},
		paramsFuncs: map[string]CacheParamsFunc{},
	}
}

// RegisterCacheKey installs a custom cache-key function for a source id.
func (r *Registry) RegisterCacheKey(id string, fn CacheKeyFunc) {
	r.keyFuncs[id] = fn
}

// RegisterCacheParams installs a custom cache-params function for a
// source id.
func (r *Registry) RegisterCacheParams(id string, fn CacheParamsFunc) {
	r.paramsFuncs[id] = fn
}

// CanonicalCacheKey derives the default cache key spec.md §4.3 defines:
// (id, { p -> params[p] for p in cache_params }), cache_params defaulting
// to every param key, serialized deterministically (sorted keys) so two
// logically equal keys always produce the same string regardless of map
// iteration order.
func CanonicalCacheKey(source *ResolvedSource, cacheParams []string, registry *Registry) string {
	if registry != nil {
		if fn, ok := registry.keyFuncs[source.ID]; ok {
			return fn(source)
		}
	}

	keys := cacheParams
	if registry != nil {
		if fn, ok := registry.paramsFuncs[source.ID]; ok {
			keys = fn(source)
		}
	}
	if keys == nil {
		keys = make([]string, 0, len(source.Params))
		for k := range source.Params {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(source.ID)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%v", k, source.Params[k])
	}
	return sb.String()
}

// MemoryCache is the default in-memory Cache, adapted from the teacher's
// TypeSafeCache (cache.go): a sync.Map gives the same lock-free read path
// for a backend with no persistence requirement.
type MemoryCache struct {
	data     sync.Map // string cache key -> *Result
	registry *Registry
}

// NewMemoryCache builds an empty in-memory cache. registry may be nil to
// rely on canonical cache-key derivation exclusively.
func NewMemoryCache(registry *Registry) *MemoryCache {
	return &MemoryCache{registry: registry}
}

func (c *MemoryCache) key(source *ResolvedSource) string {
	return CanonicalCacheKey(source, nil, c.registry)
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, _ Path, source *ResolvedSource) (*Result, bool, error) {
	v, ok := c.data.Load(c.key(source))
	if !ok {
		return nil, false, nil
	}
	return v.(*Result), true, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, _ Path, source *ResolvedSource, result *Result) error {
	c.data.Store(c.key(source), result)
	return nil
}

// Size reports the number of cached entries.
func (c *MemoryCache) Size() int {
	count := 0
	c.data.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Clear drops every cached entry.
func (c *MemoryCache) Clear() {
	c.data.Range(func(k, _ any) bool {
		c.data.Delete(k)
		return true
	})
}

// noCache is used when Fill receives no Cache option: every Get misses
// and Put is a no-op, so the engine behaves correctly with caching simply
// absent instead of nil-pointer-panicking.
type noCache struct{}

func (noCache) Get(context.Context, Path, *ResolvedSource) (*Result, bool, error) {
	return nil, false, nil
}

func (noCache) Put(context.Context, Path, *ResolvedSource, *Result) error {
	return nil
}

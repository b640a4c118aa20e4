package fetchgraph

import (
	"context"
	"testing"
)

func TestCanonicalCacheKeyIsOrderIndependent(t *testing.T) {
	s1 := &ResolvedSource{ID: "profile", Params: map[string]any{"a": 1, "b": 2}}
	s2 := &ResolvedSource{ID: "profile", Params: map[string]any{"b": 2, "a": 1}}

	k1 := CanonicalCacheKey(s1, nil, nil)
	k2 := CanonicalCacheKey(s2, nil, nil)
	if k1 != k2 {
		t.Fatalf("expected map-iteration-order-independent keys, got %q vs %q", k1, k2)
	}
}

func TestCanonicalCacheKeyRestrictedByCacheParams(t *testing.T) {
	s := &ResolvedSource{ID: "profile", Params: map[string]any{"a": 1, "b": 2}}
	k := CanonicalCacheKey(s, []string{"a"}, nil)
	if k != "profile|a=1" {
		t.Fatalf("expected key restricted to 'a', got %q", k)
	}
}

func TestRegistryOverridesCacheKey(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCacheKey("profile", func(s *ResolvedSource) string { return "custom-key" })

	s := &ResolvedSource{ID: "profile", Params: map[string]any{"a": 1}}
	if k := CanonicalCacheKey(s, nil, reg); k != "custom-key" {
		t.Fatalf("expected custom key override, got %q", k)
	}
}

func TestMemoryCacheGetPutRoundTrip(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()
	src := &ResolvedSource{ID: "profile", Params: map[string]any{"id": 1}}

	if _, found, err := cache.Get(ctx, P("profile"), src); err != nil || found {
		t.Fatalf("expected a miss on an empty cache, got found=%v err=%v", found, err)
	}

	result := Success("data")
	if err := cache.Put(ctx, P("profile"), src, result); err != nil {
		t.Fatalf("unexpected Put error: %v", err)
	}

	got, found, err := cache.Get(ctx, P("profile"), src)
	if err != nil || !found {
		t.Fatalf("expected a hit after Put, got found=%v err=%v", found, err)
	}
	if got.Data != "data" {
		t.Fatalf("expected cached data 'data', got %v", got.Data)
	}

	if cache.Size() != 1 {
		t.Errorf("expected cache size 1, got %d", cache.Size())
	}
	cache.Clear()
	if cache.Size() != 0 {
		t.Error("expected cache cleared")
	}
}

func TestNoCacheAlwaysMisses(t *testing.T) {
	var c noCache
	ctx := context.Background()
	if err := c.Put(ctx, P("x"), &ResolvedSource{}, Success("v")); err != nil {
		t.Fatalf("expected noCache.Put to be a no-op, got %v", err)
	}
	if _, found, err := c.Get(ctx, P("x"), &ResolvedSource{}); err != nil || found {
		t.Fatalf("expected noCache to always miss, got found=%v err=%v", found, err)
	}
}

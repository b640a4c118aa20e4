package sqlite

import (
	"context"
	"testing"

	fetchgraph "github.com/fetchgraph/fetchgraph"
)

func TestSqliteCacheGetPutRoundTrip(t *testing.T) {
	cache, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("unexpected Open error: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	src := &fetchgraph.ResolvedSource{ID: "profile", Params: map[string]any{"id": 1}}
	p := fetchgraph.P("profile")

	if _, found, err := cache.Get(ctx, p, src); err != nil || found {
		t.Fatalf("expected a miss on an empty cache, got found=%v err=%v", found, err)
	}

	result := fetchgraph.Success(map[string]any{"name": "Ann"})
	result.Attempts = 1
	if err := cache.Put(ctx, p, src, result); err != nil {
		t.Fatalf("unexpected Put error: %v", err)
	}

	got, found, err := cache.Get(ctx, p, src)
	if err != nil || !found {
		t.Fatalf("expected a hit after Put, got found=%v err=%v", found, err)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["name"] != "Ann" {
		t.Fatalf("expected cached data {name: Ann}, got %#v", got.Data)
	}
}

func TestSqliteCachePutOverwritesExistingKey(t *testing.T) {
	cache, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("unexpected Open error: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	src := &fetchgraph.ResolvedSource{ID: "profile", Params: map[string]any{"id": 1}}
	p := fetchgraph.P("profile")

	_ = cache.Put(ctx, p, src, fetchgraph.Success("first"))
	_ = cache.Put(ctx, p, src, fetchgraph.Success("second"))

	got, _, _ := cache.Get(ctx, p, src)
	if got.Data != "second" {
		t.Fatalf("expected the later Put to overwrite, got %v", got.Data)
	}
}

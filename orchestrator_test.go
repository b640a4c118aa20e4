package fetchgraph

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestFillSelectSingleSourceSuccess(t *testing.T) {
	greeting := P("greeting")
	pres := Prescription{
		greeting: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success("hi"), nil
		}, WithID("greeting")),
	}

	h := Fill(pres)
	defer h.Close()

	summary := Collect(Select(h, []Path{greeting}))
	if !summary.Success {
		t.Fatal("expected success")
	}
	if summary.Data["greeting"] != "hi" {
		t.Fatalf("expected data['greeting']='hi', got %v", summary.Data)
	}
}

func TestFillSelectDependencyChain(t *testing.T) {
	auth := P("auth")
	profile := P("profile")

	pres := Prescription{
		auth: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success(map[string]any{"token": "tkn"}), nil
		}, WithID("auth")),
		profile: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success("profile-for-" + s.Params["token"].(string)), nil
		}, WithID("profile"), WithParams(ParamsMap(map[string]Value{
			"token": RefValue(Ref(auth, "token")),
		}))),
	}

	summary := Pull(pres, []Path{profile})
	if !summary.Success {
		t.Fatalf("expected success, sources=%+v", summary.Sources)
	}
	if summary.Data["profile"] != "profile-for-tkn" {
		t.Fatalf("expected dependency-substituted data, got %v", summary.Data["profile"])
	}
}

func TestFillSelectCacheHit(t *testing.T) {
	calls := int32(0)
	src := P("expensive")
	pres := Prescription{
		src: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			atomic.AddInt32(&calls, 1)
			return Success("computed"), nil
		}, WithID("expensive")),
	}

	cache := NewMemoryCache(nil)

	h1 := Fill(pres, WithFillCache(cache))
	Collect(Select(h1, []Path{src}))
	h1.Close()

	h2 := Fill(pres, WithFillCache(cache))
	summary := Collect(Select(h2, []Path{src}))
	h2.Close()

	if !summary.Success {
		t.Fatal("expected success")
	}
	if calls != 1 {
		t.Fatalf("expected the fetch to run once and be served from cache thereafter, got %d calls", calls)
	}
	if ev := summary.Sources[src]; ev.Result == nil || !ev.Result.Cached {
		t.Error("expected the second fill's result to be marked Cached")
	}
}

func TestFillSelectRetriesThenSucceeds(t *testing.T) {
	attempts := int32(0)
	src := P("flaky")
	pres := Prescription{
		src: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return Failure(nil), nil
			}
			return Success("finally"), nil
		}, WithID("flaky"), WithRetries(5, time.Millisecond)),
	}

	summary := Pull(pres, []Path{src})
	if !summary.Success {
		t.Fatalf("expected eventual success, sources=%+v", summary.Sources)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestFillSelectExhaustsRetriesAndFails(t *testing.T) {
	src := P("always-fails")
	pres := Prescription{
		src: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Failure(nil), nil
		}, WithID("always-fails"), WithRetries(1, time.Millisecond)),
	}

	summary := Pull(pres, []Path{src})
	if summary.Success {
		t.Fatal("expected overall failure once retries are exhausted")
	}
}

func TestFillSelectUnreachableMissingDepStubFails(t *testing.T) {
	missing := P("missing")
	dependent := P("dependent")

	pres := Prescription{
		dependent: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			t.Fatal("fetch should never run: its dependency can never terminalize")
			return nil, nil
		}, WithID("dependent"), WithParams(ParamsMap(map[string]Value{
			"x": RefValue(Ref(missing)),
		}))),
	}

	summary := Pull(pres, []Path{dependent})
	if summary.Success {
		t.Fatal("expected failure for an unreachable dependency")
	}
	ev := summary.Sources[dependent]
	if ev.Result == nil || ev.Result.Error == nil || ev.Result.Error.Kind != ErrUnreachable {
		t.Fatalf("expected ErrUnreachable, got %+v", ev.Result)
	}
}

func TestFillSelectCollectionExpansion(t *testing.T) {
	itemTemplate := P("item_template")
	items := P("items")

	pres := Prescription{
		items: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success([]any{"a", "b"}), nil
		}, WithID("items"), WithCollOf(itemTemplate)),
		itemTemplate: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success(s.Params["_"].(string) + "!"), nil
		}, WithID("item_template")),
	}

	summary := Pull(pres, []Path{items})
	if !summary.Success {
		t.Fatalf("expected success, sources=%+v", summary.Sources)
	}
	data, ok := summary.Data["items"].([]any)
	if !ok || len(data) != 2 || data[0] != "a!" || data[1] != "b!" {
		t.Fatalf("expected composed ['a!', 'b!'], got %#v", summary.Data["items"])
	}
}

func TestFillSelectBegetsExpansion(t *testing.T) {
	addressTemplate := P("address_template")
	user := P("user")

	pres := Prescription{
		user: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success(map[string]any{"id": 7}), nil
		}, WithID("user"), WithBegets(map[string]Path{"address": addressTemplate})),
		addressTemplate: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			parent := s.Params[user.String()].(map[string]any)
			return Success(fmt.Sprintf("addr-for-%d", parent["id"])), nil
		}, WithID("address_template")),
	}

	summary := Pull(pres, []Path{user})
	if !summary.Success {
		t.Fatalf("expected success, sources=%+v", summary.Sources)
	}
	composed, ok := summary.Data["user"].(map[string]any)
	if !ok || composed["address"] != "addr-for-7" {
		t.Fatalf("expected user composed to {address: 'addr-for-7'}, got %#v", summary.Data["user"])
	}
	if ev, ok := summary.Sources[user.Child("address")]; !ok || ev.Result == nil || !ev.Result.Success {
		t.Error("expected a terminal event for the spawned user.address child")
	}
}

func TestFillSelectRefreshesDependencyOn403(t *testing.T) {
	authCalls := int32(0)
	playlistCalls := int32(0)

	auth := P("auth")
	playlists := P("playlists")

	pres := Prescription{
		auth: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			n := atomic.AddInt32(&authCalls, 1)
			return Success(map[string]any{"access_token": int(n)}), nil
		}, WithID("auth")),
		playlists: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			n := atomic.AddInt32(&playlistCalls, 1)
			if n == 1 {
				return Failure(nil, WithRefresh("token")), nil
			}
			return Success(fmt.Sprintf("playlists-for-%v", s.Params["token"])), nil
		}, WithID("playlists"), WithRetries(1, time.Millisecond), WithParams(ParamsMap(map[string]Value{
			"token": RefValue(Ref(auth, "access_token")),
		}))),
	}

	summary := Pull(pres, []Path{playlists})
	if !summary.Success {
		t.Fatalf("expected eventual success, sources=%+v", summary.Sources)
	}
	if authCalls != 2 {
		t.Fatalf("expected auth to be re-fetched once on refresh, got %d calls", authCalls)
	}
	if playlistCalls != 2 {
		t.Fatalf("expected exactly 2 playlists attempts, got %d", playlistCalls)
	}
	if summary.Data["playlists"] != "playlists-for-2" {
		t.Fatalf("expected playlists to see the refreshed token, got %v", summary.Data["playlists"])
	}
}

func TestFillSelectCacheSkipsUnrelatedDependency(t *testing.T) {
	authCalls := int32(0)

	auth := P("auth")
	playlists := P("playlists")

	cache := NewMemoryCache(nil)
	resolved := &ResolvedSource{ID: "playlists", Params: map[string]any{"id": "7"}}
	if err := cache.Put(context.Background(), playlists, resolved, Success("cached-playlists")); err != nil {
		t.Fatalf("unexpected error pre-populating cache: %v", err)
	}

	pres := Prescription{
		auth: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			atomic.AddInt32(&authCalls, 1)
			return Success(map[string]any{"access_token": "tkn"}), nil
		}, WithID("auth")),
		playlists: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			t.Fatal("playlists fetch should never run: it must be served entirely from cache")
			return nil, nil
		}, WithID("playlists"), WithCacheDeps("id"), WithCacheParams("id"), WithParams(ParamsMap(map[string]Value{
			"token": RefValue(Ref(auth, "access_token")),
			"id":    Lit("7"),
		}))),
	}

	summary := Pull(pres, []Path{playlists}, WithFillCache(cache))
	if !summary.Success {
		t.Fatalf("expected success, sources=%+v", summary.Sources)
	}
	if summary.Data["playlists"] != "cached-playlists" {
		t.Fatalf("expected cached data, got %v", summary.Data["playlists"])
	}
	if authCalls != 0 {
		t.Fatalf("expected zero auth fetches since playlists was cache-satisfied, got %d", authCalls)
	}
	if ev := summary.Sources[playlists]; ev.Result == nil || !ev.Result.Cached {
		t.Error("expected playlists' event to be marked Cached")
	}
}

func TestFillSelectCompatPrescriptionsShim(t *testing.T) {
	extra := P("extra")
	main := P("main")

	pres := Prescription{
		main: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
			return Success("main-data", WithPrescriptions(map[Path]*SourceDescriptor{
				extra: NewSource(func(ctx context.Context, s *ResolvedSource) (*Result, error) {
					return Success("extra-data"), nil
				}, WithID("extra")),
			})), nil
		}, WithID("main")),
	}

	summary := Pull(pres, []Path{main, extra})
	if !summary.Success {
		t.Fatalf("expected success, sources=%+v", summary.Sources)
	}
	if summary.Data["extra"] != "extra-data" {
		t.Fatalf("expected the spliced-in prescription to be fetched, got %v", summary.Data["extra"])
	}
}

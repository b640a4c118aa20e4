package fetchgraph

import (
	"testing"
	"time"
)

func TestIsRetryableRespectsBudget(t *testing.T) {
	src := NewSource(nil, WithID("s"), WithRetries(2))

	res1 := Failure(nil)
	res1.Attempts = 1
	if !isRetryable(src, res1) {
		t.Error("expected retryable on attempt 1 of 2 retries")
	}

	res3 := Failure(nil)
	res3.Attempts = 3
	if isRetryable(src, res3) {
		t.Error("expected not retryable once attempts exceed retry budget")
	}
}

func TestIsRetryableRespectsResultFlag(t *testing.T) {
	src := NewSource(nil, WithID("s"), WithRetries(5))
	res := Failure(nil, WithNotRetryable())
	res.Attempts = 1
	if isRetryable(src, res) {
		t.Error("expected WithNotRetryable to override remaining budget")
	}
}

func TestRetryDelayPrefersResultOverride(t *testing.T) {
	src := NewSource(nil, WithID("s"), WithRetries(3, 10*time.Millisecond))
	res := Failure(nil, WithRetryDelay(50*time.Millisecond))
	res.Attempts = 1
	if d := retryDelay(src, res); d != 50*time.Millisecond {
		t.Fatalf("expected result's override delay, got %v", d)
	}
}

func TestRetryDelayFallsBackToSourceSchedule(t *testing.T) {
	src := NewSource(nil, WithID("s"), WithRetries(3, 10*time.Millisecond, 20*time.Millisecond))
	res2 := Failure(nil)
	res2.Attempts = 2
	if d := retryDelay(src, res2); d != 20*time.Millisecond {
		t.Fatalf("expected second delay 20ms, got %v", d)
	}

	res5 := Failure(nil)
	res5.Attempts = 5
	if d := retryDelay(src, res5); d != 20*time.Millisecond {
		t.Fatalf("expected delay to clamp to the last configured value, got %v", d)
	}
}

func TestRefreshTargetsMapsKeysBackToSourcePaths(t *testing.T) {
	auth := P("auth")
	locale := P("locale")
	src := NewSource(nil, WithID("profile"), WithParams(ParamsMap(map[string]Value{
		"token":  RefValue(Ref(auth)),
		"locale": RefValue(Ref(locale)),
	})))
	materialized := Materialize(map[Path]*Result{}, src)

	result := Failure(nil, WithRefresh("token"))

	targets := refreshTargets(materialized, result)
	if len(targets) != 1 || targets[0] != auth {
		t.Fatalf("expected refresh targets [auth], got %v", targets)
	}
}

func TestRefreshTargetsWholeExpandsToAllDeps(t *testing.T) {
	auth := P("auth")
	locale := P("locale")
	src := NewSource(nil, WithID("profile"), WithParams(ParamsMap(map[string]Value{
		"token":  RefValue(Ref(auth)),
		"locale": RefValue(Ref(locale)),
	})))
	materialized := Materialize(map[Path]*Result{}, src)
	result := Failure(nil, WithRefresh(RefreshWhole))

	targets := refreshTargets(materialized, result)
	if len(targets) != 2 {
		t.Fatalf("expected both deps as refresh targets, got %v", targets)
	}
}

func TestBeginRefreshRestoresOriginalParamsAndClearsDeps(t *testing.T) {
	auth := P("auth")
	src := NewSource(nil, WithID("profile"), WithParams(ParamsMap(map[string]Value{
		"token": RefValue(Ref(auth)),
	})))

	loaded := map[Path]*Result{auth: Success("tok-1")}
	materialized := Materialize(loaded, src)
	materialized.Deps = []Path{auth}
	materialized.ResolvedCacheDeps = []Path{auth}

	refreshed := beginRefresh(materialized)
	if !refreshed.Refreshing {
		t.Error("expected Refreshing to be true")
	}
	if refreshed.Deps != nil || refreshed.ResolvedCacheDeps != nil {
		t.Error("expected derived dep sets cleared so the resolver recomputes them")
	}
	if !refreshed.Params.Fields()["token"].IsRef() {
		t.Error("expected params restored to the original unresolved ref")
	}
}

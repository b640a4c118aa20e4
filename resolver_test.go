package fetchgraph

import "testing"

func TestResolveDepsSimpleChain(t *testing.T) {
	auth := P("auth")
	profile := P("profile")

	pres := Prescription{
		auth: NewSource(nil, WithID("auth")),
		profile: NewSource(nil, WithID("profile"), WithParams(ParamsMap(map[string]Value{
			"token": RefValue(Ref(auth, "token")),
		}))),
	}

	resolved := ResolveDeps(pres)

	if deps := resolved[profile].Deps; len(deps) != 1 || deps[0] != auth {
		t.Fatalf("expected profile to depend on [auth], got %v", deps)
	}
	if deps := resolved[auth].Deps; len(deps) != 0 {
		t.Fatalf("expected auth to have no deps, got %v", deps)
	}
}

func TestResolveDepsWholeRef(t *testing.T) {
	parent := P("parent")
	child := P("child")

	pres := Prescription{
		parent: NewSource(nil, WithID("parent")),
		child:  NewSource(nil, WithID("child"), WithParams(ParamsRef(parent))),
	}

	resolved := ResolveDeps(pres)
	deps := resolved[child].Deps
	if len(deps) != 1 || deps[0] != parent {
		t.Fatalf("expected child to depend on [parent] via whole-ref, got %v", deps)
	}
}

func TestResolveDepsCollectionAugmentation(t *testing.T) {
	parent := P("items")
	member0 := parent.Child("0")
	member1 := parent.Child("1")

	template := *NewSource(nil, WithID("item"))
	m0 := template
	m0.MemberOf = parent
	m1 := template
	m1.MemberOf = parent

	pres := Prescription{
		parent: NewSource(nil, WithID("items"), WithCollOf(P("item_template"))),
		member0: &m0,
		member1: &m1,
	}
	// exercise HasMemberOf via hasMemberOf set by WithMemberOf-equivalent manual field
	pres[member0].hasMemberOf = true
	pres[member1].hasMemberOf = true

	resolved := ResolveDeps(pres)
	deps := resolved[parent].Deps
	if !hasDep(deps, member0) || !hasDep(deps, member1) {
		t.Fatalf("expected parent to depend on both members, got %v", deps)
	}
}

func TestResolveCacheDepsRestrictsToCacheDepsKeys(t *testing.T) {
	auth := P("auth")
	locale := P("locale")
	profile := P("profile")

	pres := Prescription{
		auth:   NewSource(nil, WithID("auth")),
		locale: NewSource(nil, WithID("locale")),
		profile: NewSource(nil, WithID("profile"),
			WithParams(ParamsMap(map[string]Value{
				"token":  RefValue(Ref(auth)),
				"locale": RefValue(Ref(locale)),
			})),
			WithCacheDeps("token"),
		),
	}

	resolved := ResolveCacheDeps(pres)
	deps := resolved[profile].ResolvedCacheDeps
	if len(deps) != 1 || deps[0] != auth {
		t.Fatalf("expected cache deps restricted to [auth], got %v", deps)
	}
}

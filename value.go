package fetchgraph

// DepRef is a non-empty ordered reference into another source's result:
// the source's Path followed by an optional sub-path navigating into its
// data (map keys or slice indices, hence []any rather than []string).
//
// Design Note: this is the tagged-variant "this value is a dependency"
// marker spec.md §9 calls out as an implementation detail for runtimes
// without dynamic metadata on param values — here expressed as an
// explicit Go type rather than language-level metadata.
type DepRef struct {
	Source Path
	Sub    []any
}

// Ref builds a DepRef pointing at source, optionally navigating into its
// result via sub (e.g. Ref(P("auth"), "token") reads loaded["auth"].Data["token"]).
func Ref(source Path, sub ...any) DepRef {
	return DepRef{Source: source, Sub: sub}
}

// Value is a tagged union over a literal parameter value and a dependency
// reference, mirroring spec.md's `Literal(v) | DepRef(path)` algebraic type.
type Value struct {
	ref     *DepRef
	literal any
}

// Lit wraps a literal (non-dependency) parameter value.
func Lit(v any) Value {
	return Value{literal: v}
}

// RefValue wraps a DepRef as a Value, for use as a params map entry.
func RefValue(ref DepRef) Value {
	return Value{ref: &ref}
}

// IsRef reports whether this value is a dependency reference.
func (v Value) IsRef() bool {
	return v.ref != nil
}

// AsRef returns the underlying DepRef and true if this value is a
// reference; otherwise the zero DepRef and false.
func (v Value) AsRef() (DepRef, bool) {
	if v.ref == nil {
		return DepRef{}, false
	}
	return *v.ref, true
}

// Raw returns the underlying literal. Callers should check IsRef first;
// Raw on a reference value returns nil.
func (v Value) Raw() any {
	return v.literal
}

// Params is a source's parameter specification: either a whole-result
// DepRef ("take the parent's entire result as my params map", spec.md §3)
// or a mapping from parameter key to Value.
type Params struct {
	whole  *DepRef
	fields map[string]Value
}

// ParamsRef builds a whole-params DepRef: the source's params are the
// entire result (navigated by sub, if any) of another source.
func ParamsRef(source Path, sub ...any) Params {
	ref := Ref(source, sub...)
	return Params{whole: &ref}
}

// ParamsMap builds an ordinary key-to-value params mapping.
func ParamsMap(fields map[string]Value) Params {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Params{fields: fields}
}

// IsWholeRef reports whether this Params is a single whole-result DepRef.
func (p Params) IsWholeRef() bool {
	return p.whole != nil
}

// WholeRef returns the whole-params DepRef and true, if IsWholeRef.
func (p Params) WholeRef() (DepRef, bool) {
	if p.whole == nil {
		return DepRef{}, false
	}
	return *p.whole, true
}

// Fields returns the key-to-value mapping. Empty (never nil) when this
// Params is a whole-result reference.
func (p Params) Fields() map[string]Value {
	if p.fields == nil {
		return map[string]Value{}
	}
	return p.fields
}

// Clone returns a shallow copy of Fields suitable for in-place
// materialization without mutating the original descriptor's params.
func (p Params) Clone() Params {
	if p.whole != nil {
		ref := *p.whole
		return Params{whole: &ref}
	}
	cloned := make(map[string]Value, len(p.fields))
	for k, v := range p.fields {
		cloned[k] = v
	}
	return Params{fields: cloned}
}

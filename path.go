package fetchgraph

import "strings"

// pathSep joins path segments internally. Segments themselves must not
// contain it; callers use ordinary identifiers (source ids, map keys,
// collection indices formatted as decimal strings).
const pathSep = "\x1f"

// Path identifies a realized value: either a top-level source (length 1)
// or a nested child spawned by a collection/begets expansion (length > 1,
// where the first segment names the enclosing parent). Path is a plain
// string under the hood so it can be used directly as a map key.
type Path string

// P constructs a root path from a single segment, the common case of
// naming a source in a prescription.
func P(segment string) Path {
	return Path(segment)
}

// NewPath joins segments into a single path. At least one segment is
// required; NewPath panics on an empty argument list, matching the spec's
// invariant that a DependencyReference (and by extension a Path) is never
// empty.
func NewPath(segments ...string) Path {
	if len(segments) == 0 {
		panic("fetchgraph: NewPath requires at least one segment")
	}
	return Path(strings.Join(segments, pathSep))
}

// Child appends a segment, producing the path of a collection member or a
// begets child spawned from this path's source.
func (p Path) Child(segment string) Path {
	return Path(string(p) + pathSep + segment)
}

// Segments returns the path's component keys in order.
func (p Path) Segments() []string {
	return strings.Split(string(p), pathSep)
}

// Len reports how many segments the path has. A collection/begets child
// has Len() > 1.
func (p Path) Len() int {
	return len(p.Segments())
}

// Root returns the first segment as its own path — the enclosing source
// for a nested child, or the path itself when Len() == 1.
func (p Path) Root() Path {
	segs := p.Segments()
	return Path(segs[0])
}

// Parent returns the path with its last segment removed, and whether one
// existed (false for a top-level, length-1 path).
func (p Path) Parent() (Path, bool) {
	segs := p.Segments()
	if len(segs) <= 1 {
		return "", false
	}
	return NewPath(segs[:len(segs)-1]...), true
}

// IsChildOf reports whether p was spawned directly from parent (p has
// exactly one more segment than parent, and shares parent's prefix).
func (p Path) IsChildOf(parent Path) bool {
	pp, ok := p.Parent()
	return ok && pp == parent
}

// String renders the path for logs and error messages, using "." between
// segments for readability.
func (p Path) String() string {
	return strings.Join(p.Segments(), ".")
}

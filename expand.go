package fetchgraph

import "fmt"

// expandCollection implements spec.md §4.6's Collection expansion: a
// source with CollOf = T whose successful raw data is a slice or map is
// split into one child descriptor per element, keyed (parent, index) or
// (parent, key), cloned from the template at T.
func expandCollection(prescription Prescription, parent Path, src *SourceDescriptor, data any) (Prescription, error) {
	template, ok := prescription[src.CollOf]
	if !ok {
		return nil, fmt.Errorf("coll_of template %s not found for %s", src.CollOf, parent)
	}

	added := make(Prescription)

	switch v := data.(type) {
	case []any:
		for i, elem := range v {
			childPath := parent.Child(fmt.Sprintf("%d", i))
			added[childPath] = instantiateMember(template, parent, src.CollOf, elem)
		}
	case map[string]any:
		for key, elem := range v {
			childPath := parent.Child(key)
			added[childPath] = instantiateMember(template, parent, src.CollOf, elem)
		}
	default:
		return nil, fmt.Errorf("coll_of source %s produced non-collection data", parent)
	}

	return added, nil
}

// instantiateMember clones a collection template into a concrete member
// descriptor, seeding its params with the element's own value under "_"
// alongside whatever the template already specifies, and recording
// MemberOf/TemplatePath per spec.md §4.6.
func instantiateMember(template *SourceDescriptor, parent Path, templatePath Path, elem any) *SourceDescriptor {
	child := template.clone()
	child.MemberOf = parent
	child.hasMemberOf = true
	child.TemplatePath = templatePath
	child.hasTemplatePath = true

	fields := child.Params.Fields()
	merged := make(map[string]Value, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["_"] = Lit(elem)
	child.Params = ParamsMap(merged)
	return child
}

// expandBegets implements spec.md §4.6's Begets expansion: for each
// (key, template) pair, spawn a child at parent ++ [key] whose params are
// the parent's result under the parent's path key, unless the template's
// own params already depend on the parent (in which case that reference
// is left to materialize normally).
func expandBegets(prescription Prescription, parent Path, src *SourceDescriptor, data any) (Prescription, error) {
	added := make(Prescription)

	for key, templatePath := range src.Begets {
		template, ok := prescription[templatePath]
		if !ok {
			return nil, fmt.Errorf("begets template %s not found for %s", templatePath, parent)
		}
		childPath := parent.Child(key)

		child := template.clone()
		child.MemberOf = parent
		child.hasMemberOf = true
		child.TemplatePath = templatePath
		child.hasTemplatePath = true

		if !dependsOn(template.Params, parent) {
			fields := child.Params.Fields()
			merged := make(map[string]Value, len(fields)+1)
			for k, v := range fields {
				merged[k] = v
			}
			merged[parent.String()] = Lit(data)
			child.Params = ParamsMap(merged)
		}

		added[childPath] = child
	}

	return added, nil
}

// dependsOn reports whether p's params reference source anywhere.
func dependsOn(p Params, source Path) bool {
	if ref, ok := p.WholeRef(); ok {
		return ref.Source == source
	}
	for _, v := range p.Fields() {
		if ref, ok := v.AsRef(); ok && ref.Source == source {
			return true
		}
	}
	return false
}

// allTerminal reports whether every path in children has a terminal
// (non-partial) result recorded in loaded.
func allTerminal(loaded map[Path]*Result, children []Path) bool {
	for _, c := range children {
		res, ok := loaded[c]
		if !ok || res == nil || res.Partial {
			return false
		}
	}
	return true
}

// composeCollection builds the final composed data for a completed
// collection/begets parent: array-or-map for collections (indexed by the
// same key scheme expandCollection used), keyed sub-fields for begets.
func composeCollection(loaded map[Path]*Result, parent Path, src *SourceDescriptor, children []Path) any {
	if src.HasCollOf() {
		return composeAsCollection(loaded, parent, children)
	}
	out := make(map[string]any, len(children))
	for _, c := range children {
		res := loaded[c]
		key := childKey(parent, c)
		out[key] = res.Data
	}
	return out
}

func composeAsCollection(loaded map[Path]*Result, parent Path, children []Path) any {
	asArray := true
	for _, c := range children {
		if _, isIndex := indexSuffix(parent, c); !isIndex {
			asArray = false
			break
		}
	}
	if asArray {
		out := make([]any, len(children))
		for _, c := range children {
			idx, _ := indexSuffix(parent, c)
			if idx >= 0 && idx < len(out) {
				out[idx] = loaded[c].Data
			}
		}
		return out
	}
	out := make(map[string]any, len(children))
	for _, c := range children {
		out[childKey(parent, c)] = loaded[c].Data
	}
	return out
}

func childKey(parent, child Path) string {
	segs := child.Segments()
	return segs[len(segs)-1]
}

func indexSuffix(parent, child Path) (int, bool) {
	key := childKey(parent, child)
	n := 0
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, len(key) > 0
}

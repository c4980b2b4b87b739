package blueprint

import (
	"sort"
	"strings"
)

// Sep separates path levels in dotted override and declaration names, as in
// "owner__name". The prefix routes the entry to a nested factory attribute;
// the remainder is forwarded verbatim into the nested resolution.
const Sep = "__"

// splitKey eagerly parses a dotted name into its root attribute and the
// remainder forwarded to the nested level. The remainder may itself contain
// further separators; each level splits exactly once.
func splitKey(name string) (root, rest string) {
	if i := strings.Index(name, Sep); i >= 0 {
		return name[:i], name[i+len(Sep):]
	}
	return name, ""
}

// overrideEntry groups everything the caller supplied for one root attribute:
// an optional verbatim value plus the nested context destined for a
// sub-factory (keyed by the remainder of the dotted name).
type overrideEntry struct {
	name     string
	value    any
	hasValue bool
	context  map[string]any
}

// overrideSet is the structured, eagerly parsed form of a caller's override
// mapping. Roots are sorted so extra attributes resolve deterministically.
type overrideSet struct {
	roots   []string
	entries map[string]*overrideEntry
}

func newOverrideSet(overrides map[string]any) *overrideSet {
	os := &overrideSet{entries: make(map[string]*overrideEntry, len(overrides))}
	for name, value := range overrides {
		root, rest := splitKey(name)
		entry, ok := os.entries[root]
		if !ok {
			entry = &overrideEntry{name: root}
			os.entries[root] = entry
			os.roots = append(os.roots, root)
		}
		if rest == "" {
			entry.value = value
			entry.hasValue = true
		} else {
			if entry.context == nil {
				entry.context = make(map[string]any)
			}
			entry.context[rest] = value
		}
	}
	sort.Strings(os.roots)
	return os
}

func (os *overrideSet) get(name string) (*overrideEntry, bool) {
	e, ok := os.entries[name]
	return e, ok
}

// mergeOverrides layers caller-forwarded overrides on top of declared
// defaults. Both inputs stay untouched.
func mergeOverrides(defaults, forwarded map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(forwarded))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range forwarded {
		merged[k] = v
	}
	return merged
}

// declEntry is one named slot in a declaration set: the declaration itself
// plus nested context contributed by dotted declaration names
// ("owner__name" declared on the factory becomes context of "owner").
type declEntry struct {
	name    string
	decl    Declaration
	context map[string]any
}

// declSet is an ordered name -> declaration mapping. Re-declaring a name
// replaces the declaration but keeps the original position, mirroring how
// descendants override ancestors without reordering the merged set.
type declSet struct {
	order   []string
	entries map[string]*declEntry
}

func newDeclSet() *declSet {
	return &declSet{entries: make(map[string]*declEntry)}
}

func (ds *declSet) entry(root string) *declEntry {
	e, ok := ds.entries[root]
	if !ok {
		e = &declEntry{name: root}
		ds.entries[root] = e
		ds.order = append(ds.order, root)
	}
	return e
}

// put inserts a declaration or, for dotted names, nested context under the
// root attribute. Context values may be declarations or plain values.
func (ds *declSet) put(name string, value any) {
	root, rest := splitKey(name)
	e := ds.entry(root)
	if rest == "" {
		e.decl = asDeclaration(value)
		return
	}
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[rest] = value
}

// merge copies every entry of other into ds, preserving other's order for
// names not yet present and overriding declarations for names that are.
func (ds *declSet) merge(other *declSet) {
	for _, name := range other.order {
		src := other.entries[name]
		dst := ds.entry(name)
		if src.decl != nil {
			dst.decl = src.decl
		}
		for k, v := range src.context {
			if dst.context == nil {
				dst.context = make(map[string]any)
			}
			dst.context[k] = v
		}
	}
}

func (ds *declSet) get(name string) (*declEntry, bool) {
	e, ok := ds.entries[name]
	return e, ok
}

func (ds *declSet) names() []string {
	out := make([]string, len(ds.order))
	copy(out, ds.order)
	return out
}

// partition splits the set into pre- and post-construction subsets, keeping
// merged order within each.
func (ds *declSet) partition() (pre, post *declSet) {
	pre, post = newDeclSet(), newDeclSet()
	for _, name := range ds.order {
		e := ds.entries[name]
		target := pre
		if e.decl != nil && isPostDecl(e.decl) {
			target = post
		}
		dst := target.entry(name)
		dst.decl = e.decl
		dst.context = e.context
	}
	return pre, post
}

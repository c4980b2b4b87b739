package blueprint

import (
	"fmt"
	"sort"
	"strings"
)

// Param is a named bundle that expands into zero or more declarations when
// the definition is compiled. Parameters never reach the constructor
// arguments themselves; they exist to be read by other declarations.
type Param interface {
	// Declarations returns the declarations contributed under the given
	// parameter name. lookup exposes the declarations merged so far, so
	// traits can wrap the declaration they shadow.
	Declarations(name string, lookup func(string) (Declaration, bool)) (Attrs, error)
	// RevDeps reports which other parameters this parameter reads.
	RevDeps(params map[string]Param) []string
}

// ParamSpec names one parameter of a definition; order is declaration order.
type ParamSpec struct {
	Name  string
	Param Param
}

// Params is the ordered parameter list of a definition.
type Params []ParamSpec

// simpleParam wraps a plain value (or declaration) as a parameter: the value
// is resolvable by name from Lazy and SelfAttr declarations but excluded from
// the final arguments.
type simpleParam struct {
	value any
}

// ParamValue declares a constant parameter.
func ParamValue(v any) Param { return simpleParam{value: v} }

func (p simpleParam) Declarations(name string, _ func(string) (Declaration, bool)) (Attrs, error) {
	return Attrs{{Name: name, Decl: asDeclaration(p.value)}}, nil
}

func (p simpleParam) RevDeps(map[string]Param) []string { return nil }

// Trait is a boolean-gated bundle of attribute overrides. When the parameter
// named after the trait resolves true, each override shadows the declaration
// of the same name; otherwise the previously merged declaration (or nothing)
// applies. Explicit caller overrides for an attribute always dominate the
// trait.
type Trait struct {
	Overrides Attrs
}

func (t Trait) Declarations(name string, lookup func(string) (Declaration, bool)) (Attrs, error) {
	out := make(Attrs, 0, len(t.Overrides))
	for _, attr := range t.Overrides {
		if strings.Contains(attr.Name, Sep) {
			return nil, fmt.Errorf("trait %q overrides dotted attribute %q; traits only override plain attribute names", name, attr.Name)
		}
		var no any = Skip
		post := isPostDecl(attr.Decl)
		if prev, ok := lookup(attr.Name); ok {
			if isPostDecl(prev) != post {
				return nil, fmt.Errorf("trait %q override for %q changes its construction phase", name, attr.Name)
			}
			no = prev
		}
		out = append(out, Attr{Name: attr.Name, Decl: maybeDecl{param: name, yes: attr.Decl, no: no, post: post}})
	}
	return out, nil
}

// RevDeps reports the parameters this trait shadows: overriding another
// parameter's name means reading its prior value.
func (t Trait) RevDeps(params map[string]Param) []string {
	var deps []string
	for _, attr := range t.Overrides {
		if _, ok := params[attr.Name]; ok {
			deps = append(deps, attr.Name)
		}
	}
	return deps
}

// resolveParamOrder computes the evaluation order for parameters from their
// declared reverse-dependencies. A parameter cannot be expanded before any
// parameter in its reverse-dependency closure; declaration order breaks
// ties. Cycles fail with the offending parameter names, sorted and
// deduplicated.
func resolveParamOrder(factory string, params Params) ([]string, error) {
	byName := make(map[string]Param, len(params))
	for _, p := range params {
		byName[p.Name] = p.Param
	}

	revdeps := make(map[string][]string, len(params))
	for _, p := range params {
		revdeps[p.Name] = p.Param.RevDeps(byName)
	}

	// Deep reverse-dependency closure by fixpoint: union each direct
	// dependency's closure with the direct dependencies until stable. A
	// parameter is cyclic when it appears in its own closure.
	closure := make(map[string]map[string]struct{}, len(params))
	for _, p := range params {
		c := make(map[string]struct{})
		for _, dep := range revdeps[p.Name] {
			c[dep] = struct{}{}
		}
		closure[p.Name] = c
	}
	for changed := true; changed; {
		changed = false
		for _, p := range params {
			c := closure[p.Name]
			for _, dep := range revdeps[p.Name] {
				for d := range closure[dep] {
					if _, ok := c[d]; !ok {
						c[d] = struct{}{}
						changed = true
					}
				}
			}
		}
	}

	var cyclic []string
	for _, p := range params {
		if _, ok := closure[p.Name][p.Name]; ok {
			cyclic = append(cyclic, p.Name)
		}
	}
	if len(cyclic) > 0 {
		sort.Strings(cyclic)
		return nil, &CyclicParamsError{Factory: factory, Params: cyclic}
	}

	// Kahn walk with declaration order as the tie-break: repeatedly emit the
	// earliest-declared parameter whose closure is fully emitted.
	emitted := make(map[string]struct{}, len(params))
	order := make([]string, 0, len(params))
	for len(order) < len(params) {
		progressed := false
		for _, p := range params {
			if _, done := emitted[p.Name]; done {
				continue
			}
			ready := true
			for dep := range closure[p.Name] {
				if _, ok := byName[dep]; !ok {
					continue // depends on a plain attribute, not a parameter
				}
				if _, done := emitted[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				emitted[p.Name] = struct{}{}
				order = append(order, p.Name)
				progressed = true
			}
		}
		if !progressed {
			// Unreachable once cycles are rejected above.
			return nil, &CyclicParamsError{Factory: factory, Params: remaining(params, emitted)}
		}
	}
	return order, nil
}

func remaining(params Params, emitted map[string]struct{}) []string {
	var out []string
	for _, p := range params {
		if _, ok := emitted[p.Name]; !ok {
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	return out
}

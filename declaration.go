package blueprint

import (
	"context"
	"fmt"
)

// Declaration is the common tag for every attribute declaration variant.
// Declarations are inert descriptions; they only produce values when a
// resolution step evaluates them.
type Declaration interface {
	declaration()
}

// ValueDeclaration is a declaration evaluated before instantiation; its
// result becomes a constructor argument.
type ValueDeclaration interface {
	Declaration
	Evaluate(r *Resolver) (any, error)
}

// PostDeclaration is a declaration that runs only after the object has been
// instantiated. Its result is collected but never merged into constructor
// arguments.
type PostDeclaration interface {
	Declaration
	Run(ctx context.Context, ps *PostStep) (any, error)
}

// Skip is a sentinel override and declaration result meaning "omit this
// attribute entirely from the constructor arguments".
var Skip = skipSentinel{}

type skipSentinel struct{}

func (skipSentinel) declaration() {}

// Extracted carries the caller override captured for a post-construction
// declaration. Set is false when the caller supplied nothing for it.
type Extracted struct {
	Set     bool
	Value   any
	Context map[string]any
}

// FactoryRef resolves to a compiled factory. *Factory is its own ref; the
// registry package provides late-bound refs by name so mutually referencing
// definitions can be compiled in any order.
type FactoryRef interface {
	Resolve() (*Factory, error)
}

// --- Pre-construction variants ---

type constDecl struct{ value any }

func (constDecl) declaration() {}

func (d constDecl) Evaluate(*Resolver) (any, error) { return d.value, nil }

// Value declares a fixed attribute value.
func Value(v any) Declaration { return constDecl{value: v} }

type seqDecl struct{ fn func(n int) any }

func (seqDecl) declaration() {}

func (d seqDecl) Evaluate(r *Resolver) (any, error) { return d.fn(r.Sequence()), nil }

// Seq declares an attribute derived from the factory's shared sequence
// counter. Every invocation of the factory draws exactly one counter value,
// shared by all Seq attributes of that invocation.
func Seq(fn func(n int) any) Declaration { return seqDecl{fn: fn} }

type lazyDecl struct {
	fn func(r *Resolver) (any, error)
}

func (lazyDecl) declaration() {}

func (d lazyDecl) Evaluate(r *Resolver) (any, error) { return d.fn(r) }

// Lazy declares an attribute computed from the partially resolved step.
// The function may read sibling attributes through the resolver; reading an
// attribute forces its resolution.
func Lazy(fn func(r *Resolver) (any, error)) Declaration { return lazyDecl{fn: fn} }

type selfAttrDecl struct{ path string }

func (selfAttrDecl) declaration() {}

func (d selfAttrDecl) Evaluate(r *Resolver) (any, error) { return r.step.resolvePath(d.path) }

// SelfAttr declares an attribute copied from another attribute, addressed by
// a dotted path. A path starting with ".." ascends to the enclosing step
// first ("...x" ascends two levels); segments past the first traverse into
// struct fields, maps, or stub attributes of the referenced value.
func SelfAttr(path string) Declaration { return selfAttrDecl{path: path} }

type subFactoryDecl struct {
	ref      FactoryRef
	defaults map[string]any
}

func (subFactoryDecl) declaration() {}

func (d subFactoryDecl) Evaluate(r *Resolver) (any, error) {
	target, err := d.ref.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving sub-factory for attribute %q: %w", r.attr, err)
	}
	overrides := mergeOverrides(d.defaults, r.context)
	nested := newStep(r.step.ctx, target, target.opts.strategy, overrides, r.step, nil)
	return nested.run()
}

// Sub declares a nested object built by another factory. Caller overrides
// prefixed with this attribute's name and "__" are forwarded into the nested
// build; defaults apply beneath them. The nested build uses the nested
// factory's own configured strategy.
func Sub(ref FactoryRef, defaults map[string]any) Declaration {
	return subFactoryDecl{ref: ref, defaults: defaults}
}

// --- Post-construction variants ---

type relatedDecl struct {
	ref      FactoryRef
	defaults map[string]any
}

func (relatedDecl) declaration() {}

func (d relatedDecl) Run(ctx context.Context, ps *PostStep) (any, error) {
	target, err := d.ref.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving related factory for %q: %w", ps.Name, err)
	}
	overrides := mergeOverrides(d.defaults, ps.Extracted.Context)
	nested := newStep(ctx, target, target.opts.strategy, overrides, ps.step, ps.Instance)
	return nested.run()
}

// Related declares a side-effect object built by another factory after the
// parent object exists. The result is collected with the post-construction
// results but never merged into the parent's arguments; inside the nested
// build the parent object is addressable under the fixed name "parent".
func Related(ref FactoryRef, defaults map[string]any) Declaration {
	return relatedDecl{ref: ref, defaults: defaults}
}

type postHookDecl struct {
	fn func(ctx context.Context, instance any, created bool, ex Extracted) (any, error)
}

func (postHookDecl) declaration() {}

func (d postHookDecl) Run(ctx context.Context, ps *PostStep) (any, error) {
	return d.fn(ctx, ps.Instance, ps.Created, ps.Extracted)
}

// PostBuild declares a hook invoked after instantiation. It receives the
// instantiated object, whether the strategy was create, and the caller
// override extracted for this declaration's name.
func PostBuild(fn func(ctx context.Context, instance any, created bool, ex Extracted) (any, error)) Declaration {
	return postHookDecl{fn: fn}
}

// --- Trait gating ---

// maybeDecl gates a declaration on the boolean value of a parameter; built by
// Trait expansion. yes/no hold either a Declaration or a plain value; Skip in
// the inactive branch drops the attribute.
type maybeDecl struct {
	param string
	yes   any
	no    any
	post  bool
}

func (maybeDecl) declaration() {}

func (d maybeDecl) isPost() bool { return d.post }

func (d maybeDecl) pick(s *step) (any, error) {
	v, found, err := s.lookup(d.param)
	if err != nil {
		return nil, err
	}
	active := false
	if found {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("blueprint: trait parameter %q on %q must be a bool, got %T",
				d.param, s.factory.name, v)
		}
		active = b
	}
	if active {
		return d.yes, nil
	}
	return d.no, nil
}

func (d maybeDecl) Evaluate(r *Resolver) (any, error) {
	branch, err := d.pick(r.step)
	if err != nil {
		return nil, err
	}
	if vd, ok := branch.(ValueDeclaration); ok {
		return vd.Evaluate(r)
	}
	return branch, nil
}

func (d maybeDecl) Run(ctx context.Context, ps *PostStep) (any, error) {
	branch, err := d.pick(ps.step)
	if err != nil {
		return nil, err
	}
	if pd, ok := branch.(PostDeclaration); ok {
		return pd.Run(ctx, ps)
	}
	return branch, nil
}

// asDeclaration lifts plain values into constant declarations; declarations
// pass through untouched.
func asDeclaration(v any) Declaration {
	if d, ok := v.(Declaration); ok {
		return d
	}
	return constDecl{value: v}
}

// isPostDecl classifies a declaration into the post-construction phase.
func isPostDecl(d Declaration) bool {
	if p, ok := d.(interface{ isPost() bool }); ok {
		return p.isPost()
	}
	if _, ok := d.(PostDeclaration); !ok {
		return false
	}
	_, pre := d.(ValueDeclaration)
	return !pre
}

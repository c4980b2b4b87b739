package blueprint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/blueprint/internal/ctxlog"
)

// step is a single resolution pass over a factory's merged declarations. It
// is created fresh per invocation and discarded afterwards.
type step struct {
	ctx       context.Context
	factory   *Factory
	strategy  Strategy
	overrides *overrideSet
	parent    *step
	// relatedParent is the already-built parent object for steps spawned by
	// Related declarations, addressable under the fixed name "parent".
	relatedParent any

	sequence   int
	resolved   map[string]any
	order      []string
	inProgress map[string]struct{}
}

func newStep(ctx context.Context, f *Factory, strategy Strategy, overrides map[string]any, parent *step, relatedParent any) *step {
	return &step{
		ctx:           ctx,
		factory:       f,
		strategy:      strategy,
		overrides:     newOverrideSet(overrides),
		parent:        parent,
		relatedParent: relatedParent,
		resolved:      make(map[string]any),
		inProgress:    make(map[string]struct{}),
	}
}

// run executes the five-phase resolution: ordered pre-declaration
// evaluation, keyword finalization, strategy dispatch, post-construction
// declarations, and the finishing hook.
func (s *step) run() (any, error) {
	f := s.factory
	logger := ctxlog.FromContext(s.ctx).With("factory", f.name, "strategy", string(s.strategy))

	if f.opts.abstract {
		return nil, &AbstractFactoryError{Factory: f.name}
	}

	// One sequence value per invocation, shared by every Seq attribute.
	s.sequence = f.NextSequence()
	logger.Debug("Resolving declarations.", "sequence", s.sequence)

	for _, name := range f.pre.order {
		if _, err := s.resolveAttr(name); err != nil {
			return nil, err
		}
	}
	for _, name := range s.extras() {
		if _, err := s.resolveAttr(name); err != nil {
			return nil, err
		}
	}

	args, kwargs, err := s.prepareArguments()
	if err != nil {
		return nil, err
	}

	instance, err := s.instantiate(args, kwargs)
	if err != nil {
		return nil, err
	}

	results, err := s.runPost(instance)
	if err != nil {
		return nil, err
	}
	if f.opts.afterBuild != nil {
		if err := f.opts.afterBuild(s.ctx, instance, s.strategy == StrategyCreate, results); err != nil {
			return nil, fmt.Errorf("after-build hook of %q: %w", f.name, err)
		}
	}
	logger.Debug("Instance generated.")
	return instance, nil
}

// extras lists override roots that match no declaration at all; they become
// constant attributes appended after the declared set, in sorted order.
func (s *step) extras() []string {
	var out []string
	for _, root := range s.overrides.roots {
		if _, ok := s.factory.pre.get(root); ok {
			continue
		}
		if _, ok := s.factory.post.get(root); ok {
			continue
		}
		out = append(out, root)
	}
	return out
}

// resolveAttr resolves one attribute on demand: a verbatim caller override
// wins outright; otherwise the declaration is evaluated against the current
// step. Lazy and SelfAttr reads re-enter here, so resolution order follows
// data dependencies within the merged order.
func (s *step) resolveAttr(name string) (any, error) {
	if v, ok := s.resolved[name]; ok {
		return v, nil
	}
	if _, busy := s.inProgress[name]; busy {
		return nil, fmt.Errorf("blueprint: cyclic attribute resolution involving %q on %q", name, s.factory.name)
	}
	s.inProgress[name] = struct{}{}
	defer delete(s.inProgress, name)

	entry, declared := s.factory.pre.get(name)
	ov, hasOv := s.overrides.get(name)

	var declaredCtx map[string]any
	if declared {
		declaredCtx = entry.context
	}

	var value any
	var err error
	switch {
	case hasOv && ov.hasValue:
		if vd, ok := ov.value.(ValueDeclaration); ok {
			value, err = vd.Evaluate(s.resolver(name, mergeOverrides(declaredCtx, ov.context)))
		} else {
			if len(ov.context) > 0 && ov.value != Skip {
				return nil, fmt.Errorf(
					"blueprint: override %q on %q received nested %q overrides, but its value is not a declaration",
					name, s.factory.name, name+Sep)
			}
			value = ov.value
		}
	case declared && entry.decl != nil:
		var callerCtx map[string]any
		if hasOv {
			callerCtx = ov.context
		}
		vd, ok := entry.decl.(ValueDeclaration)
		if !ok {
			return nil, fmt.Errorf("blueprint: declaration %q on %q cannot be evaluated before construction", name, s.factory.name)
		}
		value, err = vd.Evaluate(s.resolver(name, mergeOverrides(declaredCtx, callerCtx)))
	default:
		return nil, fmt.Errorf("blueprint: no declaration or override for attribute %q on %q", name, s.factory.name)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving attribute %q of %q: %w", name, s.factory.name, err)
	}

	s.resolved[name] = value
	s.order = append(s.order, name)
	return value, nil
}

// lookup resolves name if it is declared or overridden, reporting false when
// it is neither. Trait deciders use this to default inactive traits to
// false.
func (s *step) lookup(name string) (any, bool, error) {
	_, declared := s.factory.pre.get(name)
	ov, hasOv := s.overrides.get(name)
	if !declared && !(hasOv && ov.hasValue) {
		if name == "parent" && s.relatedParent != nil {
			return s.relatedParent, true, nil
		}
		return nil, false, nil
	}
	v, err := s.resolveAttr(name)
	return v, err == nil, err
}

func (s *step) resolver(attr string, context map[string]any) *Resolver {
	return &Resolver{step: s, attr: attr, context: context}
}

// resolvePath resolves a SelfAttr path: leading dots ascend to enclosing
// steps ("..x" reads x one level up), then the remaining dotted segments
// traverse into the referenced value.
func (s *step) resolvePath(path string) (any, error) {
	rest := path
	ascend := 0
	for strings.HasPrefix(rest, ".") {
		ascend++
		rest = rest[1:]
	}
	if ascend > 0 {
		ascend-- // "..x" is one level up, "x" is the current step
	}
	target := s
	for i := 0; i < ascend; i++ {
		if target.parent == nil {
			return nil, fmt.Errorf("blueprint: path %q ascends past the outermost step of %q", path, s.factory.name)
		}
		target = target.parent
	}
	segments := strings.Split(rest, ".")
	if rest == "" || len(segments) == 0 {
		return nil, fmt.Errorf("blueprint: empty attribute path %q", path)
	}
	value, found, err := target.lookup(segments[0])
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("blueprint: attribute %q not found on %q (path %q)", segments[0], target.factory.name, path)
	}
	for _, seg := range segments[1:] {
		value, err = traverse(value, seg)
		if err != nil {
			return nil, fmt.Errorf("blueprint: traversing %q in path %q: %w", seg, path, err)
		}
	}
	return value, nil
}

// prepareArguments converts the resolved attributes into the
// (args, kwargs) pair handed to the instantiation hooks: adjust hook, then
// drop excluded/parameter/skipped entries, then renames, then inline args.
func (s *step) prepareArguments() ([]any, map[string]any, error) {
	f := s.factory

	kwargs := make(map[string]any, len(s.order))
	for _, name := range s.order {
		kwargs[name] = s.resolved[name]
	}

	if f.opts.adjustKwargs != nil {
		adjusted, err := f.opts.adjustKwargs(s.ctx, kwargs)
		if err != nil {
			return nil, nil, fmt.Errorf("adjust-kwargs hook of %q: %w", f.name, err)
		}
		kwargs = adjusted
	}

	for name := range f.opts.exclude {
		delete(kwargs, name)
	}
	for name := range f.paramNames {
		delete(kwargs, name)
	}
	for name, v := range kwargs {
		if v == Skip {
			delete(kwargs, name)
		}
	}

	renames := make([]string, 0, len(f.opts.rename))
	for old := range f.opts.rename {
		renames = append(renames, old)
	}
	sort.Strings(renames)
	for _, old := range renames {
		if v, ok := kwargs[old]; ok {
			delete(kwargs, old)
			kwargs[f.opts.rename[old]] = v
		}
	}

	args := make([]any, 0, len(f.opts.inlineArgs))
	for _, name := range f.opts.inlineArgs {
		v, ok := kwargs[name]
		if !ok {
			return nil, nil, fmt.Errorf("blueprint: inline argument %q of %q was never resolved", name, f.name)
		}
		delete(kwargs, name)
		args = append(args, v)
	}
	return args, kwargs, nil
}

func (s *step) instantiate(args []any, kwargs map[string]any) (any, error) {
	f := s.factory
	switch s.strategy {
	case StrategyBuild:
		return f.opts.build(s.ctx, f.opts.model, args, kwargs)
	case StrategyCreate:
		return f.opts.create(s.ctx, f.opts.model, args, kwargs)
	case StrategyStub:
		return newStub(kwargs), nil
	default:
		return nil, &UnknownStrategyError{Strategy: s.strategy}
	}
}

// runPost executes post-construction declarations in merged order, handing
// each its extracted caller override, and collects their results by name.
func (s *step) runPost(instance any) (map[string]any, error) {
	f := s.factory
	results := make(map[string]any, len(f.post.order))
	for _, name := range f.post.order {
		entry := f.post.entries[name]
		pd, ok := entry.decl.(PostDeclaration)
		if !ok {
			return nil, fmt.Errorf("blueprint: declaration %q on %q is not runnable after construction", name, f.name)
		}
		ex := Extracted{}
		if ov, hasOv := s.overrides.get(name); hasOv {
			ex.Set = ov.hasValue
			ex.Value = ov.value
			ex.Context = ov.context
		}
		if len(entry.context) > 0 {
			ex.Context = mergeOverrides(entry.context, ex.Context)
		}
		ps := &PostStep{
			Name:      name,
			Instance:  instance,
			Created:   s.strategy == StrategyCreate,
			Extracted: ex,
			step:      s,
		}
		res, err := pd.Run(s.ctx, ps)
		if err != nil {
			return nil, fmt.Errorf("post-construction declaration %q of %q: %w", name, f.name, err)
		}
		if res == Skip {
			continue
		}
		results[name] = res
	}
	return results, nil
}

// PostStep is the context handed to post-construction declarations.
type PostStep struct {
	// Name is the declaration's merged name.
	Name string
	// Instance is the freshly instantiated object.
	Instance any
	// Created reports whether the strategy in effect was create.
	Created bool
	// Extracted carries the caller override captured for this declaration.
	Extracted Extracted

	step *step
}

// Resolver is the evaluation context a ValueDeclaration sees: the partially
// resolved step, the attribute being computed, and the override slice
// forwarded to it.
type Resolver struct {
	step    *step
	attr    string
	context map[string]any
}

// Context returns the invocation context.
func (r *Resolver) Context() context.Context { return r.step.ctx }

// AttrName returns the name of the attribute being evaluated.
func (r *Resolver) AttrName() string { return r.attr }

// Factory returns the factory being resolved.
func (r *Resolver) Factory() *Factory { return r.step.factory }

// Strategy returns the strategy in effect for this step.
func (r *Resolver) Strategy() Strategy { return r.step.strategy }

// Sequence returns the counter value drawn for this invocation.
func (r *Resolver) Sequence() int { return r.step.sequence }

// Attr resolves a sibling attribute, forcing its evaluation if needed.
func (r *Resolver) Attr(name string) (any, error) {
	v, found, err := r.step.lookup(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("blueprint: attribute %q not declared on %q", name, r.step.factory.name)
	}
	return v, nil
}

// Overrides returns a copy of the caller overrides forwarded to this
// attribute (the sub-slice whose dotted prefix matched its name).
func (r *Resolver) Overrides() map[string]any {
	return mergeOverrides(nil, r.context)
}

// Enclosing returns a resolver over the enclosing step, or nil at the
// outermost level.
func (r *Resolver) Enclosing() *Resolver {
	if r.step.parent == nil {
		return nil
	}
	return &Resolver{step: r.step.parent, attr: r.attr}
}

package blueprint

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/vk/blueprint/internal/ctxlog"
)

// Compile freezes a Definition into an immutable Factory: it resolves the
// configuration block against the parent chain, merges ancestor declarations
// beneath this definition's own, derives auto declarations through the
// introspector, expands parameters in dependency order, partitions the result
// into pre- and post-construction subsets, and resolves the sequence counter
// reference. Independent definition-time failures are reported together.
func Compile(ctx context.Context, def *Definition) (*Factory, error) {
	logger := ctxlog.FromContext(ctx).With("definition", def.Name)
	logger.Debug("Compiling definition.",
		"parents", len(def.Parents), "attrs", len(def.Attrs), "params", len(def.Params))

	var errs error

	var parentOpts *options
	if len(def.Parents) > 0 {
		parentOpts = def.Parents[0].opts
	}
	opts, err := resolveOptions(def.Config, parentOpts)
	if err != nil {
		errs = multierr.Append(errs, &ConfigError{Factory: def.Name, Msg: err.Error()})
		opts = &options{strategy: StrategyCreate, abstract: true,
			exclude: map[string]struct{}{}, firstSequence: func() int { return 0 }}
	}

	f := &Factory{
		name:       def.Name,
		parents:    def.Parents,
		opts:       opts,
		paramNames: make(map[string]struct{}),
	}

	// Ancestor declarations, furthest to nearest: walking the nearest-first
	// parent list in reverse merges each parent's already-flattened set, so
	// nearer parents override further ones and this definition's own
	// declarations land on top.
	f.baseDecls = newDeclSet()
	f.autoDecls = newDeclSet()
	for i := len(def.Parents) - 1; i >= 0; i-- {
		f.baseDecls.merge(def.Parents[i].baseDecls)
	}
	for _, attr := range def.Attrs {
		f.baseDecls.put(attr.Name, attr.Decl)
	}

	// Auto-derived declarations slot in beneath explicit ones. They are kept
	// out of baseDecls so descendants re-derive them against their own
	// accumulated include/exclude adjustments instead of inheriting them.
	if err := f.deriveAutoFields(def); err != nil {
		errs = multierr.Append(errs, err)
	}

	// Parameters: ancestor parameters first, re-declared names replaced in
	// place, then this definition's own.
	merged := Params{}
	seen := map[string]int{}
	appendParam := func(p ParamSpec) {
		if i, ok := seen[p.Name]; ok {
			merged[i] = p
			return
		}
		seen[p.Name] = len(merged)
		merged = append(merged, p)
	}
	for i := len(def.Parents) - 1; i >= 0; i-- {
		for _, p := range def.Parents[i].params {
			appendParam(p)
		}
	}
	for _, p := range def.Params {
		appendParam(p)
	}
	f.params = merged
	for _, p := range merged {
		f.paramNames[p.Name] = struct{}{}
	}

	order, err := resolveParamOrder(def.Name, merged)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	f.paramOrder = order

	// Expand parameters, in dependency order, over a copy of the merged
	// declarations; traits wrap the declarations they shadow.
	final := newDeclSet()
	final.merge(f.autoDecls)
	final.merge(f.baseDecls)
	byName := make(map[string]Param, len(merged))
	for _, p := range merged {
		byName[p.Name] = p.Param
	}
	lookup := func(name string) (Declaration, bool) {
		e, ok := final.get(name)
		if !ok || e.decl == nil {
			return nil, false
		}
		return e.decl, true
	}
	for _, name := range order {
		attrs, err := byName[name].Declarations(name, lookup)
		if err != nil {
			errs = multierr.Append(errs, &ConfigError{Factory: def.Name, Msg: err.Error()})
			continue
		}
		for _, attr := range attrs {
			final.put(attr.Name, attr.Decl)
		}
	}

	// Reject nested context without a root declaration before it can fail a
	// build at invocation time.
	for _, name := range final.order {
		e := final.entries[name]
		if e.decl == nil && len(e.context) > 0 {
			errs = multierr.Append(errs, &ConfigError{
				Factory: def.Name,
				Msg:     fmt.Sprintf("nested declarations for %q but %q itself is never declared", name, name),
			})
		}
	}

	f.pre, f.post = final.partition()

	// Counter reference: share the base's counter when this model
	// specializes the base's model, otherwise own one.
	f.counterOwner = f
	if len(def.Parents) > 0 {
		base := def.Parents[0]
		if sharesCounterWith(opts.model, base.opts.model) {
			f.counterOwner = base.counterOwner
		}
	}

	if errs != nil {
		return nil, errs
	}
	logger.Debug("Definition compiled.",
		"pre", len(f.pre.order), "post", len(f.post.order),
		"abstract", opts.abstract, "counter_owner", f.counterOwner.name)
	return f, nil
}

// MustCompile is Compile, panicking on error. Intended for package-level
// fixture variables.
func MustCompile(ctx context.Context, def *Definition) *Factory {
	f, err := Compile(ctx, def)
	if err != nil {
		panic(err)
	}
	return f
}

// deriveAutoFields asks the introspector for declarations covering the
// candidate field set: the introspector's defaults (when enabled) plus
// inclusions accumulated down the ancestor chain, minus accumulated
// exclusions and names already declared. Explicit declarations always win.
func (f *Factory) deriveAutoFields(def *Definition) error {
	opts := f.opts

	// Record this lineage member's adjustments before deciding whether to
	// derive anything; descendants accumulate them either way.
	for i := len(def.Parents) - 1; i >= 0; i-- {
		f.autoChain = append(f.autoChain, def.Parents[i].autoChain...)
	}
	own := autoFieldsLink{include: def.Config.IncludeAutoFields, exclude: def.Config.ExcludeAutoFields}
	f.autoChain = append(f.autoChain, own)

	if opts.abstract || (!opts.defaultAutoFields && len(own.include) == 0) {
		return nil
	}
	if opts.introspector == nil {
		return &ConfigError{Factory: def.Name, Msg: "auto fields enabled but no introspector configured"}
	}

	candidates := make(map[string]struct{})
	if opts.defaultAutoFields {
		names, err := opts.introspector.DefaultFieldNames(opts.model)
		if err != nil {
			return &ConfigError{Factory: def.Name, Msg: fmt.Sprintf("introspecting default fields: %v", err)}
		}
		for _, n := range names {
			candidates[n] = struct{}{}
		}
	}
	for _, link := range f.autoChain[:len(f.autoChain)-1] {
		for _, n := range link.include {
			candidates[n] = struct{}{}
		}
		for _, n := range link.exclude {
			delete(candidates, n)
		}
	}
	for _, n := range own.include {
		candidates[n] = struct{}{}
	}

	skip := make(map[string]struct{})
	for _, name := range f.baseDecls.order {
		e := f.baseDecls.entries[name]
		if e.decl != nil {
			skip[name] = struct{}{}
		}
		for sub := range e.context {
			skip[name+Sep+sub] = struct{}{}
		}
	}
	for _, n := range own.exclude {
		skip[n] = struct{}{}
	}
	for n := range skip {
		delete(candidates, n)
	}
	if len(candidates) == 0 {
		return nil
	}

	req := IntrospectionRequest{
		Model:   opts.model,
		Factory: def.Name,
		Fields:  sortedKeys(candidates),
		Skip:    sortedKeys(skip),
	}
	decls, err := opts.introspector.BuildDeclarations(req)
	if err != nil {
		return fmt.Errorf("blueprint: introspecting %q: %w", def.Name, err)
	}
	for name := range decls {
		if _, ok := candidates[name]; !ok {
			return &UnexpectedFieldError{Factory: def.Name, Field: name}
		}
	}
	for _, name := range req.Fields {
		decl, ok := decls[name]
		if !ok {
			continue
		}
		f.autoDecls.put(name, decl)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

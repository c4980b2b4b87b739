package blueprint

import (
	"context"
	"reflect"
)

// Strategy selects how a resolved attribute set becomes an object.
type Strategy string

const (
	// StrategyBuild instantiates the model without persistence semantics.
	StrategyBuild Strategy = "build"
	// StrategyCreate instantiates the model through the create hook, which
	// host-framework adapters override to add persistence semantics.
	StrategyCreate Strategy = "create"
	// StrategyStub bypasses instantiation and returns a plain attribute
	// container.
	StrategyStub Strategy = "stub"
)

func (s Strategy) valid() bool {
	switch s {
	case StrategyBuild, StrategyCreate, StrategyStub:
		return true
	}
	return false
}

// BuildFunc instantiates the model from resolved positional and keyword
// arguments. The default decodes kwargs into a new model value; adapters
// override it for constructor functions or persistence layers.
type BuildFunc func(ctx context.Context, model reflect.Type, args []any, kwargs map[string]any) (any, error)

// AdjustFunc lets a definition rewrite the fully resolved keyword mapping
// just before exclusion, renaming and instantiation.
type AdjustFunc func(ctx context.Context, kwargs map[string]any) (map[string]any, error)

// AfterBuildFunc runs once all post-construction declarations have been
// handled, receiving their collected results.
type AfterBuildFunc func(ctx context.Context, instance any, created bool, results map[string]any) error

// Config is the per-definition configuration block. Zero values mean "not
// set": inheritable fields then take the nearest parent's resolved value, and
// hard defaults apply last.
type Config struct {
	// Model is the target type instantiated by build/create. When nil the
	// definition is forced abstract.
	Model reflect.Type
	// Strategy is the default strategy for Make; inherited, defaults to
	// StrategyCreate.
	Strategy Strategy
	// Abstract marks a definition that declares attributes but must never be
	// instantiated. Not inherited.
	Abstract bool
	// InlineArgs names attributes extracted, in order, into positional
	// arguments for the instantiation hooks. Inherited.
	InlineArgs []string
	// Exclude names attributes resolved but dropped from the final
	// arguments. Inherited.
	Exclude []string
	// Rename maps declared attribute names to constructor argument names.
	// Inherited.
	Rename map[string]string
	// Introspector derives default declarations from the model; required
	// when auto fields are enabled. Inherited.
	Introspector Introspector
	// DefaultAutoFields enables deriving the introspector's default field
	// set. Inherited; nil means unset.
	DefaultAutoFields *bool
	// IncludeAutoFields and ExcludeAutoFields adjust the auto-derived field
	// set; both accumulate down the ancestor chain instead of inheriting.
	IncludeAutoFields []string
	ExcludeAutoFields []string
	// FirstSequence seeds the sequence counter on first use; inherited,
	// defaults to zero.
	FirstSequence func() int
	// Build and Create are the instantiation hooks; inherited, both default
	// to decoding kwargs into a new model value.
	Build  BuildFunc
	Create BuildFunc
	// AdjustKwargs and AfterBuild are the definition extension hooks;
	// inherited, defaulting to identity and no-op.
	AdjustKwargs AdjustFunc
	AfterBuild   AfterBuildFunc
}

// options holds the resolved, immutable configuration of a compiled factory.
type options struct {
	model             reflect.Type
	strategy          Strategy
	abstract          bool
	inlineArgs        []string
	exclude           map[string]struct{}
	rename            map[string]string
	introspector      Introspector
	defaultAutoFields bool
	includeAutoFields []string
	excludeAutoFields []string
	firstSequence     func() int
	build             BuildFunc
	create            BuildFunc
	adjustKwargs      AdjustFunc
	afterBuild        AfterBuildFunc
}

// resolveOptions applies the option table: explicit value on this definition,
// else the nearest parent's resolved value for inheritable fields, else the
// hard default.
func resolveOptions(cfg Config, parent *options) (*options, error) {
	o := &options{
		strategy:          StrategyCreate,
		firstSequence:     func() int { return 0 },
		exclude:           make(map[string]struct{}),
		includeAutoFields: cfg.IncludeAutoFields,
		excludeAutoFields: cfg.ExcludeAutoFields,
		abstract:          cfg.Abstract,
	}

	o.model = inherit(cfg.Model, parent, func(p *options) reflect.Type { return p.model })
	o.strategy = inheritDefault(cfg.Strategy, parent, func(p *options) Strategy { return p.strategy }, StrategyCreate)
	o.inlineArgs = inherit(cfg.InlineArgs, parent, func(p *options) []string { return p.inlineArgs })
	o.introspector = inherit(cfg.Introspector, parent, func(p *options) Introspector { return p.introspector })
	o.firstSequence = inheritDefault(cfg.FirstSequence, parent, func(p *options) func() int { return p.firstSequence }, func() int { return 0 })
	o.build = inheritDefault(cfg.Build, parent, func(p *options) BuildFunc { return p.build }, defaultInstantiate)
	o.create = inheritDefault(cfg.Create, parent, func(p *options) BuildFunc { return p.create }, defaultInstantiate)
	o.adjustKwargs = inherit(cfg.AdjustKwargs, parent, func(p *options) AdjustFunc { return p.adjustKwargs })
	o.afterBuild = inherit(cfg.AfterBuild, parent, func(p *options) AfterBuildFunc { return p.afterBuild })

	exclude := cfg.Exclude
	if exclude == nil && parent != nil {
		for name := range parent.exclude {
			o.exclude[name] = struct{}{}
		}
	}
	for _, name := range exclude {
		o.exclude[name] = struct{}{}
	}

	rename := cfg.Rename
	if rename == nil && parent != nil {
		rename = parent.rename
	}
	o.rename = rename

	if cfg.DefaultAutoFields != nil {
		o.defaultAutoFields = *cfg.DefaultAutoFields
	} else if parent != nil {
		o.defaultAutoFields = parent.defaultAutoFields
	}

	if o.model == nil {
		o.abstract = true
	}
	if !o.strategy.valid() {
		return nil, &UnknownStrategyError{Strategy: o.strategy}
	}
	return o, nil
}

// inherit resolves a field with no hard default: explicit value, else the
// parent's resolved value, else the zero value.
func inherit[T any](explicit T, parent *options, get func(*options) T) T {
	if !isZero(explicit) {
		return explicit
	}
	if parent != nil {
		return get(parent)
	}
	var zero T
	return zero
}

// inheritDefault resolves an inheritable field that falls back to a hard
// default when neither this definition nor its parent sets it.
func inheritDefault[T any](explicit T, parent *options, get func(*options) T, def T) T {
	if !isZero(explicit) {
		return explicit
	}
	if parent != nil {
		if v := get(parent); !isZero(v) {
			return v
		}
	}
	return def
}

func isZero[T any](v T) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Interface, reflect.Pointer:
		return rv.IsNil()
	}
	return rv.IsZero()
}

// ModelOf returns the reflect.Type for T, the usual way to populate
// Config.Model.
func ModelOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

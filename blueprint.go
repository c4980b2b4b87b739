package blueprint

import (
	"context"
	"reflect"
)

// Attr names one declared attribute. Dotted names ("owner__name") contribute
// nested defaults to the root attribute's sub-factory.
type Attr struct {
	Name string
	Decl Declaration
}

// Attrs is an ordered attribute declaration list.
type Attrs []Attr

// Definition describes a fixture before compilation: its own declarations,
// configuration block, parameters, and an explicit parent chain. Definitions
// are plain data; Compile turns them into immutable factories.
type Definition struct {
	// Name identifies the definition in error messages and logs.
	Name string
	// Parents lists the compiled base factories, nearest first. Declarations
	// merge furthest-to-nearest beneath this definition's own.
	Parents []*Factory
	// Config is the definition's configuration block.
	Config Config
	// Attrs are the definition's own declarations, in order.
	Attrs Attrs
	// Params are the definition's parameters and traits, in order.
	Params Params
}

// Factory is a compiled, immutable definition. All definition-time work
// (option resolution, declaration merging, parameter ordering, counter
// reference resolution) happened in Compile; factories are safe for
// concurrent reads. The sequence counter is the only mutable state and
// requires external synchronization across goroutines.
type Factory struct {
	name       string
	parents    []*Factory
	opts       *options
	baseDecls  *declSet // merged explicit declarations, before param expansion
	autoDecls  *declSet // declarations derived by the introspector, beneath baseDecls
	params     Params   // merged parameter list, declaration order
	paramOrder []string
	paramNames map[string]struct{}
	pre        *declSet
	post       *declSet

	counterOwner *Factory
	counter      *counter

	// autoChain records each lineage member's include/exclude adjustments,
	// furthest ancestor first, for descendants to accumulate.
	autoChain []autoFieldsLink
}

type autoFieldsLink struct {
	include []string
	exclude []string
}

// Name returns the definition name the factory was compiled from.
func (f *Factory) Name() string { return f.name }

// Model returns the target type, or nil for abstract factories.
func (f *Factory) Model() reflect.Type { return f.opts.model }

// Strategy returns the configured default strategy.
func (f *Factory) Strategy() Strategy { return f.opts.strategy }

// Abstract reports whether the factory may be instantiated.
func (f *Factory) Abstract() bool { return f.opts.abstract }

// Resolve implements FactoryRef; a factory is its own reference.
func (f *Factory) Resolve() (*Factory, error) { return f, nil }

// Generate resolves the declaration set against the caller overrides and
// instantiates an object with the given strategy.
func (f *Factory) Generate(ctx context.Context, strategy Strategy, overrides map[string]any) (any, error) {
	if !strategy.valid() {
		return nil, &UnknownStrategyError{Strategy: strategy}
	}
	if f.opts.abstract {
		return nil, &AbstractFactoryError{Factory: f.name}
	}
	s := newStep(ctx, f, strategy, overrides, nil, nil)
	return s.run()
}

// Make generates an object using the factory's configured default strategy.
func (f *Factory) Make(ctx context.Context, overrides map[string]any) (any, error) {
	return f.Generate(ctx, f.opts.strategy, overrides)
}

// Build generates an object without persistence semantics.
func (f *Factory) Build(ctx context.Context, overrides map[string]any) (any, error) {
	return f.Generate(ctx, StrategyBuild, overrides)
}

// Create generates an object through the create hook.
func (f *Factory) Create(ctx context.Context, overrides map[string]any) (any, error) {
	return f.Generate(ctx, StrategyCreate, overrides)
}

// Stub resolves attributes into a plain container without touching the model
// type.
func (f *Factory) Stub(ctx context.Context, overrides map[string]any) (*Stub, error) {
	v, err := f.Generate(ctx, StrategyStub, overrides)
	if err != nil {
		return nil, err
	}
	return v.(*Stub), nil
}

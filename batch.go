package blueprint

import (
	"context"
	"fmt"
)

// GenerateBatch generates size objects with the given strategy.
func (f *Factory) GenerateBatch(ctx context.Context, strategy Strategy, size int, overrides map[string]any) ([]any, error) {
	out := make([]any, 0, size)
	for i := 0; i < size; i++ {
		v, err := f.Generate(ctx, strategy, overrides)
		if err != nil {
			return nil, fmt.Errorf("generating instance %d of %d: %w", i+1, size, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// BuildBatch builds size objects.
func (f *Factory) BuildBatch(ctx context.Context, size int, overrides map[string]any) ([]any, error) {
	return f.GenerateBatch(ctx, StrategyBuild, size, overrides)
}

// CreateBatch creates size objects.
func (f *Factory) CreateBatch(ctx context.Context, size int, overrides map[string]any) ([]any, error) {
	return f.GenerateBatch(ctx, StrategyCreate, size, overrides)
}

// StubBatch stubs size attribute containers.
func (f *Factory) StubBatch(ctx context.Context, size int, overrides map[string]any) ([]*Stub, error) {
	vs, err := f.GenerateBatch(ctx, StrategyStub, size, overrides)
	if err != nil {
		return nil, err
	}
	out := make([]*Stub, len(vs))
	for i, v := range vs {
		out[i] = v.(*Stub)
	}
	return out, nil
}

// SimpleGenerate builds or creates depending on the create flag.
func (f *Factory) SimpleGenerate(ctx context.Context, create bool, overrides map[string]any) (any, error) {
	if create {
		return f.Create(ctx, overrides)
	}
	return f.Build(ctx, overrides)
}

// BuildAs builds an object and asserts its concrete type.
func BuildAs[T any](ctx context.Context, f *Factory, overrides map[string]any) (T, error) {
	var zero T
	v, err := f.Build(ctx, overrides)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("blueprint: factory %q built %T, not %T", f.name, v, zero)
	}
	return t, nil
}

// CreateAs creates an object and asserts its concrete type.
func CreateAs[T any](ctx context.Context, f *Factory, overrides map[string]any) (T, error) {
	var zero T
	v, err := f.Create(ctx, overrides)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("blueprint: factory %q created %T, not %T", f.name, v, zero)
	}
	return t, nil
}

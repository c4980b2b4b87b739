package blueprint

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileInheritance(t *testing.T) {
	ctx := context.Background()

	t.Run("declarations merge furthest to nearest", func(t *testing.T) {
		grand, err := Compile(ctx, &Definition{
			Name:   "grand",
			Config: Config{Model: ModelOf[profile](), Strategy: StrategyStub},
			Attrs: Attrs{
				{Name: "username", Decl: Value("grand")},
				{Name: "email", Decl: Value("grand@example.com")},
			},
		})
		require.NoError(t, err)

		parent, err := Compile(ctx, &Definition{
			Name:    "parent",
			Parents: []*Factory{grand},
			Attrs: Attrs{
				{Name: "username", Decl: Value("parent")},
			},
		})
		require.NoError(t, err)

		child, err := Compile(ctx, &Definition{
			Name:    "child",
			Parents: []*Factory{parent},
			Attrs: Attrs{
				{Name: "age", Decl: Value(7)},
			},
		})
		require.NoError(t, err)

		stub, err := child.Stub(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"username": "parent",
			"email":    "grand@example.com",
			"age":      7,
		}, stub.Attrs())
	})

	t.Run("config resolves explicit then inherited then default", func(t *testing.T) {
		parent, err := Compile(ctx, &Definition{
			Name:   "parent",
			Config: Config{Model: ModelOf[profile](), Strategy: StrategyStub},
		})
		require.NoError(t, err)

		child, err := Compile(ctx, &Definition{Name: "child", Parents: []*Factory{parent}})
		require.NoError(t, err)
		assert.Equal(t, StrategyStub, child.Strategy())
		assert.Equal(t, ModelOf[profile](), child.Model())

		explicit, err := Compile(ctx, &Definition{
			Name:    "explicit",
			Parents: []*Factory{parent},
			Config:  Config{Strategy: StrategyBuild},
		})
		require.NoError(t, err)
		assert.Equal(t, StrategyBuild, explicit.Strategy())

		orphan, err := Compile(ctx, &Definition{
			Name:   "orphan",
			Config: Config{Model: ModelOf[profile]()},
		})
		require.NoError(t, err)
		assert.Equal(t, StrategyCreate, orphan.Strategy())
	})

	t.Run("abstract is never inherited", func(t *testing.T) {
		base, err := Compile(ctx, &Definition{
			Name:   "base",
			Config: Config{Model: ModelOf[profile](), Abstract: true},
			Attrs:  Attrs{{Name: "username", Decl: Value("x")}},
		})
		require.NoError(t, err)
		assert.True(t, base.Abstract())

		child, err := Compile(ctx, &Definition{Name: "child", Parents: []*Factory{base}})
		require.NoError(t, err)
		assert.False(t, child.Abstract())
	})

	t.Run("missing model forces abstract", func(t *testing.T) {
		f, err := Compile(ctx, &Definition{Name: "modelless"})
		require.NoError(t, err)
		assert.True(t, f.Abstract())
	})

	t.Run("invalid strategy fails compilation", func(t *testing.T) {
		_, err := Compile(ctx, &Definition{
			Name:   "bad",
			Config: Config{Model: ModelOf[profile](), Strategy: Strategy("persist")},
		})
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Error(), "unknown strategy")
	})

	t.Run("independent failures are reported together", func(t *testing.T) {
		_, err := Compile(ctx, &Definition{
			Name:   "bad",
			Config: Config{Model: ModelOf[profile](), Strategy: Strategy("persist")},
			Params: Params{
				{Name: "a", Param: Trait{Overrides: Attrs{{Name: "b", Decl: Value(1)}}}},
				{Name: "b", Param: Trait{Overrides: Attrs{{Name: "a", Decl: Value(2)}}}},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown strategy")
		assert.Contains(t, err.Error(), "cyclic parameter")
	})

	t.Run("nested declarations without a root fail", func(t *testing.T) {
		_, err := Compile(ctx, &Definition{
			Name:   "bad",
			Config: Config{Model: ModelOf[profile]()},
			Attrs:  Attrs{{Name: "owner__name", Decl: Value("x")}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "never declared")
	})

	t.Run("explicit excludes replace inherited ones", func(t *testing.T) {
		base, err := Compile(ctx, &Definition{
			Name:   "base",
			Config: Config{Model: ModelOf[profile](), Strategy: StrategyStub, Exclude: []string{"a"}},
			Attrs: Attrs{
				{Name: "a", Decl: Value(1)},
				{Name: "b", Decl: Value(2)},
			},
		})
		require.NoError(t, err)

		child, err := Compile(ctx, &Definition{
			Name:    "child",
			Parents: []*Factory{base},
			Config:  Config{Exclude: []string{"b"}},
		})
		require.NoError(t, err)

		stub, err := child.Stub(ctx, nil)
		require.NoError(t, err)
		_, hasB := stub.Attr("b")
		assert.False(t, hasB)
		a, hasA := stub.Attr("a")
		require.True(t, hasA)
		assert.Equal(t, 1, a)
	})
}

// stubIntrospector is a canned Introspector for compiler tests.
type stubIntrospector struct {
	defaults []string
	build    func(req IntrospectionRequest) (map[string]Declaration, error)
	requests []IntrospectionRequest
}

func (si *stubIntrospector) DefaultFieldNames(reflect.Type) ([]string, error) {
	return si.defaults, nil
}

func (si *stubIntrospector) BuildDeclarations(req IntrospectionRequest) (map[string]Declaration, error) {
	si.requests = append(si.requests, req)
	if si.build != nil {
		return si.build(req)
	}
	out := make(map[string]Declaration, len(req.Fields))
	for _, name := range req.Fields {
		out[name] = Value("auto-" + name)
	}
	return out, nil
}

func TestAutoFields(t *testing.T) {
	ctx := context.Background()
	on := true

	t.Run("derived declarations fill undeclared defaults", func(t *testing.T) {
		intro := &stubIntrospector{defaults: []string{"username", "email"}}
		f, err := Compile(ctx, &Definition{
			Name: "auto",
			Config: Config{
				Model:             ModelOf[profile](),
				Strategy:          StrategyStub,
				Introspector:      intro,
				DefaultAutoFields: &on,
			},
			Attrs: Attrs{{Name: "username", Decl: Value("explicit")}},
		})
		require.NoError(t, err)

		stub, err := f.Stub(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"username": "explicit",
			"email":    "auto-email",
		}, stub.Attrs())

		require.Len(t, intro.requests, 1)
		assert.Equal(t, []string{"email"}, intro.requests[0].Fields)
		assert.Equal(t, []string{"username"}, intro.requests[0].Skip)
	})

	t.Run("includes and excludes accumulate down the chain", func(t *testing.T) {
		intro := &stubIntrospector{defaults: []string{"username"}}
		base, err := Compile(ctx, &Definition{
			Name: "base",
			Config: Config{
				Model:             ModelOf[profile](),
				Strategy:          StrategyStub,
				Introspector:      intro,
				DefaultAutoFields: &on,
				IncludeAutoFields: []string{"email"},
			},
		})
		require.NoError(t, err)

		child, err := Compile(ctx, &Definition{
			Name:    "child",
			Parents: []*Factory{base},
			Config:  Config{ExcludeAutoFields: []string{"username"}},
		})
		require.NoError(t, err)

		stub, err := child.Stub(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"email": "auto-email"}, stub.Attrs())
	})

	t.Run("declaring a field removes it from the candidates", func(t *testing.T) {
		intro := &stubIntrospector{defaults: []string{"username"}}
		base, err := Compile(ctx, &Definition{
			Name: "base",
			Config: Config{
				Model:             ModelOf[profile](),
				Strategy:          StrategyStub,
				Introspector:      intro,
				DefaultAutoFields: &on,
			},
		})
		require.NoError(t, err)

		child, err := Compile(ctx, &Definition{
			Name:    "child",
			Parents: []*Factory{base},
			Attrs:   Attrs{{Name: "username", Decl: Value("declared")}},
		})
		require.NoError(t, err)

		stub, err := child.Stub(ctx, nil)
		require.NoError(t, err)
		name, _ := stub.Attr("username")
		assert.Equal(t, "declared", name)
	})

	t.Run("introspector returning an unrequested field fails", func(t *testing.T) {
		intro := &stubIntrospector{
			defaults: []string{"username"},
			build: func(IntrospectionRequest) (map[string]Declaration, error) {
				return map[string]Declaration{"surprise": Value(1)}, nil
			},
		}
		_, err := Compile(ctx, &Definition{
			Name: "auto",
			Config: Config{
				Model:             ModelOf[profile](),
				Introspector:      intro,
				DefaultAutoFields: &on,
			},
		})
		var fieldErr *UnexpectedFieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "surprise", fieldErr.Field)
	})

	t.Run("introspector may decline a candidate", func(t *testing.T) {
		intro := &stubIntrospector{
			defaults: []string{"username", "email"},
			build: func(req IntrospectionRequest) (map[string]Declaration, error) {
				return map[string]Declaration{"username": Value("only")}, nil
			},
		}
		f, err := Compile(ctx, &Definition{
			Name: "auto",
			Config: Config{
				Model:             ModelOf[profile](),
				Strategy:          StrategyStub,
				Introspector:      intro,
				DefaultAutoFields: &on,
			},
		})
		require.NoError(t, err)
		stub, err := f.Stub(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"username": "only"}, stub.Attrs())
	})

	t.Run("auto fields without an introspector fail", func(t *testing.T) {
		_, err := Compile(ctx, &Definition{
			Name:   "auto",
			Config: Config{Model: ModelOf[profile](), DefaultAutoFields: &on},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no introspector configured")
	})
}

func TestBatchHelpers(t *testing.T) {
	ctx := context.Background()

	f, err := Compile(ctx, &Definition{
		Name:   "account",
		Config: Config{Model: ModelOf[account](), Strategy: StrategyBuild},
		Attrs: Attrs{
			{Name: "handle", Decl: Seq(func(n int) any { return fmt.Sprintf("user-%d", n) })},
		},
	})
	require.NoError(t, err)

	t.Run("build batch draws one sequence value each", func(t *testing.T) {
		vs, err := f.BuildBatch(ctx, 3, nil)
		require.NoError(t, err)
		require.Len(t, vs, 3)
		for i, v := range vs {
			assert.Equal(t, fmt.Sprintf("user-%d", i), v.(*account).Handle)
		}
	})

	t.Run("stub batch returns typed stubs", func(t *testing.T) {
		stubs, err := f.StubBatch(ctx, 2, map[string]any{"handle": "fixed"})
		require.NoError(t, err)
		require.Len(t, stubs, 2)
		for _, s := range stubs {
			h, ok := s.Attr("handle")
			require.True(t, ok)
			assert.Equal(t, "fixed", h)
		}
	})

	t.Run("typed helpers assert the result", func(t *testing.T) {
		a, err := BuildAs[*account](ctx, f, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, a.Handle)

		_, err = BuildAs[*profile](ctx, f, nil)
		require.Error(t, err)
	})
}

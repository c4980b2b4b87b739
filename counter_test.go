package blueprint

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type account struct {
	Handle string
}

type adminAccount struct {
	account
	Level int
}

type auditRecord struct {
	ID string
}

func compileAccountFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := Compile(context.Background(), &Definition{
		Name: "account",
		Config: Config{
			Model:    ModelOf[account](),
			Strategy: StrategyBuild,
		},
		Attrs: Attrs{
			{Name: "handle", Decl: Seq(func(n int) any { return fmt.Sprintf("user-%d", n) })},
		},
	})
	require.NoError(t, err)
	return f
}

func TestSequenceCounter(t *testing.T) {
	t.Run("values are consecutive from zero", func(t *testing.T) {
		f := compileAccountFactory(t)
		rapid.Check(t, func(t *rapid.T) {
			draws := rapid.IntRange(1, 50).Draw(t, "draws")
			start := f.NextSequence()
			for i := 1; i <= draws; i++ {
				assert.Equal(t, start+i, f.NextSequence())
			}
		})
	})

	t.Run("each invocation draws exactly one value", func(t *testing.T) {
		f := compileAccountFactory(t)
		ctx := context.Background()

		first, err := f.Build(ctx, nil)
		require.NoError(t, err)
		second, err := f.Build(ctx, nil)
		require.NoError(t, err)

		assert.Equal(t, "user-0", first.(*account).Handle)
		assert.Equal(t, "user-1", second.(*account).Handle)
	})

	t.Run("first sequence hook seeds the counter", func(t *testing.T) {
		f, err := Compile(context.Background(), &Definition{
			Name: "audit",
			Config: Config{
				Model:         ModelOf[auditRecord](),
				Strategy:      StrategyBuild,
				FirstSequence: func() int { return 100 },
			},
			Attrs: Attrs{
				{Name: "iD", Decl: Seq(func(n int) any { return fmt.Sprintf("rec-%d", n) })},
			},
		})
		require.NoError(t, err)

		v, err := f.Build(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "rec-100", v.(*auditRecord).ID)
	})
}

func TestSequenceSharing(t *testing.T) {
	ctx := context.Background()

	t.Run("specializing model shares the base counter", func(t *testing.T) {
		base := compileAccountFactory(t)
		child, err := Compile(ctx, &Definition{
			Name:    "admin",
			Parents: []*Factory{base},
			Config:  Config{Model: ModelOf[adminAccount]()},
			Attrs: Attrs{
				{Name: "level", Decl: Value(3)},
			},
		})
		require.NoError(t, err)

		first, err := base.Build(ctx, nil)
		require.NoError(t, err)
		second, err := child.Build(ctx, nil)
		require.NoError(t, err)

		assert.Equal(t, "user-0", first.(*account).Handle)
		assert.Equal(t, "user-1", second.(*adminAccount).Handle)
	})

	t.Run("unrelated model owns its counter", func(t *testing.T) {
		base := compileAccountFactory(t)
		other, err := Compile(ctx, &Definition{
			Name:    "audit",
			Parents: []*Factory{base},
			Config:  Config{Model: ModelOf[auditRecord]()},
			Attrs: Attrs{
				{Name: "iD", Decl: Seq(func(n int) any { return fmt.Sprintf("rec-%d", n) })},
				{Name: "handle", Decl: Value(Skip)},
			},
		})
		require.NoError(t, err)

		_, err = base.Build(ctx, nil)
		require.NoError(t, err)
		v, err := other.Build(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "rec-0", v.(*auditRecord).ID)
	})
}

func TestResetSequence(t *testing.T) {
	ctx := context.Background()

	t.Run("owner resets", func(t *testing.T) {
		f := compileAccountFactory(t)
		_, err := f.Build(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, f.ResetSequence(0, false))
		v, err := f.Build(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "user-0", v.(*account).Handle)
	})

	t.Run("sharing descendant cannot reset without force", func(t *testing.T) {
		base := compileAccountFactory(t)
		child, err := Compile(ctx, &Definition{
			Name:    "admin",
			Parents: []*Factory{base},
			Config:  Config{Model: ModelOf[adminAccount]()},
		})
		require.NoError(t, err)

		err = child.ResetSequence(0, false)
		var ownErr *SequenceOwnershipError
		require.ErrorAs(t, err, &ownErr)
		assert.Equal(t, "admin", ownErr.Factory)
		assert.Equal(t, "account", ownErr.Owner)

		assert.NoError(t, child.ResetSequence(10, true))
		assert.Equal(t, 10, base.NextSequence())
	})
}

func TestSharesCounterWith(t *testing.T) {
	type base struct{}
	type embedsBase struct{ base }
	type embedsPointer struct{ *embedsBase }
	type unrelated struct{}

	testCases := []struct {
		name  string
		model any
		base  any
		want  bool
	}{
		{name: "same type", model: base{}, base: base{}, want: true},
		{name: "direct embedding", model: embedsBase{}, base: base{}, want: true},
		{name: "transitive pointer embedding", model: embedsPointer{}, base: base{}, want: true},
		{name: "unrelated", model: unrelated{}, base: base{}, want: false},
		{name: "reversed embedding", model: base{}, base: embedsBase{}, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := sharesCounterWith(reflect.TypeOf(tc.model), reflect.TypeOf(tc.base))
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("interface satisfaction", func(t *testing.T) {
		assert.False(t, sharesCounterWith(ModelOf[account](), ModelOf[fmt.Stringer]()))
		assert.True(t, sharesCounterWith(ModelOf[Stub](), ModelOf[fmt.Stringer]()))
	})
}

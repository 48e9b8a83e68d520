package queryexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/script"
)

func sampleItem() item {
	return item{
		Name:      "Gall",
		Author:    "urasandesu",
		Ranking:   4.5,
		Count:     12,
		Size:      2048,
		Modified:  time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC),
		Version:   script.MustParseVersion("1.2.3"),
		Installed: true,
		Owner:     &owner{Login: "akira"},
	}
}

// predicate builds gall => body from a constructor over the parameter.
func predicate(t *testing.T, build func(gall *Parameter) (Expr, error)) func(item) (bool, error) {
	t.Helper()
	gall := NewParameter("gall", itemType)
	body, err := build(gall)
	require.NoError(t, err)
	l, err := NewLambda(body, gall, BoolType)
	require.NoError(t, err)
	fn, err := AsPredicate[item](l)
	require.NoError(t, err)
	return fn
}

func TestEval_Predicates(t *testing.T) {
	must := func(p *PropertyAccess, err error) *PropertyAccess {
		require.NoError(t, err)
		return p
	}
	tests := []struct {
		name  string
		build func(gall *Parameter) (Expr, error)
		want  bool
	}{
		{"string equality", func(g *Parameter) (Expr, error) {
			return NewComparison(Eq, must(NewPropertyAccess(g, "Author")), NewConstant("urasandesu"))
		}, true},
		{"string equality is ordinal", func(g *Parameter) (Expr, error) {
			return NewComparison(Eq, must(NewPropertyAccess(g, "Author")), NewConstant("URASANDESU"))
		}, false},
		{"float greater than coerced int", func(g *Parameter) (Expr, error) {
			return NewComparison(Gt, must(NewPropertyAccess(g, "Ranking")), NewConstant(4))
		}, true},
		{"constant on the left", func(g *Parameter) (Expr, error) {
			return NewComparison(Lt, NewConstant(100), must(NewPropertyAccess(g, "Size")))
		}, true},
		{"version ordering", func(g *Parameter) (Expr, error) {
			return NewComparison(Ge, must(NewPropertyAccess(g, "Version")), NewConstant(script.MustParseVersion("1.10")))
		}, false},
		{"time ordering", func(g *Parameter) (Expr, error) {
			return NewComparison(Gt, must(NewPropertyAccess(g, "Modified")), NewConstant(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)))
		}, true},
		{"nil slice equals null", func(g *Parameter) (Expr, error) {
			return NewComparison(Eq, must(NewPropertyAccess(g, "Tags")), NewConstant(nil))
		}, true},
		{"non-empty string is not null", func(g *Parameter) (Expr, error) {
			return NewComparison(Ne, must(NewPropertyAccess(g, "Name")), NewConstant(nil))
		}, true},
		{"membership", func(g *Parameter) (Expr, error) {
			return NewMembership(must(NewPropertyAccess(g, "Name")), NewConstant([]string{"Foo", "Gall"}))
		}, true},
		{"substring", func(g *Parameter) (Expr, error) {
			return NewSubstringMatch(must(NewPropertyAccess(g, "Author")), NewConstant("sand"))
		}, true},
		{"nested property", func(g *Parameter) (Expr, error) {
			return NewComparison(Eq, must(NewPropertyAccess(must(NewPropertyAccess(g, "Owner")), "Login")), NewConstant("akira"))
		}, true},
		{"or short-circuits", func(g *Parameter) (Expr, error) {
			left, err := NewComparison(Eq, must(NewPropertyAccess(g, "Count")), NewConstant(12))
			if err != nil {
				return nil, err
			}
			return NewLogical(Or, left, NewConstant(false))
		}, true},
		{"and of bool property", func(g *Parameter) (Expr, error) {
			return NewLogical(And, must(NewPropertyAccess(g, "Installed")), NewConstant(false))
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := predicate(t, tt.build)
			got, err := fn(sampleItem())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_NilPointerInChain(t *testing.T) {
	fn := predicate(t, func(g *Parameter) (Expr, error) {
		o, err := NewPropertyAccess(g, "Owner")
		if err != nil {
			return nil, err
		}
		login, err := NewPropertyAccess(o, "Login")
		if err != nil {
			return nil, err
		}
		return NewComparison(Eq, login, NewConstant("x"))
	})
	it := sampleItem()
	it.Owner = nil
	_, err := fn(it)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil target")
}

func TestAsSelector(t *testing.T) {
	gall := NewParameter("gall", itemType)
	p, err := NewPropertyAccess(gall, "Ranking")
	require.NoError(t, err)
	body, err := NewConvert(p, NullType)
	require.NoError(t, err)
	l, err := NewLambda(body, gall, NullType)
	require.NoError(t, err)

	sel, err := AsSelector[item](l)
	require.NoError(t, err)
	got, err := sel(sampleItem())
	require.NoError(t, err)
	assert.Equal(t, 4.5, got)

	_, err = AsPredicate[item](l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returns any, not bool")

	_, err = AsSelector[owner](l)
	require.Error(t, err)
}

func TestLambda_EvalRejectsWrongArgument(t *testing.T) {
	gall := NewParameter("gall", itemType)
	p, err := NewPropertyAccess(gall, "Installed")
	require.NoError(t, err)
	l, err := NewLambda(p, gall, BoolType)
	require.NoError(t, err)

	_, err = l.Eval(&owner{})
	require.Error(t, err)
	_, err = l.Eval(nil)
	require.Error(t, err)
}

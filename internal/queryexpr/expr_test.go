package queryexpr

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/script"
)

type item struct {
	Name      string
	Author    string
	Ranking   float64
	Count     int
	Size      int64
	Modified  time.Time
	Version   script.Version
	Installed bool
	Tags      []string
	Owner     *owner
}

type owner struct {
	Login string
}

var itemType = reflect.TypeFor[item]()

func prop(t *testing.T, target Expr, name string) *PropertyAccess {
	t.Helper()
	p, err := NewPropertyAccess(target, name)
	require.NoError(t, err)
	return p
}

func TestNewPropertyAccess(t *testing.T) {
	gall := NewParameter("gall", itemType)

	p := prop(t, gall, "author")
	assert.Equal(t, "Author", p.Name)
	assert.Equal(t, StringType, p.Type())
	assert.Equal(t, "gall.Author", p.String())
	assert.Same(t, gall, p.Root())

	login := prop(t, prop(t, gall, "Owner"), "LOGIN")
	assert.Equal(t, "gall.Owner.Login", login.String())
	assert.Same(t, gall, login.Root())

	_, err := NewPropertyAccess(gall, "Missing")
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), `no property "Missing"`)

	_, err = NewPropertyAccess(prop(t, gall, "Name"), "Length")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the target has no properties")
}

func TestNewComparison_CoercesNumericConstants(t *testing.T) {
	gall := NewParameter("gall", itemType)

	c, err := NewComparison(Gt, prop(t, gall, "Ranking"), NewConstant(4))
	require.NoError(t, err)
	assert.Equal(t, float64(4), c.Right.(*Constant).Value)

	c, err = NewComparison(Le, NewConstant(1048576), prop(t, gall, "Size"))
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), c.Left.(*Constant).Value)

	c, err = NewComparison(Eq, prop(t, gall, "Count"), NewConstant(3.0))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Right.(*Constant).Value)

	_, err = NewComparison(Eq, prop(t, gall, "Count"), NewConstant(1.5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand types differ")
}

func TestNewComparison_TypeErrors(t *testing.T) {
	gall := NewParameter("gall", itemType)

	tests := []struct {
		name    string
		op      CompareOp
		left    Expr
		right   Expr
		message string
	}{
		{"string against int", Eq, prop(t, gall, "Name"), NewConstant(1), "operand types differ"},
		{"ordering null", Gt, prop(t, gall, "Name"), NewConstant(nil), "null can only be compared for equality"},
		{"null against float", Eq, prop(t, gall, "Ranking"), NewConstant(nil), "the operand cannot be null"},
		{"ordering bool", Lt, prop(t, gall, "Installed"), NewConstant(true), "not ordered"},
		{"equality of slices", Eq, prop(t, gall, "Tags"), NewConstant([]string{"a"}), "not comparable"},
		{"version against string", Ge, prop(t, gall, "Version"), NewConstant("1.0"), "operand types differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewComparison(tt.op, tt.left, tt.right)
			require.Error(t, err)
			var te *TypeError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.op.String(), te.Op)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestTypeError_RendersOperands(t *testing.T) {
	gall := NewParameter("gall", itemType)
	_, err := NewComparison(Eq, prop(t, gall, "Name"), NewConstant(1))
	require.Error(t, err)
	assert.Equal(t, "eq: operand types differ; left: gall.Name (string); right: 1 (int)", err.Error())
}

func TestNewComparison_Accepts(t *testing.T) {
	gall := NewParameter("gall", itemType)

	_, err := NewComparison(Eq, prop(t, gall, "Name"), NewConstant(nil))
	assert.NoError(t, err)
	_, err = NewComparison(Ne, NewConstant(nil), prop(t, gall, "Owner"))
	assert.NoError(t, err)
	_, err = NewComparison(Ge, prop(t, gall, "Version"), NewConstant(script.MustParseVersion("1.2")))
	assert.NoError(t, err)
	_, err = NewComparison(Lt, prop(t, gall, "Modified"), NewConstant(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.NoError(t, err)
	_, err = NewComparison(Eq, prop(t, gall, "Installed"), NewConstant(true))
	assert.NoError(t, err)
	_, err = NewComparison(Eq, prop(t, gall, "Name"), prop(t, gall, "Author"))
	assert.NoError(t, err)
}

func TestNewLogical(t *testing.T) {
	gall := NewParameter("gall", itemType)

	eq, err := NewComparison(Eq, prop(t, gall, "Name"), NewConstant("x"))
	require.NoError(t, err)
	_, err = NewLogical(And, eq, prop(t, gall, "Installed"))
	assert.NoError(t, err)

	_, err = NewLogical(Or, eq, prop(t, gall, "Name"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both operands must be bool")
}

func TestNewMembership(t *testing.T) {
	gall := NewParameter("gall", itemType)

	m, err := NewMembership(prop(t, gall, "Name"), NewConstant([]string{"a", "b"}))
	require.NoError(t, err)
	assert.Equal(t, `{"a", "b"}.Contains(gall.Name)`, m.String())

	_, err = NewMembership(prop(t, gall, "Name"), NewConstant([]any{"x", 1, 3.14}))
	require.Error(t, err)
	assert.True(t, IsTypeError(err))

	_, err = NewMembership(prop(t, gall, "Count"), NewConstant([]string{"1"}))
	require.Error(t, err)
}

func TestNewSubstringMatch(t *testing.T) {
	gall := NewParameter("gall", itemType)

	m, err := NewSubstringMatch(prop(t, gall, "Name"), NewConstant("Gall"))
	require.NoError(t, err)
	assert.Equal(t, "Gall", m.Pattern())
	assert.Equal(t, `gall.Name.Contains("Gall")`, m.String())

	_, err = NewSubstringMatch(prop(t, gall, "Name"), prop(t, gall, "Author"))
	assert.ErrorIs(t, err, ErrPatternNotConstant)

	_, err = NewSubstringMatch(prop(t, gall, "Name"), NewConstant(nil))
	assert.True(t, IsTypeError(err))

	_, err = NewSubstringMatch(prop(t, gall, "Ranking"), NewConstant("1"))
	assert.True(t, IsTypeError(err))
}

func TestNewConvert(t *testing.T) {
	gall := NewParameter("gall", itemType)

	c, err := NewConvert(prop(t, gall, "Ranking"), NullType)
	require.NoError(t, err)
	assert.Equal(t, NullType, c.Type())
	assert.Equal(t, "Convert(gall.Ranking, any)", c.String())

	_, err = NewConvert(prop(t, gall, "Ranking"), StringType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only widening")
}

func TestNewLambda(t *testing.T) {
	gall := NewParameter("gall", itemType)

	eq, err := NewComparison(Eq, prop(t, gall, "Author"), NewConstant("urasandesu"))
	require.NoError(t, err)
	m, err := NewSubstringMatch(prop(t, gall, "Name"), NewConstant("Gall"))
	require.NoError(t, err)
	body, err := NewLogical(And, eq, m)
	require.NoError(t, err)

	l, err := NewLambda(body, gall, BoolType)
	require.NoError(t, err)
	assert.Equal(t, `gall => ((gall.Author == "urasandesu") AndAlso gall.Name.Contains("Gall"))`, l.String())
	assert.Equal(t, reflect.TypeFor[func(item) bool](), l.Type())

	_, err = NewLambda(prop(t, gall, "Name"), gall, BoolType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match the result type")

	other := NewParameter("gall", itemType)
	_, err = NewLambda(prop(t, other, "Installed"), gall, BoolType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in scope")
}

func TestInspect_VisitsEveryNode(t *testing.T) {
	gall := NewParameter("gall", itemType)
	eq, err := NewComparison(Eq, prop(t, gall, "Name"), NewConstant("x"))
	require.NoError(t, err)
	l, err := NewLambda(eq, gall, BoolType)
	require.NoError(t, err)

	var kinds []string
	Inspect(l, func(e Expr) bool {
		kinds = append(kinds, reflect.TypeOf(e).Elem().Name())
		return true
	})
	assert.Equal(t, []string{"Lambda", "Parameter", "Comparison", "PropertyAccess", "Parameter", "Constant"}, kinds)
}

func TestHasRegexSpecial(t *testing.T) {
	for _, s := range []string{"literal", "Gall-1", "100%_off", ""} {
		assert.False(t, HasRegexSpecial(s), s)
	}
	for _, s := range []string{"a.*b", "two words", "x+", "(g)", "^a", "a$", "tab\there", `back\slash`, "#"} {
		assert.True(t, HasRegexSpecial(s), s)
	}
}

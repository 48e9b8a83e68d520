package queryexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Comparison(t *testing.T) {
	gall := NewParameter("gall", itemType)
	c, err := NewComparison(Eq, prop(t, gall, "name"), NewConstant("x"))
	require.NoError(t, err)

	got, err := MarshalCanonical(c)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"comparison",`+
		`"left":{"kind":"property","name":"Name","target":{"kind":"parameter","name":"gall","type":"queryexpr.item"},"type":"string"},`+
		`"op":"eq",`+
		`"right":{"kind":"constant","type":"string","value":"x"}}`, string(got))
}

func TestMarshalCanonical_Constants(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"null", nil, `{"kind":"constant","type":"null"}`},
		{"int", 42, `{"kind":"constant","type":"int","value":42}`},
		{"float", 4.5, `{"kind":"constant","type":"float64","value":"4.5"}`},
		{"bool", true, `{"kind":"constant","type":"bool","value":true}`},
		{"strings", []string{"a", "b"}, `{"kind":"constant","type":"[]string","value":["a","b"]}`},
		{"objects", []any{"a", 1}, `{"kind":"constant","type":"[]interface {}","value":[` +
			`{"kind":"constant","type":"string","value":"a"},{"kind":"constant","type":"int","value":1}]}`},
		{"no html escaping", "<&>", `{"kind":"constant","type":"string","value":"<&>"}`},
		{"nfc", "e\u0301", `{"kind":"constant","type":"string","value":"` + "\u00e9" + `"}`},
		{"line separator", "a\u2028b", `{"kind":"constant","type":"string","value":"a` + "\u2028" + `b"}`},
		{"escaped backslash", `a\u2028`, `{"kind":"constant","type":"string","value":"a\\u2028"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(NewConstant(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	build := func() *Lambda {
		gall := NewParameter("gall", itemType)
		m, err := NewMembership(prop(t, gall, "Author"), NewConstant([]string{"b", "a"}))
		require.NoError(t, err)
		r, err := NewComparison(Gt, prop(t, gall, "Ranking"), NewConstant(3))
		require.NoError(t, err)
		body, err := NewLogical(Or, m, r)
		require.NoError(t, err)
		l, err := NewLambda(body, gall, BoolType)
		require.NoError(t, err)
		return l
	}

	first, err := MarshalCanonical(build())
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalCanonical(build())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.Contains(t, string(first), `"result":"bool"`)
	assert.Contains(t, string(first), `{"kind":"constant","type":"float64","value":"3"}`)
}

func TestMarshalCanonical_UnsupportedConstant(t *testing.T) {
	_, err := MarshalCanonical(NewConstant(map[string]int{"a": 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported constant")
}

func TestValidate(t *testing.T) {
	gall := NewParameter("gall", itemType)

	lambda := func(body Expr) *Lambda {
		l, err := NewLambda(body, gall, BoolType)
		require.NoError(t, err)
		return l
	}

	eq, err := NewComparison(Eq, prop(t, gall, "Author"), NewConstant("x"))
	require.NoError(t, err)
	res := Validate(lambda(eq))
	assert.True(t, res.IsPortable)
	assert.Empty(t, res.Warnings)

	nested, err := NewComparison(Eq, prop(t, prop(t, gall, "Owner"), "Login"), NewConstant("x"))
	require.NoError(t, err)
	res = Validate(lambda(nested))
	assert.False(t, res.IsPortable)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Property chain gall.Owner.Login")

	consts, err := NewComparison(Eq, NewConstant(1), NewConstant(2))
	require.NoError(t, err)
	res = Validate(lambda(consts))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "two constants")

	objs, err := NewComparison(Ne, prop(t, gall, "Owner"), NewConstant(nil))
	require.NoError(t, err)
	res = Validate(lambda(objs))
	assert.True(t, res.IsPortable)

	res = Validate(nil)
	assert.False(t, res.IsPortable)
	assert.Equal(t, []string{"nil lambda"}, res.Warnings)
}

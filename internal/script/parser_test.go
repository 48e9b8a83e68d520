package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleExpr parses src and returns the expression of its only statement.
func singleExpr(t *testing.T, src string) Expr {
	t.Helper()
	sb, err := Parse(src)
	require.NoError(t, err)
	require.NotNil(t, sb.End)
	require.Len(t, sb.End.Statements, 1)
	pl, ok := sb.End.Statements[0].(*Pipeline)
	require.True(t, ok, "statement is %T", sb.End.Statements[0])
	require.Len(t, pl.Elements, 1)
	ce, ok := pl.Elements[0].(*CommandExpression)
	require.True(t, ok, "element is %T", pl.Elements[0])
	return ce.Expr
}

func TestParse_MemberComparison(t *testing.T) {
	e := singleExpr(t, `$gall.Author -eq 'urasandesu'`)

	bin, ok := e.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokIeq, bin.Op)
	assert.Equal(t, `$gall.Author -eq 'urasandesu'`, bin.String())

	m, ok := bin.Left.(*Member)
	require.True(t, ok)
	assert.Equal(t, "$gall", m.Target.String())
	name, ok := m.Member.(*StringConstant)
	require.True(t, ok)
	assert.Equal(t, "Author", name.Value)
	assert.Equal(t, BareWord, name.Quote)

	rhs, ok := bin.Right.(*StringConstant)
	require.True(t, ok)
	assert.Equal(t, "urasandesu", rhs.Value)
	assert.Equal(t, SingleQuoted, rhs.Quote)
}

func TestParse_Precedence(t *testing.T) {
	e := singleExpr(t, `$gall.A -eq 1 -and $gall.B -gt 2 + 3 * 4`)

	and, ok := e.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokAnd, and.Op)

	gt, ok := and.Right.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokIgt, gt.Op)

	plus, ok := gt.Right.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokPlus, plus.Op)
	assert.Equal(t, "3 * 4", plus.Right.String())
}

func TestParse_InWithArrayLiteral(t *testing.T) {
	e := singleExpr(t, `$gall.Author -in 'a','b','c'`)

	bin, ok := e.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokIin, bin.Op)
	arr, ok := bin.Right.(*ArrayLiteral)
	require.True(t, ok)
	assert.Len(t, arr.Elements, 3)
	assert.Equal(t, `'a','b','c'`, arr.String())
}

func TestParse_InvokeMember(t *testing.T) {
	e := singleExpr(t, `(5963).ToString('X8')`)

	inv, ok := e.(*InvokeMember)
	require.True(t, ok)
	_, isParen := inv.Target.(*Paren)
	assert.True(t, isParen)
	require.Len(t, inv.Arguments, 1)
	assert.Equal(t, "'X8'", inv.Arguments[0].String())
}

func TestParse_MethodArgumentsAreNotArrays(t *testing.T) {
	e := singleExpr(t, `'abc'.Substring(1, 2)`)

	inv, ok := e.(*InvokeMember)
	require.True(t, ok)
	assert.Len(t, inv.Arguments, 2)
}

func TestParse_ComputedMemberNames(t *testing.T) {
	e := singleExpr(t, `$Gall.(@('Auth';'or') -join '')`)
	m, ok := e.(*Member)
	require.True(t, ok)
	_, isParen := m.Member.(*Paren)
	assert.True(t, isParen)

	e = singleExpr(t, `$gall.$(trap { 'error!!' } 'Author')`)
	m, ok = e.(*Member)
	require.True(t, ok)
	sub, ok := m.Member.(*SubExpression)
	require.True(t, ok)
	assert.Len(t, sub.Body.Traps, 1)
	assert.Len(t, sub.Body.Statements, 1)
	assert.Equal(t, `trap { 'error!!' } 'Author'`, sub.Body.String())

	e = singleExpr(t, `$gall.'Author'`)
	m, ok = e.(*Member)
	require.True(t, ok)
	assert.Equal(t, KindStringConstant, m.Member.Kind())
}

func TestParse_IndexWithRange(t *testing.T) {
	e := singleExpr(t, `@('a','b','c')[-2..-1]`)

	idx, ok := e.(*Index)
	require.True(t, ok)
	_, isArray := idx.Target.(*ArrayExpression)
	assert.True(t, isArray)
	rng, ok := idx.Index.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokDotDot, rng.Op)
	assert.Equal(t, KindUnary, rng.Left.Kind())
}

func TestParse_PrefixIncrementInParens(t *testing.T) {
	e := singleExpr(t, `(++$i)`)

	paren, ok := e.(*Paren)
	require.True(t, ok)
	pl := paren.Pipeline.(*Pipeline)
	u, ok := pl.Elements[0].(*CommandExpression).Expr.(*Unary)
	require.True(t, ok)
	assert.Equal(t, TokPlusPlus, u.Op)
}

func TestParse_PostfixIncrement(t *testing.T) {
	e := singleExpr(t, `$i++`)
	u, ok := e.(*Unary)
	require.True(t, ok)
	assert.Equal(t, TokPostfixPlusPlus, u.Op)
}

func TestParse_Casts(t *testing.T) {
	e := singleExpr(t, `[string]$gall.Ranking`)
	conv, ok := e.(*Convert)
	require.True(t, ok)
	assert.Equal(t, "string", conv.Type.Type.Name)
	assert.Equal(t, KindMember, conv.Child.Kind())

	e = singleExpr(t, `[int]::MaxValue`)
	m, ok := e.(*Member)
	require.True(t, ok)
	assert.True(t, m.Static)
	assert.Equal(t, KindTypeExpression, m.Target.Kind())

	e = singleExpr(t, `[string[]]$x`)
	conv, ok = e.(*Convert)
	require.True(t, ok)
	assert.True(t, conv.Type.Type.Array)
	assert.Equal(t, "string[]", conv.Type.Type.String())
}

func TestParse_ExpandableString(t *testing.T) {
	e := singleExpr(t, `"hello $name and $(1 + 2)!"`)
	es, ok := e.(*ExpandableString)
	require.True(t, ok)
	nested := es.NestedExpressions()
	require.Len(t, nested, 2)
	assert.Equal(t, "$name", nested[0].String())
	assert.Equal(t, "$(1 + 2)", nested[1].String())
	require.Len(t, es.Parts, 5)
	assert.Equal(t, "hello ", es.Parts[0].(*StringConstant).Value)
	assert.Equal(t, "!", es.Parts[4].(*StringConstant).Value)
}

func TestParse_SubexpressionAtEndOfString(t *testing.T) {
	tests := []struct {
		src     string
		nested  string
		literal string
	}{
		{`"$(1)"`, "$(1)", ""},
		{`"$(1+1)"`, "$(1+1)", ""},
		{`"$(1.5)"`, "$(1.5)", ""},
		{`"a$('x')"`, "$('x')", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e := singleExpr(t, tt.src)
			es, ok := e.(*ExpandableString)
			require.True(t, ok, "got %T", e)
			nested := es.NestedExpressions()
			require.Len(t, nested, 1)
			assert.Equal(t, tt.nested, nested[0].String())
			assert.Equal(t, tt.src, es.String())
			if tt.literal != "" {
				assert.Equal(t, tt.literal, es.Parts[0].(*StringConstant).Value)
			}
		})
	}
}

func TestParse_SubexpressionInStringFollowedByCode(t *testing.T) {
	sb, err := Parse(`"$(1)" -eq "$('1')"`)
	require.NoError(t, err)
	b, ok := sb.End.Statements[0].(*Pipeline).Elements[0].(*CommandExpression).Expr.(*Binary)
	require.True(t, ok)
	assert.Equal(t, `"$(1)"`, b.Left.String())
	assert.Equal(t, `"$('1')"`, b.Right.String())
}

func TestParse_DoubleQuotedWithoutExpansionIsConstant(t *testing.T) {
	e := singleExpr(t, "\"tab`there\"")
	sc, ok := e.(*StringConstant)
	require.True(t, ok)
	assert.Equal(t, "tab\there", sc.Value)
	assert.Equal(t, DoubleQuoted, sc.Quote)
}

func TestParse_Redirections(t *testing.T) {
	sb, err := Parse(`'urasandesu' > a.txt`)
	require.NoError(t, err)
	ce := sb.End.Statements[0].(*Pipeline).Elements[0].(*CommandExpression)
	require.Len(t, ce.Redirections, 1)
	fr, ok := ce.Redirections[0].(*FileRedirection)
	require.True(t, ok)
	assert.Equal(t, "a.txt", fr.Location.(*StringConstant).Value)

	e := singleExpr(t, `('urasandesu' 2>&1)`)
	inner := e.(*Paren).Pipeline.(*Pipeline).Elements[0].(*CommandExpression)
	require.Len(t, inner.Redirections, 1)
	assert.Equal(t, KindMergingRedirection, inner.Redirections[0].Kind())
}

func TestParse_PipelineWithCommands(t *testing.T) {
	sb, err := Parse(`'a','b' | ? { $_ -match '^u|^a' } | Sort-Object -Descending`)
	require.NoError(t, err)
	pl := sb.End.Statements[0].(*Pipeline)
	require.Len(t, pl.Elements, 3)

	where := pl.Elements[1].(*Command)
	assert.Equal(t, "?", where.CommandName())
	require.Len(t, where.Elements, 2)
	assert.Equal(t, KindScriptBlockExpression, where.Elements[1].Kind())

	sort := pl.Elements[2].(*Command)
	assert.Equal(t, "Sort-Object", sort.CommandName())
	param, ok := sort.Elements[1].(*CommandParameter)
	require.True(t, ok)
	assert.Equal(t, "Descending", param.Name)
}

func TestParse_Assignment(t *testing.T) {
	sb, err := Parse(`$a = 1, 2; $a[0] += 3`)
	require.NoError(t, err)
	require.Len(t, sb.End.Statements, 2)

	a := sb.End.Statements[0].(*Assignment)
	assert.Equal(t, TokEquals, a.Op)
	assert.Equal(t, "$a", a.Left.String())

	b := sb.End.Statements[1].(*Assignment)
	assert.Equal(t, TokPlusEquals, b.Op)
	assert.Equal(t, KindIndex, b.Left.Kind())
}

func TestParse_Statements(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
	}{
		{`if ($true) { 1 } elseif ($false) { 2 } else { 3 }`, KindIf},
		{`while ($i -lt 10) { $i++ }`, KindWhile},
		{`do { 'hoge' } while ($false)`, KindDoWhile},
		{`do { 'hoge' } until ($true)`, KindDoUntil},
		{`for ($i = 0; $i -lt 10; $i++) { $i }`, KindFor},
		{`foreach ($i in 1..3) { $i }`, KindForEach},
		{`switch ($i) { 0 { 'zero' } default { 'other' } }`, KindSwitch},
		{`try { 1 } catch [System.Exception] { 2 } finally { 3 }`, KindTry},
		{`trap { 'error!!' }`, KindTrap},
		{`break`, KindBreak},
		{`continue outer`, KindContinue},
		{`return 1`, KindReturn},
		{`exit`, KindExit},
		{`throw 'boom'`, KindThrow},
		{`data { 'hoge' }`, KindData},
		{`function Hoge($a, $b) { $a + $b }`, KindFunctionDefinition},
		{`gv ii -ValueOnly`, KindPipeline},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			sb, err := Parse(tt.src)
			require.NoError(t, err)
			var got Node
			if len(sb.End.Statements) > 0 {
				got = sb.End.Statements[0]
			} else {
				require.Len(t, sb.End.Traps, 1)
				got = sb.End.Traps[0]
			}
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.src, got.String())
		})
	}
}

func TestParse_IfElseAcrossLines(t *testing.T) {
	sb, err := Parse("if ($a) {\n 1\n}\nelse {\n 2\n}\n'next'")
	require.NoError(t, err)
	require.Len(t, sb.End.Statements, 2)
	s := sb.End.Statements[0].(*If)
	assert.NotNil(t, s.Else)
}

func TestParse_NamedBlocks(t *testing.T) {
	sb, err := Parse(`begin { 1 } process { 2 } end { 3 }`)
	require.NoError(t, err)
	require.NotNil(t, sb.Begin)
	require.NotNil(t, sb.Process)
	require.NotNil(t, sb.End)
	assert.False(t, sb.End.Unnamed)
	assert.Equal(t, "end { 3 }", sb.End.String())

	sb, err = Parse(`dynamicparam { 1 }`)
	require.NoError(t, err)
	assert.NotNil(t, sb.DynamicParam)
	assert.Nil(t, sb.End)
}

func TestParse_ParamBlock(t *testing.T) {
	sb, err := Parse(`param([string]$Name = 'x', $Other) $Name`)
	require.NoError(t, err)
	require.NotNil(t, sb.ParamBlock)
	require.Len(t, sb.ParamBlock.Parameters, 2)
	assert.Equal(t, "Name", sb.ParamBlock.Parameters[0].Name.Name)
	assert.NotNil(t, sb.ParamBlock.Parameters[0].Default)
	assert.Len(t, sb.End.Statements, 1)
}

func TestParse_Hashtable(t *testing.T) {
	e := singleExpr(t, "@{ Key = 'Value'; Other = 1\n Third = 2 }")
	h, ok := e.(*Hashtable)
	require.True(t, ok)
	require.Len(t, h.Pairs, 3)
	assert.Equal(t, "Key", h.Pairs[0].Key.(*StringConstant).Value)
}

func TestParse_EmptyScript(t *testing.T) {
	sb, err := Parse("")
	require.NoError(t, err)
	require.NotNil(t, sb.End)
	assert.Empty(t, sb.End.Statements)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []string{
		`$$$gall.Author -eq 'urasandesu'`,
		`$gall.Author -eq`,
		`$gall.Author -bogus 'x'`,
		`($gall.Author -eq 'x'`,
		`@('a'`,
		`'a' | 'b'`,
		`1 = 2`,
		`if ($true) 1`,
		`try { 1 }`,
		`"unterminated`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			require.Error(t, err)
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, 1, se.Line)
			assert.NotEmpty(t, se.Message)
		})
	}
}

func TestParse_SyntaxErrorPosition(t *testing.T) {
	_, err := Parse("1\n$a $b")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Line)
	assert.Equal(t, 4, se.Col)
	assert.Contains(t, se.Error(), "$b")
}

func TestParse_Using(t *testing.T) {
	e := singleExpr(t, `$using:x`)
	u, ok := e.(*Using)
	require.True(t, ok)
	assert.Equal(t, "x", u.Expr.(*Variable).Name)
}

func TestInspect_SkipsChildrenOnFalse(t *testing.T) {
	sb, err := Parse(`$a -eq { $b }`)
	require.NoError(t, err)

	var seen []string
	Inspect(sb, func(n Node) bool {
		if v, ok := n.(*Variable); ok {
			seen = append(seen, v.Name)
		}
		return n.Kind() != KindScriptBlockExpression
	})
	assert.Equal(t, []string{"a"}, seen)

	seen = nil
	Inspect(sb, func(n Node) bool {
		if v, ok := n.(*Variable); ok {
			seen = append(seen, v.Name)
		}
		return true
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestKind_StringCoversAllKinds(t *testing.T) {
	for _, k := range Kinds() {
		assert.NotEqual(t, "unknown", k.String(), "kind %d", int(k))
		assert.NotEmpty(t, k.String())
	}
}

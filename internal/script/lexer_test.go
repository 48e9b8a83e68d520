package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := newLexer(src)
	var toks []Token
	for {
		tok, err := l.next(modeExpr)
		require.NoError(t, err)
		if tok.Kind == TokEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexer_Comparison(t *testing.T) {
	toks := lexAll(t, `$gall.Author -eq 'urasandesu'`)

	require.Len(t, toks, 5)
	assert.Equal(t, []TokenKind{TokVariable, TokDot, TokGeneric, TokDashWord, TokString}, kinds(toks))
	assert.Equal(t, "gall", toks[0].Value)
	assert.Equal(t, "eq", toks[3].Value)
	assert.True(t, toks[3].Space)
	assert.False(t, toks[1].Space)
	assert.Equal(t, "urasandesu", toks[4].Value)
}

func TestLexer_DashWordIsLowerCased(t *testing.T) {
	toks := lexAll(t, `-CEQ`)
	require.Len(t, toks, 1)
	assert.Equal(t, "ceq", toks[0].Value)

	op, ok := LookupOperator(toks[0].Value)
	require.True(t, ok)
	assert.Equal(t, TokCeq, op)
	assert.True(t, op.IsCaseSensitive())
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"5963", 5963},
		{"2147483648", int64(2147483648)},
		{"10L", int64(10)},
		{"0x1F", 31},
		{"3.14", 3.14},
		{"1e3", 1000.0},
		{"1kb", 1024},
		{"1.5kb", 1536.0},
		{"2d", 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := lexAll(t, tt.src)
			require.Len(t, toks, 1)
			assert.Equal(t, TokNumber, toks[0].Kind)
			assert.Equal(t, tt.want, toks[0].Num)
		})
	}
}

func TestLexer_RangeIsNotReal(t *testing.T) {
	toks := lexAll(t, `1..3`)
	assert.Equal(t, []TokenKind{TokNumber, TokDotDot, TokNumber}, kinds(toks))
}

func TestLexer_SingleQuotedEscape(t *testing.T) {
	toks := lexAll(t, `'it''s'`)
	require.Len(t, toks, 1)
	assert.Equal(t, "it's", toks[0].Value)
}

func TestLexer_DoubleQuotedWithSubExpression(t *testing.T) {
	toks := lexAll(t, `"a $("b") c"`)
	require.Len(t, toks, 1)
	assert.Equal(t, TokExpandable, toks[0].Kind)
	assert.Equal(t, `a $("b") c`, toks[0].Value)
	assert.Equal(t, 1, toks[0].ValueStart)
}

func TestLexer_Variables(t *testing.T) {
	tests := []struct {
		src  string
		name string
	}{
		{"$gall", "gall"},
		{"$_", "_"},
		{"$$", "$"},
		{"$?", "?"},
		{"${my var}", "my var"},
		{"$env:Path", "env:Path"},
		{"$global:x", "global:x"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := lexAll(t, tt.src)
			require.Len(t, toks, 1)
			assert.Equal(t, TokVariable, toks[0].Kind)
			assert.Equal(t, tt.name, toks[0].Value)
		})
	}
}

func TestLexer_AdjacentVariables(t *testing.T) {
	toks := lexAll(t, `$$$gall`)
	require.Len(t, toks, 2)
	assert.Equal(t, "$", toks[0].Value)
	assert.Equal(t, "gall", toks[1].Value)
	assert.False(t, toks[1].Space)
}

func TestLexer_Redirections(t *testing.T) {
	toks := lexAll(t, `'x' > a.txt`)
	require.Len(t, toks, 3)
	assert.Equal(t, TokRedirect, toks[1].Kind)
	assert.Equal(t, "1", toks[1].FromStream)
	assert.Equal(t, TokGeneric, toks[2].Kind)
	assert.Equal(t, "a.txt", toks[2].Value)

	toks = lexAll(t, `'x' 2>&1`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokMergeRedirect, toks[1].Kind)
	assert.Equal(t, "2", toks[1].FromStream)
	assert.Equal(t, "1", toks[1].ToStream)

	toks = lexAll(t, `'x' >> log`)
	require.Len(t, toks, 3)
	assert.True(t, toks[1].Append)
}

func TestLexer_Comments(t *testing.T) {
	toks := lexAll(t, "1 # trailing\n<# block #> 2")
	assert.Equal(t, []TokenKind{TokNumber, TokNewline, TokNumber}, kinds(toks))
}

func TestLexer_LineContinuation(t *testing.T) {
	toks := lexAll(t, "1 `\n+ 2")
	assert.Equal(t, []TokenKind{TokNumber, TokPlus, TokNumber}, kinds(toks))
}

func TestLexer_CommandWords(t *testing.T) {
	toks := lexAll(t, `Where-Object { $_ } | ? { 1 }`)
	require.NotEmpty(t, toks)
	assert.Equal(t, "Where-Object", toks[0].Value)
	assert.Equal(t, TokPipe, toks[4].Kind)
	assert.Equal(t, "?", toks[5].Value)
}

func TestLexer_Errors(t *testing.T) {
	for _, src := range []string{`'open`, `"open`, `<# open`, `$`, `1 < 2`, `10abc`} {
		t.Run(src, func(t *testing.T) {
			l := newLexer(src)
			var err error
			for {
				var tok Token
				tok, err = l.next(modeExpr)
				if err != nil || tok.Kind == TokEOF {
					break
				}
			}
			require.Error(t, err)
			assert.True(t, IsSyntaxError(err))
		})
	}
}

func TestTokenKind_String(t *testing.T) {
	assert.Equal(t, "-ieq", TokIeq.String())
	assert.Equal(t, "-ceq", TokCeq.String())
	assert.Equal(t, "-and", TokAnd.String())
	assert.Equal(t, "-f", TokFormat.String())
	assert.Equal(t, "-iin", TokIin.String())
	assert.Equal(t, "+", TokPlus.String())
}

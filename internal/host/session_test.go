package host

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/gall/internal/script"
)

func evaluate(t *testing.T, src string, opts ...Option) any {
	t.Helper()
	v, err := New(opts...).Evaluate(src)
	require.NoError(t, err, "evaluating %s", src)
	return v
}

func TestEvaluate_Values(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"integer", "42", 42},
		{"addition", "1 + 2", 3},
		{"int overflow widens", "2147483647 + 1", float64(2147483648)},
		{"long stays long", "[long]2147483647 + 1", int64(2147483648)},
		{"exact division stays int", "10 / 2", 5},
		{"inexact division", "7 / 2", 3.5},
		{"string concat", "'a' + 1", "a1"},
		{"string repeat", "'ab' * 3", "ababab"},
		{"single output", "Write-Output 'x'", "x"},
		{"two outputs", "1; 2", []any{1, 2}},
		{"array literal", "1, 'two'", []any{1, "two"}},
		{"hex format", "(5963).ToString('X8')", "0000174B"},
		{"format operator", "'{0}-{1:D3}' -f 'a', 7", "a-007"},
		{"join", "(1, 2, 3) -join ','", "1,2,3"},
		{"unary join", "-join ('a', 'b')", "ab"},
		{"split", "'a,b' -split ','", []any{"a", "b"}},
		{"replace", "'abc' -replace 'b', 'x'", "axc"},
		{"replace group", "'abc' -replace '(b)', '[$1]'", "a[b]c"},
		{"eq ignores case", "'ABC' -eq 'abc'", true},
		{"ceq respects case", "'ABC' -ceq 'abc'", false},
		{"right operand converts", "1 -eq '1'", true},
		{"array filter", "(1, 2, 3, 2) -eq 2", []any{2, 2}},
		{"like", "'gall' -like 'g*l'", true},
		{"match", "'v1.2' -match '\\d'", true},
		{"contains", "(1, 2) -contains '2'", true},
		{"in", "'b' -in 'a', 'b'", true},
		{"range", "1..3", []any{1, 2, 3}},
		{"cast int", "[int]'12'", 12},
		{"cast rounds half to even", "[int]2.5", 2},
		{"cast long", "[long]5", int64(5)},
		{"is", "5 -is [int]", true},
		{"as failure is null", "'x' -as [int]", nil},
		{"version compare", "[version]'1.10' -gt [version]'1.9'", true},
		{"hashtable member", "@{a = 1}.a", 1},
		{"hashtable key ignores case", "$h = @{Name = 'x'}; $h['NAME']", "x"},
		{"string length", "'hello'.Length", 5},
		{"string method", "'Hello'.ToUpper()", "HELLO"},
		{"substring", "'gallery'.Substring(0, 4)", "gall"},
		{"static member", "[int]::MaxValue", 2147483647},
		{"static method", "[math]::Max(3, 8)", 8},
		{"regex escape", "[regex]::Escape('a.b')", `a\.b`},
		{"expandable string", `$n = 'x'; "n=$n"`, "n=x"},
		{"subexpression in string", `"sum=$(1 + 2)"`, "sum=3"},
		{"single element array collapses", "@(1)", 1},
		{"array expression", "@(1, 2)", []any{1, 2}},
		{"negative index", "(1, 2, 3)[-1]", 3},
		{"bool negation", "-not $true", false},
		{"null is falsy", "!$null", true},
		{"typed array", "[int[]]('1', '2')", []any{1, 2}},
		{"xor", "$true -xor $false", true},
		{"shift", "1 -shl 4", 16},
		{"band", "6 -band 3", 2},
		{"modulo", "7 % 3", 1},
		{"custom object", "([pscustomobject]@{a = 1}).a", 1},
		{"scriptblock invoke", "{ param($x) $x * 2 }.InvokeReturnAsIs(4)", 8},
		{"where method", "(1, 2, 3).Where({ $_ -gt 1 })", []any{2, 3}},
		{"guid parse", "([guid]'0f8fad5b-d9cb-469f-a165-70867728950e').ToString()", "0f8fad5b-d9cb-469f-a165-70867728950e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, script.Unwrap(evaluate(t, tt.src)))
		})
	}
}

func TestEvaluate_NoOutput(t *testing.T) {
	for _, src := range []string{
		"$x = 1",
		"1 > $null",
		"$i = 0; $i++",
		"Write-Output 1 | Out-Null",
		"",
		"function f { }",
		"@()",
		"(1, 2) -eq 5",
	} {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, script.AutomationNull, evaluate(t, src))
		})
	}
}

func TestEvaluate_Increment(t *testing.T) {
	assert.Equal(t, 1, evaluate(t, "$i = 0; (++$i)"))
	assert.Equal(t, 0, evaluate(t, "$i = 0; ($i++)"))
	assert.Equal(t, 2, evaluate(t, "$i = 0; $i++; $i++; $i"))
}

func TestEvaluate_MergeRedirectionKeepsOutput(t *testing.T) {
	assert.Equal(t, "x", script.Unwrap(evaluate(t, "Write-Output 'x' 2>&1")))
}

func TestEvaluate_ControlFlow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"if else", "if ($false) { 1 } elseif ($true) { 2 } else { 3 }", 2},
		{"for", "$s = 0; for ($i = 1; $i -le 4; $i++) { $s += $i }; $s", 10},
		{"while break", "$i = 0; while ($true) { $i++; if ($i -ge 3) { break } }; $i", 3},
		{"do until", "$i = 0; do { $i++ } until ($i -eq 5); $i", 5},
		{"do while", "$i = 10; do { $i++ } while ($i -lt 5); $i", 11},
		{"foreach", "$o = foreach ($x in 1..3) { $x * 10 }; $o", []any{10, 20, 30}},
		{"foreach over null", "$n = 0; foreach ($x in $null) { $n++ }; $n", 0},
		{"continue", "foreach ($x in 1..4) { if ($x % 2) { continue }; $x }", []any{2, 4}},
		{"labeled break", ":outer foreach ($a in 1..3) { foreach ($b in 1..3) { if ($b -eq 2) { break outer }; \"$a$b\" } }", "11"},
		{"switch", "switch (2) { 1 { 'one' } 2 { 'two' } default { 'other' } }", "two"},
		{"switch default", "switch ('z') { 'a' { 1 } default { 'd' } }", "d"},
		{"switch array", "switch (1, 2) { 1 { 'a' } 2 { 'b' } }", []any{"a", "b"}},
		{"switch wildcard", "switch -wildcard ('gallery') { 'gall*' { 'yes' } }", "yes"},
		{"switch regex", "switch -regex ('abc123') { '\\d+' { $Matches[0] } }", "123"},
		{"switch break", "switch (1, 2) { 1 { 'a'; break } 2 { 'b' } }", "a"},
		{"function", "function Double($x) { $x * 2 }; Double 21", 42},
		{"function named arg", "function F($First, $Second) { \"$First/$Second\" }; F -Second 2 -First 1", "1/2"},
		{"function prefix arg", "function F($Value) { $Value }; F -Val 7", 7},
		{"function default", "function F($x = 5) { $x }; F", 5},
		{"function switch", "function F([switch]$On) { $On }; F -On", true},
		{"function args", "function F { $args.Count }; F 1 2 3", 3},
		{"return", "function F { 1; return 2; 3 }; F", []any{1, 2}},
		{"param block", "function F { param([int]$n) $n + 1 }; F '4'", 5},
		{"filter", "filter Twice { $_ * 2 }; 1, 2 | Twice", []any{2, 4}},
		{"process block", "function F { process { $_ + 1 } }; 1, 2 | F", []any{2, 3}},
		{"call operator", "& { 'called' }", "called"},
		{"dot source keeps scope", ". { $v = 3 }; $v", 3},
		{"child scope", "& { $w = 3 }; $w", nil},
		{"exit keeps output", "1; exit; 2", 1},
		{"data section", "data d { 'x' }; $d", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, script.Unwrap(evaluate(t, tt.src)))
		})
	}
}

func TestEvaluate_TryCatch(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"catch thrown", "try { throw 'boom' } catch { $_.Exception.Message }", "boom"},
		{"catch typed", "try { 1 / 0 } catch [System.DivideByZeroException] { 'div' } catch { 'other' }", "div"},
		{"catch falls through types", "try { [int]'x' } catch [System.DivideByZeroException] { 'div' } catch { 'other' }", "other"},
		{"finally runs", "$f = 0; try { 1 } finally { $f = 1 }; $f", []any{1, 1}},
		{"finally after catch", "try { throw 'x' } catch { 'c' } finally { 'f' }", []any{"c", "f"}},
		{"rethrow caught outside", "try { try { throw 'in' } catch { throw } } catch { 'out' }", "out"},
		{"trap continues", "trap { 'trapped'; continue }; 1/0; 'after'", []any{"trapped", "after"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, script.Unwrap(evaluate(t, tt.src)))
		})
	}
}

func TestEvaluate_TrapBreakRethrows(t *testing.T) {
	_, err := New().Evaluate("trap { break }; throw 'stop'; 'unreachable'")
	require.Error(t, err)
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeThrown, re.Code)
	assert.Equal(t, "stop", re.Message)
}

func TestEvaluate_Commands(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"where script block", "1..5 | Where-Object { $_ -gt 3 }", []any{4, 5}},
		{"where alias", "1..5 | ? { $_ % 2 -eq 0 }", []any{2, 4}},
		{"where property", "@{n = 1}, @{n = 2} | Where-Object n -eq 2 | ForEach-Object { $_.n }", 2},
		{"foreach", "1..3 | ForEach-Object { $_ * $_ }", []any{1, 4, 9}},
		{"foreach member", "'a', 'bb' | % Length", []any{1, 2}},
		{"foreach shares scope", "$t = 0; 1..4 | % { $t += $_ }; $t", 10},
		{"foreach begin end", "1..2 | % -Begin { 'b' } -Process { $_ } -End { 'e' }", []any{"b", 1, 2, "e"}},
		{"sort", "3, 1, 2 | Sort-Object", []any{1, 2, 3}},
		{"sort descending", "3, 1, 2 | sort -Descending", []any{3, 2, 1}},
		{"sort unique", "'b', 'a', 'B' | Sort-Object -Unique", []any{"a", "b"}},
		{"sort property", "@{k = 2}, @{k = 1} | Sort-Object k | % { $_.k }", []any{1, 2}},
		{"select first", "1..10 | Select-Object -First 2", []any{1, 2}},
		{"select last", "1..10 | select -Last 1", 10},
		{"select skip", "1..4 | select -Skip 3", 4},
		{"select property", "([pscustomobject]@{a = 1; b = 2} | Select-Object b).b", 2},
		{"select calculated", "(5 | Select-Object @{n = 'Twice'; e = { $_ * 2 }}).Twice", 10},
		{"select expand", "[pscustomobject]@{a = 'x'} | Select-Object -ExpandProperty a", "x"},
		{"measure count", "(1..7 | Measure-Object).Count", 7},
		{"measure sum", "(1..4 | Measure-Object -Sum).Sum", 10.0},
		{"measure max", "(3, 9, 2 | measure -Maximum).Maximum", 9.0},
		{"write output", "Write-Output 1 2", []any{1, 2}},
		{"echo alias", "echo 'a'", "a"},
		{"get variable", "$zz = 4; (Get-Variable zz).Value", 4},
		{"get variable value only", "$zz = 4; Get-Variable zz -ValueOnly", 4},
		{"splat hashtable", "function F($a, $b) { $a - $b }; $p = @{b = 1; a = 5}; F @p", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unwrapAll(evaluate(t, tt.src)))
		})
	}
}

// unwrapAll strips PSObject wrappers from a value and its elements.
func unwrapAll(v any) any {
	v = script.Unwrap(v)
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = unwrapAll(e)
		}
		return out
	}
	return v
}

func TestEvaluate_CommandOutputIsWrapped(t *testing.T) {
	v := evaluate(t, "1..3 | Where-Object { $_ -eq 2 }")
	_, wrapped := v.(*script.PSObject)
	assert.True(t, wrapped, "got %T", v)

	v = evaluate(t, "function F { 2 }; F")
	assert.Equal(t, 2, v)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code RuntimeErrorCode
	}{
		{"divide by zero", "1 / 0", ErrCodeDivideByZero},
		{"bad cast", "[int]'abc'", ErrCodeInvalidCast},
		{"unknown type", "[nosuchtype]'x'", ErrCodeInvalidCast},
		{"unknown command", "Get-Nothing", ErrCodeCommandNotFound},
		{"unknown method", "'x'.Frobnicate()", ErrCodeMethodNotFound},
		{"unknown parameter", "Sort-Object -Bogus", ErrCodeParameterBinding},
		{"ambiguous parameter", "function F($Alpha, $Also) { }; F -Al 1", ErrCodeParameterBinding},
		{"throw", "throw 'bad'", ErrCodeThrown},
		{"null method", "$null.ToString()", ErrCodeRuntime},
		{"read only variable", "$true = 1", ErrCodeRuntime},
		{"duplicate key", "@{a = 1; A = 2}", ErrCodeRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Evaluate(tt.src)
			require.Error(t, err)
			var re *RuntimeError
			require.True(t, errors.As(err, &re), "got %T: %v", err, err)
			assert.Equal(t, tt.code, re.Code)
			assert.True(t, IsRuntimeError(err))
		})
	}
}

func TestEvaluate_SyntaxError(t *testing.T) {
	_, err := New().Evaluate("1 +")
	require.Error(t, err)
	assert.True(t, script.IsSyntaxError(err))
	assert.False(t, IsRuntimeError(err))
}

func TestEvaluate_StepQuota(t *testing.T) {
	s := New(WithMaxSteps(100))
	_, err := s.Evaluate("while ($true) { }")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	_, err = s.Evaluate("try { while ($true) { } } catch { 'swallowed' }")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	v, err := s.Evaluate("foreach ($i in 1..10) { }; 'ok'")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSession_Variables(t *testing.T) {
	s := New(WithVariables(map[string]any{"Limit": 3}))
	v, err := s.Evaluate("$limit + 1")
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	s.SetVariable("name", "gall")
	v, err = s.Evaluate("$Name.ToUpper()")
	require.NoError(t, err)
	assert.Equal(t, "GALL", v)

	got, ok := s.Variable("LIMIT")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestSession_EvaluationsDoNotLeak(t *testing.T) {
	s := New()
	_, err := s.Evaluate("$leak = 1; $global:leak2 = 2")
	require.NoError(t, err)

	v, err := s.Evaluate("$leak")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = s.Evaluate("$leak2")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, ok := s.Variable("leak2")
	assert.False(t, ok)
}

func TestSession_GlobalQualifier(t *testing.T) {
	v := evaluate(t, "function F { $global:g = 7 }; F; $g")
	assert.Equal(t, 7, v)
}

func TestSession_EnvironmentVariable(t *testing.T) {
	t.Setenv("GALL_TEST_VALUE", "from-env")
	assert.Equal(t, "from-env", evaluate(t, "$env:GALL_TEST_VALUE"))
	assert.Nil(t, evaluate(t, "$env:GALL_TEST_MISSING_VALUE"))
}

func TestSession_Culture(t *testing.T) {
	de := WithCulture(language.German)
	assert.Equal(t, "1,5", evaluate(t, "(1.5).ToString()", de))
	assert.Equal(t, "1.5", evaluate(t, "(1.5).ToString()"))
	assert.Equal(t, "1.5", evaluate(t, `"$(1.5)"`, de), "string expansion is invariant")
	assert.Equal(t, "de-DE", evaluate(t, "$PSCulture", de))
	assert.Equal(t, "1,234.50", evaluate(t, "(1234.5).ToString('N2')"))
}

func TestSession_Clock(t *testing.T) {
	fixed := time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return fixed })
	assert.Equal(t, fixed, script.Unwrap(evaluate(t, "Get-Date", clock)))
	assert.Equal(t, 2024, evaluate(t, "(Get-Date).Year", clock))
	assert.Equal(t, "2024-02-29", script.Unwrap(evaluate(t, "Get-Date -Format 'yyyy-MM-dd'", clock)))
	assert.Equal(t, fixed, evaluate(t, "[datetime]::Now", clock))
}

func TestSession_Matches(t *testing.T) {
	v := evaluate(t, "if ('v12' -match 'v(\\d+)') { $Matches[1] }")
	assert.Equal(t, "12", v)
}

package host

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"

	"github.com/roach88/gall/internal/script"
)

// maxRangeLength bounds the size of a .. range.
const maxRangeLength = 10_000_000

// compareOp strips the case prefix from a comparison operator, returning the
// case-insensitive form.
func compareOp(op script.TokenKind) script.TokenKind {
	switch op {
	case script.TokCeq:
		return script.TokIeq
	case script.TokCne:
		return script.TokIne
	case script.TokCge:
		return script.TokIge
	case script.TokCgt:
		return script.TokIgt
	case script.TokClt:
		return script.TokIlt
	case script.TokCle:
		return script.TokIle
	case script.TokClike:
		return script.TokIlike
	case script.TokCnotlike:
		return script.TokInotlike
	case script.TokCmatch:
		return script.TokImatch
	case script.TokCnotmatch:
		return script.TokInotmatch
	case script.TokCreplace:
		return script.TokIreplace
	case script.TokCcontains:
		return script.TokIcontains
	case script.TokCnotcontains:
		return script.TokInotcontains
	case script.TokCin:
		return script.TokIin
	case script.TokCnotin:
		return script.TokInotin
	case script.TokCsplit:
		return script.TokIsplit
	}
	return op
}

// binary applies a non-short-circuit binary operator to evaluated operands.
func (r *runner) binary(op script.TokenKind, l, rv any) (any, error) {
	cs := op.IsCaseSensitive()
	switch op := compareOp(op); op {
	case script.TokIeq, script.TokIne, script.TokIgt, script.TokIge, script.TokIlt, script.TokIle,
		script.TokIlike, script.TokInotlike, script.TokImatch, script.TokInotmatch:
		if arr, ok := norm(l).([]any); ok {
			var out []any
			for _, e := range arr {
				ok, err := r.compareScalar(op, e, rv, cs, false)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, e)
				}
			}
			if out == nil {
				out = []any{}
			}
			return out, nil
		}
		return r.compareScalar(op, l, rv, cs, true)
	case script.TokIcontains, script.TokInotcontains:
		found := r.containsValue(asList(l), rv, cs)
		return found == (op == script.TokIcontains), nil
	case script.TokIin, script.TokInotin:
		found := r.containsValue(asList(rv), l, cs)
		return found == (op == script.TokIin), nil
	case script.TokIreplace:
		return r.replace(l, rv, cs)
	case script.TokIsplit:
		return r.split(l, rv, cs)
	case script.TokJoin:
		return joinValues(l, toString(rv)), nil
	case script.TokFormat:
		s, err := r.formatComposite(toString(l), asList(rv))
		if err != nil {
			return nil, err
		}
		return s, nil
	case script.TokIs, script.TokIsNot:
		t, err := r.typeOperand(rv)
		if err != nil {
			return nil, err
		}
		return t.is(l) == (op == script.TokIs), nil
	case script.TokAs:
		t, err := r.typeOperand(rv)
		if err != nil {
			return nil, err
		}
		c, err := t.convert(r, l)
		if err != nil {
			return nil, nil
		}
		return c, nil
	case script.TokXor:
		return toBool(l) != toBool(rv), nil
	case script.TokPlus:
		return r.add(l, rv)
	case script.TokMinus, script.TokDivide, script.TokRem:
		return arithmetic(op, l, rv)
	case script.TokMultiply:
		return multiply(l, rv)
	case script.TokDotDot:
		return rangeValues(l, rv)
	case script.TokBand, script.TokBor, script.TokBxor, script.TokShl, script.TokShr:
		return bitwise(op, l, rv)
	}
	return nil, newError(nil, ErrCodeRuntime, "The operator '%s' is not supported.", op)
}

func (r *runner) typeOperand(v any) (*TypeValue, error) {
	switch t := norm(v).(type) {
	case *TypeValue:
		return t, nil
	case string:
		if tv, ok := lookupTypeName(t); ok {
			return tv, nil
		}
	}
	return nil, newError(nil, ErrCodeInvalidCast, "Unable to find type [%s].", toString(v))
}

// compareScalar evaluates one comparison. setMatches controls whether a
// successful -match populates $Matches, which only scalar matches do.
func (r *runner) compareScalar(op script.TokenKind, l, rv any, cs, setMatches bool) (bool, error) {
	switch op {
	case script.TokIeq:
		return r.equal(l, rv, cs), nil
	case script.TokIne:
		return !r.equal(l, rv, cs), nil
	case script.TokIlike, script.TokInotlike:
		re, err := r.wildcard(toString(rv), cs)
		if err != nil {
			return false, err
		}
		return re.MatchString(toString(l)) == (op == script.TokIlike), nil
	case script.TokImatch, script.TokInotmatch:
		re, err := r.regex(toString(rv), cs)
		if err != nil {
			return false, err
		}
		s := toString(l)
		m := re.FindStringSubmatchIndex(s)
		if m != nil && setMatches {
			r.setMatches(re, s, m)
		}
		return (m != nil) == (op == script.TokImatch), nil
	}
	c, err := r.compare(l, rv, cs)
	if err != nil {
		return false, err
	}
	switch op {
	case script.TokIgt:
		return c > 0, nil
	case script.TokIge:
		return c >= 0, nil
	case script.TokIlt:
		return c < 0, nil
	}
	return c <= 0, nil
}

func (r *runner) setMatches(re *regexp.Regexp, s string, m []int) {
	h := NewHashtable()
	names := re.SubexpNames()
	for i := 0; i*2 < len(m); i++ {
		if m[i*2] < 0 {
			continue
		}
		var key any = i
		if names[i] != "" {
			key = names[i]
		}
		h.Set(key, s[m[i*2]:m[i*2+1]])
	}
	r.scope.set("matches", h)
}

func (r *runner) containsValue(items []any, v any, cs bool) bool {
	for _, e := range items {
		if r.equal(e, v, cs) {
			return true
		}
	}
	return false
}

// equal implements -eq: the right operand is converted to the type of the
// left one.
func (r *runner) equal(l, rv any, cs bool) bool {
	l, rv = norm(l), norm(rv)
	if l == nil || rv == nil {
		return l == nil && rv == nil
	}
	switch lv := l.(type) {
	case string:
		rs := toString(rv)
		if cs {
			return lv == rs
		}
		return strings.EqualFold(lv, rs)
	case int, int64, float64, float32:
		rn, err := toNumeric(rv)
		if err != nil {
			return false
		}
		ln, _ := toNumeric(lv)
		return compareNumbers(ln, rn) == 0
	case bool:
		return lv == toBool(rv)
	case time.Time:
		rt, err := toDateTime(rv)
		return err == nil && lv.Equal(rt)
	case script.Version:
		rver, err := toVersion(rv)
		return err == nil && lv.Compare(rver) == 0
	case uuid.UUID:
		rid, err := toGUID(rv)
		return err == nil && lv == rid
	case *TypeValue:
		rt, ok := rv.(*TypeValue)
		return ok && lv.String() == rt.String()
	case []any, *Hashtable, *script.CustomObject, *ScriptBlockValue:
		return l == rv
	}
	return toString(l) == toString(rv)
}

// compare orders l against rv, converting rv to the type of l.
func (r *runner) compare(l, rv any, cs bool) (int, error) {
	l, rv = norm(l), norm(rv)
	switch {
	case l == nil && rv == nil:
		return 0, nil
	case l == nil:
		return -1, nil
	case rv == nil:
		return 1, nil
	}
	fail := func() (int, error) {
		return 0, newError(nil, ErrCodeRuntime, "Could not compare %q to %q.", toString(l), toString(rv))
	}
	switch lv := l.(type) {
	case string:
		return r.collator(cs).CompareString(lv, toString(rv)), nil
	case int, int64, float64, float32, bool:
		ln, _ := toNumeric(lv)
		rn, err := toNumeric(rv)
		if err != nil {
			return fail()
		}
		return compareNumbers(ln, rn), nil
	case time.Time:
		rt, err := toDateTime(rv)
		if err != nil {
			return fail()
		}
		return lv.Compare(rt), nil
	case script.Version:
		rver, err := toVersion(rv)
		if err != nil {
			return fail()
		}
		return lv.Compare(rver), nil
	case uuid.UUID:
		rid, err := toGUID(rv)
		if err != nil {
			return fail()
		}
		return strings.Compare(lv.String(), rid.String()), nil
	}
	return 0, newError(nil, ErrCodeRuntime, "Cannot compare %q because it is not IComparable.", toString(l))
}

// collator returns the session culture's collator, cached per case mode.
func (r *runner) collator(cs bool) *collate.Collator {
	s := r.s
	if c, ok := s.collators[cs]; ok {
		return c
	}
	var c *collate.Collator
	if cs {
		c = collate.New(s.culture.Tag)
	} else {
		c = collate.New(s.culture.Tag, collate.IgnoreCase)
	}
	s.collators[cs] = c
	return c
}

func compareNumbers(a, b any) int {
	ai, aok := a.(int64)
	if x, ok := a.(int); ok {
		ai, aok = int64(x), true
	}
	bi, bok := b.(int64)
	if x, ok := b.(int); ok {
		bi, bok = int64(x), true
	}
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	af, bf := floatOf(a), floatOf(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func floatOf(n any) float64 {
	switch n := n.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return math.NaN()
}

// wildcard compiles a -like pattern: * ? and [set], with backtick escapes.
func (r *runner) wildcard(pattern string, cs bool) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)")
	if !cs {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				return nil, newError(nil, ErrCodeRuntime, "The specified wildcard character pattern is not valid: %s", pattern)
			}
			b.WriteString(pattern[i : i+end+1])
			i += end
		case '`':
			if i+1 < len(pattern) {
				i++
				b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
			}
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	b.WriteByte('$')
	return r.compileRegex(b.String())
}

func (r *runner) regex(pattern string, cs bool) (*regexp.Regexp, error) {
	if !cs {
		pattern = "(?i)" + pattern
	}
	return r.compileRegex(pattern)
}

func (r *runner) compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.s.regexps[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &RuntimeError{
			Code:    ErrCodeRuntime,
			Message: "The regular expression pattern is not valid: " + err.Error(),
			Err:     err,
		}
	}
	r.s.regexps[pattern] = re
	return re, nil
}

// dotnetReplacement rewrites a .NET substitution string ($1, ${name}, $&,
// $$) into the regexp.Expand template syntax.
func dotnetReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '$' || i+1 == len(repl) {
			b.WriteByte(c)
			continue
		}
		next := repl[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next == '{':
			end := strings.IndexByte(repl[i:], '}')
			if end < 0 {
				b.WriteString("$$")
				continue
			}
			b.WriteString(repl[i : i+end+1])
			i += end
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}

func (r *runner) replace(l, rv any, cs bool) (any, error) {
	args := asList(rv)
	if len(args) > 2 {
		return nil, newError(nil, ErrCodeRuntime,
			"The -replace operator allows only two elements to follow it, not %d.", len(args))
	}
	pattern := toString(args[0])
	repl := ""
	if len(args) == 2 {
		repl = toString(args[1])
	}
	re, err := r.regex(pattern, cs)
	if err != nil {
		return nil, err
	}
	tmpl := dotnetReplacement(repl)
	one := func(v any) string {
		return re.ReplaceAllString(toString(v), tmpl)
	}
	if arr, ok := norm(l).([]any); ok {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = one(e)
		}
		return out, nil
	}
	return one(l), nil
}

func (r *runner) split(l, rv any, cs bool) (any, error) {
	args := asList(rv)
	pattern := toString(args[0])
	limit := -1
	if len(args) > 1 {
		n, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		if n > 0 {
			limit = n
		}
	}
	re, err := r.regex(pattern, cs)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, item := range asList(l) {
		for _, part := range re.Split(toString(item), limit) {
			out = append(out, part)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func splitWhitespace(v any) any {
	var out []any
	for _, item := range asList(v) {
		for _, f := range strings.Fields(toString(item)) {
			out = append(out, f)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}

func joinValues(v any, sep string) string {
	items := asList(v)
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = toString(e)
	}
	return strings.Join(parts, sep)
}

func (r *runner) add(l, rv any) (any, error) {
	switch lv := norm(l).(type) {
	case nil:
		if arr, ok := norm(rv).([]any); ok {
			return append([]any(nil), arr...), nil
		}
		return norm(rv), nil
	case string:
		return lv + toString(rv), nil
	case []any:
		out := append([]any(nil), lv...)
		if arr, ok := norm(rv).([]any); ok {
			return append(out, arr...), nil
		}
		return append(out, rv), nil
	case *Hashtable:
		rh, ok := norm(rv).(*Hashtable)
		if !ok {
			return nil, newError(nil, ErrCodeRuntime, "A hash table can only be added to another hash table.")
		}
		out := lv.clone()
		for _, k := range rh.Keys() {
			val, _ := rh.Get(k)
			if err := out.Add(k, val); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return arithmetic(script.TokPlus, l, rv)
}

func multiply(l, rv any) (any, error) {
	switch lv := norm(l).(type) {
	case string:
		n, err := toInt(rv)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			n = 0
		}
		return strings.Repeat(lv, n), nil
	case []any:
		n, err := toInt(rv)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(lv)*max(n, 0))
		for i := 0; i < n; i++ {
			out = append(out, lv...)
		}
		return out, nil
	}
	return arithmetic(script.TokMultiply, l, rv)
}

var opMethod = map[script.TokenKind]string{
	script.TokPlus: "op_Addition", script.TokMinus: "op_Subtraction",
	script.TokMultiply: "op_Multiply", script.TokDivide: "op_Division", script.TokRem: "op_Modulus",
}

// arithmetic applies + - * / % to numeric operands with the shell's
// widening: int overflows to double, any double operand makes a double.
func arithmetic(op script.TokenKind, l, rv any) (any, error) {
	switch norm(l).(type) {
	case []any, *Hashtable, *script.CustomObject, time.Time:
		return nil, newError(nil, ErrCodeMethodNotFound,
			"Method invocation failed because [%s] does not contain a method named '%s'.", typeNameOf(l), opMethod[op])
	}
	a, err := toNumeric(l)
	if err != nil {
		return nil, err
	}
	b, err := toNumeric(rv)
	if err != nil {
		return nil, err
	}
	_, af := a.(float64)
	_, bf := b.(float64)
	if af || bf {
		x, y := floatOf(a), floatOf(b)
		switch op {
		case script.TokPlus:
			return x + y, nil
		case script.TokMinus:
			return x - y, nil
		case script.TokMultiply:
			return x * y, nil
		case script.TokDivide:
			if y == 0 {
				return nil, newError(nil, ErrCodeDivideByZero, "Attempted to divide by zero.")
			}
			return x / y, nil
		}
		if y == 0 {
			return nil, newError(nil, ErrCodeDivideByZero, "Attempted to divide by zero.")
		}
		return math.Mod(x, y), nil
	}
	_, al := a.(int64)
	_, bl := b.(int64)
	wide := al || bl
	x, y := int64Of(a), int64Of(b)
	var res int64
	switch op {
	case script.TokPlus:
		res = x + y
		if (res > x) != (y > 0) {
			return float64(x) + float64(y), nil
		}
	case script.TokMinus:
		res = x - y
		if (res < x) != (y > 0) {
			return float64(x) - float64(y), nil
		}
	case script.TokMultiply:
		if x != 0 && y != 0 {
			res = x * y
			if res/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
				return float64(x) * float64(y), nil
			}
		}
	case script.TokDivide:
		if y == 0 {
			return nil, newError(nil, ErrCodeDivideByZero, "Attempted to divide by zero.")
		}
		if x%y != 0 {
			return float64(x) / float64(y), nil
		}
		res = x / y
	case script.TokRem:
		if y == 0 {
			return nil, newError(nil, ErrCodeDivideByZero, "Attempted to divide by zero.")
		}
		res = x % y
	}
	if wide {
		return res, nil
	}
	if res < math.MinInt32 || res > math.MaxInt32 {
		return float64(res), nil
	}
	return int(res), nil
}

func int64Of(n any) int64 {
	switch n := n.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func rangeValues(l, rv any) (any, error) {
	from, err := toInt(l)
	if err != nil {
		return nil, err
	}
	to, err := toInt(rv)
	if err != nil {
		return nil, err
	}
	n := to - from
	step := 1
	if n < 0 {
		n, step = -n, -1
	}
	if n >= maxRangeLength {
		return nil, newError(nil, ErrCodeRuntime, "The range is too large: %d..%d", from, to)
	}
	out := make([]any, 0, n+1)
	for i := from; ; i += step {
		out = append(out, i)
		if i == to {
			break
		}
	}
	return out, nil
}

func bitwise(op script.TokenKind, l, rv any) (any, error) {
	a, err := toInt64(l)
	if err != nil {
		return nil, err
	}
	b, err := toInt64(rv)
	if err != nil {
		return nil, err
	}
	_, lw := norm(l).(int64)
	_, rw := norm(rv).(int64)
	wide := lw || rw
	var res int64
	switch op {
	case script.TokBand:
		res = a & b
	case script.TokBor:
		res = a | b
	case script.TokBxor:
		res = a ^ b
	case script.TokShl:
		if !lw {
			return int(int32(a) << (b & 31)), nil
		}
		return a << (b & 63), nil
	case script.TokShr:
		if !lw {
			return int(int32(a) >> (b & 31)), nil
		}
		return a >> (b & 63), nil
	}
	if wide || res < math.MinInt32 || res > math.MaxInt32 {
		return res, nil
	}
	return int(res), nil
}

func negate(v any) (any, error) {
	n, err := toNumeric(v)
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case int:
		if n == math.MinInt32 {
			return -int64(n), nil
		}
		return -n, nil
	case int64:
		if n == math.MinInt64 {
			return -float64(n), nil
		}
		return -n, nil
	}
	return -n.(float64), nil
}

func bitwiseNot(v any) (any, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	if _, wide := norm(v).(int64); wide {
		return ^n, nil
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return int(^int32(n)), nil
	}
	return ^n, nil
}

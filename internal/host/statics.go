package host

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/gall/internal/queryexpr"
)

// staticMember reads [type]::Name.
func (r *runner) staticMember(t *TypeValue, name string) (any, error) {
	lname := strings.ToLower(name)
	switch t.t.name {
	case "System.Int32":
		switch lname {
		case "maxvalue":
			return math.MaxInt32, nil
		case "minvalue":
			return math.MinInt32, nil
		}
	case "System.Int64":
		switch lname {
		case "maxvalue":
			return int64(math.MaxInt64), nil
		case "minvalue":
			return int64(math.MinInt64), nil
		}
	case "System.Byte":
		switch lname {
		case "maxvalue":
			return math.MaxUint8, nil
		case "minvalue":
			return 0, nil
		}
	case "System.Double":
		switch lname {
		case "maxvalue":
			return math.MaxFloat64, nil
		case "minvalue":
			return -math.MaxFloat64, nil
		case "epsilon":
			return math.SmallestNonzeroFloat64, nil
		case "nan":
			return math.NaN(), nil
		case "positiveinfinity":
			return math.Inf(1), nil
		case "negativeinfinity":
			return math.Inf(-1), nil
		}
	case "System.String":
		if lname == "empty" {
			return "", nil
		}
	case "System.Math":
		switch lname {
		case "pi":
			return math.Pi, nil
		case "e":
			return math.E, nil
		}
	case "System.DateTime":
		switch lname {
		case "now":
			return r.s.clock(), nil
		case "utcnow":
			return r.s.clock().UTC(), nil
		case "today":
			y, m, d := r.s.clock().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, r.s.clock().Location()), nil
		case "minvalue":
			return time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), nil
		case "maxvalue":
			return time.Date(9999, 12, 31, 23, 59, 59, 999999900, time.UTC), nil
		}
	case "System.Guid":
		if lname == "empty" {
			return uuid.Nil, nil
		}
	case "System.Boolean":
		switch lname {
		case "truestring":
			return "True", nil
		case "falsestring":
			return "False", nil
		}
	}
	return nil, newError(nil, ErrCodeRuntime, "The property '%s' cannot be found on type [%s].", name, t)
}

// invokeStatic calls [type]::Method(args).
func (r *runner) invokeStatic(t *TypeValue, name string, args []any) (any, error) {
	lname := strings.ToLower(name)
	num := func(i int) (float64, error) { return toFloat(args[i]) }
	switch t.t.name {
	case "System.Math":
		return r.mathMethod(name, args, num)
	case "System.String":
		switch lname {
		case "join":
			if len(args) < 2 {
				return nil, argCount(name, args, 2)
			}
			rest := args[1:]
			if len(rest) == 1 {
				rest = asList(rest[0])
			}
			return joinValues(rest, toString(args[0])), nil
		case "concat":
			var b strings.Builder
			for _, a := range args {
				b.WriteString(joinValues(a, ""))
			}
			return b.String(), nil
		case "isnullorempty":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return toString(args[0]) == "", nil
		case "isnullorwhitespace":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return strings.TrimSpace(toString(args[0])) == "", nil
		case "format":
			if len(args) == 0 {
				return nil, argCount(name, args, 1)
			}
			rest := args[1:]
			if len(rest) == 1 {
				rest = asList(rest[0])
			}
			return r.formatComposite(toString(args[0]), rest)
		case "compare":
			if err := argCount(name, args, 2, 3); err != nil {
				return nil, err
			}
			cs := len(args) < 3 || !toBool(args[2])
			return r.collator(cs).CompareString(toString(args[0]), toString(args[1])), nil
		case "equals":
			if err := argCount(name, args, 2); err != nil {
				return nil, err
			}
			return toString(args[0]) == toString(args[1]), nil
		}
	case "System.DateTime":
		switch lname {
		case "parse":
			if err := argCount(name, args, 1, 2); err != nil {
				return nil, err
			}
			return toDateTime(toString(args[0]))
		case "daysinmonth":
			if err := argCount(name, args, 2); err != nil {
				return nil, err
			}
			y, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			m, err := toInt(args[1])
			if err != nil {
				return nil, err
			}
			return time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day(), nil
		case "isleapyear":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			y, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			return y%4 == 0 && (y%100 != 0 || y%400 == 0), nil
		}
	case "System.Guid":
		switch lname {
		case "newguid":
			return uuid.New(), nil
		case "parse":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return toGUID(args[0])
		}
	case "System.Version":
		if lname == "parse" {
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return toVersion(toString(args[0]))
		}
	case "System.Int32", "System.Int64", "System.Double":
		if lname == "parse" {
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return t.convert(r, toString(args[0]))
		}
	case "System.Text.RegularExpressions.Regex":
		switch lname {
		case "escape":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return EscapeRegex(toString(args[0])), nil
		case "ismatch":
			if err := argCount(name, args, 2); err != nil {
				return nil, err
			}
			re, err := r.regex(toString(args[1]), true)
			if err != nil {
				return nil, err
			}
			return re.MatchString(toString(args[0])), nil
		case "replace":
			if err := argCount(name, args, 3); err != nil {
				return nil, err
			}
			re, err := r.regex(toString(args[1]), true)
			if err != nil {
				return nil, err
			}
			return re.ReplaceAllString(toString(args[0]), dotnetReplacement(toString(args[2]))), nil
		}
	case "System.Management.Automation.ScriptBlock":
		if lname == "create" {
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return t.convert(r, toString(args[0]))
		}
	}
	return nil, newError(nil, ErrCodeMethodNotFound,
		"Method invocation failed because [%s] does not contain a method named '%s'.", t, name)
}

func (r *runner) mathMethod(name string, args []any, num func(int) (float64, error)) (any, error) {
	lname := strings.ToLower(name)
	unary := map[string]func(float64) float64{
		"sqrt": math.Sqrt, "floor": math.Floor, "ceiling": math.Ceil, "truncate": math.Trunc,
		"log10": math.Log10, "exp": math.Exp, "sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	}
	if f, ok := unary[lname]; ok {
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		x, err := num(0)
		if err != nil {
			return nil, err
		}
		return f(x), nil
	}
	switch lname {
	case "abs":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		switch x := norm(args[0]).(type) {
		case int:
			if x < 0 {
				return negate(x)
			}
			return x, nil
		case int64:
			if x < 0 {
				return negate(x)
			}
			return x, nil
		}
		x, err := num(0)
		if err != nil {
			return nil, err
		}
		return math.Abs(x), nil
	case "round":
		if err := argCount(name, args, 1, 2); err != nil {
			return nil, err
		}
		x, err := num(0)
		if err != nil {
			return nil, err
		}
		digits := 0
		if len(args) == 2 {
			if digits, err = toInt(args[1]); err != nil {
				return nil, err
			}
		}
		p := math.Pow(10, float64(digits))
		return math.RoundToEven(x*p) / p, nil
	case "pow", "max", "min", "log":
		if lname == "log" && len(args) == 1 {
			x, err := num(0)
			if err != nil {
				return nil, err
			}
			return math.Log(x), nil
		}
		if err := argCount(name, args, 2); err != nil {
			return nil, err
		}
		if lname == "max" || lname == "min" {
			c, err := r.compare(args[0], args[1], false)
			if err != nil {
				return nil, err
			}
			if (c >= 0) == (lname == "max") {
				return norm(args[0]), nil
			}
			return norm(args[1]), nil
		}
		x, err := num(0)
		if err != nil {
			return nil, err
		}
		y, err := num(1)
		if err != nil {
			return nil, err
		}
		if lname == "log" {
			return math.Log(x) / math.Log(y), nil
		}
		return math.Pow(x, y), nil
	}
	return nil, newError(nil, ErrCodeMethodNotFound,
		"Method invocation failed because [System.Math] does not contain a method named '%s'.", name)
}

// EscapeRegex escapes the regular expression metacharacters in s the way
// .NET's Regex.Escape does.
func EscapeRegex(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		case '\v':
			b.WriteString(`\v`)
		default:
			if strings.ContainsRune(queryexpr.RegexSpecial, c) {
				b.WriteByte('\\')
			}
			b.WriteRune(c)
		}
	}
	return b.String()
}

package host

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/roach88/gall/internal/script"
)

// getMember reads a property. Unknown properties and properties of $null
// are $null. Arrays without the property enumerate it over their elements.
func (r *runner) getMember(v any, name string) (any, error) {
	lname := strings.ToLower(name)
	switch x := norm(v).(type) {
	case nil:
		return nil, nil
	case string:
		if lname == "length" {
			return utf8.RuneCountInString(x), nil
		}
	case []any:
		switch lname {
		case "count", "length":
			return len(x), nil
		case "longlength":
			return int64(len(x)), nil
		case "rank":
			return 1, nil
		}
		var out []any
		for _, e := range x {
			m, err := r.getMember(e, name)
			if err != nil {
				return nil, err
			}
			if norm(m) != nil {
				out = append(out, enumerate(m)...)
			}
		}
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			return out[0], nil
		}
		return out, nil
	case *Hashtable:
		if val, ok := x.Get(name); ok {
			return val, nil
		}
		switch lname {
		case "count":
			return x.Len(), nil
		case "keys":
			return x.Keys(), nil
		case "values":
			return x.Values(), nil
		}
		return nil, nil
	case *script.CustomObject:
		val, _ := x.Get(name)
		return val, nil
	case time.Time:
		return dateMember(x, lname), nil
	case script.Version:
		switch lname {
		case "major":
			return x.Major, nil
		case "minor":
			return x.Minor, nil
		case "build":
			return x.Build, nil
		case "revision":
			return x.Revision, nil
		}
	case *TypeValue:
		switch lname {
		case "name":
			n := x.String()
			return n[strings.LastIndexByte(n, '.')+1:], nil
		case "fullname":
			return x.String(), nil
		}
	case *ErrorRecord:
		switch lname {
		case "exception":
			return &Exception{Message: x.Err.Message, Type: x.Err.ExceptionType()}, nil
		case "targetobject":
			return x.Err.Thrown, nil
		case "fullyqualifiederrorid":
			return string(x.Err.Code), nil
		}
	case *Exception:
		switch lname {
		case "message":
			return x.Message, nil
		}
	case *ScriptBlockValue:
		if lname == "ast" {
			return nil, nil
		}
	}
	return nil, nil
}

func dateMember(t time.Time, name string) any {
	switch name {
	case "year":
		return t.Year()
	case "month":
		return int(t.Month())
	case "day":
		return t.Day()
	case "hour":
		return t.Hour()
	case "minute":
		return t.Minute()
	case "second":
		return t.Second()
	case "millisecond":
		return t.Nanosecond() / int(time.Millisecond)
	case "dayofweek":
		return t.Weekday().String()
	case "dayofyear":
		return t.YearDay()
	case "date":
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	case "ticks":
		return (t.Unix()-unixEpochFromYearOne)*ticksPerSecond + int64(t.Nanosecond()/100)
	}
	return nil
}

// setMember assigns a property on a hashtable or custom object.
func (r *runner) setMember(v any, name string, val any) error {
	switch x := norm(v).(type) {
	case *Hashtable:
		x.Set(name, val)
		return nil
	case *script.CustomObject:
		if _, ok := x.Get(name); !ok {
			return newError(nil, ErrCodeRuntime, "The property '%s' cannot be found on this object.", name)
		}
		x.Set(name, val)
		return nil
	case nil:
		return newError(nil, ErrCodeRuntime, "The property '%s' cannot be found on this object. Verify that the property exists and can be set.", name)
	}
	return newError(nil, ErrCodeRuntime, "'%s' is a ReadOnly property.", name)
}

func methodNotFound(v any, name string) error {
	return newError(nil, ErrCodeMethodNotFound,
		"Method invocation failed because [%s] does not contain a method named '%s'.", typeNameOf(v), name)
}

func argCount(name string, args []any, counts ...int) error {
	for _, c := range counts {
		if len(args) == c {
			return nil
		}
	}
	return newError(nil, ErrCodeMethodNotFound,
		"Cannot find an overload for \"%s\" and the argument count: \"%d\".", name, len(args))
}

// invokeMethod calls an instance method. Method names ignore case.
func (r *runner) invokeMethod(v any, name string, args []any) (any, error) {
	lname := strings.ToLower(name)
	target := norm(v)
	if target == nil {
		return nil, newError(nil, ErrCodeRuntime, "You cannot call a method on a null-valued expression.")
	}
	switch lname {
	case "tostring":
		if err := argCount(name, args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return r.display(target), nil
		}
		return r.formatValue(target, toString(args[0]))
	case "gettype":
		return typeOf(target), nil
	case "equals":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return r.equal(target, args[0], true), nil
	case "compareto":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		c, err := r.compare(target, args[0], true)
		return c, err
	}
	switch x := target.(type) {
	case string:
		return r.stringMethod(x, name, args)
	case []any:
		return r.arrayMethod(x, name, args)
	case *Hashtable:
		return hashtableMethod(x, name, args)
	case time.Time:
		return r.dateMethod(x, name, args)
	case *ScriptBlockValue:
		if lname == "invoke" || lname == "invokereturnasis" {
			out, err := r.invokeBlock(x.Body, nil, invocation{positional: args})
			if err != nil {
				return nil, err
			}
			if lname == "invoke" {
				return out, nil
			}
			return collapse(out), nil
		}
	case uuid.UUID:
		return nil, methodNotFound(target, name)
	case *regexp.Regexp:
		switch lname {
		case "ismatch":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return x.MatchString(toString(args[0])), nil
		case "replace":
			if err := argCount(name, args, 2); err != nil {
				return nil, err
			}
			return x.ReplaceAllString(toString(args[0]), dotnetReplacement(toString(args[1]))), nil
		case "split":
			if err := argCount(name, args, 1); err != nil {
				return nil, err
			}
			return stringsToAny(x.Split(toString(args[0]), -1)), nil
		}
	}
	return nil, methodNotFound(target, name)
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (r *runner) stringMethod(s, name string, args []any) (any, error) {
	runes := []rune(s)
	arg := func(i int) string { return toString(args[i]) }
	intArg := func(i int) (int, error) { return toInt(args[i]) }
	switch strings.ToLower(name) {
	case "toupper":
		return cases.Upper(r.s.culture.Tag).String(s), nil
	case "tolower":
		return cases.Lower(r.s.culture.Tag).String(s), nil
	case "toupperinvariant":
		return strings.ToUpper(s), nil
	case "tolowerinvariant":
		return strings.ToLower(s), nil
	case "trim", "trimstart", "trimend":
		cut := " \t\r\n\v\f"
		if len(args) > 0 {
			cut = joinValues(args, "")
		}
		switch strings.ToLower(name) {
		case "trim":
			return strings.Trim(s, cut), nil
		case "trimstart":
			return strings.TrimLeft(s, cut), nil
		}
		return strings.TrimRight(s, cut), nil
	case "substring":
		if err := argCount(name, args, 1, 2); err != nil {
			return nil, err
		}
		start, err := intArg(0)
		if err != nil {
			return nil, err
		}
		length := len(runes) - start
		if len(args) == 2 {
			if length, err = intArg(1); err != nil {
				return nil, err
			}
		}
		if start < 0 || length < 0 || start+length > len(runes) {
			return nil, newError(nil, ErrCodeRuntime,
				"Exception calling \"Substring\" with \"%d\" argument(s): \"Index and length must refer to a location within the string.\"", len(args))
		}
		return string(runes[start : start+length]), nil
	case "replace":
		if err := argCount(name, args, 2); err != nil {
			return nil, err
		}
		if arg(0) == "" {
			return nil, newError(nil, ErrCodeRuntime,
				"Exception calling \"Replace\" with \"2\" argument(s): \"String cannot be of zero length.\"")
		}
		return strings.ReplaceAll(s, arg(0), arg(1)), nil
	case "contains":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return strings.Contains(s, arg(0)), nil
	case "startswith":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, arg(0)), nil
	case "endswith":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, arg(0)), nil
	case "indexof", "lastindexof":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		var i int
		if strings.EqualFold(name, "indexof") {
			i = strings.Index(s, arg(0))
		} else {
			i = strings.LastIndex(s, arg(0))
		}
		if i < 0 {
			return -1, nil
		}
		return utf8.RuneCountInString(s[:i]), nil
	case "split":
		seps := " \t\r\n\v\f"
		if len(args) > 0 {
			seps = joinValues(args[0], "")
		}
		return stringsToAny(splitAny(s, seps)), nil
	case "padleft", "padright":
		if err := argCount(name, args, 1, 2); err != nil {
			return nil, err
		}
		width, err := intArg(0)
		if err != nil {
			return nil, err
		}
		pad := ' '
		if len(args) == 2 {
			if c := []rune(arg(1)); len(c) > 0 {
				pad = c[0]
			}
		}
		if strings.EqualFold(name, "padleft") {
			return padLeft(s, width, pad), nil
		}
		return padRight(s, width, pad), nil
	case "insert":
		if err := argCount(name, args, 2); err != nil {
			return nil, err
		}
		at, err := intArg(0)
		if err != nil || at < 0 || at > len(runes) {
			return nil, newError(nil, ErrCodeRuntime, "Exception calling \"Insert\": index out of range.")
		}
		return string(runes[:at]) + arg(1) + string(runes[at:]), nil
	case "remove":
		if err := argCount(name, args, 1, 2); err != nil {
			return nil, err
		}
		at, err := intArg(0)
		if err != nil || at < 0 || at > len(runes) {
			return nil, newError(nil, ErrCodeRuntime, "Exception calling \"Remove\": index out of range.")
		}
		end := len(runes)
		if len(args) == 2 {
			n, err := intArg(1)
			if err != nil || at+n > len(runes) || n < 0 {
				return nil, newError(nil, ErrCodeRuntime, "Exception calling \"Remove\": count out of range.")
			}
			end = at + n
		}
		return string(runes[:at]) + string(runes[end:]), nil
	case "tochararray":
		out := make([]any, len(runes))
		for i, c := range runes {
			out[i] = string(c)
		}
		return out, nil
	}
	return nil, methodNotFound(s, name)
}

func splitAny(s, seps string) []string {
	var parts []string
	start := 0
	for i, c := range s {
		if strings.ContainsRune(seps, c) {
			parts = append(parts, s[start:i])
			start = i + utf8.RuneLen(c)
		}
	}
	return append(parts, s[start:])
}

func (r *runner) arrayMethod(arr []any, name string, args []any) (any, error) {
	switch strings.ToLower(name) {
	case "contains":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return r.containsValue(arr, args[0], true), nil
	case "indexof":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		for i, e := range arr {
			if r.equal(e, args[0], true) {
				return i, nil
			}
		}
		return -1, nil
	case "where", "foreach":
		if len(args) == 0 {
			return nil, argCount(name, args, 1)
		}
		sb, ok := norm(args[0]).(*ScriptBlockValue)
		if !ok {
			if strings.EqualFold(name, "foreach") {
				return r.getMember(arr, toString(args[0]))
			}
			return nil, newError(nil, ErrCodeRuntime, "The script block argument is missing.")
		}
		out := []any{}
		for _, e := range arr {
			res, err := r.invokeBlock(sb.Body, nil, invocation{dollarUnder: e, hasUnder: true, dot: true})
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(name, "where") {
				if toBool(collapse(res)) {
					out = append(out, e)
				}
				continue
			}
			out = append(out, res...)
		}
		return out, nil
	}
	return nil, methodNotFound(arr, name)
}

func hashtableMethod(h *Hashtable, name string, args []any) (any, error) {
	switch strings.ToLower(name) {
	case "containskey", "contains":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		_, ok := h.Get(args[0])
		return ok, nil
	case "containsvalue":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		for _, v := range h.Values() {
			if toString(v) == toString(args[0]) {
				return true, nil
			}
		}
		return false, nil
	case "add":
		if err := argCount(name, args, 2); err != nil {
			return nil, err
		}
		return script.AutomationNull, h.Add(args[0], args[1])
	case "remove":
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		h.Remove(args[0])
		return script.AutomationNull, nil
	}
	return nil, methodNotFound(h, name)
}

func (r *runner) dateMethod(t time.Time, name string, args []any) (any, error) {
	lname := strings.ToLower(name)
	add := func(apply func(float64) time.Time) (any, error) {
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return apply(f), nil
	}
	dur := func(unit time.Duration) func(float64) time.Time {
		return func(f float64) time.Time { return t.Add(time.Duration(f * float64(unit))) }
	}
	switch lname {
	case "adddays":
		return add(dur(24 * time.Hour))
	case "addhours":
		return add(dur(time.Hour))
	case "addminutes":
		return add(dur(time.Minute))
	case "addseconds":
		return add(dur(time.Second))
	case "addmilliseconds":
		return add(dur(time.Millisecond))
	case "addmonths":
		return add(func(f float64) time.Time { return t.AddDate(0, int(f), 0) })
	case "addyears":
		return add(func(f float64) time.Time { return t.AddDate(int(f), 0, 0) })
	case "toshortdatestring":
		return r.s.culture.FormatDate(t, "d")
	case "tolongdatestring":
		return r.s.culture.FormatDate(t, "D")
	case "toshorttimestring":
		return r.s.culture.FormatDate(t, "t")
	case "tolongtimestring":
		return r.s.culture.FormatDate(t, "T")
	case "touniversaltime":
		return t.UTC(), nil
	}
	return nil, methodNotFound(t, name)
}

package host

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"github.com/roach88/gall/internal/script"
)

// invariantDateLayout is how a date renders inside strings and casts.
const invariantDateLayout = "01/02/2006 15:04:05"

const (
	ticksPerSecond = 10_000_000
	// unixEpochFromYearOne is the Unix time of 0001-01-01T00:00:00Z.
	unixEpochFromYearOne = -62135596800
)

// norm unwraps PSObject wrappers and maps AutomationNull to nil.
func norm(v any) any {
	v = script.Unwrap(v)
	if v == script.AutomationNull {
		return nil
	}
	return v
}

// enumerate returns the items a value contributes to a pipeline. Arrays
// contribute their elements, AutomationNull contributes nothing.
func enumerate(v any) []any {
	if v == script.AutomationNull {
		return nil
	}
	if arr, ok := script.Unwrap(v).([]any); ok {
		return arr
	}
	return []any{v}
}

// asList is enumerate for operator operands: nil is a single item.
func asList(v any) []any {
	if arr, ok := norm(v).([]any); ok {
		return arr
	}
	return []any{norm(v)}
}

// collapse turns a pipeline's outputs into its value.
func collapse(out []any) any {
	switch len(out) {
	case 0:
		return script.AutomationNull
	case 1:
		return out[0]
	}
	return out
}

// toBool implements the shell's truthiness rules.
func toBool(v any) bool {
	switch v := norm(v).(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case float32:
		return v != 0
	case string:
		return v != ""
	case []any:
		switch len(v) {
		case 0:
			return false
		case 1:
			return toBool(v[0])
		}
		return true
	}
	return true
}

// toString converts a value to a string with the invariant culture.
func toString(v any) string {
	return toStringSep(v, " ")
}

func toStringSep(v any, sep string) string {
	switch v := norm(v).(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v, 64)
	case float32:
		return formatFloat(float64(v), 32)
	case time.Time:
		return v.Format(invariantDateLayout)
	case uuid.UUID:
		return v.String()
	case script.Version:
		return v.String()
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = toStringSep(e, sep)
		}
		return strings.Join(parts, sep)
	case *Hashtable:
		return "System.Collections.Hashtable"
	case *regexp.Regexp:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// formatFloat renders a float the way .NET's round-trip formatting does:
// fixed notation for exponents -5 through 14, E+XX otherwise.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	sci := strconv.FormatFloat(f, 'e', -1, bits)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp >= -5 && exp < 15 {
		return strconv.FormatFloat(f, 'f', -1, bits)
	}
	return strings.Replace(sci, "e", "E", 1)
}

// parseNumber converts a string the way the shell does for arithmetic:
// blank is zero, 0x is hex, integers narrow to int when they fit.
func parseNumber(s string) (any, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, true
	}
	neg := false
	body := t
	if body[0] == '-' || body[0] == '+' {
		neg = body[0] == '-'
		body = body[1:]
	}
	if len(body) > 2 && (body[:2] == "0x" || body[:2] == "0X") {
		n, err := strconv.ParseInt(body[2:], 16, 64)
		if err != nil {
			return nil, false
		}
		if neg {
			n = -n
		}
		return narrow(n), true
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return narrow(n), true
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

// narrow returns n as an int when it fits in 32 bits.
func narrow(n int64) any {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return int(n)
	}
	return n
}

// toNumeric returns v as an int, int64 or float64.
func toNumeric(v any) (any, error) {
	switch x := norm(v).(type) {
	case nil:
		return 0, nil
	case int, int64, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		if n, ok := parseNumber(x); ok {
			return n, nil
		}
	case []any:
		if len(x) == 1 {
			return toNumeric(x[0])
		}
	}
	return nil, castError(v, typeNameOf(0))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, float64, float32:
		return true
	}
	return false
}

func toFloat(v any) (float64, error) {
	n, err := toNumeric(v)
	if err != nil {
		return 0, castError(v, "System.Double")
	}
	switch n := n.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return n.(float64), nil
}

func toInt64(v any) (int64, error) {
	n, err := toNumeric(v)
	if err != nil {
		return 0, castError(v, "System.Int64")
	}
	switch n := n.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	f := math.RoundToEven(n.(float64))
	if f < math.MinInt64 || f > math.MaxInt64 || math.IsNaN(f) {
		return 0, castError(v, "System.Int64")
	}
	return int64(f), nil
}

// toInt converts to a 32-bit integer, rounding half to even.
func toInt(v any) (int, error) {
	n, err := toInt64(v)
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, castError(v, "System.Int32")
	}
	return int(n), nil
}

func toDateTime(v any) (time.Time, error) {
	switch x := norm(v).(type) {
	case time.Time:
		return x, nil
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(x), time.UTC)
		if err != nil {
			return time.Time{}, castError(v, "System.DateTime")
		}
		return t, nil
	case int64:
		// .NET ticks since 0001-01-01.
		return time.Unix(x/ticksPerSecond+unixEpochFromYearOne, (x%ticksPerSecond)*100).UTC(), nil
	}
	return time.Time{}, castError(v, "System.DateTime")
}

func toVersion(v any) (script.Version, error) {
	switch x := norm(v).(type) {
	case script.Version:
		return x, nil
	case string:
		ver, err := script.ParseVersion(x)
		if err != nil {
			return script.Version{}, castError(v, "System.Version")
		}
		return ver, nil
	case float64:
		return toVersion(formatFloat(x, 64))
	}
	return script.Version{}, castError(v, "System.Version")
}

func toGUID(v any) (uuid.UUID, error) {
	switch x := norm(v).(type) {
	case uuid.UUID:
		return x, nil
	case string:
		id, err := uuid.Parse(strings.Trim(strings.TrimSpace(x), "{}"))
		if err != nil {
			return uuid.Nil, castError(v, "System.Guid")
		}
		return id, nil
	}
	return uuid.Nil, castError(v, "System.Guid")
}

// toChar converts to a one-character string.
func toChar(v any) (string, error) {
	switch x := norm(v).(type) {
	case string:
		if r := []rune(x); len(r) == 1 {
			return x, nil
		}
	case int, int64, float64:
		n, err := toInt(x)
		if err == nil && n >= 0 && n <= 0xFFFF {
			return string(rune(n)), nil
		}
	}
	return "", castError(v, "System.Char")
}

// toHashtable converts a hashtable or custom object to a new hashtable.
func toHashtable(v any) (*Hashtable, error) {
	switch x := norm(v).(type) {
	case *Hashtable:
		return x, nil
	case *script.CustomObject:
		h := NewHashtable()
		for _, name := range x.Names() {
			val, _ := x.Get(name)
			h.Set(name, val)
		}
		return h, nil
	}
	return nil, castError(v, "System.Collections.Hashtable")
}

func toCustomObject(v any) (*script.CustomObject, error) {
	switch x := norm(v).(type) {
	case *script.CustomObject:
		return x, nil
	case *Hashtable:
		o := script.NewCustomObject()
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			o.Set(toString(k), val)
		}
		return o, nil
	}
	return nil, castError(v, "System.Management.Automation.PSCustomObject")
}

package host

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/gall/internal/script"
)

// psType describes a type reachable from a [type] literal.
type psType struct {
	name    string
	convert func(r *runner, v any) (any, error)
	is      func(v any) bool
}

// TypeValue is the value of a type literal such as [int] or [string[]].
type TypeValue struct {
	t     *psType
	array bool
}

// String returns the full type name, e.g. System.Int32[].
func (t *TypeValue) String() string {
	if t.array {
		return t.t.name + "[]"
	}
	return t.t.name
}

func isInt(v any) bool { _, ok := v.(int); return ok }

var (
	objectType = &psType{
		name:    "System.Object",
		convert: func(_ *runner, v any) (any, error) { return v, nil },
		is:      func(v any) bool { return v != nil },
	}
	int32Type = &psType{
		name:    "System.Int32",
		convert: func(_ *runner, v any) (any, error) { return toInt(v) },
		is:      isInt,
	}
	stringType = &psType{
		name:    "System.String",
		convert: func(_ *runner, v any) (any, error) { return toString(v), nil },
		is:      func(v any) bool { _, ok := v.(string); return ok },
	}
)

var typeTable = map[string]*psType{}

func registerType(t *psType, aliases ...string) {
	typeTable[strings.ToLower(t.name)] = t
	if i := strings.LastIndexByte(t.name, '.'); i >= 0 {
		typeTable[strings.ToLower(t.name[i+1:])] = t
	}
	for _, a := range aliases {
		typeTable[a] = t
	}
}

func init() {
	registerType(objectType, "psobject", "system.management.automation.psobject")
	registerType(int32Type, "int")
	registerType(stringType)
	registerType(&psType{
		name:    "System.Int64",
		convert: func(_ *runner, v any) (any, error) { return toInt64(v) },
		is:      func(v any) bool { _, ok := v.(int64); return ok },
	}, "long")
	registerType(&psType{
		name: "System.Byte",
		convert: func(_ *runner, v any) (any, error) {
			n, err := toInt(v)
			if err != nil || n < 0 || n > math.MaxUint8 {
				return nil, castError(v, "System.Byte")
			}
			return n, nil
		},
		is: isInt,
	}, "byte")
	registerType(&psType{
		name:    "System.Double",
		convert: func(_ *runner, v any) (any, error) { return toFloat(v) },
		is:      func(v any) bool { _, ok := v.(float64); return ok },
	}, "double")
	registerType(&psType{
		name: "System.Single",
		convert: func(_ *runner, v any) (any, error) {
			f, err := toFloat(v)
			if err != nil {
				return nil, castError(v, "System.Single")
			}
			return float32(f), nil
		},
		is: func(v any) bool { _, ok := v.(float32); return ok },
	}, "float", "single")
	registerType(&psType{
		name:    "System.Decimal",
		convert: func(_ *runner, v any) (any, error) { return toFloat(v) },
		is:      func(v any) bool { _, ok := v.(float64); return ok },
	}, "decimal")
	registerType(&psType{
		name:    "System.Boolean",
		convert: func(_ *runner, v any) (any, error) { return toBool(v), nil },
		is:      func(v any) bool { _, ok := v.(bool); return ok },
	}, "bool", "switch", "system.management.automation.switchparameter")
	registerType(&psType{
		name:    "System.Char",
		convert: func(_ *runner, v any) (any, error) { return toChar(v) },
		is: func(v any) bool {
			s, ok := v.(string)
			return ok && len([]rune(s)) == 1
		},
	}, "char")
	registerType(&psType{
		name:    "System.DateTime",
		convert: func(_ *runner, v any) (any, error) { return toDateTime(v) },
		is:      func(v any) bool { _, ok := v.(time.Time); return ok },
	}, "datetime")
	registerType(&psType{
		name:    "System.Version",
		convert: func(_ *runner, v any) (any, error) { return toVersion(v) },
		is:      func(v any) bool { _, ok := v.(script.Version); return ok },
	}, "version")
	registerType(&psType{
		name:    "System.Guid",
		convert: func(_ *runner, v any) (any, error) { return toGUID(v) },
		is:      func(v any) bool { _, ok := v.(uuid.UUID); return ok },
	}, "guid")
	registerType(&psType{
		name: "System.Array",
		convert: func(_ *runner, v any) (any, error) {
			return append([]any(nil), asList(v)...), nil
		},
		is: func(v any) bool { _, ok := v.([]any); return ok },
	}, "array")
	registerType(&psType{
		name:    "System.Collections.Hashtable",
		convert: func(_ *runner, v any) (any, error) { return toHashtable(v) },
		is:      func(v any) bool { _, ok := v.(*Hashtable); return ok },
	}, "hashtable", "ordered", "system.collections.specialized.ordereddictionary")
	registerType(&psType{
		name:    "System.Management.Automation.PSCustomObject",
		convert: func(_ *runner, v any) (any, error) { return toCustomObject(v) },
		is:      func(v any) bool { _, ok := v.(*script.CustomObject); return ok },
	}, "pscustomobject")
	registerType(&psType{
		name: "System.Text.RegularExpressions.Regex",
		convert: func(_ *runner, v any) (any, error) {
			if re, ok := v.(*regexp.Regexp); ok {
				return re, nil
			}
			re, err := regexp.Compile(toString(v))
			if err != nil {
				return nil, castError(v, "System.Text.RegularExpressions.Regex")
			}
			return re, nil
		},
		is: func(v any) bool { _, ok := v.(*regexp.Regexp); return ok },
	}, "regex")
	registerType(&psType{
		name: "System.Management.Automation.ScriptBlock",
		convert: func(_ *runner, v any) (any, error) {
			if sb, ok := v.(*ScriptBlockValue); ok {
				return sb, nil
			}
			body, err := script.Parse(toString(v))
			if err != nil {
				return nil, err
			}
			return &ScriptBlockValue{Body: body}, nil
		},
		is: func(v any) bool { _, ok := v.(*ScriptBlockValue); return ok },
	}, "scriptblock")
	registerType(&psType{
		name:    "System.Void",
		convert: func(_ *runner, v any) (any, error) { return script.AutomationNull, nil },
		is:      func(any) bool { return false },
	}, "void")
	registerType(&psType{
		name: "System.Type",
		convert: func(_ *runner, v any) (any, error) {
			if t, ok := v.(*TypeValue); ok {
				return t, nil
			}
			t, ok := lookupTypeName(toString(v))
			if !ok {
				return nil, castError(v, "System.Type")
			}
			return t, nil
		},
		is: func(v any) bool { _, ok := v.(*TypeValue); return ok },
	}, "type")
	registerType(&psType{
		name:    "System.Math",
		convert: func(_ *runner, v any) (any, error) { return nil, castError(v, "System.Math") },
		is:      func(any) bool { return false },
	}, "math")
	registerType(&psType{
		name:    "System.ValueType",
		convert: func(_ *runner, v any) (any, error) { return v, nil },
		is: func(v any) bool {
			switch v.(type) {
			case int, int64, float64, float32, bool, time.Time, uuid.UUID:
				return true
			}
			return false
		},
	}, "valuetype")
}

// lookupType resolves a parsed type name.
func lookupType(tn *script.TypeName) (*TypeValue, bool) {
	t, ok := typeTable[strings.ToLower(tn.Name)]
	if !ok {
		return nil, false
	}
	return &TypeValue{t: t, array: tn.Array}, true
}

// lookupTypeName resolves a type name written as text, e.g. "int[]" or
// "[datetime]".
func lookupTypeName(name string) (*TypeValue, bool) {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "[") && strings.HasSuffix(n, "]") {
		n = n[1 : len(n)-1]
	}
	array := strings.HasSuffix(n, "[]")
	t, ok := typeTable[strings.ToLower(strings.TrimSuffix(n, "[]"))]
	if !ok {
		return nil, false
	}
	return &TypeValue{t: t, array: array}, true
}

// convert casts v to the type.
func (t *TypeValue) convert(r *runner, v any) (any, error) {
	if !t.array {
		if t.t == objectType {
			return v, nil
		}
		return t.t.convert(r, norm(v))
	}
	items := asList(v)
	if norm(v) == nil {
		items = nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		c, err := t.t.convert(r, norm(item))
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// is implements -is.
func (t *TypeValue) is(v any) bool {
	v = norm(v)
	if !t.array {
		if t.t == objectType {
			return v != nil
		}
		return t.t.is(v)
	}
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	if t.t == objectType {
		return true
	}
	for _, e := range arr {
		if !t.t.is(norm(e)) {
			return false
		}
	}
	return true
}

// typeOf returns the type of a value, as GetType() reports it.
func typeOf(v any) *TypeValue {
	v = norm(v)
	if _, ok := v.([]any); ok {
		return &TypeValue{t: objectType, array: true}
	}
	for _, name := range []string{"int", "long", "double", "single", "string", "bool",
		"datetime", "version", "guid", "hashtable", "pscustomobject", "regex", "scriptblock", "type"} {
		if t := typeTable[name]; t.is(v) {
			return &TypeValue{t: t}
		}
	}
	return &TypeValue{t: objectType}
}

// typeNameOf is the full type name used in error messages.
func typeNameOf(v any) string {
	switch norm(v).(type) {
	case *ErrorRecord:
		return "System.Management.Automation.ErrorRecord"
	case *Exception:
		return "System.Exception"
	}
	return typeOf(v).String()
}

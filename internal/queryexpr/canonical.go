package queryexpr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders e as canonical JSON: object keys sorted by
// UTF-16 code units, no HTML escaping, NFC-normalized strings and no
// insignificant whitespace. Two structurally equal expressions always
// render to the same bytes, which makes the output usable as a cache key
// and in golden files.
//
// Floats are rendered as decimal strings tagged with their type, so no
// float formatting differences can leak into the output.
func MarshalCanonical(e Expr) ([]byte, error) {
	tree, err := canonicalTree(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalTree(e Expr) (map[string]any, error) {
	node := func(kind string, fields map[string]any) map[string]any {
		fields["kind"] = kind
		return fields
	}
	pair := func(kind string, l, r Expr, fields map[string]any) (map[string]any, error) {
		lt, err := canonicalTree(l)
		if err != nil {
			return nil, err
		}
		rt, err := canonicalTree(r)
		if err != nil {
			return nil, err
		}
		fields["left"] = lt
		fields["right"] = rt
		return node(kind, fields), nil
	}

	switch e := e.(type) {
	case *Constant:
		return canonicalConstant(e.Value)
	case *Parameter:
		return node("parameter", map[string]any{"name": e.Name, "type": typeName(e.typ)}), nil
	case *PropertyAccess:
		target, err := canonicalTree(e.Target)
		if err != nil {
			return nil, err
		}
		return node("property", map[string]any{"name": e.Name, "target": target, "type": typeName(e.typ)}), nil
	case *Logical:
		return pair("logical", e.Left, e.Right, map[string]any{"op": e.Op.String()})
	case *Comparison:
		return pair("comparison", e.Left, e.Right, map[string]any{"op": e.Op.String()})
	case *Membership:
		return pair("membership", e.Left, e.Right, map[string]any{})
	case *SubstringMatch:
		return pair("substring", e.Left, e.Right, map[string]any{})
	case *Convert:
		operand, err := canonicalTree(e.Operand)
		if err != nil {
			return nil, err
		}
		return node("convert", map[string]any{"operand": operand, "type": typeName(e.typ)}), nil
	case *Lambda:
		param, err := canonicalTree(e.Param)
		if err != nil {
			return nil, err
		}
		body, err := canonicalTree(e.Body)
		if err != nil {
			return nil, err
		}
		return node("lambda", map[string]any{"param": param, "body": body, "result": typeName(e.Result)}), nil
	}
	return nil, fmt.Errorf("queryexpr: unsupported expression for canonical JSON: %T", e)
}

// canonicalConstant tags a constant value with its Go type. The nil
// constant has no value field.
func canonicalConstant(v any) (map[string]any, error) {
	out := map[string]any{"kind": "constant"}
	if v == nil {
		out["type"] = "null"
		return out, nil
	}
	out["type"] = reflect.TypeOf(v).String()
	val, err := canonicalValue(v)
	if err != nil {
		return nil, err
	}
	out["value"] = val
	return out, nil
}

func canonicalValue(v any) (any, error) {
	switch v := v.(type) {
	case string, bool:
		return v, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			c, err := canonicalConstant(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return strconv.FormatUint(u, 10), nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, rv.Type().Bits()), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("queryexpr: unsupported constant for canonical JSON: %T", v)
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch v := v.(type) {
	case string:
		return writeString(buf, v)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case []any:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("queryexpr: unsupported JSON value %T", v)
	}
	return nil
}

// writeString writes s NFC-normalized. Only control characters, the
// backslash and the quote are escaped.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(unescapeLineSeparators(bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that
// encoding/json emits back into literal characters. An escape preceded by
// an odd run of backslashes is literal text and stays.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+6 <= len(data) &&
			(bytes.Equal(data[i:i+6], []byte(`\u2028`)) || bytes.Equal(data[i:i+6], []byte(`\u2029`))) {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

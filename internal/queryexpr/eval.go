package queryexpr

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Eval applies the lambda to arg, which must have the parameter type.
//
// String comparisons are ordinal, the same as SQLite's BINARY collation.
func (l *Lambda) Eval(arg any) (any, error) {
	v := reflect.ValueOf(arg)
	if !v.IsValid() || v.Type() != l.Param.Type() {
		return nil, fmt.Errorf("queryexpr: argument of type %T, want %s", arg, l.Param.Type())
	}
	out, err := eval(l.Body, v)
	if err != nil {
		return nil, err
	}
	if !out.IsValid() {
		return nil, nil
	}
	return out.Interface(), nil
}

// AsPredicate returns l as a Go function. l must take a T and return bool.
func AsPredicate[T any](l *Lambda) (func(T) (bool, error), error) {
	if err := checkSignature[T](l, BoolType); err != nil {
		return nil, err
	}
	return func(arg T) (bool, error) {
		out, err := l.Eval(arg)
		if err != nil {
			return false, err
		}
		return out.(bool), nil
	}, nil
}

// AsSelector returns l as a Go key selector. l must take a T.
func AsSelector[T any](l *Lambda) (func(T) (any, error), error) {
	if err := checkSignature[T](l, nil); err != nil {
		return nil, err
	}
	return func(arg T) (any, error) {
		return l.Eval(arg)
	}, nil
}

func checkSignature[T any](l *Lambda, result reflect.Type) error {
	want := reflect.TypeFor[T]()
	if l.Param.Type() != want {
		return fmt.Errorf("queryexpr: lambda takes %s, not %s", l.Param.Type(), want)
	}
	if result != nil && l.Result != result {
		return fmt.Errorf("queryexpr: lambda returns %s, not %s", typeName(l.Result), typeName(result))
	}
	return nil
}

func eval(e Expr, arg reflect.Value) (reflect.Value, error) {
	switch e := e.(type) {
	case *Constant:
		if e.IsNull() {
			return reflect.Zero(NullType), nil
		}
		return reflect.ValueOf(e.Value), nil

	case *Parameter:
		return arg, nil

	case *PropertyAccess:
		target, err := eval(e.Target, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		for target.Kind() == reflect.Pointer {
			if target.IsNil() {
				return reflect.Value{}, fmt.Errorf("queryexpr: %s: nil target", e)
			}
			target = target.Elem()
		}
		f, err := target.FieldByIndexErr(e.index)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("queryexpr: %s: %w", e, err)
		}
		return f, nil

	case *Logical:
		l, err := eval(e.Left, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		if l.Bool() == (e.Op == Or) {
			return l, nil
		}
		return eval(e.Right, arg)

	case *Comparison:
		l, r, err := evalPair(e.Left, e.Right, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		ok, err := compare(e.Op, l, r)
		return reflect.ValueOf(ok), err

	case *Membership:
		l, r, err := evalPair(e.Left, e.Right, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		list, _ := r.Interface().([]string)
		return reflect.ValueOf(slices.Contains(list, l.String())), nil

	case *SubstringMatch:
		l, err := eval(e.Left, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(strings.Contains(l.String(), e.Pattern())), nil

	case *Convert:
		v, err := eval(e.Operand, arg)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(e.typ).Elem()
		out.Set(v)
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("queryexpr: cannot evaluate %T", e)
}

func evalPair(l, r Expr, arg reflect.Value) (reflect.Value, reflect.Value, error) {
	lv, err := eval(l, arg)
	if err != nil {
		return reflect.Value{}, reflect.Value{}, err
	}
	rv, err := eval(r, arg)
	if err != nil {
		return reflect.Value{}, reflect.Value{}, err
	}
	return lv, rv, nil
}

func compare(op CompareOp, a, b reflect.Value) (bool, error) {
	if eq, ok := nullEqual(a, b); ok {
		return eq == (op == Eq), nil
	}
	c, ok := order(a, b)
	if !ok {
		if op.IsOrdering() {
			return false, fmt.Errorf("queryexpr: %s values are not ordered", a.Type())
		}
		return a.Equal(b) == (op == Eq), nil
	}
	switch op {
	case Eq:
		return c == 0, nil
	case Ne:
		return c != 0, nil
	case Ge:
		return c >= 0, nil
	case Gt:
		return c > 0, nil
	case Le:
		return c <= 0, nil
	}
	return c < 0, nil
}

// nullEqual handles a comparison against the nil constant. An empty string
// equals null.
func nullEqual(a, b reflect.Value) (equal, handled bool) {
	an, bn := isNil(a), isNil(b)
	if !an && !bn {
		return false, false
	}
	other := a
	if an {
		other = b
	}
	if other.Kind() == reflect.String {
		return other.Len() == 0, true
	}
	return isNil(other), true
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}

func order(a, b reflect.Value) (int, bool) {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint()), true
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float()), true
	case reflect.String:
		return strings.Compare(a.String(), b.String()), true
	}
	if hasCompare(a.Type()) {
		out := a.MethodByName("Compare").Call([]reflect.Value{b})
		return int(out[0].Int()), true
	}
	return 0, false
}

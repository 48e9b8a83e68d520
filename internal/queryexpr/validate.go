package queryexpr

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// ValidationResult contains the portability analysis of a lambda.
//
// A portable lambda lowers to a relational WHERE or ORDER BY clause over a
// flat row. Lambdas outside the portable fragment still evaluate in process
// through Eval.
type ValidationResult struct {
	// IsPortable is true when no warnings were raised.
	IsPortable bool

	// Warnings lists the non-portable features in the lambda.
	Warnings []string
}

// Validate checks l against the portable fragment:
//  1. Property chains are one level deep (rows are flat).
//  2. Constants are scalars or string lists; object arrays have no column form.
//  3. Constant types map onto driver values.
//  4. Comparisons do not compare two constants.
//
// Validate is a pure function with no side effects.
func Validate(l *Lambda) ValidationResult {
	v := &validator{warnings: []string{}}
	if l == nil {
		v.addWarning("nil lambda")
	} else {
		v.validate(l.Body)
	}
	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validate(e Expr) {
	switch e := e.(type) {
	case *Constant:
		v.validateConstant(e)
	case *Parameter:
		v.addWarning("Parameter %s used as a value - only its properties map to columns", e)
	case *PropertyAccess:
		if _, ok := e.Target.(*Parameter); !ok {
			v.addWarning("Property chain %s - only direct properties of the parameter map to columns", e)
		}
	case *Logical:
		v.validate(e.Left)
		v.validate(e.Right)
	case *Comparison:
		_, lc := e.Left.(*Constant)
		_, rc := e.Right.(*Constant)
		if lc && rc {
			v.addWarning("Comparison %s of two constants", e)
		}
		v.validate(e.Left)
		v.validate(e.Right)
	case *Membership:
		v.validate(e.Left)
		v.validate(e.Right)
	case *SubstringMatch:
		v.validate(e.Left)
	case *Convert:
		v.validate(e.Operand)
	default:
		v.addWarning("Unknown expression type: %T - portability cannot be verified", e)
	}
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	valuerType   = reflect.TypeFor[driver.Valuer]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
)

func (v *validator) validateConstant(c *Constant) {
	if c.IsNull() {
		return
	}
	t := c.Type()
	switch {
	case t == ObjectsType:
		v.addWarning("Constant %s is an object array - only string lists map to parameters", c)
	case t == StringsType, t == timeType, isNumeric(t.Kind()),
		t.Kind() == reflect.String, t.Kind() == reflect.Bool:
	case t.Implements(valuerType), t.Implements(stringerType):
	default:
		v.addWarning("Constant %s of type %s has no driver value", c, t)
	}
}

package queryexpr

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Expr is a typed query expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	// Type is the static type of the value the expression produces.
	Type() reflect.Type
	String() string
	exprNode()
}

// Static types the compiler needs to name.
var (
	// NullType is the type of the nil constant.
	NullType    = reflect.TypeFor[any]()
	BoolType    = reflect.TypeFor[bool]()
	StringType  = reflect.TypeFor[string]()
	StringsType = reflect.TypeFor[[]string]()
	ObjectsType = reflect.TypeFor[[]any]()
)

// ErrPatternNotConstant is returned by NewSubstringMatch when the pattern
// operand is string typed but not a literal.
var ErrPatternNotConstant = errors.New("the pattern must be a string constant")

// TypeError reports operands that an operator cannot accept.
type TypeError struct {
	Op       string
	Operands []Expr
	Message  string
}

func (e *TypeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Message)
	names := []string{"left", "right"}
	for i, o := range e.Operands {
		name := "operand"
		if len(e.Operands) == 2 {
			name = names[i]
		}
		fmt.Fprintf(&b, "; %s: %s (%s)", name, o, typeName(o.Type()))
	}
	return b.String()
}

// IsTypeError returns true if err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// Constant is a literal value.
type Constant struct {
	Value any
	typ   reflect.Type
}

// NewConstant wraps v. The nil constant has type NullType.
func NewConstant(v any) *Constant {
	if v == nil {
		return &Constant{typ: NullType}
	}
	return &Constant{Value: v, typ: reflect.TypeOf(v)}
}

func (c *Constant) Type() reflect.Type { return c.typ }
func (c *Constant) String() string     { return formatValue(c.Value) }
func (*Constant) exprNode()            {}

// IsNull reports whether c is the nil constant.
func (c *Constant) IsNull() bool { return c.Value == nil }

// Parameter is the lambda parameter. Two parameters with the same name
// and type are still different parameters.
type Parameter struct {
	Name string
	typ  reflect.Type
}

func NewParameter(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, typ: t}
}

func (p *Parameter) Type() reflect.Type { return p.typ }
func (p *Parameter) String() string     { return p.Name }
func (*Parameter) exprNode()            {}

// PropertyAccess reads an exported struct field.
type PropertyAccess struct {
	Target Expr
	// Name is the field name as declared, whatever case the script used.
	Name  string
	index []int
	typ   reflect.Type
}

// NewPropertyAccess resolves name against the struct (or pointer to
// struct) type of target. The lookup ignores case; an exact match wins
// over a case-insensitive one.
func NewPropertyAccess(target Expr, name string) (*PropertyAccess, error) {
	st := target.Type()
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, &TypeError{
			Op:       "property " + name,
			Operands: []Expr{target},
			Message:  "the target has no properties",
		}
	}
	f, err := lookupField(st, name)
	if err != nil {
		return nil, &TypeError{Op: "property " + name, Operands: []Expr{target}, Message: err.Error()}
	}
	return &PropertyAccess{Target: target, Name: f.Name, index: f.Index, typ: f.Type}, nil
}

func lookupField(st reflect.Type, name string) (reflect.StructField, error) {
	var matches []reflect.StructField
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if f.Name == name {
			return f, nil
		}
		if strings.EqualFold(f.Name, name) {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return reflect.StructField{}, fmt.Errorf("type %s has no property %q", st, name)
	case 1:
		return matches[0], nil
	}
	return reflect.StructField{}, fmt.Errorf("property %q is ambiguous in type %s", name, st)
}

func (p *PropertyAccess) Type() reflect.Type { return p.typ }
func (p *PropertyAccess) String() string     { return p.Target.String() + "." + p.Name }
func (*PropertyAccess) exprNode()            {}

// Root returns the expression at the start of the property chain.
func (p *PropertyAccess) Root() Expr {
	var e Expr = p
	for {
		pa, ok := e.(*PropertyAccess)
		if !ok {
			return e
		}
		e = pa.Target
	}
}

// LogicalOp is And or Or.
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

func (op LogicalOp) String() string {
	if op == Or {
		return "or"
	}
	return "and"
}

// Logical combines two bool operands.
type Logical struct {
	Op          LogicalOp
	Left, Right Expr
}

func NewLogical(op LogicalOp, l, r Expr) (*Logical, error) {
	if l.Type() != BoolType || r.Type() != BoolType {
		return nil, &TypeError{Op: op.String(), Operands: []Expr{l, r}, Message: "both operands must be bool"}
	}
	return &Logical{Op: op, Left: l, Right: r}, nil
}

func (*Logical) Type() reflect.Type { return BoolType }
func (*Logical) exprNode()          {}

func (e *Logical) String() string {
	word := " AndAlso "
	if e.Op == Or {
		word = " OrElse "
	}
	return "(" + e.Left.String() + word + e.Right.String() + ")"
}

// CompareOp is a relational operator.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Ge
	Gt
	Le
	Lt
)

var compareNames = [...]string{Eq: "eq", Ne: "ne", Ge: "ge", Gt: "gt", Le: "le", Lt: "lt"}
var compareSymbols = [...]string{Eq: "==", Ne: "!=", Ge: ">=", Gt: ">", Le: "<=", Lt: "<"}

func (op CompareOp) String() string { return compareNames[op] }

// Symbol returns the operator as written in C-like languages and SQL,
// except that inequality is "!=".
func (op CompareOp) Symbol() string { return compareSymbols[op] }

// Flip returns the operator that gives the same result with the operands
// swapped.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case Ge:
		return Le
	case Gt:
		return Lt
	case Le:
		return Ge
	case Lt:
		return Gt
	}
	return op
}

// IsOrdering reports whether op needs an ordered operand type.
func (op CompareOp) IsOrdering() bool { return op != Eq && op != Ne }

// Comparison applies a relational operator to two operands of one type.
type Comparison struct {
	Op          CompareOp
	Left, Right Expr
}

// NewComparison checks the operand types of op.
//
// A numeric constant takes the numeric type of the other operand when the
// conversion loses nothing, so gall.Ranking -gt 4 compares float64 with
// float64. The nil constant may be tested for equality against strings and
// nilable types.
func NewComparison(op CompareOp, l, r Expr) (*Comparison, error) {
	l, r = coerce(l, r)
	fail := func(msg string) (*Comparison, error) {
		return nil, &TypeError{Op: op.String(), Operands: []Expr{l, r}, Message: msg}
	}

	if isNullConstant(l) || isNullConstant(r) {
		if op.IsOrdering() {
			return fail("null can only be compared for equality")
		}
		other := r
		if isNullConstant(r) {
			other = l
		}
		if !nullable(other.Type()) {
			return fail("the operand cannot be null")
		}
		return &Comparison{Op: op, Left: l, Right: r}, nil
	}

	t := l.Type()
	if t != r.Type() {
		return fail("operand types differ")
	}
	if op.IsOrdering() && !ordered(t) {
		return fail("the operand type is not ordered")
	}
	if !op.IsOrdering() && !t.Comparable() && !hasCompare(t) {
		return fail("the operand type is not comparable")
	}
	return &Comparison{Op: op, Left: l, Right: r}, nil
}

func (*Comparison) Type() reflect.Type { return BoolType }
func (*Comparison) exprNode()          {}

func (e *Comparison) String() string {
	return "(" + e.Left.String() + " " + e.Op.Symbol() + " " + e.Right.String() + ")"
}

// Membership tests whether a string is one of a list of strings.
type Membership struct {
	Left  Expr // string
	Right Expr // []string
}

func NewMembership(l, r Expr) (*Membership, error) {
	if l.Type() != StringType || r.Type() != StringsType {
		return nil, &TypeError{
			Op:       "in",
			Operands: []Expr{l, r},
			Message:  "the left operand must be a string and the right a string array",
		}
	}
	return &Membership{Left: l, Right: r}, nil
}

func (*Membership) Type() reflect.Type { return BoolType }
func (*Membership) exprNode()          {}

func (e *Membership) String() string {
	return e.Right.String() + ".Contains(" + e.Left.String() + ")"
}

// RegexSpecial lists the characters a regular expression escape protects
// (the set of .NET's Regex.Escape). A pattern without any of them matches
// as a plain substring.
const RegexSpecial = `\*+?|{[()^$.# ` + "\t\n\f\r\v"

// HasRegexSpecial reports whether s holds a character of RegexSpecial.
func HasRegexSpecial(s string) bool {
	return strings.ContainsAny(s, RegexSpecial)
}

// SubstringMatch tests whether a string contains a literal substring.
type SubstringMatch struct {
	Left  Expr
	Right *Constant
}

// NewSubstringMatch requires two string operands, the right one a non-nil
// constant. A string-typed right operand that is not a constant yields
// ErrPatternNotConstant.
func NewSubstringMatch(l, r Expr) (*SubstringMatch, error) {
	if l.Type() != StringType || r.Type() != StringType {
		return nil, &TypeError{Op: "match", Operands: []Expr{l, r}, Message: "both operands must be strings"}
	}
	c, ok := r.(*Constant)
	if !ok {
		return nil, ErrPatternNotConstant
	}
	return &SubstringMatch{Left: l, Right: c}, nil
}

// Pattern returns the literal the left operand must contain.
func (e *SubstringMatch) Pattern() string { return e.Right.Value.(string) }

func (*SubstringMatch) Type() reflect.Type { return BoolType }
func (*SubstringMatch) exprNode()          {}

func (e *SubstringMatch) String() string {
	return e.Left.String() + ".Contains(" + e.Right.String() + ")"
}

// Convert widens an operand to an interface type it implements.
type Convert struct {
	Operand Expr
	typ     reflect.Type
}

func NewConvert(e Expr, t reflect.Type) (*Convert, error) {
	if t.Kind() != reflect.Interface || !e.Type().Implements(t) {
		return nil, &TypeError{
			Op:       "convert to " + typeName(t),
			Operands: []Expr{e},
			Message:  "only widening to an implemented interface type is allowed",
		}
	}
	return &Convert{Operand: e, typ: t}, nil
}

func (c *Convert) Type() reflect.Type { return c.typ }
func (*Convert) exprNode()            {}

func (c *Convert) String() string {
	return "Convert(" + c.Operand.String() + ", " + typeName(c.typ) + ")"
}

// Lambda is a single-parameter function.
type Lambda struct {
	Body   Expr
	Param  *Parameter
	Result reflect.Type
}

// NewLambda checks that body produces exactly result and that every
// parameter in body is p.
func NewLambda(body Expr, p *Parameter, result reflect.Type) (*Lambda, error) {
	if body.Type() != result {
		return nil, &TypeError{
			Op:       "lambda returning " + typeName(result),
			Operands: []Expr{body},
			Message:  "the body type does not match the result type",
		}
	}
	var stray *Parameter
	Inspect(body, func(e Expr) bool {
		if q, ok := e.(*Parameter); ok && q != p {
			stray = q
		}
		return stray == nil
	})
	if stray != nil {
		return nil, &TypeError{
			Op:       "lambda " + p.Name,
			Operands: []Expr{stray},
			Message:  "the body refers to a parameter that is not in scope",
		}
	}
	return &Lambda{Body: body, Param: p, Result: result}, nil
}

func (l *Lambda) Type() reflect.Type {
	return reflect.FuncOf([]reflect.Type{l.Param.Type()}, []reflect.Type{l.Result}, false)
}

func (l *Lambda) String() string { return l.Param.Name + " => " + l.Body.String() }
func (*Lambda) exprNode()        {}

// Children returns the direct operands of e.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *PropertyAccess:
		return []Expr{e.Target}
	case *Logical:
		return []Expr{e.Left, e.Right}
	case *Comparison:
		return []Expr{e.Left, e.Right}
	case *Membership:
		return []Expr{e.Left, e.Right}
	case *SubstringMatch:
		return []Expr{e.Left, e.Right}
	case *Convert:
		return []Expr{e.Operand}
	case *Lambda:
		return []Expr{e.Param, e.Body}
	}
	return nil
}

// Inspect walks e depth-first. If f returns false the children of that
// expression are skipped.
func Inspect(e Expr, f func(Expr) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, f)
	}
}

func coerce(l, r Expr) (Expr, Expr) {
	if c, ok := l.(*Constant); ok {
		if nc, ok := convertNumeric(c, r.Type()); ok {
			return nc, r
		}
	}
	if c, ok := r.(*Constant); ok {
		if nc, ok := convertNumeric(c, l.Type()); ok {
			return l, nc
		}
	}
	return l, r
}

// convertNumeric converts a numeric constant to another numeric type when
// the round trip gives back the same value.
func convertNumeric(c *Constant, t reflect.Type) (*Constant, bool) {
	if c.IsNull() || c.typ == t || !isNumeric(c.typ.Kind()) || !isNumeric(t.Kind()) {
		return nil, false
	}
	v := reflect.ValueOf(c.Value)
	out := v.Convert(t)
	if !out.Convert(c.typ).Equal(v) {
		return nil, false
	}
	return NewConstant(out.Interface()), true
}

func isNullConstant(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.IsNull()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.String:
		return true
	}
	return false
}

func ordered(t reflect.Type) bool {
	return isNumeric(t.Kind()) || t.Kind() == reflect.String || hasCompare(t)
}

// hasCompare reports whether t has a method Compare(t) int, as time.Time
// and script.Version do.
func hasCompare(t reflect.Type) bool {
	m, ok := t.MethodByName("Compare")
	if !ok {
		return false
	}
	mt := m.Type
	return mt.NumIn() == 2 && mt.In(1) == t && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Int
}

func typeName(t reflect.Type) string {
	if t == NullType {
		return "any"
	}
	return t.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []string:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i] = strconv.Quote(s)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

package host

import (
	"strings"

	"github.com/roach88/gall/internal/script"
)

// runner carries the state of one evaluation. Child runners share the
// session, the root scope and the step counter.
type runner struct {
	s     *Session
	scope *scope
	root  *scope
	steps *int
}

// child returns a runner with a new scope nested in r's.
func (r *runner) child() *runner {
	c := *r
	c.scope = newScope(r.scope)
	return &c
}

// step charges one unit against the quota.
func (r *runner) step(n script.Node) error {
	*r.steps++
	if r.s.maxSteps > 0 && *r.steps > r.s.maxSteps {
		return newError(n, ErrCodeQuotaExceeded,
			"The script exceeded the limit of %d steps.", r.s.maxSteps)
	}
	return nil
}

// eval evaluates an expression to its value.
func (r *runner) eval(e script.Expr) (any, error) {
	v, err := r.evalExpr(e)
	if err != nil {
		return nil, atNode(err, e)
	}
	return v, nil
}

func (r *runner) evalExpr(e script.Expr) (any, error) {
	switch e := e.(type) {
	case *script.Constant:
		return e.Value, nil
	case *script.StringConstant:
		return e.Value, nil
	case *script.ExpandableString:
		return r.expand(e)
	case *script.Variable:
		return r.readVariable(e)
	case *script.Using:
		return r.eval(e.Expr)
	case *script.Member:
		return r.evalMember(e)
	case *script.InvokeMember:
		return r.evalInvoke(e)
	case *script.Index:
		return r.evalIndex(e)
	case *script.ArrayLiteral:
		out := make([]any, len(e.Elements))
		for i, el := range e.Elements {
			v, err := r.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *script.ArrayExpression:
		var out []any
		if err := r.execBlock(e.Body, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case *script.SubExpression:
		var out []any
		if err := r.execBlock(e.Body, &out); err != nil {
			return nil, err
		}
		return collapse(out), nil
	case *script.Paren:
		return r.statementValue(e.Pipeline)
	case *script.Hashtable:
		return r.evalHashtable(e)
	case *script.ScriptBlockExpression:
		return &ScriptBlockValue{Body: e.Body}, nil
	case *script.Convert:
		t, err := r.resolveType(e.Type.Type, e.Type)
		if err != nil {
			return nil, err
		}
		v, err := r.eval(e.Child)
		if err != nil {
			return nil, err
		}
		return t.convert(r, v)
	case *script.TypeExpression:
		return r.resolveType(e.Type, e)
	case *script.AttributedExpression:
		return r.eval(e.Child)
	case *script.Unary:
		return r.evalUnary(e)
	case *script.Binary:
		return r.evalBinary(e)
	}
	return nil, newError(e, ErrCodeRuntime, "Unsupported expression %T.", e)
}

func (r *runner) resolveType(tn *script.TypeName, at script.Node) (*TypeValue, error) {
	t, ok := lookupType(tn)
	if !ok {
		return nil, newError(at, ErrCodeInvalidCast, "Unable to find type [%s].", tn.Text)
	}
	return t, nil
}

// expand builds the value of a double-quoted string. Arrays inside the
// string are joined by a space.
func (r *runner) expand(e *script.ExpandableString) (any, error) {
	var b strings.Builder
	for _, part := range e.Parts {
		switch p := part.(type) {
		case *script.StringConstant:
			b.WriteString(p.Value)
		default:
			v, err := r.eval(p)
			if err != nil {
				return nil, err
			}
			b.WriteString(toString(v))
		}
	}
	return b.String(), nil
}

// statementValue is the value of a statement used as an expression: the
// right side of an assignment, a hashtable value, or the inside of ( ).
func (r *runner) statementValue(st script.Statement) (any, error) {
	switch s := st.(type) {
	case *script.Pipeline:
		if len(s.Elements) == 1 {
			if ce, ok := s.Elements[0].(*script.CommandExpression); ok && len(ce.Redirections) == 0 {
				return r.eval(ce.Expr)
			}
		}
	case *script.Assignment:
		return r.assignment(s)
	}
	var out []any
	if err := r.exec(st, &out); err != nil {
		return nil, err
	}
	return collapse(out), nil
}

func (r *runner) memberName(e script.Expr) (string, error) {
	if sc, ok := e.(*script.StringConstant); ok {
		return sc.Value, nil
	}
	v, err := r.eval(e)
	if err != nil {
		return "", err
	}
	return toString(v), nil
}

func (r *runner) evalMember(e *script.Member) (any, error) {
	target, err := r.eval(e.Target)
	if err != nil {
		return nil, err
	}
	name, err := r.memberName(e.Member)
	if err != nil {
		return nil, err
	}
	if e.Static {
		t, ok := norm(target).(*TypeValue)
		if !ok {
			return nil, newError(e, ErrCodeRuntime, "Unable to find type [%s].", toString(target))
		}
		return r.staticMember(t, name)
	}
	return r.getMember(target, name)
}

func (r *runner) evalInvoke(e *script.InvokeMember) (any, error) {
	target, err := r.eval(e.Target)
	if err != nil {
		return nil, err
	}
	name, err := r.memberName(e.Member)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(e.Arguments))
	for i, a := range e.Arguments {
		if args[i], err = r.eval(a); err != nil {
			return nil, err
		}
	}
	if err := r.step(e); err != nil {
		return nil, err
	}
	if e.Static {
		t, ok := norm(target).(*TypeValue)
		if !ok {
			return nil, newError(e, ErrCodeRuntime, "Unable to find type [%s].", toString(target))
		}
		return r.invokeStatic(t, name, args)
	}
	return r.invokeMethod(target, name, args)
}

func (r *runner) evalIndex(e *script.Index) (any, error) {
	target, err := r.eval(e.Target)
	if err != nil {
		return nil, err
	}
	idx, err := r.eval(e.Index)
	if err != nil {
		return nil, err
	}
	return r.index(target, idx)
}

// index implements target[idx]. An array index selects several elements.
func (r *runner) index(target, idx any) (any, error) {
	t := norm(target)
	if t == nil {
		return nil, newError(nil, ErrCodeRuntime, "Cannot index into a null array.")
	}
	if h, ok := t.(*Hashtable); ok {
		if keys, ok := norm(idx).([]any); ok {
			out := make([]any, 0, len(keys))
			for _, k := range keys {
				v, _ := h.Get(norm(k))
				out = append(out, v)
			}
			return out, nil
		}
		v, _ := h.Get(norm(idx))
		return v, nil
	}
	if o, ok := t.(*script.CustomObject); ok {
		v, _ := o.Get(toString(idx))
		return v, nil
	}
	if list, ok := norm(idx).([]any); ok {
		var out []any
		for _, i := range list {
			v, err := r.index(target, i)
			if err != nil {
				return nil, err
			}
			if norm(v) != nil {
				out = append(out, v)
			}
		}
		return collapse(out), nil
	}
	n, err := toInt(idx)
	if err != nil {
		return nil, err
	}
	switch x := t.(type) {
	case []any:
		if n < 0 {
			n += len(x)
		}
		if n < 0 || n >= len(x) {
			return nil, nil
		}
		return x[n], nil
	case string:
		runes := []rune(x)
		if n < 0 {
			n += len(runes)
		}
		if n < 0 || n >= len(runes) {
			return nil, nil
		}
		return string(runes[n]), nil
	}
	// A scalar behaves like a one-element array.
	if n == 0 || n == -1 {
		return t, nil
	}
	return nil, nil
}

func (r *runner) evalHashtable(e *script.Hashtable) (any, error) {
	h := NewHashtable()
	for _, kv := range e.Pairs {
		k, err := r.eval(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := r.statementValue(kv.Value)
		if err != nil {
			return nil, err
		}
		if v == script.AutomationNull {
			v = nil
		}
		if err := h.Add(norm(k), v); err != nil {
			return nil, atNode(err, kv.Key)
		}
	}
	return h, nil
}

func (r *runner) evalUnary(e *script.Unary) (any, error) {
	switch e.Op {
	case script.TokPlusPlus, script.TokMinusMinus, script.TokPostfixPlusPlus, script.TokPostfixMinusMinus:
		return r.increment(e)
	}
	v, err := r.eval(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case script.TokExclaim, script.TokNot:
		return !toBool(v), nil
	case script.TokMinus:
		return negate(v)
	case script.TokPlus:
		return toNumeric(v)
	case script.TokBnot:
		return bitwiseNot(v)
	case script.TokIsplit, script.TokCsplit:
		return splitWhitespace(v), nil
	case script.TokJoin:
		return joinValues(v, ""), nil
	}
	return nil, newError(e, ErrCodeRuntime, "The unary operator '%s' is not supported.", e.Op)
}

// increment applies ++ or --. Prefix forms yield the new value, postfix
// forms the old one.
func (r *runner) increment(e *script.Unary) (any, error) {
	old, err := r.eval(e.Operand)
	if err != nil {
		return nil, err
	}
	op := script.TokPlus
	if e.Op == script.TokMinusMinus || e.Op == script.TokPostfixMinusMinus {
		op = script.TokMinus
	}
	if norm(old) == nil {
		old = 0
	}
	next, err := arithmetic(op, old, 1)
	if err != nil {
		return nil, err
	}
	if err := r.assign(e.Operand, next); err != nil {
		return nil, err
	}
	if e.Op == script.TokPostfixPlusPlus || e.Op == script.TokPostfixMinusMinus {
		return old, nil
	}
	return next, nil
}

// isIncrement reports whether e is a ++ or -- expression, which emits
// nothing when used as a statement.
func isIncrement(e script.Expr) bool {
	u, ok := e.(*script.Unary)
	if !ok {
		return false
	}
	switch u.Op {
	case script.TokPlusPlus, script.TokMinusMinus, script.TokPostfixPlusPlus, script.TokPostfixMinusMinus:
		return true
	}
	return false
}

func (r *runner) evalBinary(e *script.Binary) (any, error) {
	l, err := r.eval(e.Left)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case script.TokAnd:
		if !toBool(l) {
			return false, nil
		}
		rv, err := r.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return toBool(rv), nil
	case script.TokOr:
		if toBool(l) {
			return true, nil
		}
		rv, err := r.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return toBool(rv), nil
	}
	rv, err := r.eval(e.Right)
	if err != nil {
		return nil, err
	}
	v, err := r.binary(e.Op, l, rv)
	if err != nil {
		return nil, atNode(err, e)
	}
	return v, nil
}

// assignOps maps compound assignment operators to their binary operator.
var assignOps = map[script.TokenKind]script.TokenKind{
	script.TokPlusEquals:     script.TokPlus,
	script.TokMinusEquals:    script.TokMinus,
	script.TokMultiplyEquals: script.TokMultiply,
	script.TokDivideEquals:   script.TokDivide,
	script.TokRemEquals:      script.TokRem,
}

// assignment runs an assignment statement and returns the assigned value.
func (r *runner) assignment(a *script.Assignment) (any, error) {
	val, err := r.statementValue(a.Right)
	if err != nil {
		return nil, err
	}
	if val == script.AutomationNull {
		val = nil
	}
	if op, ok := assignOps[a.Op]; ok {
		cur, err := r.eval(a.Left)
		if err != nil {
			return nil, err
		}
		if val, err = r.binary(op, cur, val); err != nil {
			return nil, atNode(err, a)
		}
	}
	if err := r.assign(a.Left, val); err != nil {
		return nil, atNode(err, a)
	}
	return val, nil
}

// assign stores val into an assignable expression.
func (r *runner) assign(target script.Expr, val any) error {
	switch t := target.(type) {
	case *script.Variable:
		return r.writeVariable(t, val)
	case *script.Convert:
		tv, err := r.resolveType(t.Type.Type, t.Type)
		if err != nil {
			return err
		}
		c, err := tv.convert(r, val)
		if err != nil {
			return err
		}
		return r.assign(t.Child, c)
	case *script.AttributedExpression:
		return r.assign(t.Child, val)
	case *script.Member:
		if t.Static {
			return newError(t, ErrCodeRuntime, "Static properties cannot be set.")
		}
		obj, err := r.eval(t.Target)
		if err != nil {
			return err
		}
		name, err := r.memberName(t.Member)
		if err != nil {
			return err
		}
		return atNode(r.setMember(obj, name, val), t)
	case *script.Index:
		obj, err := r.eval(t.Target)
		if err != nil {
			return err
		}
		idx, err := r.eval(t.Index)
		if err != nil {
			return err
		}
		return atNode(r.setIndex(obj, idx, val), t)
	case *script.ArrayLiteral:
		items := asList(val)
		for i, el := range t.Elements {
			var v any
			switch {
			case i == len(t.Elements)-1 && len(items) > i+1:
				v = append([]any(nil), items[i:]...)
			case i < len(items):
				v = items[i]
			}
			if err := r.assign(el, v); err != nil {
				return err
			}
		}
		return nil
	}
	return newError(target, ErrCodeRuntime, "The assignment expression is not valid.")
}

func (r *runner) setIndex(obj, idx, val any) error {
	switch x := norm(obj).(type) {
	case *Hashtable:
		x.Set(norm(idx), val)
		return nil
	case []any:
		n, err := toInt(idx)
		if err != nil {
			return err
		}
		if n < 0 {
			n += len(x)
		}
		if n < 0 || n >= len(x) {
			return newError(nil, ErrCodeRuntime, "Index was outside the bounds of the array.")
		}
		x[n] = val
		return nil
	case nil:
		return newError(nil, ErrCodeRuntime, "Cannot index into a null array.")
	}
	return newError(nil, ErrCodeRuntime, "Unable to index into an object of type %s.", typeNameOf(obj))
}

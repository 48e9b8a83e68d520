package compiler

import (
	"github.com/roach88/gall/internal/queryexpr"
	"github.com/roach88/gall/internal/script"
)

// fold evaluates the source text of n and wraps the normalized result in a
// constant. Evaluator errors are returned unchanged.
func (c *compiler) fold(n script.Node) (*queryexpr.Constant, error) {
	src := n.String()
	v, err := c.ev.Evaluate(src)
	if err != nil {
		c.logger.Debug("compile: fold failed", "kind", n.Kind().String(), "source", src, "error", err)
		return nil, err
	}
	k := normalize(v)
	c.logger.Debug("compile: folded", "kind", n.Kind().String(), "source", src, "constant", k.String())
	return k, nil
}

// normalize maps an evaluation result to a constant value:
//   - no output, null, or an object that renders as "" becomes nil
//   - an array of strings, or of wrapped strings, becomes []string
//   - any other array stays []any
//   - a scalar is kept as is
func normalize(v any) *queryexpr.Constant {
	v = script.Unwrap(v)
	if v == script.AutomationNull {
		return queryexpr.NewConstant(nil)
	}
	switch x := v.(type) {
	case nil:
		return queryexpr.NewConstant(nil)
	case *script.CustomObject:
		if x.String() == "" {
			return queryexpr.NewConstant(nil)
		}
	case []any:
		if ss, ok := plainStrings(x); ok {
			return queryexpr.NewConstant(ss)
		}
		if ss, ok := wrappedStrings(x); ok {
			return queryexpr.NewConstant(ss)
		}
	}
	return queryexpr.NewConstant(v)
}

func plainStrings(items []any) ([]string, bool) {
	out := make([]string, len(items))
	for i, e := range items {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func wrappedStrings(items []any) ([]string, bool) {
	out := make([]string, len(items))
	for i, e := range items {
		o, ok := e.(*script.PSObject)
		if !ok {
			return nil, false
		}
		s, ok := o.Base.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

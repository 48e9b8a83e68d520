package compiler

import (
	"strings"

	"github.com/roach88/gall/internal/script"
)

// scans reports whether the subtree rooted at n refers to the parameter
// variable. Nested script blocks are opaque: a $gall inside { } belongs to
// whatever runs that block, not to the query.
func (c *compiler) scans(n script.Node) bool {
	found := false
	script.Inspect(n, func(m script.Node) bool {
		if found {
			return false
		}
		switch m := m.(type) {
		case *script.ScriptBlock:
			return m == n
		case *script.ScriptBlockExpression:
			return false
		case *script.Variable:
			found = c.isParameter(m)
		}
		return !found
	})
	return found
}

func (c *compiler) isParameter(v *script.Variable) bool {
	return strings.ToLower(v.Name) == c.name
}

package script

// Inspect traverses the tree rooted at n in depth-first order. It calls f
// for each node; if f returns false, the children of that node are skipped.
// Nested script blocks are visited like any other node.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil && !isNilNode(c) {
				out = append(out, c)
			}
		}
	}
	addExprs := func(es []Expr) {
		for _, e := range es {
			add(e)
		}
	}
	addStmts := func(ss []Statement) {
		for _, s := range ss {
			add(s)
		}
	}
	addTraps := func(ts []*Trap) {
		for _, t := range ts {
			add(t)
		}
	}

	switch n := n.(type) {
	case *ScriptBlock:
		add(n.ParamBlock, n.DynamicParam, n.Begin, n.Process, n.End)
	case *ParamBlock:
		for _, a := range n.Attributes {
			add(a)
		}
		for _, prm := range n.Parameters {
			add(prm)
		}
	case *Parameter:
		add(n.Attributes...)
		add(n.Name, n.Default)
	case *NamedBlock:
		addTraps(n.Traps)
		addStmts(n.Statements)
	case *StatementBlock:
		addTraps(n.Traps)
		addStmts(n.Statements)
	case *Pipeline:
		for _, e := range n.Elements {
			add(e)
		}
	case *Command:
		add(n.Elements...)
		for _, r := range n.Redirections {
			add(r)
		}
	case *CommandExpression:
		add(n.Expr)
		for _, r := range n.Redirections {
			add(r)
		}
	case *CommandParameter:
		add(n.Argument)
	case *FileRedirection:
		add(n.Location)
	case *MergingRedirection:
	case *Assignment:
		add(n.Left, n.Right)
	case *If:
		for _, c := range n.Clauses {
			add(c.Condition, c.Body)
		}
		add(n.Else)
	case *While:
		add(n.Condition, n.Body)
	case *DoWhile:
		add(n.Body, n.Condition)
	case *DoUntil:
		add(n.Body, n.Condition)
	case *For:
		add(n.Init, n.Condition, n.Iterator, n.Body)
	case *ForEach:
		add(n.Variable, n.Collection, n.Body)
	case *Switch:
		add(n.Condition)
		for _, c := range n.Clauses {
			add(c.Pattern, c.Body)
		}
		add(n.Default)
	case *Try:
		add(n.Body)
		for _, c := range n.Catches {
			add(c)
		}
		add(n.Finally)
	case *CatchClause:
		for _, t := range n.Types {
			add(t)
		}
		add(n.Body)
	case *Trap:
		add(n.Type, n.Body)
	case *Break:
		add(n.Label)
	case *Continue:
		add(n.Label)
	case *Return:
		add(n.Pipeline)
	case *Exit:
		add(n.Pipeline)
	case *Throw:
		add(n.Pipeline)
	case *Data:
		add(n.Body)
	case *FunctionDefinition:
		for _, prm := range n.Parameters {
			add(prm)
		}
		add(n.Body)
	case *BlockStatement:
		add(n.Body)
	case *Binary:
		add(n.Left, n.Right)
	case *Unary:
		add(n.Operand)
	case *Constant, *StringConstant, *Variable, *TypeExpression, *TypeConstraint:
	case *ExpandableString:
		addExprs(n.NestedExpressions())
	case *Member:
		add(n.Target, n.Member)
	case *InvokeMember:
		add(n.Target, n.Member)
		addExprs(n.Arguments)
	case *Index:
		add(n.Target, n.Index)
	case *ArrayLiteral:
		addExprs(n.Elements)
	case *ArrayExpression:
		add(n.Body)
	case *SubExpression:
		add(n.Body)
	case *Paren:
		add(n.Pipeline)
	case *Hashtable:
		for _, kv := range n.Pairs {
			add(kv.Key, kv.Value)
		}
	case *ScriptBlockExpression:
		add(n.Body)
	case *Convert:
		add(n.Type, n.Child)
	case *AttributedExpression:
		add(n.Attribute, n.Child)
	case *Attribute:
		addExprs(n.Positional)
		for _, na := range n.Named {
			add(na)
		}
	case *NamedAttributeArgument:
		add(n.Value)
	case *Using:
		add(n.Expr)
	}
	return out
}

// isNilNode catches typed nil pointers stored in a Node interface.
func isNilNode(n Node) bool {
	switch n := n.(type) {
	case *ParamBlock:
		return n == nil
	case *NamedBlock:
		return n == nil
	case *StatementBlock:
		return n == nil
	case *Variable:
		return n == nil
	case *TypeConstraint:
		return n == nil
	case *ScriptBlock:
		return n == nil
	case *Attribute:
		return n == nil
	}
	return false
}

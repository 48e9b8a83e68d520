// Package queryexpr is the typed query expression tree produced by the
// script compiler.
//
// An expression is a closed set of node types:
//
//	Constant        literal value (nil, scalar, []string or []any)
//	Parameter       the single lambda parameter
//	PropertyAccess  exported struct field of the parameter or of another access
//	Logical         And / Or over two bool operands
//	Comparison      Eq Ne Ge Gt Le Lt over operands of one type
//	Membership      string operand contained in a []string
//	SubstringMatch  string operand containing a literal string
//	Convert         widening to an interface type
//	Lambda          body plus its parameter
//
// Every node except Constant and Parameter checks its operand types when
// it is constructed. An expression that exists is well typed; lowering it
// to SQL or evaluating it in process never meets a type error.
//
// Expr is a sealed interface. Only this package implements it, so type
// switches in backends (see querysql) can be exhaustive:
//
//	switch e := expr.(type) {
//	case *Comparison:
//	    // column op ?
//	case *Logical:
//	    // (a AND b)
//	...
//	}
//
// Parameter identity matters. A compiled lambda references exactly one
// *Parameter value, and NewLambda rejects a body that mentions any other.
package queryexpr

package script

// Extent is the source span of a node. Text is the exact source slice, so
// re-rendering a subtree is String() on its root.
type Extent struct {
	Start int
	End   int
	Text  string
}

// Node is implemented by every syntax tree node. The set is closed.
type Node interface {
	Kind() Kind
	Extent() Extent
	String() string
	setExtent(Extent)
}

// Expr is a node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// Statement is a node that may appear in a statement list.
type Statement interface {
	Node
	stmtNode()
}

// PipelineElement is a Command or a CommandExpression.
type PipelineElement interface {
	Node
	pipelineElement()
}

// Redirection is a FileRedirection or a MergingRedirection.
type Redirection interface {
	Node
	redirection()
}

type node struct{ ext Extent }

func (n *node) Extent() Extent     { return n.ext }
func (n *node) String() string     { return n.ext.Text }
func (n *node) setExtent(e Extent) { n.ext = e }

type expr struct{ node }

func (*expr) exprNode() {}

type stmt struct{ node }

func (*stmt) stmtNode() {}

// TypeName is a type reference such as int, string[] or List[string].
type TypeName struct {
	Name  string
	Array bool
	Args  []*TypeName
	Text  string
}

func (t *TypeName) String() string { return t.Text }

// BlockKind names the four named blocks of a script block.
type BlockKind int

const (
	BlockEnd BlockKind = iota
	BlockBegin
	BlockProcess
	BlockDynamicParam
)

func (b BlockKind) String() string {
	switch b {
	case BlockBegin:
		return "begin"
	case BlockProcess:
		return "process"
	case BlockDynamicParam:
		return "dynamicparam"
	}
	return "end"
}

// StringQuote records how a string constant was written.
type StringQuote int

const (
	BareWord StringQuote = iota
	SingleQuoted
	DoubleQuoted
	SingleQuotedHereString
	DoubleQuotedHereString
)

type (
	ScriptBlock struct {
		node
		ParamBlock   *ParamBlock
		DynamicParam *NamedBlock
		Begin        *NamedBlock
		Process      *NamedBlock
		End          *NamedBlock
	}

	ParamBlock struct {
		node
		Attributes []*Attribute
		Parameters []*Parameter
	}

	Parameter struct {
		node
		Attributes []Node // *Attribute or *TypeConstraint
		Name       *Variable
		Default    Expr
	}

	NamedBlock struct {
		node
		Block      BlockKind
		Unnamed    bool
		Statements []Statement
		Traps      []*Trap
	}

	StatementBlock struct {
		node
		Statements []Statement
		Traps      []*Trap
	}

	Pipeline struct {
		stmt
		Elements []PipelineElement
	}

	Command struct {
		node
		// Invocation is TokAmpersand or TokDot for & and . invocations, TokEOF otherwise.
		Invocation   TokenKind
		Elements     []Node // name first; then Expr arguments and *CommandParameter
		Redirections []Redirection
	}

	CommandExpression struct {
		node
		Expr         Expr
		Redirections []Redirection
	}

	CommandParameter struct {
		node
		Name     string
		Argument Expr
	}

	FileRedirection struct {
		node
		FromStream string
		Append     bool
		Location   Expr
	}

	MergingRedirection struct {
		node
		FromStream string
		ToStream   string
	}

	Assignment struct {
		stmt
		Left  Expr
		Op    TokenKind
		Right Statement
	}

	IfClause struct {
		Condition Statement
		Body      *StatementBlock
	}

	If struct {
		stmt
		Clauses []IfClause
		Else    *StatementBlock
	}

	While struct {
		stmt
		Label     string
		Condition Statement
		Body      *StatementBlock
	}

	DoWhile struct {
		stmt
		Label     string
		Body      *StatementBlock
		Condition Statement
	}

	DoUntil struct {
		stmt
		Label     string
		Body      *StatementBlock
		Condition Statement
	}

	For struct {
		stmt
		Label     string
		Init      Statement
		Condition Statement
		Iterator  Statement
		Body      *StatementBlock
	}

	ForEach struct {
		stmt
		Label      string
		Variable   *Variable
		Collection Statement
		Body       *StatementBlock
	}

	SwitchClause struct {
		Pattern Expr
		Body    *StatementBlock
	}

	Switch struct {
		stmt
		Label         string
		Regex         bool
		Wildcard      bool
		Exact         bool
		CaseSensitive bool
		Condition     Statement
		Clauses       []SwitchClause
		Default       *StatementBlock
	}

	Try struct {
		stmt
		Body    *StatementBlock
		Catches []*CatchClause
		Finally *StatementBlock
	}

	CatchClause struct {
		node
		Types []*TypeConstraint
		Body  *StatementBlock
	}

	Trap struct {
		stmt
		Type *TypeConstraint
		Body *StatementBlock
	}

	Break struct {
		stmt
		Label Expr
	}

	Continue struct {
		stmt
		Label Expr
	}

	Return struct {
		stmt
		Pipeline Statement
	}

	Exit struct {
		stmt
		Pipeline Statement
	}

	Throw struct {
		stmt
		Pipeline Statement
	}

	Data struct {
		stmt
		Variable string
		Body     *StatementBlock
	}

	FunctionDefinition struct {
		stmt
		Name       string
		IsFilter   bool
		Parameters []*Parameter
		Body       *ScriptBlock
	}

	BlockStatement struct {
		stmt
		Keyword string
		Body    *StatementBlock
	}

	Binary struct {
		expr
		Op    TokenKind
		Left  Expr
		Right Expr
	}

	Unary struct {
		expr
		Op      TokenKind
		Operand Expr
	}

	Constant struct {
		expr
		Value any
	}

	StringConstant struct {
		expr
		Value string
		Quote StringQuote
	}

	ExpandableString struct {
		expr
		Value string
		Quote StringQuote
		// Parts alternates literal *StringConstant runs with the nested
		// *Variable and *SubExpression nodes, in source order.
		Parts []Expr
	}

	Variable struct {
		expr
		Name     string // including any scope qualifier, e.g. "env:Path"
		Splatted bool
		Braced   bool
	}

	Member struct {
		expr
		Target Expr
		Member Expr
		Static bool
	}

	InvokeMember struct {
		expr
		Target    Expr
		Member    Expr
		Arguments []Expr
		Static    bool
	}

	Index struct {
		expr
		Target Expr
		Index  Expr
	}

	ArrayLiteral struct {
		expr
		Elements []Expr
	}

	ArrayExpression struct {
		expr
		Body *StatementBlock
	}

	SubExpression struct {
		expr
		Body *StatementBlock
	}

	Paren struct {
		expr
		Pipeline Statement
	}

	KeyValue struct {
		Key   Expr
		Value Statement
	}

	Hashtable struct {
		expr
		Pairs []KeyValue
	}

	ScriptBlockExpression struct {
		expr
		Body *ScriptBlock
	}

	Convert struct {
		expr
		Type  *TypeConstraint
		Child Expr
	}

	TypeExpression struct {
		expr
		Type *TypeName
	}

	AttributedExpression struct {
		expr
		Attribute *Attribute
		Child     Expr
	}

	Attribute struct {
		node
		Type       *TypeName
		Positional []Expr
		Named      []*NamedAttributeArgument
	}

	NamedAttributeArgument struct {
		node
		Name              string
		Value             Expr
		ExpressionOmitted bool
	}

	TypeConstraint struct {
		node
		Type *TypeName
	}

	Using struct {
		expr
		Expr Expr
	}
)

func (*ScriptBlock) Kind() Kind            { return KindScriptBlock }
func (*ParamBlock) Kind() Kind             { return KindParamBlock }
func (*Parameter) Kind() Kind              { return KindParameter }
func (*NamedBlock) Kind() Kind             { return KindNamedBlock }
func (*StatementBlock) Kind() Kind         { return KindStatementBlock }
func (*Pipeline) Kind() Kind               { return KindPipeline }
func (*Command) Kind() Kind                { return KindCommand }
func (*CommandExpression) Kind() Kind      { return KindCommandExpression }
func (*CommandParameter) Kind() Kind       { return KindCommandParameter }
func (*FileRedirection) Kind() Kind        { return KindFileRedirection }
func (*MergingRedirection) Kind() Kind     { return KindMergingRedirection }
func (*Assignment) Kind() Kind             { return KindAssignment }
func (*If) Kind() Kind                     { return KindIf }
func (*While) Kind() Kind                  { return KindWhile }
func (*DoWhile) Kind() Kind                { return KindDoWhile }
func (*DoUntil) Kind() Kind                { return KindDoUntil }
func (*For) Kind() Kind                    { return KindFor }
func (*ForEach) Kind() Kind                { return KindForEach }
func (*Switch) Kind() Kind                 { return KindSwitch }
func (*Try) Kind() Kind                    { return KindTry }
func (*CatchClause) Kind() Kind            { return KindCatchClause }
func (*Trap) Kind() Kind                   { return KindTrap }
func (*Break) Kind() Kind                  { return KindBreak }
func (*Continue) Kind() Kind               { return KindContinue }
func (*Return) Kind() Kind                 { return KindReturn }
func (*Exit) Kind() Kind                   { return KindExit }
func (*Throw) Kind() Kind                  { return KindThrow }
func (*Data) Kind() Kind                   { return KindData }
func (*FunctionDefinition) Kind() Kind     { return KindFunctionDefinition }
func (*BlockStatement) Kind() Kind         { return KindBlockStatement }
func (*Binary) Kind() Kind                 { return KindBinary }
func (*Unary) Kind() Kind                  { return KindUnary }
func (*Constant) Kind() Kind               { return KindConstant }
func (*StringConstant) Kind() Kind         { return KindStringConstant }
func (*ExpandableString) Kind() Kind       { return KindExpandableString }
func (*Variable) Kind() Kind               { return KindVariable }
func (*Member) Kind() Kind                 { return KindMember }
func (*InvokeMember) Kind() Kind           { return KindInvokeMember }
func (*Index) Kind() Kind                  { return KindIndex }
func (*ArrayLiteral) Kind() Kind           { return KindArrayLiteral }
func (*ArrayExpression) Kind() Kind        { return KindArrayExpression }
func (*SubExpression) Kind() Kind          { return KindSubExpression }
func (*Paren) Kind() Kind                  { return KindParen }
func (*Hashtable) Kind() Kind              { return KindHashtable }
func (*ScriptBlockExpression) Kind() Kind  { return KindScriptBlockExpression }
func (*Convert) Kind() Kind                { return KindConvert }
func (*TypeExpression) Kind() Kind         { return KindTypeExpression }
func (*AttributedExpression) Kind() Kind   { return KindAttributedExpression }
func (*Attribute) Kind() Kind              { return KindAttribute }
func (*NamedAttributeArgument) Kind() Kind { return KindNamedAttributeArgument }
func (*TypeConstraint) Kind() Kind         { return KindTypeConstraint }
func (*Using) Kind() Kind                  { return KindUsing }

func (*Command) pipelineElement()           {}
func (*CommandExpression) pipelineElement() {}

func (*FileRedirection) redirection()    {}
func (*MergingRedirection) redirection() {}

// NestedExpressions returns the variables and subexpressions expanded into
// the string.
func (e *ExpandableString) NestedExpressions() []Expr {
	var out []Expr
	for _, p := range e.Parts {
		if _, ok := p.(*StringConstant); !ok {
			out = append(out, p)
		}
	}
	return out
}

// IsUnqualified reports whether the variable name carries no scope or
// drive qualifier.
func (v *Variable) IsUnqualified() bool {
	for i := 0; i < len(v.Name); i++ {
		if v.Name[i] == ':' {
			return false
		}
	}
	return true
}

// UnqualifiedName strips a scope qualifier such as global: or script:.
func (v *Variable) UnqualifiedName() string {
	for i := 0; i < len(v.Name); i++ {
		if v.Name[i] == ':' {
			return v.Name[i+1:]
		}
	}
	return v.Name
}

// Scope returns the qualifier before the colon, or "".
func (v *Variable) Scope() string {
	for i := 0; i < len(v.Name); i++ {
		if v.Name[i] == ':' {
			return v.Name[:i]
		}
	}
	return ""
}

// CommandName returns the bare command name of a command whose first
// element is a string constant, or "".
func (c *Command) CommandName() string {
	if len(c.Elements) == 0 {
		return ""
	}
	if s, ok := c.Elements[0].(*StringConstant); ok {
		return s.Value
	}
	return ""
}

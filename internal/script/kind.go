package script

// Kind identifies a syntax tree node type. The set is closed: every Node
// returned by Parse reports one of these kinds.
type Kind int

const (
	KindScriptBlock Kind = iota
	KindParamBlock
	KindParameter
	KindNamedBlock
	KindStatementBlock
	KindPipeline
	KindCommand
	KindCommandExpression
	KindCommandParameter
	KindFileRedirection
	KindMergingRedirection
	KindAssignment
	KindIf
	KindWhile
	KindDoWhile
	KindDoUntil
	KindFor
	KindForEach
	KindSwitch
	KindTry
	KindCatchClause
	KindTrap
	KindBreak
	KindContinue
	KindReturn
	KindExit
	KindThrow
	KindData
	KindFunctionDefinition
	KindBlockStatement
	KindBinary
	KindUnary
	KindConstant
	KindStringConstant
	KindExpandableString
	KindVariable
	KindMember
	KindInvokeMember
	KindIndex
	KindArrayLiteral
	KindArrayExpression
	KindSubExpression
	KindParen
	KindHashtable
	KindScriptBlockExpression
	KindConvert
	KindTypeExpression
	KindAttributedExpression
	KindAttribute
	KindNamedAttributeArgument
	KindTypeConstraint
	KindUsing

	kindCount
)

var kindNames = [...]string{
	KindScriptBlock:            "script block",
	KindParamBlock:             "param block",
	KindParameter:              "parameter",
	KindNamedBlock:             "named block",
	KindStatementBlock:         "statement block",
	KindPipeline:               "pipeline",
	KindCommand:                "command",
	KindCommandExpression:      "command expression",
	KindCommandParameter:       "command parameter",
	KindFileRedirection:        "file redirection",
	KindMergingRedirection:     "merging redirection",
	KindAssignment:             "assignment statement",
	KindIf:                     "if statement",
	KindWhile:                  "while statement",
	KindDoWhile:                "do-while statement",
	KindDoUntil:                "do-until statement",
	KindFor:                    "for statement",
	KindForEach:                "foreach statement",
	KindSwitch:                 "switch statement",
	KindTry:                    "try statement",
	KindCatchClause:            "catch clause",
	KindTrap:                   "trap statement",
	KindBreak:                  "break statement",
	KindContinue:               "continue statement",
	KindReturn:                 "return statement",
	KindExit:                   "exit statement",
	KindThrow:                  "throw statement",
	KindData:                   "data statement",
	KindFunctionDefinition:     "function definition",
	KindBlockStatement:         "block statement",
	KindBinary:                 "binary expression",
	KindUnary:                  "unary expression",
	KindConstant:               "constant expression",
	KindStringConstant:         "string constant expression",
	KindExpandableString:       "expandable string expression",
	KindVariable:               "variable expression",
	KindMember:                 "member expression",
	KindInvokeMember:           "invoke member expression",
	KindIndex:                  "index expression",
	KindArrayLiteral:           "array literal",
	KindArrayExpression:        "array expression",
	KindSubExpression:          "subexpression",
	KindParen:                  "paren expression",
	KindHashtable:              "hashtable",
	KindScriptBlockExpression:  "script block expression",
	KindConvert:                "convert expression",
	KindTypeExpression:         "type expression",
	KindAttributedExpression:   "attributed expression",
	KindAttribute:              "attribute",
	KindNamedAttributeArgument: "named attribute argument",
	KindTypeConstraint:         "type constraint",
	KindUsing:                  "using expression",
}

// String returns the human-readable node kind, e.g. "binary expression".
func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds returns every node kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

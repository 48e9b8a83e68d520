package script

import "strings"

// TokenKind identifies the lexical class of a token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNewline
	TokSemi
	TokComma
	TokDot
	TokDotDot
	TokColon
	TokColonColon
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokAtParen     // @(
	TokAtBrace     // @{
	TokDollarParen // $(
	TokPipe
	TokAmpersand
	TokNumber
	TokString     // single-quoted, Value holds the unescaped text
	TokExpandable // double-quoted, expanded by the parser
	TokVariable
	TokSplat
	TokGeneric  // bare word: command names, keywords, member names, arguments
	TokDashWord // -word: a dash operator in expression mode, a parameter in command mode
	TokTypeName
	TokRedirect
	TokMergeRedirect

	// Symbolic operators.
	TokPlus
	TokMinus
	TokMultiply
	TokDivide
	TokRem
	TokExclaim
	TokPlusPlus
	TokMinusMinus
	TokEquals
	TokPlusEquals
	TokMinusEquals
	TokMultiplyEquals
	TokDivideEquals
	TokRemEquals

	// Dash operators, resolved from TokDashWord by LookupOperator.
	TokAnd
	TokOr
	TokXor
	TokNot
	TokBand
	TokBor
	TokBxor
	TokBnot
	TokShl
	TokShr
	TokIeq
	TokCeq
	TokIne
	TokCne
	TokIge
	TokCge
	TokIgt
	TokCgt
	TokIlt
	TokClt
	TokIle
	TokCle
	TokIlike
	TokClike
	TokInotlike
	TokCnotlike
	TokImatch
	TokCmatch
	TokInotmatch
	TokCnotmatch
	TokIreplace
	TokCreplace
	TokIcontains
	TokCcontains
	TokInotcontains
	TokCnotcontains
	TokIin
	TokCin
	TokInotin
	TokCnotin
	TokIsplit
	TokCsplit
	TokJoin
	TokIs
	TokIsNot
	TokAs
	TokFormat
	TokPostfixPlusPlus
	TokPostfixMinusMinus
)

var tokenNames = map[TokenKind]string{
	TokEOF: "EOF", TokNewline: "NewLine", TokSemi: ";", TokComma: ",", TokDot: ".",
	TokDotDot: "..", TokColon: ":", TokColonColon: "::", TokLParen: "(", TokRParen: ")",
	TokLBrace: "{", TokRBrace: "}", TokLBracket: "[", TokRBracket: "]", TokAtParen: "@(",
	TokAtBrace: "@{", TokDollarParen: "$(", TokPipe: "|", TokAmpersand: "&",
	TokNumber: "Number", TokString: "String", TokExpandable: "ExpandableString",
	TokVariable: "Variable", TokSplat: "SplattedVariable", TokGeneric: "Generic",
	TokDashWord: "Parameter", TokTypeName: "TypeName", TokRedirect: "Redirection",
	TokMergeRedirect: "MergingRedirection",
	TokPlus: "+", TokMinus: "-", TokMultiply: "*", TokDivide: "/", TokRem: "%",
	TokExclaim: "!", TokPlusPlus: "++", TokMinusMinus: "--", TokEquals: "=",
	TokPlusEquals: "+=", TokMinusEquals: "-=", TokMultiplyEquals: "*=",
	TokDivideEquals: "/=", TokRemEquals: "%=",
	TokPostfixPlusPlus: "++", TokPostfixMinusMinus: "--",
}

// dashOperators maps the lower-cased word after the dash to its operator.
// Unprefixed comparison operators are the case-insensitive forms.
var dashOperators = map[string]TokenKind{
	"and": TokAnd, "or": TokOr, "xor": TokXor, "not": TokNot,
	"band": TokBand, "bor": TokBor, "bxor": TokBxor, "bnot": TokBnot,
	"shl": TokShl, "shr": TokShr,
	"eq": TokIeq, "ieq": TokIeq, "ceq": TokCeq,
	"ne": TokIne, "ine": TokIne, "cne": TokCne,
	"ge": TokIge, "ige": TokIge, "cge": TokCge,
	"gt": TokIgt, "igt": TokIgt, "cgt": TokCgt,
	"lt": TokIlt, "ilt": TokIlt, "clt": TokClt,
	"le": TokIle, "ile": TokIle, "cle": TokCle,
	"like": TokIlike, "ilike": TokIlike, "clike": TokClike,
	"notlike": TokInotlike, "inotlike": TokInotlike, "cnotlike": TokCnotlike,
	"match": TokImatch, "imatch": TokImatch, "cmatch": TokCmatch,
	"notmatch": TokInotmatch, "inotmatch": TokInotmatch, "cnotmatch": TokCnotmatch,
	"replace": TokIreplace, "ireplace": TokIreplace, "creplace": TokCreplace,
	"contains": TokIcontains, "icontains": TokIcontains, "ccontains": TokCcontains,
	"notcontains": TokInotcontains, "inotcontains": TokInotcontains, "cnotcontains": TokCnotcontains,
	"in": TokIin, "iin": TokIin, "cin": TokCin,
	"notin": TokInotin, "inotin": TokInotin, "cnotin": TokCnotin,
	"split": TokIsplit, "isplit": TokIsplit, "csplit": TokCsplit,
	"join": TokJoin, "is": TokIs, "isnot": TokIsNot, "as": TokAs, "f": TokFormat,
}

// LookupOperator resolves the word following a dash (without the dash) to an
// operator token kind.
func LookupOperator(word string) (TokenKind, bool) {
	k, ok := dashOperators[strings.ToLower(word)]
	return k, ok
}

func init() {
	// The longest spelling is the explicit one: -ieq over -eq.
	for word, op := range dashOperators {
		if cur, ok := tokenNames[op]; !ok || len(word)+1 > len(cur) {
			tokenNames[op] = "-" + word
		}
	}
}

// String returns the operator spelling for operator kinds and a descriptive
// name for the rest.
func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsCaseSensitive reports whether k is a c-prefixed comparison operator.
func (k TokenKind) IsCaseSensitive() bool {
	switch k {
	case TokCeq, TokCne, TokCge, TokCgt, TokClt, TokCle, TokClike, TokCnotlike,
		TokCmatch, TokCnotmatch, TokCreplace, TokCcontains, TokCnotcontains,
		TokCin, TokCnotin, TokCsplit:
		return true
	}
	return false
}

// Token is a single lexical unit. Start and End are byte offsets into the
// source; Text is the raw source slice.
type Token struct {
	Kind  TokenKind
	Text  string
	Value string // unescaped string, variable name, lower-cased dash word or generic word
	Num   any    // parsed number for TokNumber
	Start int
	End   int

	// ValueStart is the source offset of an expandable string's content.
	ValueStart int

	// Space reports whether whitespace separated this token from the previous one.
	Space bool

	// Redirection details for TokRedirect and TokMergeRedirect.
	FromStream string
	ToStream   string
	Append     bool
}

// Is reports whether a generic token spells the given keyword, ignoring case.
func (t Token) Is(keyword string) bool {
	return t.Kind == TokGeneric && strings.EqualFold(t.Value, keyword)
}

package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/roach88/gall/internal/queryexpr"
	"github.com/roach88/gall/internal/script"
)

// policy is what the compiler does with a node kind.
type policy int

const (
	// reject: never part of a query.
	reject policy = iota + 1
	// foldOrReject: folded when it does not mention the parameter,
	// rejected when it does.
	foldOrReject
	// translate: folded when it does not mention the parameter, otherwise
	// translated node by node.
	translate
)

// policies covers every script.Kind. A kind missing here is a bug, caught
// by TestPolicies_CoverEveryKind.
var policies = map[script.Kind]policy{
	script.KindScriptBlock:            reject, // the root is handled by scriptBlock
	script.KindParamBlock:             reject,
	script.KindParameter:              reject,
	script.KindNamedBlock:             translate,
	script.KindStatementBlock:         foldOrReject,
	script.KindPipeline:               translate,
	script.KindCommand:                reject,
	script.KindCommandExpression:      translate,
	script.KindCommandParameter:       reject,
	script.KindFileRedirection:        reject,
	script.KindMergingRedirection:     reject,
	script.KindAssignment:             foldOrReject,
	script.KindIf:                     reject,
	script.KindWhile:                  reject,
	script.KindDoWhile:                reject,
	script.KindDoUntil:                reject,
	script.KindFor:                    reject,
	script.KindForEach:                reject,
	script.KindSwitch:                 reject,
	script.KindTry:                    reject,
	script.KindCatchClause:            reject,
	script.KindTrap:                   reject,
	script.KindBreak:                  reject,
	script.KindContinue:               reject,
	script.KindReturn:                 reject,
	script.KindExit:                   reject,
	script.KindThrow:                  reject,
	script.KindData:                   reject,
	script.KindFunctionDefinition:     reject,
	script.KindBlockStatement:         reject,
	script.KindBinary:                 translate,
	script.KindUnary:                  foldOrReject,
	script.KindConstant:               translate,
	script.KindStringConstant:         translate,
	script.KindExpandableString:       foldOrReject,
	script.KindVariable:               translate,
	script.KindMember:                 translate,
	script.KindInvokeMember:           foldOrReject,
	script.KindIndex:                  foldOrReject,
	script.KindArrayLiteral:           foldOrReject,
	script.KindArrayExpression:        translate,
	script.KindSubExpression:          translate,
	script.KindParen:                  translate,
	script.KindHashtable:              reject,
	script.KindScriptBlockExpression:  reject,
	script.KindConvert:                foldOrReject,
	script.KindTypeExpression:         reject,
	script.KindAttributedExpression:   reject,
	script.KindAttribute:              reject,
	script.KindNamedAttributeArgument: reject,
	script.KindTypeConstraint:         reject,
	script.KindUsing:                  reject,
}

// compiler holds the state of one compile call.
type compiler struct {
	ev        Evaluator
	name      string // lower-cased parameter name
	paramType reflect.Type
	params    map[string]*queryexpr.Parameter
	logger    *slog.Logger
}

func newCompiler(ev Evaluator, paramType reflect.Type, o options) *compiler {
	return &compiler{
		ev:        ev,
		name:      strings.ToLower(o.paramName),
		paramType: paramType,
		params:    make(map[string]*queryexpr.Parameter),
		logger:    o.logger,
	}
}

// scriptBlock translates the root of the script: no param block, no
// begin, process or dynamicparam block, and an end block with a single
// statement.
func (c *compiler) scriptBlock(sb *script.ScriptBlock, result reflect.Type) (*queryexpr.Lambda, error) {
	switch {
	case sb.ParamBlock != nil:
		return nil, unsupported(sb.ParamBlock, "the param block is not supported in the script block '%s'", sb)
	case sb.DynamicParam != nil:
		return nil, unsupported(sb.DynamicParam, "the dynamicparam block is not supported in the script block '%s'", sb)
	case sb.Begin != nil:
		return nil, unsupported(sb.Begin, "the begin block is not supported in the script block '%s'", sb)
	case sb.Process != nil:
		return nil, unsupported(sb.Process, "the process block is not supported in the script block '%s'", sb)
	case sb.End == nil:
		return nil, unsupported(sb, "the script block '%s' has no end block", sb)
	}

	body, err := c.translate(sb.End)
	if err != nil {
		return nil, err
	}
	if result.Kind() == reflect.Interface && body.Type() != result {
		conv, err := queryexpr.NewConvert(body, result)
		if err != nil {
			return nil, typeMismatch(sb, err)
		}
		body = conv
	}
	if len(c.params) != 1 {
		return nil, unsupported(sb, "the script block '%s' does not refer to $%s", sb, c.name)
	}
	var param *queryexpr.Parameter
	for _, p := range c.params {
		param = p
	}
	l, err := queryexpr.NewLambda(body, param, result)
	if err != nil {
		return nil, typeMismatch(sb, err)
	}
	c.logger.Debug("compile: done", "script", sb.String(), "lambda", l.String())
	return l, nil
}

func (c *compiler) translate(n script.Node) (queryexpr.Expr, error) {
	switch policies[n.Kind()] {
	case reject:
		return nil, unsupported(n, "the %s '%s' is not supported", n.Kind(), n)
	case foldOrReject:
		if c.scans(n) {
			return nil, unsupported(n, "the %s '%s' refers to $%s and cannot be folded to a constant", n.Kind(), n, c.name)
		}
		return c.fold(n)
	}

	switch n := n.(type) {
	case *script.NamedBlock:
		return c.namedBlock(n)
	case *script.Constant:
		return queryexpr.NewConstant(n.Value), nil
	case *script.StringConstant:
		return queryexpr.NewConstant(n.Value), nil
	case *script.Variable:
		return c.variable(n)
	}

	if !c.scans(n) {
		return c.fold(n)
	}
	switch n := n.(type) {
	case *script.Pipeline:
		if len(n.Elements) != 1 {
			return nil, unsupported(n, "the pipeline '%s' can contain only one element", n)
		}
		return c.translate(n.Elements[0])
	case *script.CommandExpression:
		if len(n.Redirections) > 0 {
			return c.translate(n.Redirections[0])
		}
		return c.translate(n.Expr)
	case *script.Paren:
		return c.translate(n.Pipeline)
	case *script.SubExpression:
		return c.translate(n.Body)
	case *script.ArrayExpression:
		return c.translate(n.Body)
	case *script.Binary:
		return c.binary(n)
	case *script.Member:
		return c.member(n)
	}
	return nil, fmt.Errorf("compiler: no translation for %s", n.Kind())
}

func (c *compiler) namedBlock(n *script.NamedBlock) (queryexpr.Expr, error) {
	if len(n.Traps) > 0 {
		return nil, unsupported(n, "the %s block '%s' cannot contain a trap statement", n.Block, n)
	}
	if len(n.Statements) != 1 {
		return nil, unsupported(n, "the %s block '%s' must contain exactly one statement, not %d", n.Block, n, len(n.Statements))
	}
	return c.translate(n.Statements[0])
}

// variable resolves the parameter, creating it on first use, and folds
// every other variable to its current value.
func (c *compiler) variable(n *script.Variable) (queryexpr.Expr, error) {
	if strings.Contains(n.Name, ":") {
		return nil, unsupported(n, "the qualified variable '%s' is not supported", n)
	}
	if !c.isParameter(n) {
		return c.fold(n)
	}
	p, ok := c.params[c.name]
	if !ok {
		p = queryexpr.NewParameter(c.name, c.paramType)
		c.params[c.name] = p
	}
	return p, nil
}

// member translates a property chain rooted at the parameter. The member
// name may be any expression that folds to a string.
func (c *compiler) member(n *script.Member) (queryexpr.Expr, error) {
	if n.Static {
		return nil, unsupported(n, "the static member '%s' of a parameter value is not supported", n)
	}
	name, err := c.translate(n.Member)
	if err != nil {
		return nil, err
	}
	lit, ok := name.(*queryexpr.Constant)
	if !ok {
		return nil, unsupported(n, "the member name of '%s' must not depend on $%s", n, c.name)
	}
	prop, ok := lit.Value.(string)
	if !ok {
		return nil, unsupported(n, "the member name of '%s' must be a string, not %s", n, lit)
	}

	target, err := c.translate(n.Target)
	if err != nil {
		return nil, err
	}
	if !c.rootedAtParameter(target) {
		return nil, unsupported(n, "the member expression '%s' must be a property chain on $%s", n, c.name)
	}
	pa, err := queryexpr.NewPropertyAccess(target, prop)
	if err != nil {
		return nil, typeMismatch(n, err)
	}
	return pa, nil
}

func (c *compiler) rootedAtParameter(e queryexpr.Expr) bool {
	switch e := e.(type) {
	case *queryexpr.Parameter:
		return true
	case *queryexpr.PropertyAccess:
		_, ok := e.Root().(*queryexpr.Parameter)
		return ok
	}
	return false
}

var comparisons = map[script.TokenKind]queryexpr.CompareOp{
	script.TokIeq: queryexpr.Eq, script.TokCeq: queryexpr.Eq,
	script.TokIne: queryexpr.Ne, script.TokCne: queryexpr.Ne,
	script.TokIge: queryexpr.Ge, script.TokCge: queryexpr.Ge,
	script.TokIgt: queryexpr.Gt, script.TokCgt: queryexpr.Gt,
	script.TokIle: queryexpr.Le, script.TokCle: queryexpr.Le,
	script.TokIlt: queryexpr.Lt, script.TokClt: queryexpr.Lt,
}

// binary translates an operator over a parameter-dependent operand. The
// case-sensitive and case-insensitive spellings of an operator give the
// same expression.
func (c *compiler) binary(n *script.Binary) (queryexpr.Expr, error) {
	left, err := c.translate(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.translate(n.Right)
	if err != nil {
		return nil, err
	}

	var e queryexpr.Expr
	switch n.Op {
	case script.TokAnd, script.TokBand:
		e, err = queryexpr.NewLogical(queryexpr.And, left, right)
	case script.TokOr, script.TokBor:
		e, err = queryexpr.NewLogical(queryexpr.Or, left, right)
	case script.TokIin, script.TokCin:
		e, err = queryexpr.NewMembership(left, right)
	case script.TokImatch, script.TokCmatch:
		return c.match(n, left, right)
	default:
		op, ok := comparisons[n.Op]
		if !ok {
			return nil, unsupported(n, "the binary operator '%s' is not supported", n.Op)
		}
		e, err = queryexpr.NewComparison(op, left, right)
	}
	if err != nil {
		return nil, typeMismatch(n, err)
	}
	return e, nil
}

// match accepts only a literal pattern without regular expression
// metacharacters, and compiles it to a substring test.
func (c *compiler) match(n *script.Binary, left, right queryexpr.Expr) (queryexpr.Expr, error) {
	m, err := queryexpr.NewSubstringMatch(left, right)
	if errors.Is(err, queryexpr.ErrPatternNotConstant) {
		return nil, unsupported(n, "the pattern of '%s' must fold to a string constant", n)
	}
	if err != nil {
		return nil, typeMismatch(n, err)
	}
	if queryexpr.HasRegexSpecial(m.Pattern()) {
		return nil, unsupported(n, "the pattern %s of '%s' must not contain regular expression metacharacters", m.Right, n)
	}
	return m, nil
}

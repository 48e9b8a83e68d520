package script

import (
	"strings"
	"unicode/utf8"
)

// Parse turns script text into a syntax tree. Malformed text returns a
// *SyntaxError.
func Parse(src string) (sb *ScriptBlock, err error) {
	p := &parser{src: src, lex: newLexer(src)}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			sb, err = nil, b.err
		}
	}()
	p.next()
	sb = p.parseScriptBlockBody(TokEOF)
	if p.tok.Kind != TokEOF {
		p.unexpected()
	}
	sb.setExtent(Extent{Start: 0, End: len(src), Text: src})
	return sb, nil
}

// bailout carries a syntax error up to Parse.
type bailout struct{ err error }

type parser struct {
	src  string
	lex  *lexer
	tok  Token
	prev Token

	// noComma is set while parsing method and attribute arguments, where a
	// comma separates arguments instead of building an array.
	noComma bool
}

var keywords = map[string]bool{
	"begin": true, "break": true, "catch": true, "class": true, "continue": true,
	"data": true, "define": true, "do": true, "dynamicparam": true, "else": true,
	"elseif": true, "end": true, "exit": true, "filter": true, "finally": true,
	"for": true, "foreach": true, "from": true, "function": true, "if": true,
	"in": true, "param": true, "process": true, "return": true, "switch": true,
	"throw": true, "trap": true, "try": true, "until": true, "using": true,
	"var": true, "while": true, "workflow": true, "parallel": true, "sequence": true,
}

var namedBlocks = map[string]BlockKind{
	"begin": BlockBegin, "process": BlockProcess, "end": BlockEnd, "dynamicparam": BlockDynamicParam,
}

func finish[N Node](p *parser, n N, start int) N {
	end := p.prev.End
	if end < start {
		end = start
	}
	n.setExtent(Extent{Start: start, End: end, Text: p.src[start:end]})
	return n
}

func (p *parser) fail(offset int, format string, args ...any) {
	panic(bailout{newSyntaxError(p.src, offset, format, args...)})
}

func (p *parser) unexpected() {
	if p.tok.Kind == TokEOF {
		p.fail(p.tok.Start, "Unexpected end of input.")
	}
	p.fail(p.tok.Start, "Unexpected token '%s' in expression or statement.", p.tok.Text)
}

func (p *parser) next() { p.nextMode(modeExpr) }

func (p *parser) nextMode(m lexMode) {
	p.prev = p.tok
	t, err := p.lex.next(m)
	if err != nil {
		panic(bailout{err})
	}
	p.tok = t
}

func (p *parser) expect(kind TokenKind, msg string) {
	if p.tok.Kind != kind {
		p.fail(p.tok.Start, "%s", msg)
	}
	p.next()
}

func (p *parser) skipNewlines() {
	for p.tok.Kind == TokNewline {
		p.next()
	}
}

func (p *parser) skipTerminators() {
	for p.tok.Kind == TokNewline || p.tok.Kind == TokSemi {
		p.next()
	}
}

// peekAfterNewlines returns the first token after any newlines without
// consuming anything.
func (p *parser) peekAfterNewlines() Token {
	if p.tok.Kind != TokNewline {
		return p.tok
	}
	pos, tok, prev := p.lex.pos, p.tok, p.prev
	for p.tok.Kind == TokNewline {
		p.next()
	}
	t := p.tok
	p.lex.pos, p.tok, p.prev = pos, tok, prev
	return t
}

func (p *parser) atStatementEnd() bool {
	switch p.tok.Kind {
	case TokNewline, TokSemi, TokRBrace, TokRParen, TokEOF, TokPipe:
		return true
	}
	return false
}

func (p *parser) isKeyword() bool {
	return p.tok.Kind == TokGeneric && keywords[strings.ToLower(p.tok.Value)]
}

// Script blocks and statement lists.

func (p *parser) parseScriptBlockBody(close TokenKind) *ScriptBlock {
	sb := &ScriptBlock{}
	p.skipTerminators()
	if p.tok.Is("param") {
		sb.ParamBlock = p.parseParamBlock()
		p.skipTerminators()
	}
	if _, ok := namedBlocks[strings.ToLower(p.tok.Value)]; ok && p.tok.Kind == TokGeneric {
		for p.tok.Kind != close && p.tok.Kind != TokEOF {
			kind, ok := namedBlocks[strings.ToLower(p.tok.Value)]
			if !ok || p.tok.Kind != TokGeneric {
				p.fail(p.tok.Start, "Unexpected token '%s'. Only named blocks are allowed once a named block is defined.", p.tok.Text)
			}
			start := p.tok.Start
			p.next()
			p.skipNewlines()
			p.expect(TokLBrace, "Missing opening '{' of named block.")
			stmts, traps := p.parseStatementList(TokRBrace)
			p.expect(TokRBrace, "Missing closing '}' in statement block or type definition.")
			nb := finish(p, &NamedBlock{Block: kind, Statements: stmts, Traps: traps}, start)
			slot := map[BlockKind]**NamedBlock{
				BlockBegin: &sb.Begin, BlockProcess: &sb.Process, BlockEnd: &sb.End, BlockDynamicParam: &sb.DynamicParam,
			}[kind]
			if *slot != nil {
				p.fail(start, "The script already contains a '%s' block.", kind)
			}
			*slot = nb
			p.skipTerminators()
		}
		return sb
	}
	stmts, traps := p.parseStatementList(close)
	nb := &NamedBlock{Block: BlockEnd, Unnamed: true, Statements: stmts, Traps: traps}
	nb.setExtent(p.listExtent(stmts, traps))
	sb.End = nb
	return sb
}

func (p *parser) parseStatementList(close TokenKind) ([]Statement, []*Trap) {
	var stmts []Statement
	var traps []*Trap
	for {
		p.skipTerminators()
		if p.tok.Kind == close || p.tok.Kind == TokEOF {
			return stmts, traps
		}
		s := p.parseStatement()
		if t, ok := s.(*Trap); ok {
			traps = append(traps, t)
		} else {
			stmts = append(stmts, s)
		}
		switch p.tok.Kind {
		case TokNewline, TokSemi, close, TokEOF:
			continue
		}
		if endsWithBlock(s) {
			continue
		}
		p.unexpected()
	}
}

func endsWithBlock(s Statement) bool {
	switch s.(type) {
	case *If, *While, *DoWhile, *DoUntil, *For, *ForEach, *Switch, *Try, *Trap,
		*Data, *FunctionDefinition, *BlockStatement:
		return true
	}
	return false
}

// listExtent spans the statements and traps of a list, or is empty at the
// current token when there are none.
func (p *parser) listExtent(stmts []Statement, traps []*Trap) Extent {
	start, end := -1, -1
	widen := func(e Extent) {
		if start < 0 || e.Start < start {
			start = e.Start
		}
		if e.End > end {
			end = e.End
		}
	}
	for _, s := range stmts {
		widen(s.Extent())
	}
	for _, t := range traps {
		widen(t.Extent())
	}
	if start < 0 {
		return Extent{Start: p.tok.Start, End: p.tok.Start}
	}
	return Extent{Start: start, End: end, Text: p.src[start:end]}
}

// parseInnerBlock parses a statement list up to close, which the caller
// consumes. The block's extent covers only the statements.
func (p *parser) parseInnerBlock(close TokenKind) *StatementBlock {
	saved := p.noComma
	p.noComma = false
	stmts, traps := p.parseStatementList(close)
	p.noComma = saved
	b := &StatementBlock{Statements: stmts, Traps: traps}
	b.setExtent(p.listExtent(stmts, traps))
	return b
}

// parseBraceBlock parses { statements } including the braces.
func (p *parser) parseBraceBlock(missing string) *StatementBlock {
	start := p.tok.Start
	p.expect(TokLBrace, missing)
	saved := p.noComma
	p.noComma = false
	stmts, traps := p.parseStatementList(TokRBrace)
	p.noComma = saved
	p.expect(TokRBrace, "Missing closing '}' in statement block or type definition.")
	return finish(p, &StatementBlock{Statements: stmts, Traps: traps}, start)
}

// Statements.

func (p *parser) parseStatement() Statement {
	label := ""
	if p.tok.Kind == TokColon {
		p.nextMode(modeMember)
		if p.tok.Kind != TokGeneric {
			p.fail(p.tok.Start, "Missing label name after ':'.")
		}
		label = p.tok.Value
		p.next()
		p.skipNewlines()
		switch strings.ToLower(p.tok.Value) {
		case "while", "do", "for", "foreach", "switch":
		default:
			p.fail(p.tok.Start, "A loop label must be followed by a loop or switch statement.")
		}
	}
	if p.tok.Kind == TokGeneric {
		switch strings.ToLower(p.tok.Value) {
		case "if":
			return p.parseIf()
		case "while":
			return p.parseWhile(label)
		case "do":
			return p.parseDo(label)
		case "for":
			return p.parseFor(label)
		case "foreach":
			return p.parseForEach(label)
		case "switch":
			return p.parseSwitch(label)
		case "try":
			return p.parseTry()
		case "trap":
			return p.parseTrap()
		case "break", "continue":
			return p.parseBreakContinue()
		case "return", "exit", "throw":
			return p.parseFlow()
		case "data":
			return p.parseData()
		case "function", "filter", "workflow":
			return p.parseFunction()
		case "parallel", "sequence":
			return p.parseBlockStatement()
		}
		if p.isKeyword() {
			p.unexpected()
		}
	}
	return p.parsePipelineStatement()
}

func (p *parser) startsCommand() bool {
	switch p.tok.Kind {
	case TokGeneric, TokAmpersand, TokDot, TokRem:
		return true
	}
	return false
}

func (p *parser) parsePipelineStatement() Statement {
	start := p.tok.Start
	var first PipelineElement
	if p.startsCommand() {
		first = p.parseCommand()
	} else {
		e := p.parseExpression()
		switch p.tok.Kind {
		case TokEquals, TokPlusEquals, TokMinusEquals, TokMultiplyEquals, TokDivideEquals, TokRemEquals:
			if !assignable(e) {
				p.fail(e.Extent().Start, "The assignment expression is not valid. The input to an assignment operator must be an object that is able to accept assignments, such as a variable or a property.")
			}
			op := p.tok.Kind
			p.next()
			p.skipNewlines()
			if p.atStatementEnd() {
				p.fail(p.tok.Start, "You must provide a value expression following the '%s' operator.", op)
			}
			right := p.parseStatement()
			return finish(p, &Assignment{Left: e, Op: op, Right: right}, start)
		}
		ce := &CommandExpression{Expr: e}
		for p.tok.Kind == TokRedirect || p.tok.Kind == TokMergeRedirect {
			ce.Redirections = append(ce.Redirections, p.parseRedirection())
		}
		first = finish(p, ce, start)
	}
	pl := &Pipeline{Elements: []PipelineElement{first}}
	for p.tok.Kind == TokPipe {
		p.next()
		p.skipNewlines()
		if !p.startsCommand() {
			if p.atStatementEnd() {
				p.fail(p.tok.Start, "An empty pipe element is not allowed.")
			}
			p.fail(p.tok.Start, "Expressions are only allowed as the first element of a pipeline.")
		}
		pl.Elements = append(pl.Elements, p.parseCommand())
	}
	return finish(p, pl, start)
}

func assignable(e Expr) bool {
	switch e := e.(type) {
	case *Variable, *Member, *Index:
		return true
	case *Convert:
		return assignable(e.Child)
	case *AttributedExpression:
		return assignable(e.Child)
	case *ArrayLiteral:
		for _, el := range e.Elements {
			if !assignable(el) {
				return false
			}
		}
		return true
	}
	return false
}

func (p *parser) parseCommand() *Command {
	start := p.tok.Start
	cmd := &Command{Invocation: TokEOF}
	switch p.tok.Kind {
	case TokAmpersand, TokDot:
		cmd.Invocation = p.tok.Kind
		p.next()
		if p.tok.Kind == TokGeneric {
			cmd.Elements = append(cmd.Elements, p.bareword())
		} else {
			cmd.Elements = append(cmd.Elements, p.parsePostfix(p.parsePrimary()))
		}
	case TokRem:
		p.next()
		sc := &StringConstant{Value: "%", Quote: BareWord}
		cmd.Elements = append(cmd.Elements, finish(p, sc, start))
	default:
		if p.isKeyword() {
			p.unexpected()
		}
		cmd.Elements = append(cmd.Elements, p.bareword())
	}
	for {
		switch p.tok.Kind {
		case TokNewline, TokSemi, TokPipe, TokRParen, TokRBrace, TokEOF:
			return finish(p, cmd, start)
		case TokRedirect, TokMergeRedirect:
			cmd.Redirections = append(cmd.Redirections, p.parseRedirection())
		case TokDashWord:
			pstart := p.tok.Start
			cp := &CommandParameter{Name: p.tok.Text[1:]}
			p.next()
			if p.tok.Kind == TokColon && !p.tok.Space {
				p.next()
				cp.Argument = p.parseCommandArgument()
			}
			cmd.Elements = append(cmd.Elements, finish(p, cp, pstart))
		default:
			cmd.Elements = append(cmd.Elements, p.parseCommandArgument())
		}
	}
}

func (p *parser) bareword() *StringConstant {
	start := p.tok.Start
	v := p.tok.Value
	p.next()
	return finish(p, &StringConstant{Value: v, Quote: BareWord}, start)
}

func (p *parser) parseCommandArgument() Expr {
	start := p.tok.Start
	first := p.parseArgumentItem()
	if p.tok.Kind != TokComma {
		return first
	}
	elems := []Expr{first}
	for p.tok.Kind == TokComma {
		p.next()
		p.skipNewlines()
		elems = append(elems, p.parseArgumentItem())
	}
	return finish(p, &ArrayLiteral{Elements: elems}, start)
}

func (p *parser) parseArgumentItem() Expr {
	if p.tok.Kind == TokGeneric {
		return p.bareword()
	}
	saved := p.noComma
	p.noComma = true
	e := p.parseUnary()
	p.noComma = saved
	return e
}

func (p *parser) parseRedirection() Redirection {
	t := p.tok
	p.next()
	if t.Kind == TokMergeRedirect {
		mr := &MergingRedirection{FromStream: t.FromStream, ToStream: t.ToStream}
		mr.setExtent(Extent{Start: t.Start, End: t.End, Text: t.Text})
		return mr
	}
	if p.atStatementEnd() {
		p.fail(p.tok.Start, "Missing file specification after redirection operator.")
	}
	loc := p.parseArgumentItem()
	return finish(p, &FileRedirection{FromStream: t.FromStream, Append: t.Append, Location: loc}, t.Start)
}

func (p *parser) parseIf() *If {
	start := p.tok.Start
	s := &If{}
	for {
		kw := p.tok.Value
		p.next()
		p.skipNewlines()
		p.expect(TokLParen, "Missing '(' after '"+kw+"' in if statement.")
		p.skipNewlines()
		cond := p.parsePipelineStatement()
		p.skipNewlines()
		p.expect(TokRParen, "Missing closing ')' after expression in '"+kw+"' statement.")
		p.skipNewlines()
		body := p.parseBraceBlock("Missing statement block after " + kw + " ( condition ).")
		s.Clauses = append(s.Clauses, IfClause{Condition: cond, Body: body})

		next := p.peekAfterNewlines()
		if next.Is("elseif") {
			p.skipNewlines()
			continue
		}
		if next.Is("else") {
			p.skipNewlines()
			p.next()
			p.skipNewlines()
			s.Else = p.parseBraceBlock("Missing statement block after 'else' keyword.")
		}
		return finish(p, s, start)
	}
}

func (p *parser) parseCondition(kw string) Statement {
	p.skipNewlines()
	p.expect(TokLParen, "Missing opening '(' after keyword '"+kw+"'.")
	p.skipNewlines()
	if p.tok.Kind == TokRParen {
		p.fail(p.tok.Start, "Missing expression after '%s' in loop.", kw)
	}
	cond := p.parsePipelineStatement()
	p.skipNewlines()
	p.expect(TokRParen, "Missing closing ')' after expression in '"+kw+"' statement.")
	p.skipNewlines()
	return cond
}

func (p *parser) parseWhile(label string) *While {
	start := p.tok.Start
	p.next()
	cond := p.parseCondition("while")
	body := p.parseBraceBlock("Missing open brace in while loop.")
	return finish(p, &While{Label: label, Condition: cond, Body: body}, start)
}

func (p *parser) parseDo(label string) Statement {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	body := p.parseBraceBlock("Missing statement block in do loop.")
	next := p.peekAfterNewlines()
	switch {
	case next.Is("while"):
		p.skipNewlines()
		p.next()
		cond := p.parseConditionNoBody("while")
		return finish(p, &DoWhile{Label: label, Body: body, Condition: cond}, start)
	case next.Is("until"):
		p.skipNewlines()
		p.next()
		cond := p.parseConditionNoBody("until")
		return finish(p, &DoUntil{Label: label, Body: body, Condition: cond}, start)
	}
	p.fail(p.tok.Start, "Missing while or until keyword in do loop.")
	return nil
}

func (p *parser) parseConditionNoBody(kw string) Statement {
	p.skipNewlines()
	p.expect(TokLParen, "Missing '(' after '"+kw+"' in do loop.")
	p.skipNewlines()
	cond := p.parsePipelineStatement()
	p.skipNewlines()
	p.expect(TokRParen, "Missing closing ')' after expression in '"+kw+"' statement.")
	return cond
}

func (p *parser) parseFor(label string) *For {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	p.expect(TokLParen, "Missing opening '(' after keyword 'for'.")
	p.skipNewlines()
	s := &For{Label: label}
	part := func() Statement {
		p.skipNewlines()
		if p.tok.Kind == TokSemi || p.tok.Kind == TokRParen {
			return nil
		}
		st := p.parsePipelineStatement()
		p.skipNewlines()
		return st
	}
	s.Init = part()
	if p.tok.Kind == TokSemi {
		p.next()
		s.Condition = part()
		if p.tok.Kind == TokSemi {
			p.next()
			s.Iterator = part()
		}
	}
	p.expect(TokRParen, "Missing closing ')' after expression in 'for' statement.")
	p.skipNewlines()
	s.Body = p.parseBraceBlock("Missing open brace in for loop.")
	return finish(p, s, start)
}

func (p *parser) parseForEach(label string) *ForEach {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	for p.tok.Kind == TokDashWord {
		// -parallel and friends only apply in workflows
		p.next()
	}
	p.expect(TokLParen, "Missing opening '(' after keyword 'foreach'.")
	p.skipNewlines()
	if p.tok.Kind != TokVariable {
		p.fail(p.tok.Start, "Missing variable name after foreach.")
	}
	v := p.variableNode(p.tok)
	p.next()
	vv, ok := v.(*Variable)
	if !ok {
		p.fail(v.Extent().Start, "Missing variable name after foreach.")
	}
	p.skipNewlines()
	if !p.tok.Is("in") {
		p.fail(p.tok.Start, "Missing 'in' after variable in foreach loop.")
	}
	p.next()
	p.skipNewlines()
	coll := p.parsePipelineStatement()
	p.skipNewlines()
	p.expect(TokRParen, "Missing closing ')' after expression in 'foreach' statement.")
	p.skipNewlines()
	body := p.parseBraceBlock("Missing statement body in foreach loop.")
	return finish(p, &ForEach{Label: label, Variable: vv, Collection: coll, Body: body}, start)
}

func (p *parser) parseSwitch(label string) *Switch {
	start := p.tok.Start
	s := &Switch{Label: label}
	p.next()
	p.skipNewlines()
	for p.tok.Kind == TokDashWord {
		switch p.tok.Value {
		case "regex":
			s.Regex = true
		case "wildcard":
			s.Wildcard = true
		case "exact":
			s.Exact = true
		case "casesensitive":
			s.CaseSensitive = true
		default:
			p.fail(p.tok.Start, "Invalid switch statement option '%s'.", p.tok.Text)
		}
		p.next()
		p.skipNewlines()
	}
	p.expect(TokLParen, "Missing '(' after 'switch' in switch statement.")
	p.skipNewlines()
	s.Condition = p.parsePipelineStatement()
	p.skipNewlines()
	p.expect(TokRParen, "Missing closing ')' after expression in 'switch' statement.")
	p.skipNewlines()
	p.expect(TokLBrace, "Missing opening '{' in switch statement.")
	for {
		p.skipTerminators()
		if p.tok.Kind == TokRBrace || p.tok.Kind == TokEOF {
			break
		}
		if p.tok.Is("default") {
			if s.Default != nil {
				p.fail(p.tok.Start, "The switch statement contains more than one default clause.")
			}
			p.next()
			p.skipNewlines()
			s.Default = p.parseBraceBlock("Missing statement block in switch statement clause.")
			continue
		}
		var pattern Expr
		if p.tok.Kind == TokGeneric {
			pattern = p.bareword()
		} else {
			pattern = p.parseArgumentItem()
		}
		p.skipNewlines()
		body := p.parseBraceBlock("Missing statement block in switch statement clause.")
		s.Clauses = append(s.Clauses, SwitchClause{Pattern: pattern, Body: body})
	}
	p.expect(TokRBrace, "Missing closing '}' in switch statement.")
	return finish(p, s, start)
}

func (p *parser) parseTry() *Try {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	s := &Try{Body: p.parseBraceBlock("Missing statement block after 'try'.")}
	for p.peekAfterNewlines().Is("catch") {
		p.skipNewlines()
		cstart := p.tok.Start
		p.next()
		p.skipNewlines()
		cc := &CatchClause{}
		for p.tok.Kind == TokLBracket {
			cc.Types = append(cc.Types, p.parseTypeConstraint())
			p.skipNewlines()
			if p.tok.Kind == TokComma {
				p.next()
				p.skipNewlines()
			}
		}
		cc.Body = p.parseBraceBlock("Missing statement block in catch block.")
		s.Catches = append(s.Catches, finish(p, cc, cstart))
	}
	if p.peekAfterNewlines().Is("finally") {
		p.skipNewlines()
		p.next()
		p.skipNewlines()
		s.Finally = p.parseBraceBlock("Missing statement block after 'finally'.")
	}
	if len(s.Catches) == 0 && s.Finally == nil {
		p.fail(p.prev.End, "The Try statement is missing its Catch or Finally block.")
	}
	return finish(p, s, start)
}

func (p *parser) parseTrap() *Trap {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	s := &Trap{}
	if p.tok.Kind == TokLBracket {
		s.Type = p.parseTypeConstraint()
		p.skipNewlines()
	}
	s.Body = p.parseBraceBlock("Missing statement block in trap statement.")
	return finish(p, s, start)
}

func (p *parser) parseBreakContinue() Statement {
	start := p.tok.Start
	isBreak := p.tok.Is("break")
	p.next()
	var label Expr
	if !p.atStatementEnd() {
		label = p.parseArgumentItem()
	}
	if isBreak {
		return finish(p, &Break{Label: label}, start)
	}
	return finish(p, &Continue{Label: label}, start)
}

func (p *parser) parseFlow() Statement {
	start := p.tok.Start
	kw := strings.ToLower(p.tok.Value)
	p.next()
	var pl Statement
	if !p.atStatementEnd() {
		pl = p.parsePipelineStatement()
	}
	switch kw {
	case "return":
		return finish(p, &Return{Pipeline: pl}, start)
	case "exit":
		return finish(p, &Exit{Pipeline: pl}, start)
	}
	return finish(p, &Throw{Pipeline: pl}, start)
}

func (p *parser) parseData() *Data {
	start := p.tok.Start
	p.next()
	s := &Data{}
	if p.tok.Kind == TokGeneric {
		s.Variable = p.tok.Value
		p.next()
	}
	for p.tok.Kind == TokDashWord {
		// -SupportedCommand name[, name]
		p.next()
		p.parseCommandArgument()
	}
	p.skipNewlines()
	s.Body = p.parseBraceBlock("Missing statement block after 'data'.")
	return finish(p, s, start)
}

func (p *parser) parseFunction() *FunctionDefinition {
	start := p.tok.Start
	s := &FunctionDefinition{IsFilter: p.tok.Is("filter")}
	p.next()
	if p.tok.Kind != TokGeneric {
		p.fail(p.tok.Start, "Missing function name after function keyword.")
	}
	s.Name = p.tok.Value
	p.next()
	p.skipNewlines()
	if p.tok.Kind == TokLParen {
		p.next()
		s.Parameters = p.parseParameterList()
		p.expect(TokRParen, "Missing ')' in function parameter list.")
		p.skipNewlines()
	}
	bstart := p.tok.Start
	p.expect(TokLBrace, "Missing function body in function declaration.")
	body := p.parseScriptBlockBody(TokRBrace)
	p.expect(TokRBrace, "Missing closing '}' in statement block or type definition.")
	s.Body = finish(p, body, bstart)
	return finish(p, s, start)
}

func (p *parser) parseBlockStatement() *BlockStatement {
	start := p.tok.Start
	kw := p.tok.Value
	p.next()
	p.skipNewlines()
	body := p.parseBraceBlock("Missing statement block after '" + kw + "'.")
	return finish(p, &BlockStatement{Keyword: kw, Body: body}, start)
}

func (p *parser) parseParamBlock() *ParamBlock {
	start := p.tok.Start
	p.next()
	p.skipNewlines()
	p.expect(TokLParen, "Missing '(' in param block.")
	params := p.parseParameterList()
	p.expect(TokRParen, "Missing ')' in param block.")
	return finish(p, &ParamBlock{Parameters: params}, start)
}

func (p *parser) parseParameterList() []*Parameter {
	var params []*Parameter
	saved := p.noComma
	p.noComma = true
	defer func() { p.noComma = saved }()
	for {
		p.skipNewlines()
		if p.tok.Kind == TokRParen {
			return params
		}
		start := p.tok.Start
		prm := &Parameter{}
		for p.tok.Kind == TokLBracket {
			prm.Attributes = append(prm.Attributes, p.parseAttributeOrConstraint())
			p.skipNewlines()
		}
		if p.tok.Kind != TokVariable {
			p.fail(p.tok.Start, "Missing parameter name.")
		}
		v, ok := p.variableNode(p.tok).(*Variable)
		if !ok {
			p.fail(p.tok.Start, "Missing parameter name.")
		}
		prm.Name = v
		p.next()
		p.skipNewlines()
		if p.tok.Kind == TokEquals {
			p.next()
			p.skipNewlines()
			prm.Default = p.parseExpression()
		}
		params = append(params, finish(p, prm, start))
		p.skipNewlines()
		if p.tok.Kind != TokComma {
			return params
		}
		p.next()
	}
}

// Types and attributes.

// parseTypeName expects the current token to be a TokTypeName and
// consumes it along with any array or generic suffix.
func (p *parser) parseTypeName() *TypeName {
	start := p.tok.Start
	tn := &TypeName{Name: p.tok.Value}
	p.next()
	if p.tok.Kind == TokLBracket && !p.tok.Space {
		p.nextMode(modeTypeName)
		if p.tok.Kind == TokRBracket {
			tn.Array = true
			p.next()
		} else {
			for {
				var arg *TypeName
				switch p.tok.Kind {
				case TokLBracket:
					p.nextMode(modeTypeName)
					if p.tok.Kind != TokTypeName {
						p.fail(p.tok.Start, "Missing type name after '['.")
					}
					arg = p.parseTypeName()
					p.expect(TokRBracket, "Missing ']' after generic type argument.")
				case TokTypeName:
					arg = p.parseTypeName()
				default:
					p.fail(p.tok.Start, "Missing type name after '['.")
				}
				tn.Args = append(tn.Args, arg)
				if p.tok.Kind != TokComma {
					break
				}
				p.nextMode(modeTypeName)
			}
			p.expect(TokRBracket, "Missing ']' after generic type argument list.")
			if p.tok.Kind == TokLBracket && !p.tok.Space {
				p.next()
				p.expect(TokRBracket, "Missing ']' after array type.")
				tn.Array = true
			}
		}
	}
	tn.Text = p.src[start:p.prev.End]
	return tn
}

// openType consumes '[' and the type name that follows.
func (p *parser) openType() *TypeName {
	p.nextMode(modeTypeName)
	if p.tok.Kind != TokTypeName {
		p.fail(p.tok.Start, "Missing type name after '['.")
	}
	return p.parseTypeName()
}

func (p *parser) parseTypeConstraint() *TypeConstraint {
	start := p.tok.Start
	tn := p.openType()
	p.expect(TokRBracket, "Missing ']' after type name.")
	return finish(p, &TypeConstraint{Type: tn}, start)
}

func (p *parser) parseAttributeOrConstraint() Node {
	start := p.tok.Start
	tn := p.openType()
	if p.tok.Kind == TokLParen && !p.tok.Space {
		return p.parseAttributeArgs(tn, start)
	}
	p.expect(TokRBracket, "Missing ']' after type name.")
	return finish(p, &TypeConstraint{Type: tn}, start)
}

// parseAttributeArgs parses (args)] after the attribute's type name.
func (p *parser) parseAttributeArgs(tn *TypeName, start int) *Attribute {
	attr := &Attribute{Type: tn}
	p.next()
	saved := p.noComma
	p.noComma = true
	for {
		p.skipNewlines()
		if p.tok.Kind == TokRParen {
			break
		}
		if p.tok.Kind == TokGeneric {
			nstart := p.tok.Start
			na := &NamedAttributeArgument{Name: p.tok.Value}
			p.next()
			p.skipNewlines()
			if p.tok.Kind == TokEquals {
				p.next()
				p.skipNewlines()
				na.Value = p.parseExpression()
			} else {
				na.ExpressionOmitted = true
			}
			attr.Named = append(attr.Named, finish(p, na, nstart))
		} else {
			attr.Positional = append(attr.Positional, p.parseExpression())
		}
		p.skipNewlines()
		if p.tok.Kind != TokComma {
			break
		}
		p.next()
	}
	p.noComma = saved
	p.expect(TokRParen, "Missing ')' in attribute argument list.")
	p.expect(TokRBracket, "Missing ']' after attribute.")
	return finish(p, attr, start)
}

// Expressions.

const (
	precLogical = iota
	precBitwise
	precComparison
	precAdditive
	precMultiplicative
	precFormat
	precRange
)

func (p *parser) binaryOp() (TokenKind, int, bool) {
	switch p.tok.Kind {
	case TokPlus, TokMinus:
		return p.tok.Kind, precAdditive, true
	case TokMultiply, TokDivide, TokRem:
		return p.tok.Kind, precMultiplicative, true
	case TokDotDot:
		return TokDotDot, precRange, true
	case TokDashWord:
		op, ok := LookupOperator(p.tok.Value)
		if !ok {
			p.fail(p.tok.Start, "Unexpected token '%s' in expression or statement.", p.tok.Text)
		}
		switch op {
		case TokAnd, TokOr, TokXor:
			return op, precLogical, true
		case TokBand, TokBor, TokBxor:
			return op, precBitwise, true
		case TokFormat:
			return op, precFormat, true
		case TokNot, TokBnot:
			return op, 0, false
		}
		return op, precComparison, true
	}
	return 0, 0, false
}

func (p *parser) parseExpression() Expr {
	return p.parseBinary(precLogical)
}

func (p *parser) parseBinary(level int) Expr {
	if level > precRange {
		return p.parseArray()
	}
	start := p.tok.Start
	left := p.parseBinary(level + 1)
	for {
		op, l, ok := p.binaryOp()
		if !ok || l != level {
			return left
		}
		p.next()
		p.skipNewlines()
		right := p.parseBinary(level + 1)
		left = finish(p, &Binary{Op: op, Left: left, Right: right}, start)
	}
}

func (p *parser) parseArray() Expr {
	start := p.tok.Start
	first := p.parseUnary()
	if p.noComma || p.tok.Kind != TokComma {
		return first
	}
	elems := []Expr{first}
	for p.tok.Kind == TokComma {
		p.next()
		p.skipNewlines()
		elems = append(elems, p.parseUnary())
	}
	return finish(p, &ArrayLiteral{Elements: elems}, start)
}

func (p *parser) isUnaryDashOp() bool {
	if p.tok.Kind != TokDashWord {
		return false
	}
	op, _ := LookupOperator(p.tok.Value)
	switch op {
	case TokNot, TokBnot, TokIsplit, TokCsplit, TokJoin:
		return true
	}
	return false
}

func (p *parser) parseUnary() Expr {
	start := p.tok.Start
	switch p.tok.Kind {
	case TokExclaim, TokMinus, TokPlus, TokPlusPlus, TokMinusMinus:
		op := p.tok.Kind
		p.next()
		operand := p.parseUnary()
		return finish(p, &Unary{Op: op, Operand: operand}, start)
	case TokComma:
		p.next()
		operand := p.parseUnary()
		return finish(p, &ArrayLiteral{Elements: []Expr{operand}}, start)
	case TokDashWord:
		if !p.isUnaryDashOp() {
			p.unexpected()
		}
		op, _ := LookupOperator(p.tok.Value)
		p.next()
		operand := p.parseUnary()
		return finish(p, &Unary{Op: op, Operand: operand}, start)
	case TokLBracket:
		return p.parseTypeLiteral()
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *parser) startsCastOperand() bool {
	switch p.tok.Kind {
	case TokNumber, TokString, TokExpandable, TokVariable, TokLParen, TokAtParen, TokAtBrace,
		TokDollarParen, TokLBrace, TokLBracket, TokMinus, TokPlus, TokExclaim,
		TokPlusPlus, TokMinusMinus:
		return true
	}
	return p.isUnaryDashOp()
}

// parseTypeLiteral parses [type] as a cast, a type expression, or an
// attributed expression.
func (p *parser) parseTypeLiteral() Expr {
	start := p.tok.Start
	tn := p.openType()
	if p.tok.Kind == TokLParen && !p.tok.Space {
		attr := p.parseAttributeArgs(tn, start)
		p.skipNewlines()
		child := p.parseUnary()
		return finish(p, &AttributedExpression{Attribute: attr, Child: child}, start)
	}
	p.expect(TokRBracket, "Missing ']' after type name.")
	if p.startsCastOperand() {
		tc := finish(p, &TypeConstraint{Type: tn}, start)
		child := p.parseUnary()
		return finish(p, &Convert{Type: tc, Child: child}, start)
	}
	return p.parsePostfix(finish(p, &TypeExpression{Type: tn}, start))
}

func (p *parser) parsePostfix(e Expr) Expr {
	start := e.Extent().Start
	for {
		switch {
		case (p.tok.Kind == TokDot && !p.tok.Space) || p.tok.Kind == TokColonColon:
			static := p.tok.Kind == TokColonColon
			p.nextMode(modeMember)
			member := p.parseMemberName()
			if p.tok.Kind == TokLParen && !p.tok.Space {
				args := p.parseInvokeArgs()
				e = finish(p, &InvokeMember{Target: e, Member: member, Arguments: args, Static: static}, start)
			} else {
				e = finish(p, &Member{Target: e, Member: member, Static: static}, start)
			}
		case p.tok.Kind == TokLBracket && !p.tok.Space:
			p.next()
			p.skipNewlines()
			saved := p.noComma
			p.noComma = false
			idx := p.parseExpression()
			p.noComma = saved
			p.skipNewlines()
			p.expect(TokRBracket, "Missing ']' after array index expression.")
			e = finish(p, &Index{Target: e, Index: idx}, start)
		case (p.tok.Kind == TokPlusPlus || p.tok.Kind == TokMinusMinus) && !p.tok.Space:
			op := TokPostfixPlusPlus
			if p.tok.Kind == TokMinusMinus {
				op = TokPostfixMinusMinus
			}
			p.next()
			e = finish(p, &Unary{Op: op, Operand: e}, start)
		default:
			return e
		}
	}
}

func (p *parser) parseMemberName() Expr {
	switch p.tok.Kind {
	case TokGeneric:
		return p.bareword()
	case TokString, TokExpandable, TokVariable, TokDollarParen, TokLParen:
		return p.parsePrimary()
	}
	p.fail(p.tok.Start, "Missing property name after reference operator.")
	return nil
}

func (p *parser) parseInvokeArgs() []Expr {
	p.next()
	p.skipNewlines()
	saved := p.noComma
	p.noComma = true
	var args []Expr
	for p.tok.Kind != TokRParen {
		args = append(args, p.parseExpression())
		p.skipNewlines()
		if p.tok.Kind != TokComma {
			break
		}
		p.next()
		p.skipNewlines()
	}
	p.noComma = saved
	p.expect(TokRParen, "Missing closing ')' in method call.")
	return args
}

func (p *parser) parsePrimary() Expr {
	t := p.tok
	start := t.Start
	switch t.Kind {
	case TokNumber:
		p.next()
		return finish(p, &Constant{Value: t.Num}, start)
	case TokString:
		p.next()
		q := SingleQuoted
		if strings.HasPrefix(t.Text, "@") {
			q = SingleQuotedHereString
		}
		return finish(p, &StringConstant{Value: t.Value, Quote: q}, start)
	case TokExpandable:
		p.next()
		return p.expandString(t)
	case TokVariable:
		p.next()
		return p.variableNode(t)
	case TokSplat:
		p.next()
		return finish(p, &Variable{Name: t.Value, Splatted: true}, start)
	case TokLParen:
		p.next()
		p.skipNewlines()
		if p.tok.Kind == TokRParen {
			p.fail(p.tok.Start, "An expression was expected after '('.")
		}
		saved := p.noComma
		p.noComma = false
		if p.isKeyword() {
			p.unexpected()
		}
		inner := p.parsePipelineStatement()
		p.noComma = saved
		p.skipNewlines()
		p.expect(TokRParen, "Missing closing ')' in expression.")
		return finish(p, &Paren{Pipeline: inner}, start)
	case TokDollarParen:
		p.next()
		body := p.parseInnerBlock(TokRParen)
		p.expect(TokRParen, "Missing closing ')' in subexpression.")
		return finish(p, &SubExpression{Body: body}, start)
	case TokAtParen:
		p.next()
		body := p.parseInnerBlock(TokRParen)
		p.expect(TokRParen, "Missing closing ')' in array expression.")
		return finish(p, &ArrayExpression{Body: body}, start)
	case TokAtBrace:
		return p.parseHashtable()
	case TokLBrace:
		p.next()
		saved := p.noComma
		p.noComma = false
		body := p.parseScriptBlockBody(TokRBrace)
		p.noComma = saved
		p.expect(TokRBrace, "Missing closing '}' in statement block or type definition.")
		body = finish(p, body, start)
		return finish(p, &ScriptBlockExpression{Body: body}, start)
	case TokEOF:
		p.fail(t.Start, "An expression was expected.")
	}
	p.unexpected()
	return nil
}

func (p *parser) variableNode(t Token) Expr {
	v := &Variable{Name: t.Value, Braced: strings.HasPrefix(t.Text, "${")}
	v.setExtent(Extent{Start: t.Start, End: t.End, Text: t.Text})
	if strings.EqualFold(v.Scope(), "using") {
		inner := &Variable{Name: v.UnqualifiedName()}
		inner.setExtent(v.Extent())
		u := &Using{Expr: inner}
		u.setExtent(v.Extent())
		return u
	}
	return v
}

func (p *parser) parseHashtable() *Hashtable {
	start := p.tok.Start
	p.next()
	saved := p.noComma
	p.noComma = false
	h := &Hashtable{}
	for {
		p.skipTerminators()
		if p.tok.Kind == TokRBrace || p.tok.Kind == TokEOF {
			break
		}
		var key Expr
		if p.tok.Kind == TokGeneric {
			key = p.bareword()
		} else {
			key = p.parseUnary()
		}
		p.skipNewlines()
		p.expect(TokEquals, "Missing '=' operator after key in hash literal.")
		p.skipNewlines()
		if p.atStatementEnd() {
			p.fail(p.tok.Start, "Missing statement after '=' in hash literal.")
		}
		val := p.parseStatement()
		h.Pairs = append(h.Pairs, KeyValue{Key: key, Value: val})
		switch p.tok.Kind {
		case TokNewline, TokSemi, TokRBrace:
		default:
			p.fail(p.tok.Start, "Missing '=' operator after key in hash literal.")
		}
	}
	p.noComma = saved
	p.expect(TokRBrace, "Missing closing '}' in hash literal.")
	return finish(p, h, start)
}

var stringEscapes = map[byte]string{
	'0': "\x00", 'a': "\a", 'b': "\b", 'e': "\x1b", 'f': "\f", 'n': "\n", 'r': "\r", 't': "\t", 'v': "\v",
}

// expandString splits a double-quoted string into literal runs and nested
// variable or subexpression nodes. A string with nothing to expand becomes
// a StringConstant.
func (p *parser) expandString(t Token) Expr {
	content, base := t.Value, t.ValueStart
	here := strings.HasPrefix(t.Text, "@")
	var parts []Expr
	var lit, all strings.Builder
	litStart := base
	nested := false
	flush := func(end int) {
		if lit.Len() > 0 {
			sc := &StringConstant{Value: lit.String(), Quote: DoubleQuoted}
			sc.setExtent(Extent{Start: litStart, End: end, Text: p.src[litStart:end]})
			parts = append(parts, sc)
			lit.Reset()
		}
	}
	write := func(s string) {
		lit.WriteString(s)
		all.WriteString(s)
	}
	for i := 0; i < len(content); {
		c := content[i]
		abs := base + i
		switch {
		case c == '`' && i+1 < len(content):
			if e, ok := stringEscapes[content[i+1]]; ok {
				write(e)
				i += 2
				continue
			}
			_, size := utf8.DecodeRuneInString(content[i+1:])
			write(content[i+1 : i+1+size])
			i += 1 + size
		case c == '"' && !here && i+1 < len(content) && content[i+1] == '"':
			write(`"`)
			i += 2
		case c == '$' && i+1 < len(content) && content[i+1] == '(':
			flush(abs)
			inner := p.src[:base+len(content)]
			sub := &parser{src: inner, lex: &lexer{src: inner, pos: abs + 2}}
			sub.next()
			body := sub.parseInnerBlock(TokRParen)
			sub.expect(TokRParen, "Missing closing ')' in subexpression.")
			se := finish(sub, &SubExpression{Body: body}, abs)
			parts = append(parts, se)
			nested = true
			i = se.Extent().End - base
			litStart = base + i
		case c == '$' && i+1 < len(content) && (isIdentChar(content[i+1]) || content[i+1] == '{' ||
			content[i+1] == '?' || content[i+1] == '$' || content[i+1] == '^' || content[i+1] >= utf8.RuneSelf):
			sub := &lexer{src: p.src[:base+len(content)], pos: abs}
			vt, err := sub.scanVariable(false)
			if err != nil {
				write("$")
				i++
				continue
			}
			flush(abs)
			parts = append(parts, p.variableNode(vt))
			nested = true
			i = vt.End - base
			litStart = base + i
		default:
			write(content[i : i+1])
			i++
		}
	}
	flush(base + len(content))

	q := DoubleQuoted
	if here {
		q = DoubleQuotedHereString
	}
	if !nested {
		sc := &StringConstant{Value: all.String(), Quote: q}
		sc.setExtent(Extent{Start: t.Start, End: t.End, Text: t.Text})
		return sc
	}
	es := &ExpandableString{Value: content, Quote: q, Parts: parts}
	es.setExtent(Extent{Start: t.Start, End: t.End, Text: t.Text})
	return es
}

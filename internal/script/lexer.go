package script

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// lexer produces tokens on demand. The parser picks the scanning mode for
// the next token because the same characters mean different things after a
// member-access dot or an opening type bracket.
type lexer struct {
	src string
	pos int
}

type lexMode int

const (
	modeExpr lexMode = iota
	modeMember
	modeTypeName
)

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) errorf(offset int, format string, args ...any) *SyntaxError {
	return newSyntaxError(l.src, offset, format, args...)
}

// skipSpace consumes blanks, comments and line continuations. It reports
// whether anything was consumed.
func (l *lexer) skipSpace() (bool, error) {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\f' || c == '\v' || c == 0xa0:
			l.pos++
		case c == '`' && (l.peekByte(1) == '\n' || (l.peekByte(1) == '\r' && l.peekByte(2) == '\n')):
			if l.peekByte(1) == '\r' {
				l.pos++
			}
			l.pos += 2
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
		case c == '<' && l.peekByte(1) == '#':
			end := strings.Index(l.src[l.pos+2:], "#>")
			if end < 0 {
				return false, l.errorf(l.pos, "Missing terminator '#>' for comment block.")
			}
			l.pos += 2 + end + 2
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r != utf8.RuneError && unicode.IsSpace(r) && r != '\n' && r != '\r' {
				l.pos += size
				continue
			}
			return l.pos > start, nil
		}
	}
	return l.pos > start, nil
}

func (l *lexer) next(mode lexMode) (Token, error) {
	space, err := l.skipSpace()
	if err != nil {
		return Token{}, err
	}
	start := l.pos
	tok := func(kind TokenKind, n int) (Token, error) {
		l.pos += n
		return Token{Kind: kind, Text: l.src[start:l.pos], Start: start, End: l.pos, Space: space}, nil
	}
	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF, Start: start, End: start, Space: space}, nil
	}

	switch mode {
	case modeMember:
		if isIdentStart(l.src[l.pos]) || l.letterAt(l.pos) {
			t := l.scanWhile(isIdentChar)
			t.Kind, t.Space = TokGeneric, space
			t.Value = t.Text
			return t, nil
		}
	case modeTypeName:
		if isIdentStart(l.src[l.pos]) || l.letterAt(l.pos) {
			t := l.scanWhile(isTypeNameChar)
			t.Kind, t.Space = TokTypeName, space
			t.Value = t.Text
			return t, nil
		}
	}

	c := l.src[l.pos]
	c1 := l.peekByte(1)
	switch c {
	case '\r':
		if c1 == '\n' {
			return tok(TokNewline, 2)
		}
		return tok(TokNewline, 1)
	case '\n':
		return tok(TokNewline, 1)
	case ';':
		return tok(TokSemi, 1)
	case ',':
		return tok(TokComma, 1)
	case '(':
		return tok(TokLParen, 1)
	case ')':
		return tok(TokRParen, 1)
	case '{':
		return tok(TokLBrace, 1)
	case '}':
		return tok(TokRBrace, 1)
	case '[':
		return tok(TokLBracket, 1)
	case ']':
		return tok(TokRBracket, 1)
	case '|':
		if c1 == '|' {
			return Token{}, l.errorf(start, "The token '||' is not a valid statement separator in this version.")
		}
		return tok(TokPipe, 1)
	case '&':
		if c1 == '&' {
			return Token{}, l.errorf(start, "The token '&&' is not a valid statement separator in this version.")
		}
		return tok(TokAmpersand, 1)
	case '<':
		return Token{}, l.errorf(start, "The '<' operator is reserved for future use.")
	case ':':
		if c1 == ':' {
			return tok(TokColonColon, 2)
		}
		return tok(TokColon, 1)
	case '.':
		if c1 == '.' {
			return tok(TokDotDot, 2)
		}
		if isDigit(c1) && (space || start == 0) {
			return l.scanNumber(space)
		}
		return tok(TokDot, 1)
	case '+':
		switch c1 {
		case '+':
			return tok(TokPlusPlus, 2)
		case '=':
			return tok(TokPlusEquals, 2)
		}
		return tok(TokPlus, 1)
	case '-':
		switch {
		case c1 == '-':
			return tok(TokMinusMinus, 2)
		case c1 == '=':
			return tok(TokMinusEquals, 2)
		case isIdentStart(c1):
			l.pos++
			t := l.scanWhile(isIdentChar)
			t.Kind, t.Start, t.Space = TokDashWord, start, space
			t.Text = l.src[start:l.pos]
			t.Value = strings.ToLower(t.Text[1:])
			return t, nil
		}
		return tok(TokMinus, 1)
	case '*':
		if c1 == '>' {
			return l.scanRedirect(space, "*", 1)
		}
		if c1 == '=' {
			return tok(TokMultiplyEquals, 2)
		}
		return tok(TokMultiply, 1)
	case '/':
		if c1 == '=' {
			return tok(TokDivideEquals, 2)
		}
		return tok(TokDivide, 1)
	case '%':
		if c1 == '=' {
			return tok(TokRemEquals, 2)
		}
		return tok(TokRem, 1)
	case '!':
		return tok(TokExclaim, 1)
	case '=':
		return tok(TokEquals, 1)
	case '>':
		return l.scanRedirect(space, "1", 0)
	case '\'':
		return l.scanSingleQuoted(space)
	case '"':
		return l.scanDoubleQuoted(space)
	case '$':
		return l.scanVariable(space)
	case '@':
		switch c1 {
		case '(':
			return tok(TokAtParen, 2)
		case '{':
			return tok(TokAtBrace, 2)
		case '\'', '"':
			return l.scanHereString(space)
		}
		if isIdentStart(c1) {
			l.pos++
			t := l.scanWhile(isIdentChar)
			t.Kind, t.Start, t.Space = TokSplat, start, space
			t.Value = t.Text
			t.Text = l.src[start:l.pos]
			return t, nil
		}
		return Token{}, l.errorf(start, "Unrecognized token in source text.")
	}

	if c >= '1' && c <= '6' && c1 == '>' {
		return l.scanRedirect(space, string(c), 1)
	}
	if isDigit(c) {
		return l.scanNumber(space)
	}
	if isGenericStart(c) {
		t := l.scanWhile(isGenericChar)
		t.Kind, t.Space = TokGeneric, space
		t.Value = t.Text
		return t, nil
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if l.letterAt(l.pos) {
		t := l.scanWhile(isGenericChar)
		t.Kind, t.Space = TokGeneric, space
		t.Value = t.Text
		return t, nil
	}
	return Token{}, l.errorf(start, "Unexpected character '%c'.", r)
}

// scanWhile consumes runes while pred holds. Non-ASCII letters always count
// as identifier characters.
func (l *lexer) scanWhile(pred func(byte) bool) Token {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				l.pos += size
				continue
			}
			break
		}
		if !pred(c) {
			break
		}
		l.pos++
	}
	return Token{Text: l.src[start:l.pos], Start: start, End: l.pos}
}

func (l *lexer) scanRedirect(space bool, from string, skip int) (Token, error) {
	start := l.pos
	l.pos += skip + 1 // stream digit and '>'
	t := Token{Kind: TokRedirect, FromStream: from, Start: start, Space: space}
	switch {
	case l.peekByte(0) == '>':
		l.pos++
		t.Append = true
	case l.peekByte(0) == '&' && l.peekByte(1) >= '1' && l.peekByte(1) <= '6':
		t.Kind = TokMergeRedirect
		t.ToStream = string(l.peekByte(1))
		l.pos += 2
	}
	t.End = l.pos
	t.Text = l.src[start:l.pos]
	return t, nil
}

func (l *lexer) scanSingleQuoted(space bool) (Token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, l.errorf(start, "The string is missing the terminator: '.")
		}
		c := l.src[l.pos]
		if c == '\'' {
			if l.peekByte(1) == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		sb.WriteByte(c)
		l.pos++
	}
	return Token{Kind: TokString, Text: l.src[start:l.pos], Value: sb.String(), Start: start, End: l.pos, Space: space}, nil
}

// scanDoubleQuoted finds the end of an expandable string. The content is
// expanded later by the parser; here only escapes and nested $( ) are
// skipped so that quotes inside them do not end the string.
func (l *lexer) scanDoubleQuoted(space bool) (Token, error) {
	start := l.pos
	l.pos++
	for {
		if l.pos >= len(l.src) {
			return Token{}, l.errorf(start, "The string is missing the terminator: \".")
		}
		c := l.src[l.pos]
		switch {
		case c == '`':
			l.pos += 2
			continue
		case c == '"':
			if l.peekByte(1) == '"' {
				l.pos += 2
				continue
			}
			l.pos++
			return Token{
				Kind: TokExpandable, Text: l.src[start:l.pos], Value: l.src[start+1 : l.pos-1],
				ValueStart: start + 1, Start: start, End: l.pos, Space: space,
			}, nil
		case c == '$' && l.peekByte(1) == '(':
			end, err := skipSubExpression(l.src, l.pos+2)
			if err != nil {
				return Token{}, err
			}
			l.pos = end
			continue
		}
		l.pos++
	}
}

func (l *lexer) scanHereString(space bool) (Token, error) {
	start := l.pos
	quote := l.peekByte(1)
	l.pos += 2
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	switch {
	case l.peekByte(0) == '\n':
		l.pos++
	case l.peekByte(0) == '\r' && l.peekByte(1) == '\n':
		l.pos += 2
	default:
		return Token{}, l.errorf(start, "No characters are allowed after a here-string header but before the end of the line.")
	}
	contentStart := l.pos
	terminator := "\n" + string(quote) + "@"
	idx := strings.Index(l.src[contentStart-1:], terminator)
	if idx < 0 {
		return Token{}, l.errorf(start, "The string is missing the terminator: %c@.", quote)
	}
	contentEnd := contentStart - 1 + idx
	l.pos = contentEnd + len(terminator)
	if contentEnd < contentStart {
		contentEnd = contentStart
	}
	content := strings.TrimSuffix(l.src[contentStart:contentEnd], "\r")
	t := Token{Text: l.src[start:l.pos], Value: content, ValueStart: contentStart, Start: start, End: l.pos, Space: space}
	if quote == '\'' {
		t.Kind = TokString
	} else {
		t.Kind = TokExpandable
	}
	return t, nil
}

// skipSubExpression returns the offset just past the ')' that closes a
// subexpression whose body starts at pos.
func skipSubExpression(src string, pos int) (int, error) {
	sub := &lexer{src: src, pos: pos}
	depth := 0
	for {
		t, err := sub.next(modeExpr)
		if err != nil {
			return 0, err
		}
		switch t.Kind {
		case TokEOF:
			return 0, newSyntaxError(src, pos-2, "Missing closing ')' in subexpression.")
		case TokLParen, TokAtParen, TokDollarParen:
			depth++
		case TokRParen:
			if depth == 0 {
				return t.End, nil
			}
			depth--
		}
	}
}

func (l *lexer) scanVariable(space bool) (Token, error) {
	start := l.pos
	c1 := l.peekByte(1)
	t := Token{Kind: TokVariable, Start: start, Space: space}
	switch {
	case c1 == '(':
		l.pos += 2
		t.Kind = TokDollarParen
	case c1 == '{':
		end := strings.IndexByte(l.src[l.pos+2:], '}')
		if end < 0 {
			return Token{}, l.errorf(start, "Missing '}' in variable reference.")
		}
		t.Value = l.src[l.pos+2 : l.pos+2+end]
		if t.Value == "" {
			return Token{}, l.errorf(start, "Empty ${} variable reference, there should be a name between the braces.")
		}
		l.pos += 2 + end + 1
	case c1 == '$' || c1 == '?' || c1 == '^':
		t.Value = string(c1)
		l.pos += 2
	case isIdentChar(c1) || l.letterAt(l.pos+1):
		l.pos++
		name := l.pos
		for {
			l.scanWhile(isIdentChar)
			// one scope or drive qualifier, as in $env:Path
			if l.peekByte(0) == ':' && l.peekByte(1) != ':' && isIdentChar(l.peekByte(1)) &&
				!strings.Contains(l.src[name:l.pos], ":") {
				l.pos++
				continue
			}
			break
		}
		t.Value = l.src[name:l.pos]
		if t.Value == "" {
			return Token{}, l.errorf(start, "Invalid variable reference.")
		}
	default:
		return Token{}, l.errorf(start, "Invalid variable reference. '$' was not followed by a valid variable name character.")
	}
	t.End = l.pos
	t.Text = l.src[start:l.pos]
	return t, nil
}

var multipliers = map[string]int64{
	"kb": 1 << 10, "mb": 1 << 20, "gb": 1 << 30, "tb": 1 << 40, "pb": 1 << 50,
}

func (l *lexer) scanNumber(space bool) (Token, error) {
	start := l.pos
	bad := func() (Token, error) {
		for l.pos < len(l.src) && isGenericChar(l.src[l.pos]) {
			l.pos++
		}
		return Token{}, l.errorf(start, "Unexpected token '%s' in expression or statement.", l.src[start:l.pos])
	}

	if l.peekByte(0) == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X') {
		l.pos += 2
		digits := l.scanWhile(isHexDigit).Text
		long := false
		if c := l.peekByte(0); c == 'l' || c == 'L' {
			long = true
			l.pos++
		}
		if digits == "" || isIdentChar(l.peekByte(0)) {
			return bad()
		}
		u, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return bad()
		}
		var v any
		switch {
		case !long && len(digits) <= 8:
			v = int(int32(uint32(u)))
		default:
			v = int64(u)
		}
		return Token{Kind: TokNumber, Text: l.src[start:l.pos], Num: v, Start: start, End: l.pos, Space: space}, nil
	}

	real := false
	l.scanWhile(isDigit)
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		real = true
		l.pos++
		l.scanWhile(isDigit)
	}
	if c := l.peekByte(0); (c == 'e' || c == 'E') &&
		(isDigit(l.peekByte(1)) || ((l.peekByte(1) == '+' || l.peekByte(1) == '-') && isDigit(l.peekByte(2)))) {
		real = true
		l.pos += 2
		l.scanWhile(isDigit)
	}
	literal := l.src[start:l.pos]

	var suffix byte
	switch c := l.peekByte(0); c {
	case 'l', 'L', 'd', 'D':
		suffix = c | 0x20
		l.pos++
	}
	mult := int64(1)
	if l.pos+1 < len(l.src) {
		if m, ok := multipliers[strings.ToLower(l.src[l.pos:l.pos+2])]; ok {
			mult = m
			l.pos += 2
		}
	}
	if isIdentChar(l.peekByte(0)) {
		return bad()
	}

	var v any
	if real || suffix == 'd' {
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return bad()
		}
		f *= float64(mult)
		if suffix == 'l' {
			if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
				return bad()
			}
			v = int64(f)
		} else {
			v = f
		}
	} else {
		n, err := strconv.ParseInt(literal, 10, 64)
		switch {
		case err != nil:
			f, ferr := strconv.ParseFloat(literal, 64)
			if ferr != nil || suffix == 'l' {
				return bad()
			}
			v = f * float64(mult)
		case mult != 1 && (n > math.MaxInt64/mult):
			v = float64(n) * float64(mult)
		default:
			n *= mult
			if suffix != 'l' && n >= math.MinInt32 && n <= math.MaxInt32 {
				v = int(n)
			} else {
				v = n
			}
		}
	}
	return Token{Kind: TokNumber, Text: l.src[start:l.pos], Num: v, Start: start, End: l.pos, Space: space}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// letterAt reports whether a non-ASCII letter starts at offset i.
func (l *lexer) letterAt(i int) bool {
	if i >= len(l.src) || l.src[i] < utf8.RuneSelf {
		return false
	}
	r, _ := utf8.DecodeRuneInString(l.src[i:])
	return unicode.IsLetter(r)
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isTypeNameChar(c byte) bool { return isIdentChar(c) || c == '.' || c == '`' || c == '+' }

func isGenericStart(c byte) bool {
	return isIdentStart(c) || c == '?' || c == '\\' || c == '~'
}

func isGenericChar(c byte) bool {
	return isIdentChar(c) || strings.IndexByte("-._\\/*?~", c) >= 0
}

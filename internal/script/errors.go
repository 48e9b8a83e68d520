package script

import (
	"errors"
	"fmt"
	"strings"
)

// SyntaxError reports malformed script text. Line and Col are 1-based.
type SyntaxError struct {
	Line    int
	Col     int
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Message)
}

// IsSyntaxError returns true if err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

func newSyntaxError(src string, offset int, format string, args ...any) *SyntaxError {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return &SyntaxError{
		Line:    line,
		Col:     col,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}

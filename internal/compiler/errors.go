package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/gall/internal/script"
)

// Compile error codes (E200-E299)
const (
	CodeUnsupported  = "E201" // node kind or shape outside the accepted subset
	CodeTypeMismatch = "E202" // operand types rejected by an operator
)

// CompileError reports a script the compiler cannot translate. Syntax
// errors and failures of the evaluator while folding are returned as they
// are, never as a CompileError.
type CompileError struct {
	Code string
	// Kind and Fragment identify the offending node.
	Kind     script.Kind
	Fragment string
	Offset   int
	Message  string
	// Err is the underlying *queryexpr.TypeError for CodeTypeMismatch.
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CompileError) Unwrap() error { return e.Err }

// IsUnsupported returns true if err is or wraps a CodeUnsupported error.
func IsUnsupported(err error) bool {
	return hasCode(err, CodeUnsupported)
}

// IsTypeMismatch returns true if err is or wraps a CodeTypeMismatch error.
func IsTypeMismatch(err error) bool {
	return hasCode(err, CodeTypeMismatch)
}

// IsSyntaxError returns true if err is or wraps a *script.SyntaxError,
// whether it came from parsing the script or from folding part of it.
func IsSyntaxError(err error) bool {
	return script.IsSyntaxError(err)
}

func hasCode(err error, code string) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == code
}

func unsupported(n script.Node, format string, args ...any) *CompileError {
	return &CompileError{
		Code:     CodeUnsupported,
		Kind:     n.Kind(),
		Fragment: n.String(),
		Offset:   n.Extent().Start,
		Message:  fmt.Sprintf(format, args...),
	}
}

func typeMismatch(n script.Node, err error) *CompileError {
	return &CompileError{
		Code:     CodeTypeMismatch,
		Kind:     n.Kind(),
		Fragment: n.String(),
		Offset:   n.Extent().Start,
		Message:  fmt.Sprintf("the operands of '%s' have unsupported types: %v", n, err),
		Err:      err,
	}
}

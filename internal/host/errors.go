package host

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gall/internal/script"
)

// RuntimeError represents a failure raised while running script text.
//
// Runtime errors include:
//   - Conversion failures: a value cannot be cast to the requested type
//   - Arithmetic failures: division by zero, oversized ranges
//   - Lookup failures: unknown commands, methods or parameters
//   - Script failures: an uncaught throw
//   - Quota exceeded: the evaluation ran more loop iterations than allowed
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Extent is the source span being evaluated when the error was raised.
	// It is the zero Extent when no node was involved.
	Extent script.Extent

	// Thrown is the value passed to throw, if any.
	Thrown any

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeRuntime          RuntimeErrorCode = "RUNTIME_EXCEPTION"
	ErrCodeInvalidCast      RuntimeErrorCode = "INVALID_CAST"
	ErrCodeDivideByZero     RuntimeErrorCode = "DIVIDE_BY_ZERO"
	ErrCodeCommandNotFound  RuntimeErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeMethodNotFound   RuntimeErrorCode = "METHOD_NOT_FOUND"
	ErrCodeParameterBinding RuntimeErrorCode = "PARAMETER_BINDING"
	ErrCodeThrown           RuntimeErrorCode = "SCRIPT_THROWN"
	ErrCodeQuotaExceeded    RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// exceptionTypes names the exception type a catch or trap clause matches
// for each code.
var exceptionTypes = map[RuntimeErrorCode]string{
	ErrCodeRuntime:          "System.Management.Automation.RuntimeException",
	ErrCodeInvalidCast:      "System.Management.Automation.PSInvalidCastException",
	ErrCodeDivideByZero:     "System.DivideByZeroException",
	ErrCodeCommandNotFound:  "System.Management.Automation.CommandNotFoundException",
	ErrCodeMethodNotFound:   "System.Management.Automation.MethodException",
	ErrCodeParameterBinding: "System.Management.Automation.ParameterBindingException",
	ErrCodeThrown:           "System.Management.Automation.RuntimeException",
	ErrCodeQuotaExceeded:    "System.Management.Automation.RuntimeException",
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Extent.Text != "" {
		return fmt.Sprintf("%s: %s (at %q)", e.Code, e.Message, e.Extent.Text)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ExceptionType returns the .NET-style exception type name of the error.
func (e *RuntimeError) ExceptionType() string {
	if t, ok := exceptionTypes[e.Code]; ok {
		return t
	}
	return exceptionTypes[ErrCodeRuntime]
}

// matches reports whether a catch or trap clause naming typeName handles
// the error. Exception and SystemException match everything; other names
// match with or without their namespace.
func (e *RuntimeError) matches(typeName string) bool {
	want := strings.ToLower(typeName)
	switch want {
	case "exception", "system.exception", "systemexception", "system.systemexception":
		return true
	case "runtimeexception", "system.management.automation.runtimeexception":
		return true
	}
	have := strings.ToLower(e.ExceptionType())
	return have == want || strings.HasSuffix(have, "."+want)
}

// IsRuntimeError returns true if err is or wraps a *RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsQuotaError returns true if the evaluation exceeded its step quota.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	return false
}

func newError(n script.Node, code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	e := &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Extent = n.Extent()
	}
	return e
}

// atNode fills in the extent of an error raised below the node level.
func atNode(err error, n script.Node) error {
	var re *RuntimeError
	if n != nil && errors.As(err, &re) && re.Extent.Text == "" {
		re.Extent = n.Extent()
	}
	return err
}

func castError(v any, typeName string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidCast,
		Message: fmt.Sprintf("Cannot convert value %q to type %q.", toString(v), typeName),
	}
}

// Control flow travels up the Go call stack as errors. None of these ever
// escape Session.Evaluate.

type breakSignal struct{ label string }

func (*breakSignal) Error() string { return "break outside of a loop" }

type continueSignal struct{ label string }

func (*continueSignal) Error() string { return "continue outside of a loop" }

type returnSignal struct{}

func (*returnSignal) Error() string { return "return outside of a script block" }

type exitSignal struct{ code int }

func (*exitSignal) Error() string { return "exit" }

// isControlFlow reports whether err is a loop or script control signal
// rather than a failure.
func isControlFlow(err error) bool {
	switch err.(type) {
	case *breakSignal, *continueSignal, *returnSignal, *exitSignal:
		return true
	}
	return false
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/compiler"
	"github.com/roach88/gall/internal/config"
	"github.com/roach88/gall/internal/host"
	"github.com/roach88/gall/internal/script"
	"github.com/roach88/gall/internal/search"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The script was rejected (syntax, unsupported construct, evaluation failure)
	ExitCommandError = 2 // Command error (bad config, unreadable file, database failure)
)

// Error codes reported in CLIError.Code. Compiler codes (E2xx) are passed
// through unchanged.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeConfig         = "E002" // Configuration file rejected
	ErrCodeCatalog        = "E003" // Catalog could not be opened or queried
	ErrCodeReadFailed     = "E004" // Input file could not be read
	ErrCodeInvalidRequest = "E005" // Conflicting or out-of-range search parameters
	ErrCodeSyntax         = "E210" // Script does not parse
	ErrCodeEvaluation     = "E220" // Folding a constant failed in the script host
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// It writes to ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err through the formatter and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	code, details := classify(err)
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exitCodeFor(code), code, err)
}

// classify maps an error to a CLIError code and the details that locate
// it in the script or file.
func classify(err error) (string, any) {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code, map[string]any{
			"kind":     ce.Kind.String(),
			"fragment": ce.Fragment,
			"offset":   ce.Offset,
		}
	}
	var se *script.SyntaxError
	if errors.As(err, &se) {
		return ErrCodeSyntax, map[string]any{"line": se.Line, "column": se.Col}
	}
	var re *host.RuntimeError
	if errors.As(err, &re) {
		return ErrCodeEvaluation, map[string]any{
			"code":   string(re.Code),
			"offset": re.Extent.Start,
		}
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		if cfgErr.Pos.IsValid() {
			return ErrCodeConfig, map[string]any{
				"file":   cfgErr.Pos.Filename(),
				"line":   cfgErr.Pos.Line(),
				"column": cfgErr.Pos.Column(),
			}
		}
		return ErrCodeConfig, nil
	}
	var readErr *readError
	if errors.As(err, &readErr) {
		return ErrCodeReadFailed, map[string]any{"file": readErr.Path}
	}
	if errors.Is(err, search.ErrConflictingOrder) || errors.Is(err, errInvalidPaging) {
		return ErrCodeInvalidRequest, nil
	}
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, errCatalog) {
		return ErrCodeCatalog, nil
	}
	return ErrCodeGeneric, nil
}

func exitCodeFor(code string) int {
	switch code {
	case compiler.CodeUnsupported, compiler.CodeTypeMismatch, ErrCodeSyntax, ErrCodeEvaluation:
		return ExitFailure
	}
	return ExitCommandError
}

// readError is an input file that could not be opened or decoded.
type readError struct {
	Path string
	Err  error
}

func (e *readError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *readError) Unwrap() error { return e.Err }

var (
	errCatalog       = errors.New("catalog")
	errInvalidPaging = errors.New("skip and take must not be negative")
)

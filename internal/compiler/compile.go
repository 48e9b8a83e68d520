// Package compiler translates filter and sort scripts into typed query
// expressions.
//
// A script such as
//
//	$gall.Author -eq 'urasandesu' -and $gall.Name -match 'Gall'
//
// compiles to the lambda
//
//	gall => ((gall.Author == "urasandesu") AndAlso gall.Name.Contains("Gall"))
//
// Every subtree that does not mention the parameter variable is handed to
// an Evaluator and replaced by its value, so arbitrary constant script
// (method calls, pipelines, conditionals) is allowed anywhere an operand
// is. Subtrees that do mention the parameter must have one of a few
// shapes: property chains, comparisons, -in, -match with a literal
// pattern, and -and/-or over those.
//
// Compilation is synchronous and keeps no state between calls. The only
// shared collaborator is the Evaluator; callers sharing one Evaluator
// between goroutines must make sure it serializes (host.Session does).
package compiler

import (
	"log/slog"
	"reflect"

	"github.com/roach88/gall/internal/queryexpr"
	"github.com/roach88/gall/internal/script"
)

// DefaultParameterName is the variable that stands for the catalog entry.
const DefaultParameterName = "gall"

// Evaluator runs script text that has no free reference to the parameter
// and returns its value. *host.Session implements it.
type Evaluator interface {
	Evaluate(source string) (any, error)
}

// Option configures a compile call.
type Option func(*options)

type options struct {
	paramName string
	logger    *slog.Logger
}

// WithParameterName sets the parameter variable, without the '$'. The
// name is matched ignoring case.
//
// Default: "gall"
func WithParameterName(name string) Option {
	return func(o *options) {
		o.paramName = name
	}
}

// WithLogger sets the logger for fold decisions (Debug level).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// CompilePredicate compiles source to a lambda from T to bool.
func CompilePredicate[T any](ev Evaluator, source string, opts ...Option) (*queryexpr.Lambda, error) {
	return Compile(ev, source, reflect.TypeFor[T](), queryexpr.BoolType, opts...)
}

// CompileSelector compiles source to a lambda from T to any, for use as a
// sort key.
func CompileSelector[T any](ev Evaluator, source string, opts ...Option) (*queryexpr.Lambda, error) {
	return Compile(ev, source, reflect.TypeFor[T](), queryexpr.NullType, opts...)
}

// Compile parses source and compiles it to a lambda taking paramType and
// returning resultType.
//
// Malformed source returns the parser's *script.SyntaxError. A script
// outside the accepted subset returns a *CompileError. An evaluator error
// while folding is returned unchanged.
func Compile(ev Evaluator, source string, paramType, resultType reflect.Type, opts ...Option) (*queryexpr.Lambda, error) {
	sb, err := script.Parse(source)
	if err != nil {
		return nil, err
	}
	return CompileScript(ev, sb, paramType, resultType, opts...)
}

// CompileScript compiles an already parsed script. sb is only read.
func CompileScript(ev Evaluator, sb *script.ScriptBlock, paramType, resultType reflect.Type, opts ...Option) (*queryexpr.Lambda, error) {
	o := options{paramName: DefaultParameterName, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c := newCompiler(ev, paramType, o)
	return c.scriptBlock(sb, resultType)
}

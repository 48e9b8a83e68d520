// Package host evaluates script text. It is the oracle the compiler uses to
// fold constant subtrees: anything a user can write without referring to
// the query parameter is run here and replaced by its value.
package host

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/gall/internal/script"
)

// DefaultMaxSteps is the default number of loop iterations and command
// invocations one evaluation may run before it fails.
const DefaultMaxSteps = 1_000_000

// Session is a script runtime with its own global scope.
//
// Evaluations are serialized: a Session may be shared between goroutines,
// but only one Evaluate runs at a time. Each evaluation gets a fresh child
// scope, so assignments made by one never leak into the next.
type Session struct {
	mu       sync.Mutex
	culture  *Culture
	logger   *slog.Logger
	clock    func() time.Time
	global   *scope
	maxSteps int

	collators map[bool]*collate.Collator
	regexps   map[string]*regexp.Regexp
}

// Option configures a Session.
type Option func(*Session)

// WithCulture sets the culture used by ToString(), -f and culture-aware
// string ordering. Unsupported cultures fall back to the closest match.
func WithCulture(tag language.Tag) Option {
	return func(s *Session) {
		s.culture = LookupCulture(tag)
	}
}

// WithLogger sets the logger. Evaluations are logged at Debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithClock sets the time source behind Get-Date and [datetime]::Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithVariables binds global variables.
func WithVariables(vars map[string]any) Option {
	return func(s *Session) {
		for name, v := range vars {
			s.global.set(name, v)
		}
	}
}

// WithMaxSteps sets the per-evaluation step quota.
//
// Default: 1,000,000 steps (DefaultMaxSteps)
func WithMaxSteps(n int) Option {
	return func(s *Session) {
		s.maxSteps = n
	}
}

// New creates a Session. Without options it uses the en-US culture, the
// wall clock and slog.Default().
func New(opts ...Option) *Session {
	s := &Session{
		culture:   cultures[0],
		logger:    slog.Default(),
		clock:     time.Now,
		global:    newScope(nil),
		maxSteps:  DefaultMaxSteps,
		collators: make(map[bool]*collate.Collator),
		regexps:   make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Culture returns the session culture.
func (s *Session) Culture() *Culture { return s.culture }

// SetVariable binds a global variable, visible to every later evaluation.
func (s *Session) SetVariable(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global.set(name, v)
}

// Variable returns a global variable.
func (s *Session) Variable(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global.get(strings.ToLower(name))
}

// Evaluate parses and runs source. The result follows the pipeline output
// rules: no output is script.AutomationNull, a single output is that value,
// and several outputs are a []any.
//
// Malformed text returns a *script.SyntaxError; failures while running
// return a *RuntimeError.
func (s *Session) Evaluate(source string) (any, error) {
	sb, err := script.Parse(source)
	if err != nil {
		s.logger.Debug("evaluate: parse failed", "source", source, "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := &runner{s: s, scope: newScope(s.global), steps: new(int)}
	r.root = r.scope
	out, err := r.invokeBlock(sb, nil, invocation{dot: true})
	// exit, and a break or continue with no enclosing loop, stop the script
	// without failing it.
	if err != nil && !isControlFlow(err) {
		s.logger.Debug("evaluate: failed", "source", source, "error", err)
		return nil, err
	}
	result := collapse(out)
	s.logger.Debug("evaluate", "source", source, "outputs", len(out))
	return result, nil
}

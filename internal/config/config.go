package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/language"
)

//go:embed schema.cue
var schemaSrc string

// DefaultFile is the configuration file the CLI reads when --config is not
// given.
const DefaultFile = "gall.cue"

// Config is the resolved configuration.
type Config struct {
	Database  string         `json:"database"`
	Parameter string         `json:"parameter"`
	Culture   string         `json:"culture"`
	Format    string         `json:"format"`
	Verbose   bool           `json:"verbose"`
	Variables map[string]any `json:"-"`
}

// CultureTag returns Culture as a language tag.
func (c *Config) CultureTag() language.Tag {
	return language.Make(c.Culture)
}

// Error is a configuration error, with the CUE position when one is known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := Parse(nil, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: schema defaults do not resolve: %v", err))
	}
	return cfg
}

// Load reads and resolves the file at path. A missing file is not an
// error when allowMissing is set; the defaults are returned instead.
func Load(path string, allowMissing bool) (*Config, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && allowMissing {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse resolves CUE source against the schema. filename is used in error
// positions.
func Parse(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{}
	if err := v.Decode(cfg); err != nil {
		return nil, formatCUEError(err)
	}
	vars, err := decodeVariables(v.LookupPath(cue.ParsePath("variables")))
	if err != nil {
		return nil, err
	}
	cfg.Variables = vars
	return cfg, nil
}

// decodeVariables converts each variable to the value the script host
// uses for it: int for integers, float64 for other numbers, []any for
// lists.
func decodeVariables(v cue.Value) (map[string]any, error) {
	vars := make(map[string]any)
	if !v.Exists() {
		return vars, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		val, err := decodeScalar(iter.Value())
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("variable %s: %v", iter.Selector(), err), Pos: iter.Value().Pos()}
		}
		vars[iter.Selector().Unquoted()] = val
	}
	return vars, nil
}

func decodeScalar(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		n, err := v.Int64()
		return int(n), err
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, err
		}
		var out []any
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value %v", v)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

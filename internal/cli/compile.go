package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/compiler"
	"github.com/roach88/gall/internal/queryexpr"
	"github.com/roach88/gall/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Selector   bool
	Descending bool
}

// CompilationResult describes one compiled script.
type CompilationResult struct {
	Lambda      string          `json:"lambda"`
	Canonical   json.RawMessage `json:"canonical"`
	Fingerprint string          `json:"fingerprint"`
	SQL         string          `json:"sql"`
	Params      []any           `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <script>",
		Short: "Compile a filter or sort script and show the query",
		Long: `Compile a script against the catalog entry type without running it.

Prints the typed lambda, its canonical JSON form with its fingerprint,
and the SQL the catalog would run. Scripts compile as filters unless --selector is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Selector, "selector", "s", false, "compile as a sort key instead of a filter")
	cmd.Flags().BoolVar(&opts.Descending, "descending", false, "sort descending (with --selector)")

	return cmd
}

func runCompile(opts *CompileOptions, source string, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	result, err := compileScript(e, source, opts.Selector, opts.Descending)
	if err != nil {
		return e.formatter.Fail(err)
	}

	if e.formatter.Format == "json" {
		return e.formatter.Success(result)
	}
	w := e.formatter.Writer
	fmt.Fprintf(w, "lambda:    %s\n", result.Lambda)
	fmt.Fprintf(w, "canonical: %s\n", result.Canonical)
	fmt.Fprintf(w, "hash:      %s\n", result.Fingerprint)
	fmt.Fprintf(w, "sql:       %s\n", result.SQL)
	fmt.Fprintf(w, "params:    %v\n", result.Params)
	return nil
}

func compileScript(e *env, source string, selector, descending bool) (*CompilationResult, error) {
	copts := []compiler.Option{
		compiler.WithParameterName(e.cfg.Parameter),
		compiler.WithLogger(e.logger),
	}

	var (
		l     *queryexpr.Lambda
		query querysql.SearchQuery
		err   error
	)
	if selector {
		l, err = compiler.CompileSelector[catalog.Entry](e.session(), source, copts...)
		query = querysql.SearchQuery{OrderBy: l, Descending: descending}
	} else {
		l, err = compiler.CompilePredicate[catalog.Entry](e.session(), source, copts...)
		query = querysql.SearchQuery{Where: l}
	}
	if err != nil {
		return nil, err
	}

	canonical, err := queryexpr.MarshalCanonical(l)
	if err != nil {
		return nil, err
	}
	fingerprint, err := queryexpr.Fingerprint(l)
	if err != nil {
		return nil, err
	}
	sql, params, err := catalog.NewSQLCompiler().CompileSearch(query)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = []any{}
	}
	return &CompilationResult{
		Lambda:      l.String(),
		Canonical:   canonical,
		Fingerprint: fingerprint,
		SQL:         sql,
		Params:      params,
	}, nil
}

package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/config"
	"github.com/roach88/gall/internal/host"
	"github.com/roach88/gall/internal/search"
)

// RootOptions holds global flags for all commands. Empty values fall back
// to the configuration file.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
	Format     string // "json" | "text" | "" for the configured format

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gall CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gall",
		Short: "gall - search the extension catalog with script filters",
		Long: `Search the extension catalog with filter and sort scripts.

Scripts are compiled to a typed query: references to the catalog entry
become property accesses, everything else is evaluated once as a constant.
The query then runs as SQL against the local catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "" && !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "configuration file (default "+config.DefaultFile+")")
	cmd.PersistentFlags().StringVar(&opts.Database, "database", "", "catalog database path (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "", "output format (json|text)")

	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig loads the configuration once and applies the flag overrides.
// Without --config a missing gall.cue is not an error.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	path, allowMissing := o.ConfigPath, false
	if path == "" {
		path, allowMissing = config.DefaultFile, true
	}
	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Format != "" {
		cfg.Format = o.Format
	}
	if !isValidFormat(cfg.Format) {
		return nil, fmt.Errorf("invalid format %q: must be one of %v", cfg.Format, ValidFormats)
	}
	cfg.Verbose = cfg.Verbose || o.Verbose
	o.cfg = cfg
	return cfg, nil
}

// env is what every command needs once the configuration is resolved.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	formatter *OutputFormatter
}

// setup resolves the configuration and builds the formatter and logger.
// A configuration error is reported in the format the flags asked for.
func (o *RootOptions) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		f := &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
		if !isValidFormat(f.Format) {
			f.Format = "text"
		}
		return nil, f.Fail(err)
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	return &env{
		cfg:    cfg,
		logger: logger,
		formatter: &OutputFormatter{
			Format:    cfg.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   cfg.Verbose,
		},
	}, nil
}

// session creates the script host used for folding.
func (e *env) session() *host.Session {
	return host.New(
		host.WithCulture(e.cfg.CultureTag()),
		host.WithVariables(e.cfg.Variables),
		host.WithLogger(e.logger),
	)
}

func (e *env) openCatalog() (*catalog.Catalog, error) {
	e.formatter.VerboseLog("Opening catalog %s", e.cfg.Database)
	cat, err := catalog.Open(e.cfg.Database, catalog.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCatalog, err)
	}
	return cat, nil
}

func (e *env) searchService(cat search.Querier) *search.Service {
	return search.New(cat, e.session(),
		search.WithParameterName(e.cfg.Parameter),
		search.WithLogger(e.logger),
	)
}

func (e *env) closeCatalog(cat *catalog.Catalog) {
	if err := cat.Close(); err != nil {
		e.logger.Error("error closing catalog", "error", err)
	}
}

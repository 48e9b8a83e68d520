package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gall/internal/catalog"
)

// ImportResult is the JSON payload of an import.
type ImportResult struct {
	Database string         `json:"database"`
	Imported map[string]int `json:"imported"`
	Total    int            `json:"total"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.yaml>...",
		Short: "Import catalog entries from YAML",
		Long: `Import catalog entries from YAML files.

Each file holds one or more documents with an "extensions" list. Entries
with an id replace the stored entry; entries without one are added.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runImport(opts *RootOptions, files []string, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	cat, err := e.openCatalog()
	if err != nil {
		return e.formatter.Fail(err)
	}
	defer e.closeCatalog(cat)

	result := ImportResult{Database: e.cfg.Database, Imported: make(map[string]int)}
	for _, path := range files {
		n, err := importFile(cmd, cat, path)
		if err != nil {
			return e.formatter.Fail(err)
		}
		e.formatter.VerboseLog("Imported %d entry(ies) from %s", n, path)
		result.Imported[path] = n
		result.Total += n
	}

	if e.formatter.Format == "json" {
		return e.formatter.Success(result)
	}
	fmt.Fprintf(e.formatter.Writer, "✓ Imported %d entry(ies) into %s\n", result.Total, result.Database)
	return nil
}

func importFile(cmd *cobra.Command, cat *catalog.Catalog, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &readError{Path: path, Err: err}
	}
	defer f.Close()

	n, err := cat.ImportYAML(cmd.Context(), f)
	if err != nil {
		return 0, &readError{Path: path, Err: err}
	}
	return n, nil
}

package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/search"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Where             string
	OrderBy           string
	OrderByDescending string
	Skip              int
	Take              int
	ShowSQL           bool
}

// SearchResult is the JSON payload of a search.
type SearchResult struct {
	Count   int             `json:"count"`
	Entries []catalog.Entry `json:"entries"`
	SQL     string          `json:"sql,omitempty"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search [search-text...]",
		Short: "Search the catalog",
		Long: `Search the catalog for extensions.

Free text matches the name or description, ignoring ASCII case. --where
takes a filter script and --order-by / --order-by-descending a sort script;
both refer to the entry through the configured parameter ($gall by default):

  gall search --where '$gall.Author -eq "urasandesu"' --order-by-descending '$gall.Ranking'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter script")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "sort script, ascending")
	cmd.Flags().StringVar(&opts.OrderByDescending, "order-by-descending", "", "sort script, descending")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "number of results to skip")
	cmd.Flags().IntVar(&opts.Take, "take", 0, "maximum number of results")
	cmd.Flags().BoolVar(&opts.ShowSQL, "sql", false, "print the generated SQL")
	cmd.MarkFlagsMutuallyExclusive("order-by", "order-by-descending")

	return cmd
}

func runSearch(opts *SearchOptions, text string, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	req := search.Request{
		SearchText:        text,
		Where:             opts.Where,
		OrderBy:           opts.OrderBy,
		OrderByDescending: opts.OrderByDescending,
	}
	if cmd.Flags().Changed("skip") {
		req.Skip = &opts.Skip
	}
	if cmd.Flags().Changed("take") {
		req.Take = &opts.Take
	}
	if opts.Skip < 0 || opts.Take < 0 {
		return e.formatter.Fail(errInvalidPaging)
	}

	cat, err := e.openCatalog()
	if err != nil {
		return e.formatter.Fail(err)
	}
	defer e.closeCatalog(cat)

	svc := e.searchService(cat)
	plan, err := svc.Plan(req)
	if err != nil {
		return e.formatter.Fail(err)
	}
	e.formatter.VerboseLog("SQL: %s", plan.SQL)

	entries, err := cat.Query(cmd.Context(), plan.SQL, plan.Params...)
	if err != nil {
		return e.formatter.Fail(fmt.Errorf("%w: %v", errCatalog, err))
	}

	result := SearchResult{Count: len(entries), Entries: entries}
	if opts.ShowSQL {
		result.SQL = plan.SQL
	}
	if e.formatter.Format == "json" {
		return e.formatter.Success(result)
	}
	writeEntries(e.formatter.Writer, result)
	return nil
}

// writeEntries prints entries as an aligned table followed by a count.
func writeEntries(w io.Writer, result SearchResult) {
	if result.SQL != "" {
		fmt.Fprintf(w, "%s\n\n", result.SQL)
	}
	if len(result.Entries) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tAUTHOR\tVERSION\tRANKING\tDOWNLOADS\tINSTALLED")
		for _, e := range result.Entries {
			installed := ""
			if e.ExtensionIsInstalled {
				installed = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%s\n",
				e.Name, e.Author, e.NonNullVsixVersion, e.Ranking, e.DownloadCount, installed)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d result(s)\n", result.Count)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/search"
)

const shellPrompt = "gall> "

// lineReader is the part of *liner.State the shell loop uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

var shellCommands = []string{".desc", ".exit", ".help", ".order", ".quit", ".reset", ".run", ".show", ".skip", ".sql", ".take", ".text"}

const shellHelp = `Type a filter script to search, for example:
  $gall.Author -eq 'urasandesu' -and $gall.Ranking -ge 4

Commands:
  .order <script>   sort ascending (no script clears the sort)
  .desc <script>    sort descending
  .text <words>     free text over name and description
  .skip <n>         skip results (no n clears)
  .take <n>         limit results (no n clears)
  .run              run the current search again
  .sql              show the SQL of the current search
  .show             show the current search
  .reset            clear every setting
  .quit             leave the shell`

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Search the catalog interactively",
		Long: `Start an interactive prompt. Each line is a filter script; the
sort, paging and free text set with dot commands apply to every search.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(rootOpts, cmd)
		},
	}
	return cmd
}

func runShell(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	cat, err := e.openCatalog()
	if err != nil {
		return e.formatter.Fail(err)
	}
	defer e.closeCatalog(cat)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completer(e.cfg.Parameter, catalog.Columns()))

	fmt.Fprintln(e.formatter.Writer, "Type '.help' for commands.")
	sh := &shell{svc: e.searchService(cat), formatter: e.formatter}
	return sh.run(cmd.Context(), line)
}

// shell holds the search settings that persist between lines.
type shell struct {
	svc       *search.Service
	formatter *OutputFormatter
	req       search.Request
}

// run reads lines until EOF, an aborted prompt or .quit.
func (s *shell) run(ctx context.Context, lr lineReader) error {
	for {
		input, err := lr.Prompt(shellPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(s.formatter.Writer)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		lr.AppendHistory(input)
		if s.execute(ctx, input) {
			return nil
		}
	}
}

// execute handles one line and reports whether the shell should stop.
func (s *shell) execute(ctx context.Context, input string) bool {
	if !strings.HasPrefix(input, ".") {
		s.req.Where = input
		s.search(ctx)
		return false
	}

	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	w := s.formatter.Writer
	switch name {
	case ".quit", ".exit":
		return true
	case ".help":
		fmt.Fprintln(w, shellHelp)
	case ".order":
		s.req.OrderBy, s.req.OrderByDescending = arg, ""
	case ".desc":
		s.req.OrderBy, s.req.OrderByDescending = "", arg
	case ".text":
		s.req.SearchText = arg
	case ".skip":
		s.setPaging(&s.req.Skip, arg)
	case ".take":
		s.setPaging(&s.req.Take, arg)
	case ".run":
		s.search(ctx)
	case ".sql":
		plan, err := s.svc.Plan(s.req)
		if err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintln(w, plan.SQL)
	case ".show":
		s.show()
	case ".reset":
		s.req = search.Request{}
	default:
		_ = s.formatter.Error(ErrCodeGeneric, fmt.Sprintf("unknown command %s, try .help", name), nil)
	}
	return false
}

func (s *shell) setPaging(dst **int, arg string) {
	if arg == "" {
		*dst = nil
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		s.report(fmt.Errorf("%w: %q", errInvalidPaging, arg))
		return
	}
	*dst = &n
}

func (s *shell) search(ctx context.Context) {
	entries, err := s.svc.Search(ctx, s.req)
	if err != nil {
		s.report(err)
		return
	}
	result := SearchResult{Count: len(entries), Entries: entries}
	if s.formatter.Format == "json" {
		_ = s.formatter.Success(result)
		return
	}
	writeEntries(s.formatter.Writer, result)
}

func (s *shell) report(err error) {
	code, details := classify(err)
	_ = s.formatter.Error(code, err.Error(), details)
}

func (s *shell) show() {
	w := s.formatter.Writer
	show := func(label, v string) {
		if v != "" {
			fmt.Fprintf(w, "%-6s %s\n", label, v)
		}
	}
	showInt := func(label string, v *int) {
		if v != nil {
			show(label, strconv.Itoa(*v))
		}
	}
	show("where", s.req.Where)
	show("order", s.req.OrderBy)
	show("desc", s.req.OrderByDescending)
	show("text", s.req.SearchText)
	showInt("skip", s.req.Skip)
	showInt("take", s.req.Take)
}

// completer completes dot commands and the properties of the entry
// after "$<param>.".
func completer(param string, columns map[string]string) liner.Completer {
	props := make([]string, 0, len(columns))
	for p := range columns {
		props = append(props, p)
	}
	slices.Sort(props)
	marker := "$" + strings.ToLower(param) + "."

	return func(line string) []string {
		if strings.HasPrefix(line, ".") && !strings.Contains(line, " ") {
			var out []string
			for _, c := range shellCommands {
				if strings.HasPrefix(c, line) {
					out = append(out, c)
				}
			}
			return out
		}

		i := strings.LastIndex(strings.ToLower(line), marker)
		if i < 0 {
			return nil
		}
		head, prefix := line[:i+len(marker)], line[i+len(marker):]
		var out []string
		for _, p := range props {
			if strings.HasPrefix(strings.ToLower(p), strings.ToLower(prefix)) {
				out = append(out, head+p)
			}
		}
		return out
	}
}

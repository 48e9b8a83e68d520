package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/config"
)

// scriptedReader replays lines, then returns end.
type scriptedReader struct {
	lines   []string
	end     error
	history []string
}

func (r *scriptedReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		return "", r.end
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) AppendHistory(item string) {
	r.history = append(r.history, item)
}

func newTestShell(t *testing.T, format string) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Database = seededDatabase(t)
	buf := &bytes.Buffer{}
	e := &env{
		cfg:       cfg,
		logger:    slog.New(slog.DiscardHandler),
		formatter: &OutputFormatter{Format: format, Writer: buf},
	}
	cat, err := e.openCatalog()
	require.NoError(t, err)
	t.Cleanup(func() { e.closeCatalog(cat) })
	return &shell{svc: e.searchService(cat), formatter: e.formatter}, buf
}

func TestShell_FilterLines(t *testing.T) {
	sh, buf := newTestShell(t, "text")
	r := &scriptedReader{
		lines: []string{"", "  $gall.Author -eq 'Microsoft'  ", ".quit", "$gall.Priority -eq 2"},
		end:   io.EOF,
	}

	require.NoError(t, sh.run(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "NuGet Package Manager")
	assert.Contains(t, out, "Productivity Power Tools")
	assert.Contains(t, out, "2 result(s)")
	assert.NotContains(t, out, "Web Essentials", ".quit stops before the last line")
	assert.Equal(t, []string{"$gall.Author -eq 'Microsoft'", ".quit"}, r.history)
}

func TestShell_StopsOnEOFAndAbort(t *testing.T) {
	for _, end := range []error{io.EOF, liner.ErrPromptAborted} {
		sh, _ := newTestShell(t, "text")
		assert.NoError(t, sh.run(context.Background(), &scriptedReader{end: end}))
	}

	sh, _ := newTestShell(t, "text")
	err := sh.run(context.Background(), &scriptedReader{end: errors.New("tty gone")})
	assert.ErrorContains(t, err, "read input: tty gone")
}

func TestShell_SettingsPersist(t *testing.T) {
	sh, buf := newTestShell(t, "json")
	ctx := context.Background()

	for _, line := range []string{".desc $gall.DownloadCount", ".take 2", ".text tools"} {
		assert.False(t, sh.execute(ctx, line))
	}
	assert.Empty(t, buf.String(), "settings alone do not search")

	sh.execute(ctx, "$gall.Author -eq 'Microsoft'")
	var result SearchResult
	decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, []string{"NuGet Package Manager", "Productivity Power Tools"}, entryNames(result))

	buf.Reset()
	sh.execute(ctx, ".order $gall.Name")
	sh.execute(ctx, ".take")
	sh.execute(ctx, ".text")
	sh.execute(ctx, ".run")
	result = SearchResult{}
	decodeResponse(t, buf.Bytes(), &result)
	assert.Equal(t, []string{"NuGet Package Manager", "Productivity Power Tools"}, entryNames(result))
	assert.Empty(t, sh.req.OrderByDescending)

	sh.execute(ctx, ".reset")
	assert.Equal(t, "", sh.req.Where)
	assert.Nil(t, sh.req.Take)
}

func TestShell_Commands(t *testing.T) {
	sh, buf := newTestShell(t, "text")
	ctx := context.Background()

	sh.execute(ctx, ".help")
	assert.Contains(t, buf.String(), ".order <script>")

	buf.Reset()
	sh.execute(ctx, ".skip 1")
	sh.execute(ctx, ".sql")
	assert.Contains(t, buf.String(), "LIMIT ? OFFSET ?")

	buf.Reset()
	sh.execute(ctx, ".order $gall.Ranking")
	sh.execute(ctx, ".show")
	assert.Equal(t, "order  $gall.Ranking\nskip   1\n", buf.String())

	assert.True(t, sh.execute(ctx, ".exit"))
}

func TestShell_ErrorsDoNotStop(t *testing.T) {
	sh, buf := newTestShell(t, "text")
	ctx := context.Background()

	assert.False(t, sh.execute(ctx, "$gall.Name -like 'G*'"))
	assert.Contains(t, buf.String(), "Error [E201]")

	buf.Reset()
	sh.execute(ctx, ".take many")
	assert.Contains(t, buf.String(), "Error ["+ErrCodeInvalidRequest+"]")
	assert.Nil(t, sh.req.Take)

	buf.Reset()
	sh.execute(ctx, ".bogus")
	assert.Contains(t, buf.String(), "unknown command .bogus")
}

func TestCompleter(t *testing.T) {
	complete := completer("gall", catalog.Columns())

	assert.Equal(t, []string{".quit"}, complete(".q"))
	assert.ElementsMatch(t, []string{".show", ".skip", ".sql"}, complete(".s"))
	assert.Equal(t, []string{"$gall.Author -eq 'x' -and $GALL.Ranking", "$gall.Author -eq 'x' -and $GALL.RatingsCount"},
		complete("$gall.Author -eq 'x' -and $GALL.ra"))
	assert.Contains(t, complete("$gall."), "$gall.NonNullVsixVersion")
	assert.Empty(t, complete("$other."))
	assert.Empty(t, complete("$gall.Name -eq 'x'"))
}

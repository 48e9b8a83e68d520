package search

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/catalog"
	"github.com/roach88/gall/internal/compiler"
	"github.com/roach88/gall/internal/host"
	"github.com/roach88/gall/internal/script"
	"github.com/roach88/gall/internal/testutil"
)

var discard = slog.New(slog.DiscardHandler)

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"),
		catalog.WithIDGenerator(testutil.NewSequentialIDs()),
		catalog.WithLogger(discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	f, err := os.Open("../catalog/testdata/extensions.yaml")
	require.NoError(t, err)
	defer f.Close()
	_, err = cat.ImportYAML(context.Background(), f)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(discard)}, opts...)
	return New(cat, host.New(host.WithLogger(discard)), opts...)
}

func names(entries []catalog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func intPtr(n int) *int { return &n }

func TestSearch(t *testing.T) {
	svc := newService(t)

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "everything",
			req:  Request{},
			want: []string{"Prig", "Gall", "NuGet Package Manager", "Productivity Power Tools", "Web Essentials"},
		},
		{
			name: "where",
			req:  Request{Where: "$gall.Author -eq 'urasandesu' -and $gall.Name -match 'Gall'"},
			want: []string{"Gall"},
		},
		{
			name: "search text",
			req:  Request{SearchText: "package"},
			want: []string{"Gall", "NuGet Package Manager"},
		},
		{
			name: "order by",
			req:  Request{OrderBy: "$gall.Ranking"},
			want: []string{"NuGet Package Manager", "Gall", "Prig", "Productivity Power Tools", "Web Essentials"},
		},
		{
			name: "order by descending with paging",
			req:  Request{OrderByDescending: "$gall.DownloadCount", Skip: intPtr(1), Take: intPtr(2)},
			want: []string{"NuGet Package Manager", "Productivity Power Tools"},
		},
		{
			name: "all parameters",
			req: Request{
				SearchText:        "tools",
				Where:             "$gall.Author -eq 'Microsoft'",
				OrderByDescending: "$gall.Ranking",
				Take:              intPtr(10),
			},
			want: []string{"Productivity Power Tools", "NuGet Package Manager"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := svc.Search(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(entries))
		})
	}
}

func TestSearch_ConflictingOrder(t *testing.T) {
	svc := newService(t)

	_, err := svc.Search(context.Background(), Request{OrderBy: "$gall.Name", OrderByDescending: "$gall.Name"})
	assert.ErrorIs(t, err, ErrConflictingOrder)
}

func TestSearch_CompileErrorsPassThrough(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Search(ctx, Request{Where: "$$$gall.Author -eq 'urasandesu'"})
	require.Error(t, err)
	var se *script.SyntaxError
	assert.ErrorAs(t, err, &se)

	_, err = svc.Search(ctx, Request{Where: "$gall.Name -like 'G*'"})
	assert.True(t, compiler.IsUnsupported(err))

	_, err = svc.Search(ctx, Request{OrderBy: "$gall.Missing"})
	assert.True(t, compiler.IsTypeMismatch(err))

	_, err = svc.Search(ctx, Request{Where: "$gall.Name -eq $(throw 'no')"})
	var re *host.RuntimeError
	assert.ErrorAs(t, err, &re)
}

func TestSearch_NegativeTake(t *testing.T) {
	svc := newService(t)

	_, err := svc.Search(context.Background(), Request{Take: intPtr(-1)})
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	svc := newService(t, WithParameterName("ext"))

	p, err := svc.Plan(Request{Where: "$ext.Priority -eq 2", OrderByDescending: "$ext.Name"})
	require.NoError(t, err)
	assert.Equal(t, "ext => (ext.Priority == 2)", p.Where.String())
	assert.Equal(t, "ext => Convert(ext.Name, any)", p.OrderBy.String())
	assert.True(t, p.Descending)
	assert.Contains(t, p.SQL, "WHERE priority = ?")
	assert.Contains(t, p.SQL, "ORDER BY name DESC, id COLLATE BINARY ASC")
	assert.Equal(t, []any{int64(2)}, p.Params)
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, string, ...any) ([]catalog.Entry, error) {
	return nil, errors.New("disk on fire")
}

func TestSearch_QueryErrorWrapped(t *testing.T) {
	svc := New(failingQuerier{}, host.New(host.WithLogger(discard)), WithLogger(discard))

	_, err := svc.Search(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: disk on fire")
}

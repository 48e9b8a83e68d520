package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gall/internal/script"
	"github.com/roach88/gall/internal/testutil"
)

// pragma reads the current value of a connection pragma.
func pragma(t *testing.T, c *Catalog, name string) string {
	t.Helper()
	var value string
	require.NoError(t, c.DB().QueryRow("PRAGMA "+name).Scan(&value))
	return value
}

// createTestCatalog creates a new catalog in a temporary directory.
func createTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(path,
		WithIDGenerator(testutil.NewSequentialIDs()),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// loadFixtures imports testdata/extensions.yaml. IDs are testutil.ID(1)
// through testutil.ID(5) in file order.
func loadFixtures(t *testing.T, c *Catalog) {
	t.Helper()
	f, err := os.Open("testdata/extensions.yaml")
	require.NoError(t, err)
	defer f.Close()

	n, err := c.ImportYAML(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		c, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)

		assert.Equal(t, strconv.Itoa(len(migrations)), pragma(t, c, "user_version"))
		require.NoError(t, c.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	c := createTestCatalog(t)

	assert.Equal(t, "wal", pragma(t, c, "journal_mode"))
	assert.Equal(t, "1", pragma(t, c, "synchronous"))
	assert.Equal(t, "5000", pragma(t, c, "busy_timeout"))
}

func TestOpen_CaseSensitiveLike(t *testing.T) {
	c := createTestCatalog(t)

	var n int
	require.NoError(t, c.DB().QueryRow(`SELECT 'Gall' LIKE 'gall'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpen_MigrationIndexes(t *testing.T) {
	c := createTestCatalog(t)

	for _, want := range []string{"idx_extensions_author", "idx_extensions_downloads"} {
		var name string
		err := c.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, want).Scan(&name)
		require.NoError(t, err, want)
		assert.Equal(t, want, name)
	}
}

func TestOpen_MigratesOlderDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	c, err := Open(path)
	require.NoError(t, err)
	_, err = c.DB().Exec(`DROP INDEX idx_extensions_downloads`)
	require.NoError(t, err)
	_, err = c.DB().Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "2", pragma(t, c, "user_version"))

	var n int
	require.NoError(t, c.DB().QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'idx_extensions_downloads'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestClose_NilDB(t *testing.T) {
	var c Catalog
	assert.NoError(t, c.Close())
}

func sampleEntry() Entry {
	return Entry{
		Name:                 "Prig",
		Author:               "urasandesu",
		Description:          "test indirections",
		Ranking:              4.5,
		RatingsCount:         12,
		DownloadCount:        5963,
		SizeInBytes:          1 << 20,
		LastModified:         time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC),
		NonNullVsixVersion:   script.MustParseVersion("2.3.1"),
		CategoryID:           uuid.MustParse("3a0e8a4c-52f1-4b5e-9d3a-6f1c2b7e8d90"),
		Priority:             1,
		ExtensionIsInstalled: true,
	}
}

func TestPut_AssignsIDsAndRoundTrips(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	first, second := sampleEntry(), sampleEntry()
	second.Name = "Gall"
	second.ExtensionIsInstalled = false

	put, err := c.Put(ctx, first, second)
	require.NoError(t, err)
	require.Len(t, put, 2)
	assert.Equal(t, testutil.ID(1), put[0].ID)
	assert.Equal(t, testutil.ID(2), put[1].ID)

	got, err := c.Get(ctx, testutil.ID(1))
	require.NoError(t, err)
	assert.True(t, got.LastModified.Equal(first.LastModified))
	got.LastModified = first.LastModified
	first.ID = testutil.ID(1)
	assert.Equal(t, first, got)

	got, err = c.Get(ctx, testutil.ID(2))
	require.NoError(t, err)
	assert.False(t, got.ExtensionIsInstalled)
}

func TestPut_ZeroValues(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	put, err := c.Put(ctx, Entry{Name: "bare", NonNullVsixVersion: script.MustParseVersion("1.0")})
	require.NoError(t, err)

	got, err := c.Get(ctx, put[0].ID)
	require.NoError(t, err)
	assert.True(t, got.LastModified.IsZero())
	assert.Equal(t, uuid.Nil, got.CategoryID)
	assert.Equal(t, "", got.Author)
}

func TestPut_Upserts(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	put, err := c.Put(ctx, sampleEntry())
	require.NoError(t, err)

	updated := put[0]
	updated.Ranking = 1.5
	_, err = c.Put(ctx, updated)
	require.NoError(t, err)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := c.Get(ctx, updated.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Ranking)
}

func TestGet_NotFound(t *testing.T) {
	c := createTestCatalog(t)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	loadFixtures(t, c)

	require.NoError(t, c.Delete(ctx, testutil.ID(1)))
	require.NoError(t, c.Delete(ctx, "missing"))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestImportYAML(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	loadFixtures(t, c)

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)

	names := make([]string, len(all))
	for i, e := range all {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"Prig", "Gall", "NuGet Package Manager", "Productivity Power Tools", "Web Essentials"}, names)

	assert.Equal(t, script.MustParseVersion("3.4.4.1321"), all[2].NonNullVsixVersion)
	assert.Equal(t, time.Date(2016, 1, 15, 12, 0, 0, 0, time.UTC).UnixNano(), all[1].LastModified.UnixNano())
	assert.Equal(t, "", all[4].Description)
	assert.True(t, all[0].ExtensionIsInstalled)
}

func TestImportYAML_Errors(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	_, err := c.ImportYAML(ctx, strings.NewReader("extensions:\n  - name: x\n    stars: 5\n"))
	assert.Error(t, err)

	_, err = c.ImportYAML(ctx, strings.NewReader("extensions:\n  - name: x\n    vsix_version: one\n"))
	assert.Error(t, err)

	n, err := c.ImportYAML(ctx, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestColumns(t *testing.T) {
	cols := Columns()
	assert.Len(t, cols, 13)
	assert.Equal(t, "installed", cols["ExtensionIsInstalled"])
	assert.Equal(t, "vsix_version", cols["NonNullVsixVersion"])

	for _, col := range columnOrder {
		assert.Contains(t, cols, propertyOf(t, cols, col))
	}
}

func propertyOf(t *testing.T, cols map[string]string, column string) string {
	t.Helper()
	for p, c := range cols {
		if c == column {
			return p
		}
	}
	t.Fatalf("no property for column %s", column)
	return ""
}

func TestQuery_SkipsUnknownColumns(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	loadFixtures(t, c)

	entries, err := c.Query(ctx, "SELECT name, 42 AS answer FROM extensions WHERE author = ? ORDER BY id", "urasandesu")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Prig", entries[0].Name)
	assert.Empty(t, entries[0].ID)

	entries, err = c.Query(ctx, "SELECT id FROM extensions WHERE 0 = 1")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

package catalog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"reflect"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/gall/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Table is the table entries are stored in.
const Table = "extensions"

// migrations run in order on top of schema.sql. Entry i moves a database
// from user_version i to i+1; append only.
var migrations = []struct {
	name string
	stmt string
}{
	{"index author", `CREATE INDEX IF NOT EXISTS idx_extensions_author ON extensions(author)`},
	{"index download_count", `CREATE INDEX IF NOT EXISTS idx_extensions_downloads ON extensions(download_count DESC)`},
}

// connPragmas hold for every statement because the pool keeps exactly one
// connection.
var connPragmas = [][2]string{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"case_sensitive_like", "ON"},
}

// Catalog is the extension catalog, stored in one SQLite file.
type Catalog struct {
	db     *sql.DB
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithIDGenerator sets the generator for the IDs of new entries.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Catalog) {
		c.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// Open opens the catalog at path, creating the file and schema when they
// do not exist yet. ":memory:" gives a private catalog that lives as long as
// the Catalog.
func Open(path string, opts ...Option) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	c := &Catalog{db: db, ids: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Debug("catalog: opened", "path", path, "schema_version", len(migrations))
	return c, nil
}

// prepare configures the connection and brings the schema up to date.
func prepare(db *sql.DB) error {
	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p[0], p[1])); err != nil {
			return fmt.Errorf("pragma %s: %w", p[0], err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrate(db)
}

// migrate applies the migrations past the stored user_version, each in its
// own transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		m := migrations[v]
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// Columns maps Entry property names to column names.
func (c *Catalog) Columns() map[string]string {
	return Columns()
}

// Columns maps Entry property names to column names.
func Columns() map[string]string {
	return querysql.Columns(reflect.TypeFor[Entry]())
}

// NewSQLCompiler returns a querysql compiler for the extensions table.
func NewSQLCompiler() *querysql.SQLCompiler {
	return querysql.NewSQLCompiler(Table, Columns())
}

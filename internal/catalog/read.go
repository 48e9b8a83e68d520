package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("entry not found")

// Get returns the entry with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := c.Query(ctx, "SELECT "+strings.Join(columnOrder, ", ")+" FROM "+Table+" WHERE id = ?", id)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return entries[0], nil
}

// All returns every entry, ordered by id.
func (c *Catalog) All(ctx context.Context) ([]Entry, error) {
	return c.Query(ctx, "SELECT "+strings.Join(columnOrder, ", ")+" FROM "+Table+" ORDER BY id COLLATE BINARY ASC")
}

// Count returns the number of entries.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Query runs a SELECT over the extensions table, typically one built by
// querysql, and returns the rows as entries.
//
// Returns an empty slice (not nil) when no row matches.
func (c *Catalog) Query(ctx context.Context, query string, params ...any) ([]Entry, error) {
	c.logger.Debug("catalog: query", "sql", query, "params", len(params))
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Put inserts or replaces entries in one transaction and returns them with
// their IDs. Entries without an ID get one from the IDGenerator.
func (c *Catalog) Put(ctx context.Context, entries ...Entry) ([]Entry, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put entries: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columnOrder)), ", ")
	updates := make([]string, 0, len(columnOrder)-1)
	for _, col := range columnOrder[1:] {
		updates = append(updates, col+" = excluded."+col)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		Table, strings.Join(columnOrder, ", "), marks, strings.Join(updates, ", "),
	))
	if err != nil {
		return nil, fmt.Errorf("put entries: prepare: %w", err)
	}
	defer stmt.Close()

	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = c.ids.Generate()
		}
		vals, err := e.values()
		if err != nil {
			return nil, fmt.Errorf("put entry %q: %w", e.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return nil, fmt.Errorf("put entry %q: %w", e.Name, err)
		}
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put entries: commit: %w", err)
	}
	c.logger.Debug("catalog: put", "entries", len(out))
	return out, nil
}

// Delete removes the entry with the given ID. Deleting a missing entry is
// not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM "+Table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

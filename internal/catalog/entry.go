package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/gall/internal/querysql"
	"github.com/roach88/gall/internal/script"
)

// Entry is one extension in the catalog.
//
// Field names are the properties a filter script sees on $gall; db tags are
// the columns they lower to.
type Entry struct {
	ID                   string         `db:"id" yaml:"id,omitempty" json:"id"`
	Name                 string         `db:"name" yaml:"name" json:"name"`
	Author               string         `db:"author" yaml:"author" json:"author"`
	Description          string         `db:"description" yaml:"description" json:"description"`
	Ranking              float64        `db:"ranking" yaml:"ranking" json:"ranking"`
	RatingsCount         int            `db:"ratings_count" yaml:"ratings_count" json:"ratings_count"`
	DownloadCount        int            `db:"download_count" yaml:"download_count" json:"download_count"`
	SizeInBytes          int64          `db:"size_in_bytes" yaml:"size_in_bytes" json:"size_in_bytes"`
	LastModified         time.Time      `db:"last_modified" yaml:"last_modified" json:"last_modified"`
	NonNullVsixVersion   script.Version `db:"vsix_version" yaml:"vsix_version" json:"vsix_version"`
	CategoryID           uuid.UUID      `db:"category_id" yaml:"category_id" json:"category_id"`
	Priority             int            `db:"priority" yaml:"priority" json:"priority"`
	ExtensionIsInstalled bool           `db:"installed" yaml:"installed" json:"installed"`
}

// columnOrder is the column list used by every write.
var columnOrder = []string{
	"id", "name", "author", "description", "ranking", "ratings_count",
	"download_count", "size_in_bytes", "last_modified", "vsix_version",
	"category_id", "priority", "installed",
}

// values returns the stored form of e, in columnOrder.
func (e *Entry) values() ([]any, error) {
	raw := []any{
		e.ID, e.Name, e.Author, e.Description, e.Ranking, e.RatingsCount,
		e.DownloadCount, e.SizeInBytes, e.LastModified, e.NonNullVsixVersion,
		e.CategoryID, e.Priority, e.ExtensionIsInstalled,
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		dv, err := querysql.DriverValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columnOrder[i], err)
		}
		out[i] = dv
	}
	return out, nil
}

// dest returns the scan target for each column of e.
func (e *Entry) dest() map[string]any {
	return map[string]any{
		"id":             &e.ID,
		"name":           &e.Name,
		"author":         &e.Author,
		"description":    &e.Description,
		"ranking":        &e.Ranking,
		"ratings_count":  &e.RatingsCount,
		"download_count": &e.DownloadCount,
		"size_in_bytes":  &e.SizeInBytes,
		"last_modified":  unixNanos{&e.LastModified},
		"vsix_version":   &e.NonNullVsixVersion,
		"category_id":    &e.CategoryID,
		"priority":       &e.Priority,
		"installed":      &e.ExtensionIsInstalled,
	}
}

// unixNanos scans a Unix nanosecond column into a UTC time. 0 is the
// zero time.
type unixNanos struct {
	t *time.Time
}

func (u unixNanos) Scan(src any) error {
	n, ok := src.(int64)
	if !ok {
		return fmt.Errorf("cannot scan %T into a time", src)
	}
	if n == 0 {
		*u.t = time.Time{}
		return nil
	}
	*u.t = time.Unix(0, n).UTC()
	return nil
}

// scanEntries reads every row, matching result columns by name. Columns the
// entry does not know are skipped.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		fields := e.dest()
		targets := make([]any, len(cols))
		for i, col := range cols {
			if d, ok := fields[col]; ok {
				targets[i] = d
			} else {
				targets[i] = new(any)
			}
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

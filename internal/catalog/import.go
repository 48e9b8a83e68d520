package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML import format:
//
//	extensions:
//	  - name: Prig
//	    author: urasandesu
//	    ranking: 4.5
//	    last_modified: 2015-01-02T03:04:05Z
//	    vsix_version: 2.3.1
type catalogFile struct {
	Extensions []Entry `yaml:"extensions"`
}

// ImportYAML reads one or more YAML documents of entries and puts them
// all in the catalog. Returns the number of entries imported.
func (c *Catalog) ImportYAML(ctx context.Context, r io.Reader) (int, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var entries []Entry
	for {
		var f catalogFile
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("import: decode yaml: %w", err)
		}
		entries = append(entries, f.Extensions...)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	put, err := c.Put(ctx, entries...)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	return len(put), nil
}

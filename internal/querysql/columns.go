package querysql

import (
	"reflect"
	"strings"
)

// Columns maps the exported fields of struct type t to the column names in
// their `db` tags. Fields tagged `db:"-"` or without a tag are skipped.
func Columns(t reflect.Type) map[string]string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	cols := make(map[string]string)
	if t.Kind() != reflect.Struct {
		return cols
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		cols[f.Name] = tag
	}
	return cols
}

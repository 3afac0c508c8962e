package index

import (
	"path/filepath"
	"strings"
)

// Open returns the table stored at path: a JSON file for ".json" paths,
// SQLite otherwise.
func Open(path string) (Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONTable(path), nil
	}
	return OpenSQLite(path)
}

package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// document is the top-level persisted structure of a JSON store.
type document struct {
	Records   []Record  `json:"records"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JSONTable keeps the whole table in a single JSON file. Writes go to a
// temporary file next to the target and are renamed over it.
type JSONTable struct {
	mu   sync.RWMutex
	path string
}

func NewJSONTable(path string) *JSONTable {
	return &JSONTable{path: path}
}

// load reads the file. A missing file yields a nil document and no error.
func (s *JSONTable) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &doc, nil
}

func (s *JSONTable) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat index file: %w", err)
	}
	return true, nil
}

func (s *JSONTable) Fingerprints(ctx context.Context) (map[string]Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil || doc == nil {
		return map[string]Fingerprint{}, err
	}

	out := make(map[string]Fingerprint, len(doc.Records))
	for _, r := range doc.Records {
		out[r.Path] = Fingerprint{MTime: r.MTime, Failed: r.Failed()}
	}
	return out, nil
}

func (s *JSONTable) ReadAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Records, nil
}

// ReadPaths returns the records for the given paths. The file format has no
// index, so the whole document is decoded and filtered.
func (s *JSONTable) ReadPaths(ctx context.Context, paths []string) ([]Record, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil || doc == nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}

	out := make([]Record, 0, len(paths))
	for _, r := range doc.Records {
		if _, ok := want[r.Path]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Write persists records as the new table.
func (s *JSONTable) Write(ctx context.Context, records []Record, mode WriteMode) error {
	if err := checkDuplicates(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	switch {
	case mode == ModeCreate && exists:
		return fmt.Errorf("create %s: %w", s.path, ErrStoreExists)
	case mode == ModeOverwrite && !exists:
		return fmt.Errorf("overwrite %s: %w", s.path, ErrStoreMissing)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(document{Records: records, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	committed = true
	return nil
}

// UpdatedAt returns the time of the last write, or zero time if unknown.
func (s *JSONTable) UpdatedAt(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil || doc == nil {
		return time.Time{}, err
	}
	return doc.UpdatedAt, nil
}

func (s *JSONTable) Close() error {
	return nil
}

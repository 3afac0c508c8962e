package index

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreExists is returned by a ModeCreate write when a store is already present.
	ErrStoreExists = errors.New("store already exists")
	// ErrStoreMissing is returned by a ModeOverwrite write when there is no store to replace.
	ErrStoreMissing = errors.New("store does not exist")
	// ErrDuplicatePath is returned when a write contains the same path twice.
	ErrDuplicatePath = errors.New("duplicate path")
)

// Record is one persisted image: its path, the mtime it was embedded at and
// its embedding vector.
type Record struct {
	Path   string    `json:"path"`
	MTime  int64     `json:"mtime"`
	Vector []float32 `json:"vector"`
}

// Failed reports whether the record carries the zero sentinel vector.
func (r Record) Failed() bool {
	return IsSentinel(r.Vector)
}

// Fingerprint is the change-detection view of a stored record.
type Fingerprint struct {
	MTime  int64
	Failed bool
}

// WriteMode selects how Write treats an existing store.
type WriteMode int

const (
	// ModeCreate writes a store that must not exist yet.
	ModeCreate WriteMode = iota
	// ModeOverwrite replaces an existing store wholesale.
	ModeOverwrite
)

func (m WriteMode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// Table is the persisted image table keyed by path.
//
// Write replaces the whole table atomically: concurrent readers observe
// either the previous contents or the new contents.
type Table interface {
	Exists(ctx context.Context) (bool, error)
	Fingerprints(ctx context.Context) (map[string]Fingerprint, error)
	ReadAll(ctx context.Context) ([]Record, error)
	ReadPaths(ctx context.Context, paths []string) ([]Record, error)
	Write(ctx context.Context, records []Record, mode WriteMode) error
	UpdatedAt(ctx context.Context) (time.Time, error)
	Close() error
}

// IsSentinel reports whether every component of v is exactly zero.
func IsSentinel(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Sentinel returns the zero vector of the given dimension.
func Sentinel(dim int) []float32 {
	return make([]float32, dim)
}

func checkDuplicates(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := seen[r.Path]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, r.Path)
		}
		seen[r.Path] = struct{}{}
	}
	return nil
}

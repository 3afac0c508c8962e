package indexer

import "sort"

// Diff classifies every path seen in the directory or in the store.
//
// New, Modified and Unchanged together are exactly the current paths;
// Modified, Unchanged and Removed together are exactly the stored paths.
// The four lists are disjoint and sorted.
type Diff struct {
	New       []string
	Modified  []string
	Removed   []string
	Unchanged []string
}

// ComputeDiff compares the scanned state with the stored fingerprints. A
// path present on both sides is modified when its mtime differs at all.
func ComputeDiff(current, stored map[string]int64) Diff {
	var d Diff
	for path, mtime := range current {
		prev, ok := stored[path]
		switch {
		case !ok:
			d.New = append(d.New, path)
		case prev != mtime:
			d.Modified = append(d.Modified, path)
		default:
			d.Unchanged = append(d.Unchanged, path)
		}
	}
	for path := range stored {
		if _, ok := current[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.New)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	sort.Strings(d.Unchanged)
	return d
}

// ToEmbed returns the paths that need an embedding: new and modified.
func (d Diff) ToEmbed() []string {
	out := make([]string, 0, len(d.New)+len(d.Modified))
	out = append(out, d.New...)
	out = append(out, d.Modified...)
	sort.Strings(out)
	return out
}

// Empty reports whether the pass has nothing to embed and nothing to drop.
func (d Diff) Empty() bool {
	return len(d.New) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Package scan finds the image files under a directory and reports their
// modification times.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrDirectoryNotFound = errors.New("directory does not exist")
	ErrNotADirectory     = errors.New("not a directory")
)

// Extensions is the allow-list of image file extensions, lower case.
var Extensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".tiff": {},
	".tif":  {},
}

// IsImage reports whether name has an allowed image extension, ignoring case.
func IsImage(name string) bool {
	_, ok := Extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsHidden reports whether any segment of the slash-separated relative path
// starts with a dot.
func IsHidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Resolve returns the absolute form of root after checking that it exists
// and is a directory.
func Resolve(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", abs, ErrDirectoryNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrNotADirectory)
	}
	return abs, nil
}

// Dir walks root and returns every eligible image as absolute path ->
// mtime in Unix nanoseconds. Paths with a hidden segment below root are
// skipped, as are files reached through a symlinked directory, so each
// image is indexed under one path. When recursive is false only the top
// level is considered.
func Dir(ctx context.Context, root string, recursive bool) (map[string]int64, error) {
	abs, err := Resolve(root)
	if err != nil {
		return nil, err
	}

	pattern := "*"
	if recursive {
		pattern = "**/*"
	}

	found := make(map[string]int64)
	linked := make(map[string]bool) // relative dir -> reached through a symlink
	walk := func(rel string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if IsHidden(rel) || !IsImage(rel) {
			return nil
		}
		via, err := viaSymlink(abs, path.Dir(rel), linked)
		if err != nil {
			return err
		}
		if via {
			return nil
		}

		full := filepath.Join(abs, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			// Removed between listing and stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("stat %s: %w", full, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		found[full] = info.ModTime().UnixNano()
		return nil
	}

	if err := doublestar.GlobWalk(os.DirFS(abs), pattern, walk, doublestar.WithFilesOnly()); err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	return found, nil
}

// viaSymlink reports whether dir, relative to root, or any of its parents
// below root is a symbolic link. Results are memoized in cache.
func viaSymlink(root, dir string, cache map[string]bool) (bool, error) {
	if dir == "." || dir == "" {
		return false, nil
	}
	if v, ok := cache[dir]; ok {
		return v, nil
	}

	parent, err := viaSymlink(root, path.Dir(dir), cache)
	if err != nil {
		return false, err
	}
	v := parent
	if !v {
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			return false, fmt.Errorf("lstat %s: %w", dir, err)
		}
		v = info.Mode()&fs.ModeSymlink != 0
	}
	cache[dir] = v
	return v, nil
}

// Paths returns the keys of a scan result in sorted order.
func Paths(current map[string]int64) []string {
	out := make([]string, 0, len(current))
	for p := range current {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

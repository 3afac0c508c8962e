package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDir_FiltersExtensionsAndHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"))
	writeFile(t, filepath.Join(root, "B.JPEG"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, ".hidden.png"))
	writeFile(t, filepath.Join(root, "sub", "c.TIF"))
	writeFile(t, filepath.Join(root, "sub", "deeper", "d.webp"))
	writeFile(t, filepath.Join(root, ".git", "e.png"))
	writeFile(t, filepath.Join(root, "sub", ".cache", "f.gif"))

	got, err := Dir(context.Background(), root, true)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "B.JPEG"),
		filepath.Join(root, "a.png"),
		filepath.Join(root, "sub", "c.TIF"),
		filepath.Join(root, "sub", "deeper", "d.webp"),
	}, Paths(got))
}

func TestDir_NonRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bmp"))
	writeFile(t, filepath.Join(root, "sub", "b.png"))

	got, err := Dir(context.Background(), root, false)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "a.bmp")}, Paths(got))
}

func TestDir_ReportsMTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.gif")
	writeFile(t, path)

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	got, err := Dir(context.Background(), root, true)
	require.NoError(t, err)
	require.Equal(t, mtime.UnixNano(), got[path])
}

func TestDir_RootInsideHiddenDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".photos")
	writeFile(t, filepath.Join(root, "a.png"))

	got, err := Dir(context.Background(), root, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestDir_SkipsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "realdir", "z.png"))
	require.NoError(t, os.Symlink(filepath.Join(root, "realdir"), filepath.Join(root, "linkdir")))

	got, err := Dir(context.Background(), root, true)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "realdir", "z.png")}, Paths(got))
}

func TestDir_Errors(t *testing.T) {
	root := t.TempDir()

	_, err := Dir(context.Background(), filepath.Join(root, "missing"), true)
	require.ErrorIs(t, err, ErrDirectoryNotFound)

	file := filepath.Join(root, "a.png")
	writeFile(t, file)
	_, err = Dir(context.Background(), file, true)
	require.ErrorIs(t, err, ErrNotADirectory)
}

func TestDir_EmptyDirectory(t *testing.T) {
	got, err := Dir(context.Background(), t.TempDir(), true)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIsHidden(t *testing.T) {
	require.True(t, IsHidden(".a/b.png"))
	require.True(t, IsHidden("a/.b/c.png"))
	require.False(t, IsHidden("a/b.c/d.png"))
}

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, root string) []FileInfo {
	t.Helper()
	s := New()
	ch, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	var out []FileInfo
	for r := range ch {
		require.NoError(t, r.Err)
		if r.File != nil {
			out = append(out, *r.File)
		}
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanner_Scan_FindsMarkdownAndPDF(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "note.md"), "# hi")
	writeFile(t, filepath.Join(root, "sub", "doc.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "ignored.txt"), "nope")

	files := collect(t, root)
	require.Len(t, files, 2)
}

func TestScanner_Scan_SkipsDotDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".obsidian", "config.md"), "x")
	writeFile(t, filepath.Join(root, "visible.md"), "x")

	files := collect(t, root)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(root, "visible.md"), files[0].Path)
}

func TestScanner_Scan_EmptyRootReturnsNoResults(t *testing.T) {
	files := collect(t, t.TempDir())
	require.Empty(t, files)
}

func TestScanner_Scan_NonexistentRootReturnsError(t *testing.T) {
	s := New()
	_, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

package changedetect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahart-dev/vaultmind/internal/metadata"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/scanner"
	"github.com/ahart-dev/vaultmind/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T, tolerance time.Duration) (*Detector, *store.VectorStore) {
	t.Helper()
	vs, err := store.NewVectorStore(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, vs.EnsureTables([]model.Vault{model.VaultWork}))
	t.Cleanup(func() { _ = vs.Close() })

	return New(scanner.New(), vs, tolerance), vs
}

func writeFile(t *testing.T, path, content string) time.Time {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

func TestDetector_Detect_NewFileIsReingestCandidate(t *testing.T) {
	det, _ := newTestDetector(t, time.Second)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "# hello")

	plan, err := det.Detect(context.Background(), model.VaultWork, root)
	require.NoError(t, err)
	require.Len(t, plan.Reingest, 1)
	require.Empty(t, plan.Touched)
	require.Empty(t, plan.Deletes)
}

func TestDetector_Detect_UnchangedMtimeIsTier1Skip(t *testing.T) {
	det, vs := newTestDetector(t, time.Second)
	root := t.TempDir()
	mtime := writeFile(t, filepath.Join(root, "a.md"), "# hello")

	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{{
		Chunk: model.Chunk{FileHash: "somehash", ChunkIndex: 0, Path: filepath.Join(root, "a.md"), ModTime: mtime},
		Vector: []float32{1, 0, 0, 0},
	}}))

	plan, err := det.Detect(context.Background(), model.VaultWork, root)
	require.NoError(t, err)
	require.Empty(t, plan.Reingest)
	require.Empty(t, plan.Touched)
	require.Contains(t, plan.Unchanged, filepath.Join(root, "a.md"))
}

func TestDetector_Detect_TouchedFileWithSameHashIsTier2Skip(t *testing.T) {
	det, vs := newTestDetector(t, time.Second)
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "# hello")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	hash := metadata.ContentHash(raw)

	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{{
		Chunk:  model.Chunk{FileHash: hash, ChunkIndex: 0, Path: path, ModTime: time.Now().Add(-time.Hour)},
		Vector: []float32{1, 0, 0, 0},
	}}))

	// Bump mtime well past tolerance without changing content (a touch/copy).
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	plan, err := det.Detect(context.Background(), model.VaultWork, root)
	require.NoError(t, err)
	require.Empty(t, plan.Reingest, "identical content must not be re-embedded")
	require.Len(t, plan.Touched, 1)
	require.Equal(t, hash, plan.Touched[0].FileHash)
}

func TestDetector_Detect_ChangedContentIsReingestCandidate(t *testing.T) {
	det, vs := newTestDetector(t, time.Second)
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "# hello")

	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{{
		Chunk:  model.Chunk{FileHash: "stale-hash", ChunkIndex: 0, Path: path, ModTime: time.Now().Add(-time.Hour)},
		Vector: []float32{1, 0, 0, 0},
	}}))

	future := time.Now().Add(time.Hour)
	writeFile(t, path, "# hello, edited")
	require.NoError(t, os.Chtimes(path, future, future))

	plan, err := det.Detect(context.Background(), model.VaultWork, root)
	require.NoError(t, err)
	require.Len(t, plan.Reingest, 1)
	require.Equal(t, path, plan.Reingest[0].Path)
}

func TestDetector_Detect_MissingFileIsDelete(t *testing.T) {
	det, vs := newTestDetector(t, time.Second)
	root := t.TempDir()
	gonePath := filepath.Join(root, "gone.md")

	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{{
		Chunk:  model.Chunk{FileHash: "h", ChunkIndex: 0, Path: gonePath, ModTime: time.Now()},
		Vector: []float32{1, 0, 0, 0},
	}}))

	plan, err := det.Detect(context.Background(), model.VaultWork, root)
	require.NoError(t, err)
	require.Contains(t, plan.Deletes, gonePath)
}

package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahart-dev/vaultmind/internal/chunk"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/scanner"
	"github.com/ahart-dev/vaultmind/internal/store"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{1, 0, 0, 0}, nil
}

func newTestOrchestrator(t *testing.T, workRoot string) (*Orchestrator, *store.VectorStore, *store.KeywordStore, *countingEmbedder) {
	t.Helper()
	vs, err := store.NewVectorStore(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, vs.EnsureTables([]model.Vault{model.VaultWork, model.VaultPersonal}))
	t.Cleanup(func() { _ = vs.Close() })

	ks, err := store.NewKeywordStore(vs.DB())
	require.NoError(t, err)

	emb := &countingEmbedder{}
	chunkers := []chunk.Chunker{chunk.NewMarkdownChunker(512, 64), chunk.NewPDFChunker(512, 64)}
	orch := New(vs, ks, emb, scanner.New(), chunkers, workRoot, workRoot, time.Second, 2, 10, 5)
	return orch, vs, ks, emb
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOrchestrator_FullReindex_IndexesDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "note.md", "---\ntitle: Note One\n---\n\nThis document has plenty of body text to clear the minimum length.\n")

	orch, vs, ks, emb := newTestOrchestrator(t, dir)

	result, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Counters.MDIndexed)
	require.False(t, result.Cancelled)
	require.Greater(t, emb.calls.Load(), int32(0))

	meta, err := vs.ListPathsWithMeta(model.VaultWork)
	require.NoError(t, err)
	require.Len(t, meta, 1)

	count, err := ks.Count(ptrVault(model.VaultWork))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOrchestrator_ShortDocument_IsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiny.md", "hi\n")

	orch, vs, _, _ := newTestOrchestrator(t, dir)

	result, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.Counters.MDIndexed)

	meta, err := vs.ListPathsWithMeta(model.VaultWork)
	require.NoError(t, err)
	require.Empty(t, meta)
}

func TestOrchestrator_IncrementalReindex_SkipsUnchangedMtime(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "note.md", "This document has plenty of body text to clear the minimum length.\n")

	orch, _, _, emb := newTestOrchestrator(t, dir)

	_, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	firstCalls := emb.calls.Load()
	require.Greater(t, firstCalls, int32(0))

	result, err := orch.Run(context.Background(), model.VaultWork, false, nil)
	require.NoError(t, err)
	require.Equal(t, firstCalls, emb.calls.Load(), "unchanged mtime must trigger zero new embedding calls")
	require.Equal(t, 1, result.Counters.MDSkippedMtime)
}

func TestOrchestrator_IncrementalReindex_ReembedsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.md", "This document has plenty of body text to clear the minimum length.\n")

	orch, _, _, emb := newTestOrchestrator(t, dir)
	_, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	firstCalls := emb.calls.Load()

	// Advance mtime and change content so the change detector sees a real edit.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("This document has been edited with new body text, still long enough.\n"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	result, err := orch.Run(context.Background(), model.VaultWork, false, nil)
	require.NoError(t, err)
	require.Greater(t, emb.calls.Load(), firstCalls)
	require.Equal(t, 1, result.Counters.MDIndexed)
}

func TestOrchestrator_IncrementalReindex_DeletesRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.md", "This document has plenty of body text to clear the minimum length.\n")

	orch, vs, ks, _ := newTestOrchestrator(t, dir)
	_, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	result, err := orch.Run(context.Background(), model.VaultWork, false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Counters.Deleted)

	meta, err := vs.ListPathsWithMeta(model.VaultWork)
	require.NoError(t, err)
	require.Empty(t, meta)

	count, err := ks.Count(ptrVault(model.VaultWork))
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestOrchestrator_Cancel_StopsBeforeEmbeddingFurtherChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "This document has plenty of body text to clear the minimum length for a.\n")
	writeFile(t, dir, "b.md", "This document has plenty of body text to clear the minimum length for b.\n")

	orch, _, _, _ := newTestOrchestrator(t, dir)
	orch.Cancel()

	result, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	require.True(t, result.Cancelled)
	require.Equal(t, 0, result.Counters.MDIndexed)
}

func TestOrchestrator_ResetCancel_AllowsSubsequentRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "note.md", "This document has plenty of body text to clear the minimum length.\n")

	orch, _, _, _ := newTestOrchestrator(t, dir)
	orch.Cancel()
	result, err := orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	require.True(t, result.Cancelled)

	orch.ResetCancel()
	result, err = orch.Run(context.Background(), model.VaultWork, true, nil)
	require.NoError(t, err)
	require.False(t, result.Cancelled)
	require.Equal(t, 1, result.Counters.MDIndexed)
}

func TestOrchestrator_ProgressCallback_ReachesFullPercent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "note.md", "This document has plenty of body text to clear the minimum length.\n")

	orch, _, _, _ := newTestOrchestrator(t, dir)

	var lastPercent float64
	_, err := orch.Run(context.Background(), model.VaultWork, true, func(p model.Progress) {
		lastPercent = p.Percent
	})
	require.NoError(t, err)
	require.InDelta(t, 100.0, lastPercent, 0.01)
}

func ptrVault(v model.Vault) *model.Vault { return &v }

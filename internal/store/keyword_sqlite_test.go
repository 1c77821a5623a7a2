package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestKeywordStore(t *testing.T) *KeywordStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ks, err := NewKeywordStore(db)
	require.NoError(t, err)
	return ks
}

func TestKeywordStore_UpsertAndSearch_FindsDocument(t *testing.T) {
	ks := newTestKeywordStore(t)

	require.NoError(t, ks.UpsertDocument(model.VaultWork, "notes/rocket.md", "Rocket Plans",
		"we discussed the rocket engine design with alice", "notes", []string{"alice"}, "2026-01-05", "hash1"))

	results, err := ks.Search(context.Background(), "rocket engine", model.VaultWork, "", "", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "notes/rocket.md", results[0].Path)
	require.Greater(t, results[0].Score, 0.0)
}

func TestKeywordStore_UpsertDocument_ReplacesPriorVersion(t *testing.T) {
	ks := newTestKeywordStore(t)

	require.NoError(t, ks.UpsertDocument(model.VaultWork, "doc.md", "Old Title", "old body", "notes", nil, "2026-01-01", "h1"))
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "doc.md", "New Title", "new body", "notes", nil, "2026-01-02", "h2"))

	count, err := ks.Count(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	results, err := ks.Search(context.Background(), "new", model.VaultWork, "", "", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "New Title", results[0].Title)
}

func TestKeywordStore_Search_FiltersByPerson(t *testing.T) {
	ks := newTestKeywordStore(t)

	require.NoError(t, ks.UpsertDocument(model.VaultWork, "a.md", "A", "project update", "notes", []string{"alice"}, "2026-01-01", "h1"))
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "b.md", "B", "project update", "notes", []string{"bob"}, "2026-01-01", "h2"))

	results, err := ks.Search(context.Background(), "project", model.VaultWork, "alice", "", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.md", results[0].Path)
}

func TestKeywordStore_Search_SpecialCharacterQueryDoesNotTriggerSyntaxError(t *testing.T) {
	ks := newTestKeywordStore(t)
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "a.md", "A", "AND OR NOT -^*", "notes", nil, "2026-01-01", "h1"))

	results, err := ks.Search(context.Background(), `AND OR NOT -^*`, model.VaultWork, "", "", "", 10)
	require.NoError(t, err, "quoted-phrase wrapping must prevent FTS5 boolean/syntax errors")
	require.Len(t, results, 1)
}

func TestKeywordStore_Search_EmptyQueryReturnsEmptyList(t *testing.T) {
	ks := newTestKeywordStore(t)
	results, err := ks.Search(context.Background(), "   ", model.VaultWork, "", "", "", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestKeywordStore_ClearVault_RemovesOnlyThatVault(t *testing.T) {
	ks := newTestKeywordStore(t)
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "w.md", "W", "content", "notes", nil, "2026-01-01", "h1"))
	require.NoError(t, ks.UpsertDocument(model.VaultPersonal, "p.md", "P", "content", "notes", nil, "2026-01-01", "h2"))

	require.NoError(t, ks.ClearVault(model.VaultWork))

	workCount, err := ks.Count(vaultPtr(model.VaultWork))
	require.NoError(t, err)
	require.Equal(t, 0, workCount)

	personalCount, err := ks.Count(vaultPtr(model.VaultPersonal))
	require.NoError(t, err)
	require.Equal(t, 1, personalCount)
}

func TestKeywordStore_DeleteDocument_ScopedToVault(t *testing.T) {
	ks := newTestKeywordStore(t)
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "shared.md", "S", "content", "notes", nil, "2026-01-01", "h1"))

	work := model.VaultPersonal
	require.NoError(t, ks.DeleteDocument("shared.md", &work))
	count, err := ks.Count(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count, "delete scoped to the wrong vault must not remove the document")

	require.NoError(t, ks.DeleteDocument("shared.md", nil))
	count, err = ks.Count(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestKeywordStore_Search_TitleMatchRanksAboveContentOnlyMatch(t *testing.T) {
	ks := newTestKeywordStore(t)

	// "weekly" only appears in titleDoc's title and in contentDoc's body —
	// bm25's column weights must apply to the real title/people/content
	// column positions (not the leading UNINDEXED columns) for the title
	// hit to outrank the content-only hit.
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "title-hit.md", "Nikhil / Arnab - Weekly",
		"status update with no repeated keyword here", "meeting", nil, "2026-01-10", "h1"))
	require.NoError(t, ks.UpsertDocument(model.VaultWork, "content-hit.md", "Unrelated Subject",
		"weekly status notes from the sync", "meeting", nil, "2026-01-10", "h2"))

	results, err := ks.Search(context.Background(), "weekly", model.VaultWork, "", "", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "title-hit.md", results[0].Path, "the title-weighted match should rank first")
}

func vaultPtr(v model.Vault) *model.Vault { return &v }

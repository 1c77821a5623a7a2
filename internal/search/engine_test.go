package search

import (
	"context"
	"testing"
	"time"

	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func newTestStores(t *testing.T) (*store.VectorStore, *store.KeywordStore) {
	t.Helper()
	vs, err := store.NewVectorStore(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, vs.EnsureTables([]model.Vault{model.VaultWork, model.VaultPersonal}))
	t.Cleanup(func() { _ = vs.Close() })

	ks, err := store.NewKeywordStore(vs.DB())
	require.NoError(t, err)
	return vs, ks
}

func seedRoadmapDoc(t *testing.T, vs *store.VectorStore, ks *store.KeywordStore) {
	t.Helper()
	record := model.VectorRecord{
		Chunk: model.Chunk{
			FileHash:   "hash1",
			ChunkIndex: 0,
			Content:    "Quarterly roadmap review with Priya covering the pricing tier changes.",
			Path:       "work/notes/roadmap.md",
			Metadata: model.Metadata{
				Title: "Roadmap Review", Date: "2026-01-10", Category: "meeting",
				Vault: model.VaultWork, People: []string{"Priya"},
			},
			ModTime: time.Now(),
		},
		Vector: []float32{1, 0, 0, 0},
	}
	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{record}))
	require.NoError(t, ks.UpsertDocument(
		model.VaultWork, "work/notes/roadmap.md", "Roadmap Review",
		"Quarterly roadmap review with Priya covering the pricing tier changes.",
		"meeting", []string{"Priya"}, "2026-01-10", "hash1",
	))
}

func newTestClassifier() *Classifier {
	return NewClassifier([]string{"The", "Is", "This", "What"})
}

// stubKeywordIndex dispatches Search by the exact query text it receives,
// so a test can tell the cleaned-query BM25 list apart from the
// person-intent BM25 list without needing real FTS text overlap.
type stubKeywordIndex struct {
	store.KeywordIndex // nil: only Search is exercised by these tests
	byQuery            map[string][]store.KeywordSearchResult
}

func (s *stubKeywordIndex) Search(_ context.Context, query string, _ model.Vault, _, _, _ string, _ int) ([]store.KeywordSearchResult, error) {
	return s.byQuery[query], nil
}

func TestNewEngine_RejectsNilDependencies(t *testing.T) {
	vs, ks := newTestStores(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	cl := newTestClassifier()

	_, err := NewEngine(nil, ks, emb, cl)
	require.Error(t, err)
	_, err = NewEngine(vs, nil, emb, cl)
	require.Error(t, err)
	_, err = NewEngine(vs, ks, nil, cl)
	require.Error(t, err)
	_, err = NewEngine(vs, ks, emb, nil)
	require.Error(t, err)
}

func TestEngine_VectorMode_ReturnsNearestChunk(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier())
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "roadmap", Vault: model.VaultWork, Mode: ModeVector, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "work/notes/roadmap.md", results[0].Path)
}

func TestEngine_BM25Mode_ReturnsMatchingDocument(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier())
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "pricing tier", Vault: model.VaultWork, Mode: ModeBM25, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "work/notes/roadmap.md", results[0].Path)
}

func TestEngine_HybridMode_FusesBothSources(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier())
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "roadmap pricing", Vault: model.VaultWork, Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "work/notes/roadmap.md", results[0].Path)
	require.Contains(t, results[0].People, "Priya")
}

func TestEngine_HybridMode_TemporalOnlyQueryReturnsEmpty(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier(), WithClock(func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "today", Vault: model.VaultWork, Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestEngine_HybridMode_TemporalRangeNarrowsResults(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier(), WithClock(func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "roadmap yesterday", Vault: model.VaultWork, Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.Empty(t, results) // the doc is dated 2026-01-10, "yesterday" (2026-01-09) excludes it
}

func TestEngine_QueryMode_NoExpanderOrRerankerDegradesToHybrid(t *testing.T) {
	vs, ks := newTestStores(t)
	seedRoadmapDoc(t, vs, ks)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier())
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "roadmap pricing", Vault: model.VaultWork, Mode: ModeQuery, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "work/notes/roadmap.md", results[0].Path)
}

func TestEngine_HybridMode_PersonIntentAppliesThreeToOneBM25Boost(t *testing.T) {
	vs, _ := newTestStores(t)

	// vectorDoc only ever surfaces via the vector list; cleanedDoc only via
	// the cleaned-query BM25 list; personDoc only via the person-intent BM25
	// list. Spec §4.9 / scenario 1 want the person-intent list counted
	// three times against vector's one ([bm25, bm25, bm25, vector]); giving
	// cleanedDoc and personDoc one list apiece means personDoc only pulls
	// ahead once its list is actually doubled on top of the base append,
	// catching a regression to a 2:1 (single-append) boost.
	keywords := &stubKeywordIndex{byQuery: map[string][]store.KeywordSearchResult{
		"catch up with Priya": {{Path: "cleaned-hit.md", Title: "Cleaned", Vault: model.VaultWork}},
		"Priya":               {{Path: "person-hit.md", Title: "Person", Vault: model.VaultWork}},
	}}

	record := model.VectorRecord{
		Chunk: model.Chunk{
			FileHash: "hv", ChunkIndex: 0, Content: "unrelated vector content",
			Path: "vector-hit.md",
			Metadata: model.Metadata{
				Title: "Vector", Date: "2026-01-10", Category: "meeting", Vault: model.VaultWork,
			},
			ModTime: time.Now(),
		},
		Vector: []float32{1, 0, 0, 0},
	}
	require.NoError(t, vs.UpsertChunks(model.VaultWork, []model.VectorRecord{record}))

	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, keywords, emb, newTestClassifier())
	require.NoError(t, err)

	results, err := eng.Search(context.Background(), Request{Query: "catch up with Priya", Vault: model.VaultWork, Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "person-hit.md", results[0].Path, "the person-intent BM25 list must outrank both the cleaned-query BM25 hit and the vector hit under a 3:1 boost")
}

func TestEngine_UnknownMode_ReturnsError(t *testing.T) {
	vs, ks := newTestStores(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	eng, err := NewEngine(vs, ks, emb, newTestClassifier())
	require.NoError(t, err)

	_, err = eng.Search(context.Background(), Request{Query: "x", Mode: "bogus"})
	require.Error(t, err)
}

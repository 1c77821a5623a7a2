// Package search implements the retrieval-side components: person and
// temporal query classification, reciprocal rank fusion, LLM reranking and
// query expansion, and the orchestrator (C11) that wires them together
// behind the four search modes.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahart-dev/vaultmind/internal/embed"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/store"
)

// Mode selects one of the four search pipelines (spec §4.11).
type Mode string

const (
	ModeVector Mode = "vector"
	ModeBM25   Mode = "bm25"
	ModeHybrid Mode = "hybrid"
	ModeQuery  Mode = "query"
)

// rerankPrefixSize is how many fused candidates the query mode sends to the
// reranker — the rest keep their fusion-only score (spec §4.11: "rerank top
// 30").
const rerankPrefixSize = 30

// Request is one search call, uniform across all four modes. Fields that
// don't apply to a given mode are simply ignored.
type Request struct {
	Query    string
	Vault    model.Vault
	Mode     Mode
	Category string
	Person   string
	DateFrom string
	DateTo   string
	Limit    int
}

// Result is the uniform output record every mode produces (spec §4.11).
type Result struct {
	Score    float64
	Path     string
	Title    string
	Excerpt  string
	Date     string
	People   []string
	Category string
	Vault    string
}

// Engine is the search orchestrator (C11). It holds no per-request state;
// all of it is safe for concurrent use across goroutines.
type Engine struct {
	vectors    *store.VectorStore
	keywords   store.KeywordIndex
	embedder   embed.Embedder
	classifier *Classifier
	reranker   *Reranker // nil disables LLM reranking; query mode falls back to fusion-only
	expander   *Expander // nil disables LLM query expansion; query mode degrades to hybrid

	rrfConstant int
	alpha       float64
	maxResults  int
	now         func() time.Time
}

// Option configures an Engine at construction time, grounded on the
// teacher's NewEngine(deps..., opts ...EngineOption) pattern.
type Option func(*Engine)

// WithReranker attaches an LLM reranker used by query mode.
func WithReranker(r *Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithExpander attaches an LLM query expander used by query mode.
func WithExpander(ex *Expander) Option {
	return func(e *Engine) { e.expander = ex }
}

// WithRRFConstant overrides the default RRF smoothing constant.
func WithRRFConstant(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.rrfConstant = k
		}
	}
}

// WithRerankAlpha overrides the default fusion/rerank blend weight.
func WithRerankAlpha(alpha float64) Option {
	return func(e *Engine) { e.alpha = alpha }
}

// WithMaxResults overrides the default result cap applied when a Request
// leaves Limit unset.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// WithClock overrides the reference-time function temporal parsing uses —
// tests inject a fixed clock so "today"/"last week" are deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an Engine. vectors, keywords, embedder and classifier are
// required; the constructor rejects a nil dependency rather than letting it
// panic deep inside a request.
func NewEngine(vectors *store.VectorStore, keywords store.KeywordIndex, embedder embed.Embedder, classifier *Classifier, opts ...Option) (*Engine, error) {
	if vectors == nil {
		return nil, fmt.Errorf("search: vectors store is required")
	}
	if keywords == nil {
		return nil, fmt.Errorf("search: keyword store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("search: embedder is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("search: classifier is required")
	}

	e := &Engine{
		vectors:     vectors,
		keywords:    keywords,
		embedder:    embedder,
		classifier:  classifier,
		rrfConstant: DefaultRRFConstant,
		alpha:       0.5,
		maxResults:  20,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search dispatches req to the pipeline named by req.Mode.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = e.maxResults
	}

	switch req.Mode {
	case ModeVector:
		return e.vectorOnly(ctx, req, limit)
	case ModeBM25:
		return e.bm25Only(ctx, req, limit)
	case ModeQuery:
		return e.queryMode(ctx, req, limit)
	case ModeHybrid, "":
		fused, err := e.hybridFused(ctx, req, limit)
		if err != nil {
			return nil, err
		}
		return toResults(fused, limit), nil
	default:
		return nil, fmt.Errorf("search: unknown mode %q", req.Mode)
	}
}

// vectorOnly runs the `vector` pipeline: embed(q) → vector_search(k).
func (e *Engine) vectorOnly(ctx context.Context, req Request, limit int) ([]Result, error) {
	vec, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	filters := filtersFromRequest(req)
	hits, err := e.vectors.Search(ctx, req.Vault, vec, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	candidates := vectorCandidates(hits)
	fused := Fuse(e.rrfConstant, candidates)
	return toResults(fused, limit), nil
}

// bm25Only runs the `bm25` pipeline: bm25_search(q, k).
func (e *Engine) bm25Only(ctx context.Context, req Request, limit int) ([]Result, error) {
	hits, err := e.keywords.Search(ctx, req.Query, req.Vault, req.Person, req.DateFrom, req.DateTo, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	candidates := keywordCandidates(hits)
	fused := Fuse(e.rrfConstant, candidates)
	return toResults(fused, limit), nil
}

// hybridFused runs the `hybrid` pipeline up to (but not including) the final
// top-k truncation, returning fused results so queryMode can fold them into
// a cross-variant fusion. Mode itself (the ModeHybrid case of Search) just
// truncates this output.
func (e *Engine) hybridFused(ctx context.Context, req Request, limit int) ([]FusedResult, error) {
	ref := e.now()
	cleanedQuery := req.Query
	dateFrom, dateTo := req.DateFrom, req.DateTo

	if tr, ok := ParseTemporal(req.Query, ref); ok {
		cleanedQuery = StripMatch(req.Query, tr.Match)
		if dateFrom == "" {
			dateFrom = tr.Start.Format("2006-01-02")
		}
		if dateTo == "" {
			dateTo = tr.End.Format("2006-01-02")
		}
	}

	classification := e.classifier.Classify(cleanedQuery)

	if strings.TrimSpace(cleanedQuery) == "" {
		// Boundary behavior (spec §8): a purely temporal query has no text
		// left to search with. Per spec this may return a chronological
		// listing within range or an empty list; this orchestrator has no
		// adapter capable of an unranked chronological listing, so it
		// returns empty rather than guessing at an ordering.
		return []FusedResult{}, nil
	}

	fetchK := limit * 2
	if fetchK < limit+10 {
		fetchK = limit + 10
	}

	var bm25Hits []store.KeywordSearchResult
	var vectorHits []store.VectorSearchResult
	var bm25Err, vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bm25Hits, bm25Err = e.keywords.Search(gctx, cleanedQuery, req.Vault, req.Person, dateFrom, dateTo, fetchK)
		if bm25Err != nil {
			slog.Warn("hybrid_bm25_search_failed", slog.String("error", bm25Err.Error()))
		}
		return nil // a failing half degrades the fusion, it never fails the call
	})
	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, cleanedQuery)
		if err != nil {
			vectorErr = err
			slog.Warn("hybrid_embed_failed", slog.String("error", err.Error()))
			return nil
		}
		filters := store.Filters{Category: req.Category, DateFrom: dateFrom, DateTo: dateTo}
		if req.Person != "" {
			filters.People = []string{req.Person}
		}
		vectorHits, vectorErr = e.vectors.Search(gctx, req.Vault, vec, filters, fetchK)
		if vectorErr != nil {
			slog.Warn("hybrid_vector_search_failed", slog.String("error", vectorErr.Error()))
		}
		return nil
	})
	_ = g.Wait()

	lists := [][]Candidate{keywordCandidates(bm25Hits), vectorCandidates(vectorHits)}

	if classification.HasIntent && classification.BM25Query != "" && classification.BM25Query != cleanedQuery {
		personHits, err := e.keywords.Search(ctx, classification.BM25Query, req.Vault, req.Person, dateFrom, dateTo, fetchK)
		if err == nil {
			// lists already holds one BM25 list and one vector list; appending
			// the person-query BM25 list twice more brings the BM25 side to
			// three lists against the vector side's one, the 3:1 BM25-over-
			// vector boost spec §4.9 and scenario 1 call for on a person-intent
			// query (`[bm25, bm25, bm25, vector]`).
			personCandidates := keywordCandidates(personHits)
			lists = append(lists, personCandidates, personCandidates)
		}
	}

	fused := Fuse(e.rrfConstant, lists...)
	fused = postFilter(fused, req)
	return fused, nil
}

// queryMode runs the `query` pipeline: expand-query (LLM) → per-variant
// hybrid → RRF across variants (original weighted ×2) → rerank top 30 →
// blend → top-k.
func (e *Engine) queryMode(ctx context.Context, req Request, limit int) ([]Result, error) {
	variants := []string{req.Query}
	if e.expander != nil {
		expanded, err := e.expander.Expand(ctx, req.Query)
		if err != nil {
			slog.Warn("query_expansion_failed", slog.String("error", err.Error()))
		} else if len(expanded) > 0 {
			variants = expanded
		}
	}

	// Per-variant hybrid search, original weighted x2 by listing its
	// candidate list twice before fusion (the same list-repetition
	// weighting Fuse already uses for source weighting).
	var candidateLists [][]Candidate
	for i, variant := range variants {
		variantReq := req
		variantReq.Query = variant
		fused, err := e.hybridFused(ctx, variantReq, limit)
		if err != nil {
			slog.Warn("query_variant_hybrid_failed", slog.String("variant", variant), slog.String("error", err.Error()))
			continue
		}
		list := fusedToCandidates(fused)
		candidateLists = append(candidateLists, list)
		if i == 0 {
			candidateLists = append(candidateLists, list) // original counted twice
		}
	}

	fused := Fuse(e.rrfConstant, candidateLists...)

	if e.reranker == nil || len(fused) == 0 {
		return toResults(fused, limit), nil
	}

	prefixLen := len(fused)
	if prefixLen > rerankPrefixSize {
		prefixLen = rerankPrefixSize
	}
	rerankCandidates := make([]RerankCandidate, prefixLen)
	for i := 0; i < prefixLen; i++ {
		rerankCandidates[i] = RerankCandidate{Path: fused[i].Path, Excerpt: fused[i].Excerpt}
	}
	scores := e.reranker.Rerank(ctx, req.Query, rerankCandidates)

	allScores := make([]float64, len(fused))
	reranked := make([]bool, len(fused))
	copy(allScores, scores)
	for i := 0; i < prefixLen; i++ {
		reranked[i] = true
	}

	blended := Blend(e.alpha, fused, allScores, reranked)
	return toResults(blended, limit), nil
}

// postFilter re-applies category/person/date filters after fusion — a
// safety net for sources that don't support pushdown (e.g. a classifier-
// derived BM25-only list has no category awareness), per spec §4.11
// ("re-applied as a post-filter otherwise").
func postFilter(fused []FusedResult, req Request) []FusedResult {
	if req.Category == "" && req.Person == "" && req.DateFrom == "" && req.DateTo == "" {
		return fused
	}
	out := make([]FusedResult, 0, len(fused))
	for _, f := range fused {
		if req.Category != "" && f.Category != req.Category {
			continue
		}
		if req.DateFrom != "" && (f.Date == "" || f.Date < req.DateFrom) {
			continue
		}
		if req.DateTo != "" && (f.Date == "" || f.Date > req.DateTo) {
			continue
		}
		if req.Person != "" && !containsFold(f.People, req.Person) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func filtersFromRequest(req Request) store.Filters {
	f := store.Filters{Category: req.Category, DateFrom: req.DateFrom, DateTo: req.DateTo}
	if req.Person != "" {
		f.People = []string{req.Person}
	}
	return f
}

const excerptLength = 300

func vectorCandidates(hits []store.VectorSearchResult) []Candidate {
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{
			Path:     h.Chunk.Path,
			Title:    h.Chunk.Metadata.Title,
			Excerpt:  truncate(h.Chunk.Content, excerptLength),
			Date:     h.Chunk.Metadata.Date,
			Category: h.Chunk.Metadata.Category,
			People:   h.Chunk.Metadata.People,
			Vault:    string(h.Chunk.Metadata.Vault),
			Score:    float64(store.DistanceToScore(h.Distance)),
		}
	}
	return out
}

func keywordCandidates(hits []store.KeywordSearchResult) []Candidate {
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{
			Path:     h.Path,
			Title:    h.Title,
			Excerpt:  h.Snippet,
			Date:     h.Date,
			Category: h.Category,
			Vault:    string(h.Vault),
			Score:    h.Score,
		}
	}
	return out
}

func fusedToCandidates(fused []FusedResult) []Candidate {
	out := make([]Candidate, len(fused))
	for i, f := range fused {
		out[i] = Candidate{
			Path:     f.Path,
			Title:    f.Title,
			Excerpt:  f.Excerpt,
			Date:     f.Date,
			Category: f.Category,
			People:   f.People,
			Vault:    f.Vault,
			Score:    f.RRFScore,
		}
	}
	return out
}

func toResults(fused []FusedResult, limit int) []Result {
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	out := make([]Result, len(fused))
	for i, f := range fused {
		out[i] = Result{
			Score:    f.RRFScore,
			Path:     f.Path,
			Title:    f.Title,
			Excerpt:  f.Excerpt,
			Date:     f.Date,
			People:   f.People,
			Category: f.Category,
			Vault:    f.Vault,
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

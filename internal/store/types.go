// Package store holds the two index adapters: an HNSW-backed vector index
// (C4) and a SQLite FTS5 keyword index (C5), both persisted under the
// configured data directory.
package store

import (
	"context"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// KeywordIndex is the behavior the search engine and indexing orchestrator
// need from a keyword (BM25) backend, satisfied by both the default
// SQLite FTS5-backed KeywordStore and the alternate Bleve-backed
// BleveKeywordStore (spec §9: operators may prefer Bleve's on-disk segment
// format over FTS5, selected at startup via config).
type KeywordIndex interface {
	UpsertDocument(vault model.Vault, path, title, content, category string, people []string, date, contentHash string) error
	DeleteDocument(path string, vault *model.Vault) error
	ClearVault(vault model.Vault) error
	Count(vault *model.Vault) (int, error)
	Search(ctx context.Context, query string, vault model.Vault, person, dateFrom, dateTo string, k int) ([]KeywordSearchResult, error)
}

// Filters narrows a vector search to chunks whose metadata matches. A zero
// value applies no filtering.
type Filters struct {
	Category string
	DateFrom string // YYYY-MM-DD, inclusive
	DateTo   string // YYYY-MM-DD, inclusive
	People   []string
}

// matches reports whether a chunk's metadata satisfies f.
func (f Filters) matches(m model.Metadata) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.DateFrom != "" && (m.Date == "" || m.Date < f.DateFrom) {
		return false
	}
	if f.DateTo != "" && (m.Date == "" || m.Date > f.DateTo) {
		return false
	}
	if len(f.People) > 0 {
		for _, want := range f.People {
			found := false
			for _, have := range m.People {
				if have == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// VectorSearchResult is one ranked hit from the vector index. Distance is
// raw (not converted to similarity); DistanceToScore below performs that
// conversion.
type VectorSearchResult struct {
	Chunk    model.Chunk
	Distance float32
}

// DistanceToScore converts an L2/cosine distance into a 0..1-ish similarity
// score, higher meaning closer, per spec §4.4.
func DistanceToScore(distance float32) float32 {
	return 1.0 / (1.0 + distance)
}

// PathMeta is the per-path summary returned by ListPathsWithMeta, used by
// the change detector (C6) to decide which files need re-ingest.
type PathMeta struct {
	FileHash string
	MTimeMS  int64
}

// KeywordSearchResult is one ranked hit from the keyword index.
type KeywordSearchResult struct {
	Path     string
	Title    string
	Snippet  string
	Score    float64
	Vault    model.Vault
	Category string
	Date     string
}

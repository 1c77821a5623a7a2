package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// blevePathID derives a Bleve document id from a vault path; Bleve ids are
// a flat namespace, so the vault is folded into the id to keep cross-vault
// documents from colliding (spec §9, alternate keyword backend).
func blevePathID(vault model.Vault, path string) string {
	return string(vault) + "\x00" + path
}

// bleveDoc is the document shape indexed into Bleve — the same fields the
// SQLite fts_docs virtual table stores, since both backends sit behind
// KeywordIndex and must return identical KeywordSearchResult shapes.
type bleveDoc struct {
	Path        string `json:"path"`
	Vault       string `json:"vault"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	ContentHash string `json:"content_hash"`
	Title       string `json:"title"`
	People      string `json:"people"`
	Content     string `json:"content"`
}

// BleveKeywordStore is the alternate BM25 backend (C5, spec §9): one Bleve
// index document per vault document, selectable in place of the default
// SQLite FTS5 KeywordStore for operators who prefer Bleve's on-disk segment
// format.
type BleveKeywordStore struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveKeywordStore opens (or creates) a Bleve index at path. An empty
// path creates an in-memory index, used by tests.
func NewBleveKeywordStore(path string) (*BleveKeywordStore, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create bleve index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &BleveKeywordStore{index: idx}, nil
}

// Close releases the underlying index's file handles.
func (s *BleveKeywordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// UpsertDocument replaces whatever document is stored for path (matching the
// SQLite backend's delete-then-insert semantics, since Bleve's own Index
// call already overwrites by id, so no explicit delete step is needed here).
func (s *BleveKeywordStore) UpsertDocument(vault model.Vault, path, title, content, category string, people []string, date, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := bleveDoc{
		Path:        path,
		Vault:       string(vault),
		Category:    category,
		Date:        date,
		ContentHash: contentHash,
		Title:       title,
		People:      strings.Join(people, " "),
		Content:     content,
	}
	return s.index.Index(blevePathID(vault, path), doc)
}

// DeleteDocument removes path's document, optionally scoped to vault — when
// vault is nil, both vault-scoped ids are attempted since the id namespace
// has no unscoped form.
func (s *BleveKeywordStore) DeleteDocument(path string, vault *model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vault != nil {
		return s.index.Delete(blevePathID(*vault, path))
	}
	for _, v := range []model.Vault{model.VaultWork, model.VaultPersonal} {
		if err := s.index.Delete(blevePathID(v, path)); err != nil {
			return err
		}
	}
	return nil
}

// ClearVault deletes every document belonging to vault.
func (s *BleveKeywordStore) ClearVault(vault model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.idsForVault(vault)
	if err != nil {
		return err
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// idsForVault runs a match-all-within-vault query and collects ids. Caller
// must hold s.mu.
func (s *BleveKeywordStore) idsForVault(vault model.Vault) ([]string, error) {
	q := bleve.NewTermQuery(string(vault))
	q.SetField("vault")
	req := bleve.NewSearchRequest(q)
	count, _ := s.index.DocCount()
	req.Size = int(count)
	req.Fields = []string{}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("collect vault document ids: %w", err)
	}
	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of documents, optionally scoped to vault.
func (s *BleveKeywordStore) Count(vault *model.Vault) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if vault == nil {
		n, err := s.index.DocCount()
		return int(n), err
	}
	ids, err := s.idsForVault(*vault)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Search runs a BM25 match query scoped to vault, with optional person and
// date-range post-filtering applied to the candidate set (Bleve's query DSL
// has no inequality operator for string-typed date fields, so the range is
// checked in Go after retrieval — matching the SQLite backend's semantics,
// just with the filter applied after the fact rather than pushed into SQL).
func (s *BleveKeywordStore) Search(ctx context.Context, q string, vault model.Vault, person, dateFrom, dateTo string, k int) ([]KeywordSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(q) == "" {
		return []KeywordSearchResult{}, nil
	}

	// Query title, people, and content with the same relative weighting as
	// the SQLite backend's bm25() column weights (spec §4.5: title ranks
	// highest, people lowest), since a bare content-only match query would
	// never match a person/title-token query (scenario 1).
	titleMatch := bleve.NewMatchQuery(q)
	titleMatch.SetField("title")
	titleMatch.SetBoost(weightTitle)

	peopleMatch := bleve.NewMatchQuery(q)
	peopleMatch.SetField("people")
	peopleMatch.SetBoost(weightPeople)

	contentMatch := bleve.NewMatchQuery(q)
	contentMatch.SetField("content")
	contentMatch.SetBoost(weightContent)

	fields := bleve.NewDisjunctionQuery(titleMatch, peopleMatch, contentMatch)

	vaultTerm := bleve.NewTermQuery(string(vault))
	vaultTerm.SetField("vault")

	conjunct := bleve.NewConjunctionQuery(fields, vaultTerm)
	req := bleve.NewSearchRequest(conjunct)
	req.Size = k * 4 // over-fetch to absorb post-filtering, matching k after
	req.Fields = []string{"path", "title", "category", "date", "people"}

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	results := make([]KeywordSearchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		date, _ := hit.Fields["date"].(string)
		if dateFrom != "" && (date == "" || date < dateFrom) {
			continue
		}
		if dateTo != "" && (date == "" || date > dateTo) {
			continue
		}
		people, _ := hit.Fields["people"].(string)
		if person != "" && !strings.Contains(people, person) {
			continue
		}
		path, _ := hit.Fields["path"].(string)
		title, _ := hit.Fields["title"].(string)
		category, _ := hit.Fields["category"].(string)

		results = append(results, KeywordSearchResult{
			Path:     path,
			Title:    title,
			Snippet:  "",
			Score:    hit.Score,
			Vault:    vault,
			Category: category,
			Date:     date,
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

var _ KeywordIndex = (*BleveKeywordStore)(nil)

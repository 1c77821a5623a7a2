package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// Column weights for bm25(). FTS5's bm25() takes one weight per column in
// the table's declared order — path, vault, category, date, content_hash,
// title, people, content — not per searchable column, so the five
// UNINDEXED columns still need a (zero, ignored) positional slot before the
// three weights that actually matter. Title ranks highest, people lowest.
const (
	weightTitle   = 3.0
	weightPeople  = 1.0
	weightContent = 2.0
)

// KeywordStore is the SQLite FTS5 keyword index adapter (C5): one row per
// document (not per chunk), with per-column BM25 weighting.
type KeywordStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewKeywordStore wraps db — the same handle used by VectorStore (spec
// §4.5) — with the fts_docs virtual table, creating it if absent.
func NewKeywordStore(db *sql.DB) (*KeywordStore, error) {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_docs USING fts5(
		path UNINDEXED,
		vault UNINDEXED,
		category UNINDEXED,
		date UNINDEXED,
		content_hash UNINDEXED,
		title,
		people,
		content,
		tokenize='unicode61'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create fts_docs: %w", err)
	}
	return &KeywordStore{db: db}, nil
}

// UpsertDocument inserts or replaces the row for path. FTS5 virtual tables
// don't support REPLACE, so an existing row is deleted first (matching the
// teacher's SQLiteBM25Index.Index pattern).
func (s *KeywordStore) UpsertDocument(vault model.Vault, path, title, content, category string, people []string, date, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM fts_docs WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete existing document: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO fts_docs (path, vault, category, date, content_hash, title, people, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		path, string(vault), category, date, contentHash, title, strings.Join(people, " "), content,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	return tx.Commit()
}

// DeleteDocument removes the row for path, optionally scoped to vault.
func (s *KeywordStore) DeleteDocument(path string, vault *model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vault != nil {
		_, err := s.db.Exec(`DELETE FROM fts_docs WHERE path = ? AND vault = ?`, path, string(*vault))
		return err
	}
	_, err := s.db.Exec(`DELETE FROM fts_docs WHERE path = ?`, path)
	return err
}

// ClearVault removes every row belonging to vault.
func (s *KeywordStore) ClearVault(vault model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM fts_docs WHERE vault = ?`, string(vault))
	return err
}

// Count returns the number of documents, optionally scoped to vault.
func (s *KeywordStore) Count(vault *model.Vault) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	var err error
	if vault != nil {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM fts_docs WHERE vault = ?`, string(*vault)).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM fts_docs`).Scan(&n)
	}
	return n, err
}

// Search runs a BM25 query over fts_docs, scoped to vault and optionally
// filtered by person and a date range. The query is always wrapped as a
// quoted phrase so that characters meaningful to FTS5's own query syntax
// (AND/OR/NOT, -, ^, *) never trigger boolean parsing; on a resulting parse
// error this returns an empty list rather than failing (spec §4.5, §7
// keyword-query-parse).
func (s *KeywordStore) Search(ctx context.Context, query string, vault model.Vault, person, dateFrom, dateTo string, k int) ([]KeywordSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return []KeywordSearchResult{}, nil
	}

	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`

	conds := []string{"fts_docs MATCH ?", "vault = ?"}
	args := []any{phrase, string(vault)}
	if person != "" {
		conds = append(conds, "people LIKE ?")
		args = append(args, "%"+person+"%")
	}
	if dateFrom != "" {
		conds = append(conds, "date >= ?")
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		conds = append(conds, "date <= ?")
		args = append(args, dateTo)
	}
	args = append(args, k)

	sqlQuery := fmt.Sprintf(`
		SELECT path, title, category, date,
		       bm25(fts_docs, 0, 0, 0, 0, 0, %f, %f, %f) AS score,
		       snippet(fts_docs, 7, '[', ']', '...', 12)
		FROM fts_docs
		WHERE %s
		ORDER BY score
		LIMIT ?
	`, weightTitle, weightPeople, weightContent, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []KeywordSearchResult{}, nil
		}
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []KeywordSearchResult
	for rows.Next() {
		var r KeywordSearchResult
		var rawScore float64
		r.Vault = vault
		if err := rows.Scan(&r.Path, &r.Title, &r.Category, &r.Date, &rawScore, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan keyword result: %w", err)
		}
		// FTS5's bm25() returns negative values where lower is a better
		// match; the adapter returns the absolute value so callers see a
		// positive score where higher is better.
		r.Score = -rawScore
		results = append(results, r)
	}
	return results, rows.Err()
}

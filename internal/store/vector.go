package store

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ahart-dev/vaultmind/internal/errs"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/coder/hnsw"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// vaultGraph is one per-vault HNSW graph plus its string-ID mapping. HNSW
// keys are uint64; chunks are addressed by "file_hash|chunk_index", so the
// mapping also doubles as the metadata side-table's primary key.
type vaultGraph struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // "file_hash|chunk_index" -> graph key
	keyMap  map[uint64]string
	nextKey uint64
}

// VectorStore is the HNSW-backed vector index adapter (C4). One graph is
// held per vault; a SQLite side-table (shared with the keyword index's
// database handle, in a distinct table) carries the metadata a Search call
// filters on.
type VectorStore struct {
	mu         sync.RWMutex
	dataDir    string
	dimensions int

	db     *sql.DB
	graphs map[model.Vault]*vaultGraph
}

// NewVectorStore opens (or creates) the metadata side-table at dataDir/vaultmind.db
// and prepares empty in-memory graphs for later EnsureTables/Load calls.
func NewVectorStore(dataDir string, dimensions int) (*VectorStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "vaultmind.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &VectorStore{
		dataDir:    dataDir,
		dimensions: dimensions,
		db:         db,
		graphs:     make(map[model.Vault]*vaultGraph),
	}, nil
}

func newVaultGraph() *vaultGraph {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &vaultGraph{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// EnsureTables idempotently creates the metadata table and an in-memory
// graph for each vault in vaultSet, loading any persisted graph found under
// dataDir.
func (s *VectorStore) EnsureTables(vaultSet []model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := `
	CREATE TABLE IF NOT EXISTS vector_meta (
		vault       TEXT NOT NULL,
		file_hash   TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		path        TEXT NOT NULL,
		mtime_ms    INTEGER NOT NULL,
		category    TEXT NOT NULL,
		date        TEXT NOT NULL,
		people      TEXT NOT NULL,
		title       TEXT NOT NULL,
		content     TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		graph_key   INTEGER NOT NULL,
		PRIMARY KEY (vault, file_hash, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS vector_meta_path ON vector_meta(vault, path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create vector_meta: %w", err)
	}

	for _, v := range vaultSet {
		if _, ok := s.graphs[v]; ok {
			continue
		}
		vg := newVaultGraph()
		if err := s.loadGraph(v, vg); err != nil {
			return fmt.Errorf("load graph for vault %s: %w", v, err)
		}
		s.graphs[v] = vg
	}
	return nil
}

func (s *VectorStore) graphPath(v model.Vault) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("vectors-%s.hnsw", v))
}

// loadGraph imports a persisted graph for v, if present, and rebuilds its
// idMap/keyMap/nextKey from the metadata table. A missing file is not an
// error (fresh vault).
func (s *VectorStore) loadGraph(v model.Vault, vg *vaultGraph) error {
	path := s.graphPath(v)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	reader := bufio.NewReader(file)
	if err := vg.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	rows, err := s.db.Query(`SELECT file_hash, chunk_index, graph_key FROM vector_meta WHERE vault = ?`, string(v))
	if err != nil {
		return err
	}
	defer rows.Close()

	var maxKey uint64
	for rows.Next() {
		var fileHash string
		var chunkIndex int
		var graphKey int64
		if err := rows.Scan(&fileHash, &chunkIndex, &graphKey); err != nil {
			return err
		}
		id := vectorID(fileHash, chunkIndex)
		key := uint64(graphKey)
		vg.idMap[id] = key
		vg.keyMap[key] = id
		if key >= maxKey {
			maxKey = key + 1
		}
	}
	vg.nextKey = maxKey
	return rows.Err()
}

// Save persists every loaded vault graph to dataDir using an atomic
// temp-file-then-rename, matching the teacher's HNSWStore.Save.
func (s *VectorStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for v, vg := range s.graphs {
		path := s.graphPath(v)
		tmp := path + ".tmp"
		file, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create temp graph file: %w", err)
		}
		if err := vg.graph.Export(file); err != nil {
			_ = file.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("export graph for vault %s: %w", v, err)
		}
		if err := file.Close(); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("close temp graph file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename graph file for vault %s: %w", v, err)
		}
	}
	return nil
}

func vectorID(fileHash string, chunkIndex int) string {
	return fileHash + "|" + strconv.Itoa(chunkIndex)
}

// UpsertChunks deletes any existing records for records' file hashes, then
// inserts all of records. This is the only write path; there are no
// in-place updates (spec §4.4).
func (s *VectorStore) UpsertChunks(vault model.Vault, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vg, ok := s.graphs[vault]
	if !ok {
		return errs.New(errs.KindVectorSearch, "vault not initialized, call EnsureTables first", nil).WithPath(string(vault))
	}

	hashes := make(map[string]struct{})
	for _, r := range records {
		hashes[r.FileHash] = struct{}{}
	}
	for h := range hashes {
		if err := s.deleteByHashLocked(vault, vg, h); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO vector_meta
		(vault, file_hash, chunk_index, path, mtime_ms, category, date, people, title, content, page_number, graph_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Vector) != s.dimensions && s.dimensions != 0 {
			return errs.New(errs.KindVectorSearch, fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", s.dimensions, len(r.Vector)), nil).WithPath(r.Path)
		}

		key := vg.nextKey
		vg.nextKey++
		id := vectorID(r.FileHash, r.ChunkIndex)

		vec := normalized(r.Vector)
		vg.graph.Add(hnsw.MakeNode(key, vec))
		vg.idMap[id] = key
		vg.keyMap[key] = id

		if _, err := stmt.Exec(
			string(vault), r.FileHash, r.ChunkIndex, r.Path, r.ModTime.UnixMilli(),
			r.Metadata.Category, r.Metadata.Date, strings.Join(r.Metadata.People, ","),
			r.Metadata.Title, r.Content, r.PageNumber, int64(key),
		); err != nil {
			return fmt.Errorf("insert vector_meta: %w", err)
		}
	}

	return tx.Commit()
}

// deleteByHashLocked removes every record with file_hash == hash from both
// the graph (lazily — orphaning the node, never calling graph.Delete, to
// avoid coder/hnsw's last-node-delete issue) and the metadata table. Caller
// must hold s.mu.
func (s *VectorStore) deleteByHashLocked(vault model.Vault, vg *vaultGraph, hash string) error {
	rows, err := s.db.Query(`SELECT chunk_index FROM vector_meta WHERE vault = ? AND file_hash = ?`, string(vault), hash)
	if err != nil {
		return err
	}
	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			rows.Close()
			return err
		}
		indices = append(indices, idx)
	}
	rows.Close()

	for _, idx := range indices {
		id := vectorID(hash, idx)
		if key, ok := vg.idMap[id]; ok {
			delete(vg.keyMap, key)
			delete(vg.idMap, id)
		}
	}

	_, err = s.db.Exec(`DELETE FROM vector_meta WHERE vault = ? AND file_hash = ?`, string(vault), hash)
	return err
}

// ClearVault removes every record belonging to vault — both the metadata
// rows and the in-memory graph, which is replaced with a fresh empty one so
// a concurrent Search never observes a graph with dangling keys. Used by
// the indexing orchestrator's full-reindex path (spec §4.12: "drop all
// records, then enumerate, extract, chunk, embed, and upsert every
// document").
func (s *VectorStore) ClearVault(vault model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM vector_meta WHERE vault = ?`, string(vault)); err != nil {
		return fmt.Errorf("clear vector_meta: %w", err)
	}
	s.graphs[vault] = newVaultGraph()
	return nil
}

// DeleteByHash removes all records with file_hash == hash.
func (s *VectorStore) DeleteByHash(vault model.Vault, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vg, ok := s.graphs[vault]
	if !ok {
		return nil
	}
	return s.deleteByHashLocked(vault, vg, hash)
}

// DeleteByPath removes all records with file_path == path.
func (s *VectorStore) DeleteByPath(vault model.Vault, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vg, ok := s.graphs[vault]
	if !ok {
		return nil
	}

	rows, err := s.db.Query(`SELECT file_hash, chunk_index FROM vector_meta WHERE vault = ? AND path = ?`, string(vault), path)
	if err != nil {
		return err
	}
	type key struct {
		hash string
		idx  int
	}
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.hash, &k.idx); err != nil {
			rows.Close()
			return err
		}
		keys = append(keys, k)
	}
	rows.Close()

	for _, k := range keys {
		id := vectorID(k.hash, k.idx)
		if gk, ok := vg.idMap[id]; ok {
			delete(vg.keyMap, gk)
			delete(vg.idMap, id)
		}
	}

	_, err = s.db.Exec(`DELETE FROM vector_meta WHERE vault = ? AND path = ?`, string(vault), path)
	return err
}

// ListPathsWithMeta returns, for every distinct path still present, the
// file hash and most recent mtime — used by the change detector (C6) to
// decide which files on disk need re-ingest.
func (s *VectorStore) ListPathsWithMeta(vault model.Vault) (map[string]PathMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT path, file_hash, MAX(mtime_ms) FROM vector_meta WHERE vault = ? GROUP BY path`, string(vault))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]PathMeta)
	for rows.Next() {
		var path, hash string
		var mtimeMS int64
		if err := rows.Scan(&path, &hash, &mtimeMS); err != nil {
			return nil, err
		}
		out[path] = PathMeta{FileHash: hash, MTimeMS: mtimeMS}
	}
	return out, rows.Err()
}

// TouchMTime updates the stored mtime for every record with file_hash ==
// hash, without touching the graph or re-embedding — used by the change
// detector's tier-2 skip (content unchanged, mtime moved).
func (s *VectorStore) TouchMTime(vault model.Vault, hash string, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE vector_meta SET mtime_ms = ? WHERE vault = ? AND file_hash = ?`, mtime.UnixMilli(), string(vault), hash)
	return err
}

// Search returns the k nearest records to queryVector in vault, each
// annotated with a raw distance (not a converted score; DistanceToScore
// does that). filters narrows the candidate set after the graph search —
// the HNSW library has no native predicate support, so this adapter
// over-fetches and filters in Go.
func (s *VectorStore) Search(ctx context.Context, vault model.Vault, queryVector []float32, filters Filters, k int) ([]VectorSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vg, ok := s.graphs[vault]
	if !ok {
		return nil, errs.New(errs.KindVectorSearch, "vault not initialized", nil).WithPath(string(vault))
	}
	if vg.graph.Len() == 0 {
		return []VectorSearchResult{}, nil
	}

	query := normalized(queryVector)

	// Over-fetch to leave room for post-filtering; cap to avoid scanning the
	// whole graph on a tiny k with an aggressive filter.
	fetchK := k * 4
	if fetchK < k+20 {
		fetchK = k + 20
	}
	nodes := vg.graph.Search(query, fetchK)

	results := make([]VectorSearchResult, 0, k)
	for _, node := range nodes {
		if len(results) >= k {
			break
		}
		id, ok := vg.keyMap[node.Key]
		if !ok {
			continue // lazily deleted, orphaned node
		}
		parts := strings.SplitN(id, "|", 2)
		if len(parts) != 2 {
			continue
		}
		chunkIndex, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}

		row := s.db.QueryRow(`SELECT path, mtime_ms, category, date, people, title, content, page_number
			FROM vector_meta WHERE vault = ? AND file_hash = ? AND chunk_index = ?`, string(vault), parts[0], chunkIndex)

		var path, category, date, peopleCSV, title, content string
		var mtimeMS int64
		var pageNumber int
		if err := row.Scan(&path, &mtimeMS, &category, &date, &peopleCSV, &title, &content, &pageNumber); err != nil {
			continue // record was deleted between the graph search and this scan
		}

		var people []string
		if peopleCSV != "" {
			people = strings.Split(peopleCSV, ",")
		}
		meta := model.Metadata{Title: title, Date: date, Category: category, Vault: vault, People: people}
		if !filters.matches(meta) {
			continue
		}

		distance := vg.graph.Distance(query, node.Value)
		results = append(results, VectorSearchResult{
			Chunk: model.Chunk{
				FileHash:   parts[0],
				ChunkIndex: chunkIndex,
				Content:    content,
				Source:     sourceFromPage(pageNumber),
				PageNumber: pageNumber,
				Path:       path,
				Metadata:   meta,
				ModTime:    time.UnixMilli(mtimeMS),
			},
			Distance: distance,
		})
	}

	return results, nil
}

func sourceFromPage(pageNumber int) model.SourceType {
	if pageNumber > 0 {
		return model.SourcePDF
	}
	return model.SourceMarkdown
}

// Close releases the shared database handle. Callers share this handle
// with the keyword store, so only the component that owns the *sql.DB
// (VectorStore, constructed first) should call Close.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// DB exposes the shared SQLite handle so the keyword store can use the same
// connection pool (spec §4.5: "same SQLite handle used by C4").
func (s *VectorStore) DB() *sql.DB {
	return s.db
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Package changedetect implements the two-tier change detector (spec
// §4.6): given a vault root, it diffs the files on disk against the
// vector index's recorded (file_hash, mtime) per path and classifies each
// path as a delete, a tier-1 skip (mtime unchanged within tolerance), a
// tier-2 skip (mtime moved but content identical), or a candidate that
// needs re-ingest.
package changedetect

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ahart-dev/vaultmind/internal/metadata"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/scanner"
	"github.com/ahart-dev/vaultmind/internal/store"
)

// Candidate is a file whose content must be (re-)chunked and embedded.
// Content is read once here and carried forward so the indexing
// orchestrator never re-reads the file from disk.
type Candidate struct {
	Path    string
	Content []byte
	ModTime time.Time
}

// Touched is a file whose content is unchanged but whose on-disk mtime
// moved (e.g. touch, copy, checkout) — only the stored mtime is updated.
type Touched struct {
	Path     string
	FileHash string
	ModTime  time.Time
}

// Plan is the full classification of one vault's file set against the
// vector index's current state.
type Plan struct {
	Deletes   []string // paths in the index no longer present on disk
	Unchanged []string // tier-1 skip: on-disk mtime within tolerance of the stored value
	Touched   []Touched
	Reingest  []Candidate
}

// Detector computes a Plan for one vault at a time.
type Detector struct {
	scanner   *scanner.Scanner
	vectors   *store.VectorStore
	tolerance time.Duration
}

// New builds a Detector. tolerance is the mtime-comparison window (spec
// §4.6 default ±1s, configurable via Indexing.MTimeToleranceMS).
func New(sc *scanner.Scanner, vectors *store.VectorStore, tolerance time.Duration) *Detector {
	return &Detector{scanner: sc, vectors: vectors, tolerance: tolerance}
}

// Detect walks root and classifies every path against the index's current
// state for vault.
func (d *Detector) Detect(ctx context.Context, vault model.Vault, root string) (*Plan, error) {
	existing, err := d.vectors.ListPathsWithMeta(vault)
	if err != nil {
		return nil, fmt.Errorf("list existing paths: %w", err)
	}

	results, err := d.scanner.Scan(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan vault root: %w", err)
	}

	plan := &Plan{}
	onDisk := make(map[string]bool)

	for r := range results {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if r.Err != nil {
			continue // one bad path never aborts the whole detection pass
		}
		path := r.File.Path
		onDisk[path] = true

		prior, known := existing[path]
		if known && mtimeWithinTolerance(r.File.ModTime, prior.MTimeMS, d.tolerance) {
			plan.Unchanged = append(plan.Unchanged, path) // tier-1 skip: mtime unchanged, no further work
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			continue // unreadable file; leave prior index state as-is
		}
		hash := metadata.ContentHash(raw)

		if known && hash == prior.FileHash {
			// tier-2 skip: content identical, only the mtime moved.
			plan.Touched = append(plan.Touched, Touched{Path: path, FileHash: hash, ModTime: r.File.ModTime})
			continue
		}

		plan.Reingest = append(plan.Reingest, Candidate{Path: path, Content: raw, ModTime: r.File.ModTime})
	}

	for path := range existing {
		if !onDisk[path] {
			plan.Deletes = append(plan.Deletes, path)
		}
	}

	return plan, nil
}

// mtimeWithinTolerance reports whether diskTime and the stored millisecond
// timestamp differ by tolerance or less.
func mtimeWithinTolerance(diskTime time.Time, storedMS int64, tolerance time.Duration) bool {
	diff := diskTime.UnixMilli() - storedMS
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Millisecond <= tolerance
}

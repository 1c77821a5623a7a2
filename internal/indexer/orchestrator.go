// Package indexer implements the indexing orchestrator (C12): full and
// incremental ingestion of a vault's markdown and PDF files into both the
// vector and keyword indices, with progress reporting and cooperative
// cancellation.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahart-dev/vaultmind/internal/changedetect"
	"github.com/ahart-dev/vaultmind/internal/chunk"
	"github.com/ahart-dev/vaultmind/internal/embed"
	"github.com/ahart-dev/vaultmind/internal/errs"
	"github.com/ahart-dev/vaultmind/internal/metadata"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/scanner"
	"github.com/ahart-dev/vaultmind/internal/store"
)

// minDocChars is the shortest body (frontmatter stripped) worth indexing;
// shorter documents are skipped silently (spec §8 boundary behavior).
const minDocChars = 50

// ProgressFunc receives a snapshot after every processed file. The
// orchestrator computes Percent and ETASeconds itself via linear
// extrapolation from elapsed/processed, grounded on the teacher's
// IndexProgress snapshot type (re-keyed to this spec's
// processed/total/percent/ETA fields).
type ProgressFunc func(model.Progress)

// Counters tallies per-category outcomes for one Run call (spec §4.12).
type Counters struct {
	MDIndexed      int
	MDSkippedMtime int
	MDSkippedHash  int
	PDFIndexed     int
	PDFSkipped     int
	Deleted        int
}

// Result summarizes one Run call.
type Result struct {
	Counters     Counters
	IndexedCount int
	Cancelled    bool
}

// Orchestrator runs full and incremental ingestion for a single vault pair
// (work, personal), sharing one embedder and one pair of index adapters.
// One Orchestrator instance carries the single shared cancellation flag the
// job controller (C13) sets and resets (spec §9 open question: "shared
// cancellation flag").
type Orchestrator struct {
	vectors  *store.VectorStore
	keywords store.KeywordIndex
	embedder embed.Embedder
	scanner  *scanner.Scanner
	detector *changedetect.Detector
	chunkers []chunk.Chunker

	workRoot     string
	personalRoot string

	workers       int
	yieldEveryMD  int
	yieldEveryPDF int

	cancelled atomic.Bool
}

// New builds an Orchestrator. workers, yieldEveryMD and yieldEveryPDF fall
// back to spec defaults (2, 10, 5) when given as zero.
func New(
	vectors *store.VectorStore,
	keywords store.KeywordIndex,
	embedder embed.Embedder,
	sc *scanner.Scanner,
	chunkers []chunk.Chunker,
	workRoot, personalRoot string,
	mtimeTolerance time.Duration,
	workers, yieldEveryMD, yieldEveryPDF int,
) *Orchestrator {
	if workers <= 0 {
		workers = 2
	}
	if yieldEveryMD <= 0 {
		yieldEveryMD = 10
	}
	if yieldEveryPDF <= 0 {
		yieldEveryPDF = 5
	}
	return &Orchestrator{
		vectors:       vectors,
		keywords:      keywords,
		embedder:      embedder,
		scanner:       sc,
		detector:      changedetect.New(sc, vectors, mtimeTolerance),
		chunkers:      chunkers,
		workRoot:      workRoot,
		personalRoot:  personalRoot,
		workers:       workers,
		yieldEveryMD:  yieldEveryMD,
		yieldEveryPDF: yieldEveryPDF,
	}
}

// Cancel sets the shared cancellation flag; an in-flight Run observes it
// before starting its next file or chunk embedding call.
func (o *Orchestrator) Cancel() { o.cancelled.Store(true) }

// ResetCancel clears the shared cancellation flag — called by the job
// controller when a new job starts (spec §4.13).
func (o *Orchestrator) ResetCancel() { o.cancelled.Store(false) }

func (o *Orchestrator) isCancelled() bool { return o.cancelled.Load() }

func (o *Orchestrator) rootFor(vault model.Vault) string {
	if vault == model.VaultPersonal {
		return o.personalRoot
	}
	return o.workRoot
}

func (o *Orchestrator) chunkerFor(path string) chunk.Chunker {
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range o.chunkers {
		for _, supported := range c.SupportedExtensions() {
			if supported == ext {
				return c
			}
		}
	}
	return nil
}

// Run executes either a full or incremental reindex of vault, reporting
// progress through progressFn (which may be nil).
func (o *Orchestrator) Run(ctx context.Context, vault model.Vault, full bool, progressFn ProgressFunc) (Result, error) {
	root := o.rootFor(vault)
	if root == "" {
		return Result{}, fmt.Errorf("indexer: no root configured for vault %q", vault)
	}

	var counters Counters

	if full {
		if err := o.vectors.ClearVault(vault); err != nil {
			return Result{}, fmt.Errorf("clear vector vault: %w", err)
		}
		if err := o.keywords.ClearVault(vault); err != nil {
			return Result{}, fmt.Errorf("clear keyword vault: %w", err)
		}
		candidates, err := o.collectAllFiles(ctx, root)
		if err != nil {
			return Result{}, fmt.Errorf("scan vault: %w", err)
		}
		cancelled := o.ingest(ctx, vault, candidates, &counters, progressFn, len(candidates))
		return Result{Counters: counters, IndexedCount: counters.MDIndexed + counters.PDFIndexed, Cancelled: cancelled}, nil
	}

	plan, err := o.detector.Detect(ctx, vault, root)
	if err != nil {
		return Result{}, fmt.Errorf("detect changes: %w", err)
	}

	total := len(plan.Reingest) + len(plan.Touched) + len(plan.Unchanged) + len(plan.Deletes)
	processed := 0
	start := time.Now()

	for _, d := range plan.Deletes {
		if err := o.vectors.DeleteByPath(vault, d); err != nil {
			slog.Warn("delete_vector_by_path_failed", slog.String("path", d), slog.String("error", err.Error()))
		}
		if err := o.keywords.DeleteDocument(d, &vault); err != nil {
			slog.Warn("delete_keyword_document_failed", slog.String("path", d), slog.String("error", err.Error()))
		}
		counters.Deleted++
		processed++
		reportProgress(progressFn, processed, total, d, start)
	}

	// Tier-1 skip (spec: md_skipped(mtime)/pdf_skipped) — mtime within
	// tolerance of the stored value, never even reached a hash comparison.
	for _, path := range plan.Unchanged {
		if isPDF(path) {
			counters.PDFSkipped++
		} else {
			counters.MDSkippedMtime++
		}
		processed++
		reportProgress(progressFn, processed, total, path, start)
	}

	// Tier-2 skip (spec: md_skipped(hash)/pdf_skipped) — mtime moved but the
	// content hash is identical, so only the stored mtime is refreshed.
	for _, touched := range plan.Touched {
		if err := o.vectors.TouchMTime(vault, touched.FileHash, touched.ModTime); err != nil {
			slog.Warn("touch_mtime_failed", slog.String("path", touched.Path), slog.String("error", err.Error()))
		}
		if isPDF(touched.Path) {
			counters.PDFSkipped++
		} else {
			counters.MDSkippedHash++
		}
		processed++
		reportProgress(progressFn, processed, total, touched.Path, start)
	}

	candidates := make([]changedetect.Candidate, len(plan.Reingest))
	copy(candidates, plan.Reingest)

	cancelled := o.ingest(ctx, vault, candidates, &counters, func(p model.Progress) {
		// Re-key onto the running total/processed that already accounts for
		// deletes and touched files processed above.
		p.Processed += processed
		p.Total = total
		if total > 0 {
			p.Percent = float64(p.Processed) / float64(total) * 100
		}
		if progressFn != nil {
			progressFn(p)
		}
	}, len(candidates))

	return Result{Counters: counters, IndexedCount: counters.MDIndexed + counters.PDFIndexed, Cancelled: cancelled}, nil
}

// collectAllFiles drains the scanner and reads every discovered file's
// content, producing the same Candidate shape the change detector emits for
// Reingest — so the ingest pipeline has exactly one consumer-side shape
// regardless of whether it is a full or incremental run.
func (o *Orchestrator) collectAllFiles(ctx context.Context, root string) ([]changedetect.Candidate, error) {
	results, err := o.scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	var candidates []changedetect.Candidate
	for r := range results {
		if r.Err != nil {
			continue
		}
		raw, err := os.ReadFile(r.File.Path)
		if err != nil {
			slog.Warn("read_file_failed", slog.String("path", r.File.Path), slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, changedetect.Candidate{Path: r.File.Path, Content: raw, ModTime: r.File.ModTime})
	}
	return candidates, nil
}

// preparedFile is the output of the CPU-bound prep stage (hash, frontmatter,
// chunking) run on the worker pool.
type preparedFile struct {
	path        string
	modTime     time.Time
	contentHash string
	meta        model.Metadata
	body        string
	chunks      []model.Chunk
	isPDF       bool
	skipped     bool
}

// ingest runs the shared pipeline over candidates: CPU-bound prep
// (frontmatter + chunking) fans out across a small worker pool (spec §4.12,
// §5 — kept deliberately small so it never contends with the embedder's own
// network concurrency), while the embed-and-upsert stage that follows runs
// as prepared files arrive off the pool. It returns whether the run ended
// early due to cancellation.
func (o *Orchestrator) ingest(ctx context.Context, vault model.Vault, candidates []changedetect.Candidate, counters *Counters, progressFn ProgressFunc, total int) bool {
	prepared := make(chan preparedFile, o.workers*2)

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers)
	var dispatchCancelled atomic.Bool

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(prepared)

		g, gctx := errgroup.WithContext(ctx)
		for _, cand := range candidates {
			if o.isCancelled() || gctx.Err() != nil {
				dispatchCancelled.Store(true)
				break
			}
			cand := cand
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				dispatchCancelled.Store(true)
			}
			if dispatchCancelled.Load() {
				break
			}
			g.Go(func() error {
				defer func() { <-sem }()
				pf := o.prepare(gctx, cand)
				select {
				case prepared <- pf:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	processed := 0
	start := time.Now()
	cancelled := false

	for pf := range prepared {
		processed++
		if pf.skipped {
			reportProgress(progressFn, processed, total, pf.path, start)
			continue
		}

		if o.isCancelled() {
			cancelled = true
			reportProgress(progressFn, processed, total, pf.path, start)
			continue // drain the channel without doing further embedding work
		}

		o.embedAndUpsert(ctx, vault, pf, counters)
		reportProgress(progressFn, processed, total, pf.path, start)

		if pf.isPDF {
			if processed%o.yieldEveryPDF == 0 {
				runtime.Gosched()
			}
		} else if processed%o.yieldEveryMD == 0 {
			runtime.Gosched()
		}
	}

	wg.Wait()
	return cancelled || dispatchCancelled.Load()
}

// prepare runs the CPU-bound stage for one candidate: content hash,
// frontmatter/metadata extraction, and chunking. It never touches the
// network.
func (o *Orchestrator) prepare(ctx context.Context, cand changedetect.Candidate) preparedFile {
	contentHash := metadata.ContentHash(cand.Content)
	workRoot, personalRoot := o.workRoot, o.personalRoot
	meta, body := metadata.Extract(cand.Path, cand.Content, workRoot, personalRoot)
	pdf := isPDF(cand.Path)

	if len(strings.TrimSpace(body)) < minDocChars {
		slog.Debug("skip_short_or_empty_doc", slog.String("path", cand.Path))
		return preparedFile{path: cand.Path, modTime: cand.ModTime, isPDF: pdf, skipped: true}
	}

	chunker := o.chunkerFor(cand.Path)
	if chunker == nil {
		slog.Warn("no_chunker_for_extension", slog.String("path", cand.Path))
		return preparedFile{path: cand.Path, modTime: cand.ModTime, isPDF: pdf, skipped: true}
	}

	chunks, err := chunker.Chunk(ctx, chunk.FileInput{Path: cand.Path, Content: cand.Content, Metadata: meta}, contentHash)
	if err != nil {
		slog.Warn("chunk_failed", slog.String("path", cand.Path), slog.String("error", errs.New(errs.KindReadFile, "chunk document", err).WithPath(cand.Path).Error()))
		return preparedFile{path: cand.Path, modTime: cand.ModTime, isPDF: pdf, skipped: true}
	}
	if len(chunks) == 0 {
		return preparedFile{path: cand.Path, modTime: cand.ModTime, isPDF: pdf, skipped: true}
	}

	return preparedFile{
		path:        cand.Path,
		modTime:     cand.ModTime,
		contentHash: contentHash,
		meta:        meta,
		body:        body,
		chunks:      chunks,
		isPDF:       pdf,
	}
}

// embedAndUpsert embeds every chunk of pf (checking cancellation before each
// call, per spec §4.12) and upserts whatever embedded successfully into
// both indices. A chunk whose embedding call fails is skipped; the file's
// other chunks still commit (spec §7 embedding-unavailable).
func (o *Orchestrator) embedAndUpsert(ctx context.Context, vault model.Vault, pf preparedFile, counters *Counters) {
	records := make([]model.VectorRecord, 0, len(pf.chunks))

	for _, ch := range pf.chunks {
		if o.isCancelled() {
			break
		}
		vec, err := o.embedder.Embed(ctx, ch.Content)
		if err != nil {
			slog.Warn("embed_chunk_failed", slog.String("path", pf.path), slog.Int("chunk_index", ch.ChunkIndex), slog.String("error", err.Error()))
			continue
		}
		ch.ModTime = pf.modTime
		records = append(records, model.VectorRecord{Chunk: ch, Vector: vec})
	}

	if len(records) == 0 {
		return
	}

	if err := o.vectors.UpsertChunks(vault, records); err != nil {
		slog.Warn("upsert_chunks_failed", slog.String("path", pf.path), slog.String("error", err.Error()))
		return
	}

	if err := o.keywords.UpsertDocument(vault, pf.path, pf.meta.Title, pf.body, pf.meta.Category, pf.meta.People, pf.meta.Date, pf.contentHash); err != nil {
		slog.Warn("upsert_keyword_document_failed", slog.String("path", pf.path),
			slog.String("error", errs.New(errs.KindKeywordUpsert, "upsert document", err).WithPath(pf.path).Error()))
		// The vector half already committed; a failing keyword upsert
		// degrades search for this doc to vector-only rather than losing it.
	}

	if pf.isPDF {
		counters.PDFIndexed++
	} else {
		counters.MDIndexed++
	}
}

func reportProgress(fn ProgressFunc, processed, total int, currentFile string, start time.Time) {
	if fn == nil {
		return
	}
	p := model.Progress{Processed: processed, Total: total, CurrentFile: currentFile}
	if total > 0 {
		p.Percent = float64(processed) / float64(total) * 100
	}
	elapsed := time.Since(start)
	if processed > 0 && total > processed {
		perItem := elapsed.Seconds() / float64(processed)
		p.ETASeconds = perItem * float64(total-processed)
	}
	fn(p)
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

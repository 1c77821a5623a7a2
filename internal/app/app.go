// Package app assembles one Application value: every store, the embedder,
// the search engine, the indexing orchestrator, and the job controller,
// built from a single Config (spec §9 design note: an explicit Application
// value in place of the teacher's process-wide singletons, so the HTTP and
// MCP surfaces — and tests — can each hold their own instance).
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ahart-dev/vaultmind/internal/chunk"
	"github.com/ahart-dev/vaultmind/internal/config"
	"github.com/ahart-dev/vaultmind/internal/embed"
	"github.com/ahart-dev/vaultmind/internal/indexer"
	"github.com/ahart-dev/vaultmind/internal/job"
	"github.com/ahart-dev/vaultmind/internal/metrics"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/scanner"
	"github.com/ahart-dev/vaultmind/internal/search"
	"github.com/ahart-dev/vaultmind/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Application holds every wired component a vaultmind entrypoint needs,
// whether that's the CLI, the HTTP server, or the MCP server.
type Application struct {
	Config *config.Config

	Vectors  *store.VectorStore
	Keywords store.KeywordIndex
	Embedder embed.Embedder

	Engine       *search.Engine
	Orchestrator *indexer.Orchestrator
	Jobs         *job.Controller
	Metrics      *metrics.Collector
}

// Option configures an Application at construction time.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer overrides the Prometheus registerer the metrics collector
// registers against — production leaves this unset (DefaultRegisterer);
// tests that build more than one Application in the same process pass a
// fresh prometheus.NewRegistry() to avoid a duplicate-registration panic.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds an Application from cfg. It opens the on-disk stores
// (VectorStore's SQLite handle, optionally a Bleve index directory) but
// does not start any network listener or background goroutine — callers
// decide whether that's an HTTP server, an MCP stdio loop, or a one-shot
// CLI command.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	vaultSet := []model.Vault{model.VaultWork, model.VaultPersonal}

	vectors, err := store.NewVectorStore(cfg.Vaults.DataDir, cfg.Embeddings.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("app: open vector store: %w", err)
	}
	if err := vectors.EnsureTables(vaultSet); err != nil {
		return nil, fmt.Errorf("app: ensure vector tables: %w", err)
	}

	keywords, err := newKeywordIndex(cfg, vectors)
	if err != nil {
		return nil, fmt.Errorf("app: open keyword store: %w", err)
	}

	embedder := embed.NewCachedEmbedder(
		embed.NewClient(cfg.Embeddings.Host, cfg.Embeddings.Model, time.Duration(cfg.Embeddings.TimeoutMS)*time.Millisecond),
		cfg.Embeddings.CacheSize,
	)

	classifier := search.NewClassifier(cfg.Classifier.Stopwords)

	engineOpts := []search.Option{
		search.WithRRFConstant(cfg.Search.RRFConstant),
		search.WithRerankAlpha(cfg.Search.RerankAlpha),
		search.WithMaxResults(cfg.Search.MaxResults),
	}
	if cfg.Rerank.Enabled {
		engineOpts = append(engineOpts,
			search.WithReranker(search.NewReranker(cfg.Rerank.GatewayURL, cfg.Rerank.Model, time.Duration(cfg.Rerank.TimeoutMS)*time.Millisecond, cfg.Rerank.Concurrency)),
			search.WithExpander(search.NewExpander(cfg.Rerank.GatewayURL, cfg.Rerank.Model, time.Duration(cfg.Rerank.TimeoutMS)*time.Millisecond, 3)),
		)
	}

	engine, err := search.NewEngine(vectors, keywords, embedder, classifier, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: build search engine: %w", err)
	}

	sc := scanner.New()
	chunkers := []chunk.Chunker{
		chunk.NewMarkdownChunker(cfg.Indexing.ChunkSizeTokens, cfg.Indexing.ChunkOverlapTokens),
		chunk.NewPDFChunker(cfg.Indexing.ChunkSizeTokens, cfg.Indexing.ChunkOverlapTokens),
	}
	orchestrator := indexer.New(
		vectors, keywords, embedder, sc, chunkers,
		cfg.Vaults.WorkRoot, cfg.Vaults.PersonalRoot,
		time.Duration(cfg.Indexing.MTimeToleranceMS)*time.Millisecond,
		cfg.Indexing.Workers, cfg.Indexing.YieldEveryMD, cfg.Indexing.YieldEveryPDF,
	)

	jobs := job.New(orchestrator, cfg.Indexing.LockPath)
	collector := metrics.New("vaultmind", o.registerer)

	return &Application{
		Config:       cfg,
		Vectors:      vectors,
		Keywords:     keywords,
		Embedder:     embedder,
		Engine:       engine,
		Orchestrator: orchestrator,
		Jobs:         jobs,
		Metrics:      collector,
	}, nil
}

// newKeywordIndex selects the SQLite FTS5 or Bleve backend per
// cfg.Search.KeywordBackend (spec §9 open question). The SQLite backend
// shares vectors' database handle rather than opening a second connection.
func newKeywordIndex(cfg *config.Config, vectors *store.VectorStore) (store.KeywordIndex, error) {
	switch cfg.Search.KeywordBackend {
	case "bleve":
		return store.NewBleveKeywordStore(cfg.Vaults.DataDir + "/bleve")
	case "", "sqlite":
		return store.NewKeywordStore(vectors.DB())
	default:
		return nil, fmt.Errorf("app: unknown keyword backend %q", cfg.Search.KeywordBackend)
	}
}

// Close writes the in-memory vector graphs to disk, then releases every
// store's file handles.
func (a *Application) Close() error {
	saveErr := a.Vectors.Save()
	var keywordErr error
	if c, ok := a.Keywords.(io.Closer); ok {
		keywordErr = c.Close()
	}
	return errors.Join(saveErr, keywordErr, a.Vectors.Close())
}

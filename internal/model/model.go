// Package model holds the data types shared across the ingestion and
// retrieval pipelines: documents, chunks, index records, and job state.
package model

import "time"

// SourceType distinguishes the two document formats the corpus can contain.
type SourceType string

const (
	SourceMarkdown SourceType = "markdown"
	SourcePDF      SourceType = "pdf"
)

// Vault names the two corpus partitions.
type Vault string

const (
	VaultWork     Vault = "work"
	VaultPersonal Vault = "personal"
)

// Metadata is the set of attributes derived from a document by the metadata
// extractor (C2) and inherited by every chunk produced from it.
type Metadata struct {
	Title    string
	Date     string // YYYY-MM-DD, empty when undefined
	Category string
	Vault    Vault
	People   []string
	Projects []string
}

// Document is a source artifact identified by its absolute path.
type Document struct {
	Path        string
	Source      SourceType
	ModTime     time.Time
	ContentHash string // MD5 of the full text (markdown) or raw bytes (PDF)
	Metadata    Metadata
}

// Chunk is a contiguous, bounded span of a Document — the unit of vector
// indexing. Identity is (FileHash, ChunkIndex).
type Chunk struct {
	FileHash   string
	ChunkIndex int
	Content    string
	Source     SourceType
	PageNumber int // 1-based; zero means not applicable (markdown)
	Path       string
	Metadata   Metadata
	ModTime    time.Time
}

// VectorRecord is a chunk plus its embedding, as stored by the vector index
// adapter (C4).
type VectorRecord struct {
	Chunk
	Vector []float32
}

// KeywordRecord is one row per document in the keyword index (C5) — unlike
// VectorRecord, it is not chunked.
type KeywordRecord struct {
	Path        string
	ContentHash string
	Title       string
	Vault       Vault
	Category    string
	People      string // comma-joined
	Date        string
	Content     string
}

// JobStatus enumerates the lifecycle states of an indexing job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Progress is mutated only by the indexing orchestrator and read by the job
// controller and the metrics surface.
type Progress struct {
	Processed   int
	Total       int
	Percent     float64
	CurrentFile string
	ETASeconds  float64
}

// Job records the state of one asynchronous indexing request.
type Job struct {
	ID           string
	Status       JobStatus
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	IndexedCount int
	Error        string
	Vault        Vault
	Full         bool
	CallbackURL  string
	Progress     Progress
}

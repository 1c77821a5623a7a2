// Package chunk splits documents into overlapping, size-bounded spans for
// vector indexing, with per-chunk provenance (page number for PDF, emission
// order for markdown).
package chunk

import (
	"context"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// CharsPerToken approximates a token as four characters; the chunker works
// in characters to avoid running a tokenizer at chunk time. The embedder
// truncates its input independently, so this is an estimate, not a contract.
const CharsPerToken = 4

// FileInput is the raw material handed to a Chunker.
type FileInput struct {
	Path     string
	Content  []byte
	Metadata model.Metadata
}

// Chunker splits one file's content into chunks. Implementations are
// stateless and safe for concurrent use.
type Chunker interface {
	// Chunk splits the input into ordered chunks. fileHash is the content
	// hash computed by the metadata extractor and copied onto every chunk.
	Chunk(ctx context.Context, input FileInput, fileHash string) ([]model.Chunk, error)

	// SupportedExtensions lists the lowercase file extensions (with the
	// leading dot) this chunker can handle.
	SupportedExtensions() []string
}

// Budget holds the chunker's soft size parameters, expressed in characters.
type Budget struct {
	SizeChars    int
	OverlapChars int
}

// NewBudget converts token-denominated config values into a character
// budget using CharsPerToken.
func NewBudget(sizeTokens, overlapTokens int) Budget {
	return Budget{
		SizeChars:    sizeTokens * CharsPerToken,
		OverlapChars: overlapTokens * CharsPerToken,
	}
}

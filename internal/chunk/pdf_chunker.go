package chunk

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ledongthuc/pdf"
)

// PDFChunker extracts text per page via github.com/ledongthuc/pdf and packs
// whole pages into the soft character budget. Overlap is text-based (the
// trailing characters of the previous chunk), not page-based: a page's
// full text never appears in more than one chunk.
type PDFChunker struct {
	budget Budget
}

// NewPDFChunker builds a chunker from token-denominated config values.
func NewPDFChunker(chunkSizeTokens, overlapTokens int) *PDFChunker {
	return &PDFChunker{budget: NewBudget(chunkSizeTokens, overlapTokens)}
}

func (c *PDFChunker) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Chunk extracts and packs page text. PageNumber on each emitted chunk is
// the 1-based page where that chunk's content begins.
func (c *PDFChunker) Chunk(ctx context.Context, input FileInput, fileHash string) ([]model.Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", input.Path, err)
	}

	pages, err := extractPages(reader)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", input.Path, err)
	}

	var chunks []model.Chunk
	var buf strings.Builder
	startPage := 0

	flush := func() {
		content := strings.TrimSpace(buf.String())
		if content == "" {
			return
		}
		chunks = append(chunks, model.Chunk{
			FileHash:   fileHash,
			ChunkIndex: len(chunks),
			Content:    content,
			Source:     model.SourcePDF,
			PageNumber: startPage,
			Path:       input.Path,
			Metadata:   input.Metadata,
		})
	}

	for _, p := range pages {
		select {
		case <-ctx.Done():
			return chunks, ctx.Err()
		default:
		}

		if strings.TrimSpace(p.text) == "" {
			continue
		}

		if buf.Len() > 0 && buf.Len()+len(p.text) > c.budget.SizeChars {
			tail := tailOverlap(buf.String(), c.budget.OverlapChars)
			flush()
			buf.Reset()
			buf.WriteString(tail)
			if tail != "" {
				buf.WriteString("\n\n")
			}
			startPage = p.number
		}
		if buf.Len() == 0 {
			startPage = p.number
		}
		buf.WriteString(p.text)
		buf.WriteString("\n\n")
	}
	flush()

	return chunks, nil
}

type pdfPage struct {
	number int
	text   string
}

// extractPages reads plain text from every page of reader, in order.
// Pages whose extraction fails are skipped rather than aborting the whole
// file, since PDFs frequently contain a handful of malformed pages.
func extractPages(reader *pdf.Reader) ([]pdfPage, error) {
	total := reader.NumPage()
	pages := make([]pdfPage, 0, total)

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, pdfPage{number: i, text: text})
	}

	return pages, nil
}

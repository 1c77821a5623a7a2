package chunk

import (
	"context"
	"regexp"
	"strings"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// headerPattern matches ATX headers up to level 3 (## Title, ### Title).
// Level-1 titles are treated as prose, not section boundaries, since vault
// notes rarely nest under a single H1.
var headerPattern = regexp.MustCompile(`(?m)^(#{2,3})\s+(.+)$`)

// MarkdownChunker splits markdown bodies on blank-line and heading
// boundaries, packing sections into a soft character budget with
// character-based tail overlap between consecutive chunks.
type MarkdownChunker struct {
	budget Budget
}

// NewMarkdownChunker builds a chunker from token-denominated config values.
func NewMarkdownChunker(chunkSizeTokens, overlapTokens int) *MarkdownChunker {
	return &MarkdownChunker{budget: NewBudget(chunkSizeTokens, overlapTokens)}
}

func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Chunk splits input.Content into ordered chunks. Sections are the blocks
// between blank lines and/or headings; the running buffer is flushed once
// appending the next section would exceed the soft character budget, and
// the new buffer is seeded with the trailing OverlapChars of the flushed
// buffer before the next section is appended.
func (c *MarkdownChunker) Chunk(ctx context.Context, input FileInput, fileHash string) ([]model.Chunk, error) {
	body := strings.TrimSpace(string(input.Content))
	if body == "" {
		return nil, nil
	}

	sections := splitSections(body)

	var chunks []model.Chunk
	var buf strings.Builder

	flush := func() {
		content := strings.TrimSpace(buf.String())
		if content == "" {
			return
		}
		chunks = append(chunks, model.Chunk{
			FileHash:   fileHash,
			ChunkIndex: len(chunks),
			Content:    content,
			Source:     model.SourceMarkdown,
			Path:       input.Path,
			Metadata:   input.Metadata,
		})
	}

	for _, sec := range sections {
		select {
		case <-ctx.Done():
			return chunks, ctx.Err()
		default:
		}

		if buf.Len() > 0 && buf.Len()+len(sec) > c.budget.SizeChars {
			tail := tailOverlap(buf.String(), c.budget.OverlapChars)
			flush()
			buf.Reset()
			buf.WriteString(tail)
			if tail != "" {
				buf.WriteString("\n\n")
			}
		}
		buf.WriteString(sec)
		buf.WriteString("\n\n")
	}
	flush()

	return chunks, nil
}

// splitSections breaks body into section strings at blank lines and
// heading boundaries. A heading always starts a new section, even if the
// previous line was not blank.
func splitSections(body string) []string {
	lines := strings.Split(body, "\n")

	var sections []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if headerPattern.MatchString(line) && cur.Len() > 0 {
			flush()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()

	return sections
}

// tailOverlap returns the trailing n characters of s, trimmed to a line
// boundary so the carried-over overlap does not begin mid-word.
func tailOverlap(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return strings.TrimSpace(s)
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

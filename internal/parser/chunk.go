package parser

import (
	"fmt"
	"strings"
	"unicode"

	"docchat/internal/config"
	"docchat/internal/models"
)

const (
	defaultChunkSize    = 1000 // runes
	defaultChunkOverlap = 200  // runes
	defaultLookback     = 100  // runes
)

// Chunk is a window of the cleaned text; Start and End are rune offsets.
type Chunk struct {
	Text  string
	Start int
	End   int
}

type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// NewChunker validates the window settings. A lookback of zero disables
// boundary search.
func NewChunker(size, overlap, lookback int) (*Chunker, error) {
	if size <= 0 {
		return nil, models.NewValidationError("chunker", fmt.Sprintf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, models.NewValidationError("chunker", fmt.Sprintf("chunk overlap must be in [0, %d), got %d", size, overlap))
	}
	if lookback < 0 {
		lookback = 0
	}
	return &Chunker{size: size, overlap: overlap, lookback: lookback}, nil
}

// NewChunkerFromConfig falls back to the default window when cfg is nil.
func NewChunkerFromConfig(cfg *config.Config) (*Chunker, error) {
	if cfg == nil {
		return NewChunker(defaultChunkSize, defaultChunkOverlap, defaultLookback)
	}
	return NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.BoundaryLookback)
}

// Split cleans text and cuts it into overlapping windows. Consecutive chunks
// always overlap or touch, so the text after each previous End rebuilds the
// cleaned input.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(CleanText(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []Chunk{{Text: string(runes), Start: 0, End: n}}
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := min(start+c.size, n)
		if end < n {
			end = c.boundary(runes, start, end)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Start: start, End: end})
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// Texts is Split without the offsets.
func (c *Chunker) Texts(text string) []string {
	chunks := c.Split(text)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}

// boundary moves end back to a sentence end, else a whitespace, within the
// lookback. It never returns a value <= start.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	lo := max(start+1, end-c.lookback)
	for i := end; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) && isSentenceEnd(runes[i-1]) {
			return i
		}
	}
	for i := end; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// CleanText collapses whitespace runs into single spaces and drops control
// characters.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Reassemble joins the non-overlapping parts of chunks produced by Split.
func Reassemble(chunks []Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		skip := max(prevEnd-ch.Start, 0)
		if skip < len(runes) {
			b.WriteString(string(runes[skip:]))
		}
		prevEnd = max(prevEnd, ch.End)
	}
	return b.String()
}

package text

import (
	"context"
	"errors"
	"unicode"
	"unicode/utf8"
)

var (
	ErrChunkingFailed = errors.New("chunking failed")
	ErrInvalidConfig  = errors.New("invalid chunking config")
	ErrEmptyInput     = errors.New("no text to chunk")

	// ErrEmbedder marks failures of the external embedding call. They are
	// transient from the caller's point of view.
	ErrEmbedder = errors.New("embedder call failed")
)

// Chunk is one slice of a document. Start and End are rune offsets into the
// source text; the first Overlap runes of Text repeat the tail of the previous chunk.
type Chunk struct {
	Text       string
	Index      int
	Start      int
	End        int
	Overlap    int
	Page       int
	Sheet      string
	TokenCount int
}

// Locator tags the rune range [Start, End) of a source text with its origin.
type Locator struct {
	Start int
	End   int
	Page  int
	Sheet string
}

type Source struct {
	Text     string
	Locators []Locator
}

// Chunker splits text according to one strategy.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]Chunk, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

func blank(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

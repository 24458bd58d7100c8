package text

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options tune the semantic strategy's embedder usage.
type Options struct {
	EmbedBatchSize   int
	EmbedConcurrency int
}

func DefaultOptions() Options {
	return Options{EmbedBatchSize: 32, EmbedConcurrency: 4}
}

// New returns the Chunker for cfg.Strategy. emb is only used by the semantic strategy.
func New(cfg Config, emb Embedder) (Chunker, error) {
	return newChunker(cfg, emb, DefaultOptions())
}

func newChunker(cfg Config, emb Embedder, opts Options) (Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyFixedSize:
		return &FixedSize{cfg: cfg}, nil
	case StrategySentence:
		return &Sentence{cfg: cfg}, nil
	case StrategyRecursive:
		return &Recursive{cfg: cfg}, nil
	case StrategyMarkdown:
		return &Markdown{cfg: cfg}, nil
	case StrategySemantic:
		if emb == nil {
			return nil, fmt.Errorf("%w: semantic strategy requires an embedder", ErrInvalidConfig)
		}
		return &Semantic{cfg: cfg, emb: emb, opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
}

type Service struct {
	opts Options
}

func NewService(opts Options) *Service {
	return &Service{opts: opts}
}

// Chunk splits src.Text with the strategy selected by cfg. The result is
// never empty. Errors match ErrEmptyInput, ErrEmbedder (possibly together
// with a context error) or ErrChunkingFailed.
func (s *Service) Chunk(ctx context.Context, src Source, cfg Config, emb Embedder) ([]Chunk, error) {
	c, err := newChunker(cfg, emb, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunkingFailed, err)
	}

	text, lead := src.Text, 0
	if cfg.TrimWhitespace {
		trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
		lead = utf8.RuneCountInString(text[:len(text)-len(trimmed)])
		text = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	chunks, err := c.Chunk(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrEmbedder),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrChunkingFailed, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: strategy %s produced no chunks", ErrChunkingFailed, cfg.Strategy)
	}

	for i := range chunks {
		chunks[i].Start += lead
		chunks[i].End += lead
		chunks[i].Page, chunks[i].Sheet = src.locate(chunks[i].Start)
	}
	return chunks, nil
}

// locate returns the innermost page and sheet covering off. An offset in the
// gap between locators resolves to the next one.
func (s Source) locate(off int) (page int, sheet string) {
	pageSize, sheetSize := -1, -1
	for _, l := range s.Locators {
		if off < l.Start || off >= l.End {
			continue
		}
		if n := l.End - l.Start; l.Page > 0 && (pageSize < 0 || n <= pageSize) {
			page, pageSize = l.Page, n
		}
		if n := l.End - l.Start; l.Sheet != "" && (sheetSize < 0 || n <= sheetSize) {
			sheet, sheetSize = l.Sheet, n
		}
	}
	if pageSize >= 0 || sheetSize >= 0 {
		return page, sheet
	}
	next := -1
	for i, l := range s.Locators {
		if l.Start > off && (next < 0 || l.Start < s.Locators[next].Start) {
			next = i
		}
	}
	if next >= 0 {
		return s.Locators[next].Page, s.Locators[next].Sheet
	}
	return 0, ""
}

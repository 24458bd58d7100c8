package text

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategySentence  Strategy = "sentence"
	StrategyRecursive Strategy = "recursive_character"
	StrategyMarkdown  Strategy = "markdown_aware"
	StrategySemantic  Strategy = "semantic"
)

// DefaultSeparators go from coarse to fine; "" means a hard character split.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Config is the per-job chunking configuration. Sizes count characters (runes).
type Config struct {
	Strategy       Strategy `json:"strategy"`
	ChunkSize      int      `json:"chunk_size"`
	ChunkOverlap   int      `json:"chunk_overlap"`
	MinChunkSize   int      `json:"min_chunk_size"`
	TrimWhitespace bool     `json:"trim_whitespace"`

	// recursive_character
	Separators    []string `json:"separators,omitempty"`
	KeepSeparator bool     `json:"keep_separator"`

	// markdown_aware
	SplitOnHeaders     bool `json:"split_on_headers"`
	PreserveCodeBlocks bool `json:"preserve_code_blocks"`

	// sentence; zero means unbounded
	MaxSentences int `json:"max_sentences,omitempty"`

	// semantic
	SimilarityThreshold float64 `json:"similarity_threshold"`
	BufferSize          int     `json:"buffer_size"`
	MaxChunkSize        int     `json:"max_chunk_size"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:            StrategyRecursive,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MinChunkSize:        50,
		TrimWhitespace:      true,
		KeepSeparator:       true,
		SplitOnHeaders:      true,
		PreserveCodeBlocks:  true,
		SimilarityThreshold: 0.5,
		BufferSize:          1,
		MaxChunkSize:        2000,
	}
}

// ParseConfig decodes raw over the defaults. An absent or null config yields the defaults.
// Size fields left out of raw are scaled to the given chunk_size, so only
// explicit values can be rejected by Validate.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := DefaultConfig()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &present); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.scaleDefaults(present)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// scaleDefaults derives the overlap, minimum and semantic maximum from
// ChunkSize, keeping the default proportions, for fields absent from present.
func (c *Config) scaleDefaults(present map[string]json.RawMessage) {
	if _, ok := present["chunk_size"]; !ok || c.ChunkSize < 1 {
		return
	}
	def := DefaultConfig()
	if _, ok := present["chunk_overlap"]; !ok {
		c.ChunkOverlap = min(def.ChunkOverlap, c.ChunkSize*def.ChunkOverlap/def.ChunkSize)
	}
	if _, ok := present["min_chunk_size"]; !ok {
		c.MinChunkSize = min(def.MinChunkSize, c.ChunkSize*def.MinChunkSize/def.ChunkSize)
	}
	if _, ok := present["max_chunk_size"]; !ok {
		c.MaxChunkSize = max(def.MaxChunkSize, 2*c.ChunkSize)
	}
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFixedSize, StrategySentence, StrategyRecursive, StrategyMarkdown, StrategySemantic:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be >= 1", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.MinChunkSize < 0 || c.MinChunkSize > c.ChunkSize {
		return fmt.Errorf("%w: min_chunk_size must be in [0, chunk_size]", ErrInvalidConfig)
	}
	if c.MaxSentences < 0 {
		return fmt.Errorf("%w: max_sentences must be >= 0", ErrInvalidConfig)
	}
	if c.Strategy == StrategySemantic {
		if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
			return fmt.Errorf("%w: similarity_threshold must be in [-1, 1]", ErrInvalidConfig)
		}
		if c.BufferSize < 0 {
			return fmt.Errorf("%w: buffer_size must be >= 0", ErrInvalidConfig)
		}
		if c.MaxChunkSize < c.ChunkSize {
			return fmt.Errorf("%w: max_chunk_size must be >= chunk_size", ErrInvalidConfig)
		}
	}
	return nil
}

func (c Config) separators() []string {
	if len(c.Separators) == 0 {
		return DefaultSeparators
	}
	return c.Separators
}

package text

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(strategy Strategy, size, overlap int) Config {
	cfg := DefaultConfig()
	cfg.Strategy = strategy
	cfg.ChunkSize = size
	cfg.ChunkOverlap = overlap
	cfg.MinChunkSize = 0
	return cfg
}

func runChunker(t *testing.T, cfg Config, text string) []Chunk {
	t.Helper()
	c, err := New(cfg, nil)
	require.NoError(t, err)
	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	return chunks
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// reconstruct joins the chunks after dropping each chunk's overlap prefix.
func reconstruct(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(string([]rune(c.Text)[c.Overlap:]))
	}
	return sb.String()
}

func requireOverlapsConsistent(t *testing.T, chunks []Chunk) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		prev, cur := []rune(chunks[i-1].Text), []rune(chunks[i].Text)
		ov := chunks[i].Overlap
		require.LessOrEqual(t, ov, len(prev))
		require.Equal(t, string(prev[len(prev)-ov:]), string(cur[:ov]), "chunk %d overlap", i)
	}
}

// topicEmbedder maps a text onto counts of a fixed keyword vocabulary.
type topicEmbedder struct {
	vocab []string
	calls atomic.Int32
	err   error
}

func (e *topicEmbedder) EmbedBatch(_ context.Context, in []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(in))
	for i, s := range in {
		lower := strings.ToLower(s)
		v := make([]float32, len(e.vocab))
		for j, w := range e.vocab {
			v[j] = float32(strings.Count(lower, w))
		}
		out[i] = v
	}
	return out, nil
}

var errEmbedDown = errors.New("embedding service unavailable")

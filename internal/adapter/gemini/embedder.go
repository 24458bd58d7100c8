package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-embedding-001"

// maxBatch is the request limit of batchEmbedContents.
const maxBatch = 100

var ErrEmptyEmbedding = errors.New("empty embedding received")

type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = DefaultModel
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

// EmbedBatch embeds texts in request order, splitting into several
// batchEmbedContents calls when needed.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "count", len(texts))
	em := e.client.EmbeddingModel(e.model)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			slog.ErrorContext(ctx, "embedding failed", "error", err)
			return nil, err
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, ErrEmptyEmbedding
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

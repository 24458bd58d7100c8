package worker

import (
	"context"

	"docflow/apps/ingestion/features/job"
	"docflow/apps/ingestion/internal/adapter/embedding"
	"docflow/apps/ingestion/internal/extract"
	"docflow/apps/ingestion/internal/text"
)

// ObjectStore is satisfied by *s3.Store.
type ObjectStore interface {
	Size(ctx context.Context, bucket, key string) (int64, error)
	Get(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName, mimeType string, cfg extract.Config) (*extract.Document, error)
}

type Chunker interface {
	Chunk(ctx context.Context, src text.Source, cfg text.Config, emb text.Embedder) ([]text.Chunk, error)
}

type EmbedderProvider interface {
	Get(ctx context.Context, cfg embedding.Config) (embedding.Embedder, error)
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// FailureRecorder persists terminal failures for operators. Satisfied by
// job.Repository.
type FailureRecorder interface {
	Save(ctx context.Context, j *job.Job) error
}

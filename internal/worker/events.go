package worker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"docflow/apps/ingestion/internal/adapter/embedding"
)

// IngestTask is the payload of TopicIngestDocument.
type IngestTask struct {
	JobID             string            `json:"job_id"`
	TransformID       int64             `json:"transform_id"`
	Owner             string            `json:"owner"`
	Bucket            string            `json:"bucket"`
	SourceFileKey     string            `json:"source_file_key"`
	DestinationBucket string            `json:"destination_bucket,omitempty"`
	MimeType          string            `json:"mime_type,omitempty"`
	FileSize          int64             `json:"file_size,omitempty"`
	ExtractionConfig  json.RawMessage   `json:"extraction_config,omitempty"`
	ChunkingConfig    json.RawMessage   `json:"chunking_config,omitempty"`
	EmbedderConfig    *embedding.Config `json:"embedder_config,omitempty"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
}

func (t IngestTask) validate() error {
	if _, err := uuid.Parse(t.JobID); err != nil {
		return fmt.Errorf("job_id %q is not a uuid", t.JobID)
	}
	if t.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if t.SourceFileKey == "" {
		return fmt.Errorf("source_file_key is required")
	}
	if t.FileSize < 0 {
		return fmt.Errorf("file_size must not be negative")
	}
	return nil
}

func (t IngestTask) destination() string {
	if t.DestinationBucket != "" {
		return t.DestinationBucket
	}
	return t.Bucket
}

// IngestResult is the payload of TopicIngestResult. Exactly one is published
// per successful or terminally failed attempt.
type IngestResult struct {
	JobID                string   `json:"job_id"`
	TransformID          int64    `json:"transform_id"`
	Owner                string   `json:"owner"`
	SourceFileKey        string   `json:"source_file_key"`
	Bucket               string   `json:"bucket"`
	ChunksFileKey        string   `json:"chunks_file_key,omitempty"`
	ChunkCount           int      `json:"chunk_count"`
	TotalCharacters      int      `json:"total_characters"`
	Status               Status   `json:"status"`
	Error                string   `json:"error,omitempty"`
	ProcessingDurationMS int64    `json:"processing_duration_ms"`
	Attempt              int      `json:"attempt"`
	Warnings             []string `json:"warnings,omitempty"`
	CorrelationID        string   `json:"correlation_id,omitempty"`
}

// ChunkRecord is one element of the chunks artifact.
type ChunkRecord struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
	Page       int    `json:"page,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
}

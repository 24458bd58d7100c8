package config

const (
	// TopicIngestDocument is the NSQ topic carrying document ingestion jobs.
	TopicIngestDocument = "ingest.task.document"

	// TopicIngestResult is the NSQ topic for ingestion results (success/failure).
	TopicIngestResult = "ingest.result.document"
)

package worker

// State is a step of one processing attempt. Failed absorbs from any step.
type State int

const (
	StateReceived State = iota
	StateDownloading
	StateExtracting
	StateChunking
	StateUploading
	StatePublishing
	StateAcknowledged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateChunking:
		return "chunking"
	case StateUploading:
		return "uploading"
	case StatePublishing:
		return "publishing"
	case StateAcknowledged:
		return "acknowledged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the outcome reported in IngestResult.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusFailedDownload     Status = "failed_download"
	StatusFailedFileTooLarge Status = "failed_file_too_large"
	StatusFailedConfigParse  Status = "failed_config_parse"
	StatusFailedExtraction   Status = "failed_extraction"
	StatusFailedChunking     Status = "failed_chunking"
	StatusFailedEmptyChunks  Status = "failed_empty_chunks"
	StatusFailedUpload       Status = "failed_upload"
)

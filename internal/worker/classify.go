package worker

import (
	"context"
	"errors"
	"fmt"

	"docflow/apps/ingestion/internal/adapter/embedding"
	"docflow/apps/ingestion/internal/adapter/s3"
	"docflow/apps/ingestion/internal/extract"
	"docflow/apps/ingestion/internal/text"
)

var (
	ErrFileTooLarge  = errors.New("file exceeds size limit")
	ErrEmptyDocument = errors.New("document has no text")

	// ErrInterrupted means the worker is shutting down; the message goes back
	// to the queue and no result is published, even on the last attempt. nsqd
	// increments the attempt count of the redelivery, so an interrupted
	// attempt still uses up one of MaxAttempts.
	ErrInterrupted = errors.New("processing interrupted")
)

// stageError records the state an attempt failed in.
type stageError struct {
	state State
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.state, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

func failAt(state State, err error) error {
	return &stageError{state: state, err: err}
}

// classify maps a failure to the reported status and whether another
// attempt could succeed.
func classify(state State, err error) (Status, bool) {
	switch state {
	case StateReceived:
		return StatusFailedConfigParse, false

	case StateDownloading:
		switch {
		case errors.Is(err, ErrFileTooLarge), errors.Is(err, s3.ErrTooLarge):
			return StatusFailedFileTooLarge, false
		case errors.Is(err, s3.ErrNotFound):
			return StatusFailedDownload, false
		}
		return StatusFailedDownload, true

	case StateExtracting:
		switch {
		case errors.Is(err, ErrEmptyDocument):
			return StatusFailedEmptyChunks, false
		case errors.Is(err, extract.ErrConverterUnavailable):
			// another worker may have the converter installed
			return StatusFailedExtraction, true
		case errors.Is(err, extract.ErrLimitExceeded):
			return StatusFailedExtraction, false
		case errors.Is(err, extract.ErrExtractionTimeout):
			return StatusFailedExtraction, true
		}
		return StatusFailedExtraction, false

	case StateChunking:
		switch {
		case errors.Is(err, embedding.ErrInvalidConfig), errors.Is(err, text.ErrInvalidConfig):
			return StatusFailedConfigParse, false
		case errors.Is(err, text.ErrEmptyInput):
			return StatusFailedEmptyChunks, false
		case errors.Is(err, text.ErrEmbedder),
			errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return StatusFailedChunking, true
		}
		return StatusFailedChunking, false

	}
	// uploading
	return StatusFailedUpload, true
}

package extract

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrLimitExceeded accompanies ErrExtractionTimeout when the decompression
	// budget, not the clock, aborted the extraction. Retrying cannot succeed.
	ErrLimitExceeded = errors.New("extraction size limit exceeded")

	// ErrConverterUnavailable accompanies ErrUnsupportedFormat when the
	// external converter for a legacy format is not installed on this host.
	ErrConverterUnavailable = errors.New("converter not installed")
)

// normalize maps any extractor failure onto exactly one of the public sentinels.
func normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrCorruptDocument),
		errors.Is(err, ErrExtractionTimeout):
		return err
	case errors.Is(err, ErrLimitExceeded):
		return fmt.Errorf("%w: %w", ErrExtractionTimeout, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrExtractionTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptDocument, fmt.Sprintf(format, args...))
}

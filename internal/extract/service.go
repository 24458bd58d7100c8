package extract

import (
	"context"
	"fmt"
	"time"
)

// Limits bound the resources a single extraction may consume.
type Limits struct {
	MaxDecompressedBytes int64
	MaxArchiveDepth      int
	Timeout              time.Duration
}

type Service struct {
	limits Limits
}

func NewService(limits Limits) *Service {
	return &Service{limits: limits}
}

// Extract detects the format of data and returns its normalized text.
// Errors always match exactly one of ErrUnsupportedFormat, ErrCorruptDocument
// or ErrExtractionTimeout.
func (s *Service) Extract(ctx context.Context, data []byte, fileName, mimeType string, cfg Config) (*Document, error) {
	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}
	b := newBudget(s.limits.MaxDecompressedBytes, s.limits.MaxArchiveDepth)
	format := Detect(fileName, mimeType, data)

	type outcome struct {
		doc *Document
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			// Third-party parsers may panic on hostile input.
			if r := recover(); r != nil {
				done <- outcome{err: corrupt("%s parser panic: %v", format, r)}
			}
		}()
		doc, err := s.extractAs(ctx, format, data, fileName, cfg, b)
		done <- outcome{doc: doc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, normalize(ctx.Err())
	case o := <-done:
		if o.err != nil {
			return nil, normalize(o.err)
		}
		return o.doc, nil
	}
}

// extractAs dispatches on the closed Format set.
func (s *Service) extractAs(ctx context.Context, format Format, data []byte, name string, cfg Config, b budget) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatPDF:
		doc, err = extractPDF(ctx, data, cfg, b)
	case FormatDOCX:
		doc, err = extractDOCX(ctx, data, cfg, b)
	case FormatXLSX:
		doc, err = extractXLSX(ctx, data, cfg, b)
	case FormatPPTX:
		doc, err = extractPPTX(ctx, data, cfg, b)
	case FormatODT:
		doc, err = extractODT(ctx, data, cfg, b)
	case FormatODS:
		doc, err = extractODS(ctx, data, cfg, b)
	case FormatHTML:
		doc, err = extractHTML(ctx, data, cfg, b)
	case FormatXML:
		doc, err = extractXML(ctx, data, cfg, b)
	case FormatText, FormatMarkdown:
		doc, err = extractText(ctx, data, cfg, b)
	case FormatRTF:
		doc, err = extractLegacy("application/rtf")(ctx, data, cfg, b)
	case FormatDOC:
		doc, err = extractLegacy("application/msword")(ctx, data, cfg, b)
	case FormatZIP:
		doc, err = s.extractZip(ctx, data, cfg, b)
	case FormatTar:
		doc, err = s.extractTar(ctx, data, cfg, b)
	case FormatTarGz:
		doc, err = s.extractTarGz(ctx, data, cfg, b)
	case FormatUnknown:
		return nil, fmt.Errorf("%w: cannot determine format of %q", ErrUnsupportedFormat, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	doc.Format = format
	if !cfg.IncludeMetadata {
		doc.Metadata = Metadata{}
	}
	return doc, nil
}

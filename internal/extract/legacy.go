package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"code.sajari.com/docconv"
)

// legacyConverters names the binary docconv shells out to per MIME type.
var legacyConverters = map[string]string{
	"application/rtf":    "unrtf",
	"application/msword": "wvText",
}

var lookPath = exec.LookPath

// extractLegacy handles RTF and binary Word documents through docconv, which
// shells out to unrtf / wvText. A missing converter binary is a deployment
// fault reported as ErrConverterUnavailable, not a corrupt document.
func extractLegacy(mimeType string) func(context.Context, []byte, Config, budget) (*Document, error) {
	return func(ctx context.Context, data []byte, cfg Config, _ budget) (*Document, error) {
		if bin := legacyConverters[mimeType]; bin != "" {
			if _, err := lookPath(bin); err != nil {
				return nil, fmt.Errorf("%w: %w: %s: %w", ErrUnsupportedFormat, ErrConverterUnavailable, bin, err)
			}
		}
		res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
		if err != nil {
			return nil, fmt.Errorf("docconv %s: %w", mimeType, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := newBuilder(cfg)
		out.block(res.Body, "")
		doc := &Document{Text: out.String()}
		if cfg.IncludeMetadata {
			doc.Metadata.Title = res.Meta["Title"]
		}
		return doc, nil
	}
}

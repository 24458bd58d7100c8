package extract

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf16"
)

var (
	utf16LE = []byte{0xff, 0xfe}
	utf16BE = []byte{0xfe, 0xff}
)

func extractText(_ context.Context, data []byte, cfg Config, _ budget) (*Document, error) {
	s := decodeText(data)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	out := newBuilder(cfg)
	if cfg.PreserveFormatting {
		out.verbatim(s, "")
	} else {
		out.block(s, "")
	}
	doc := &Document{Text: out.String()}
	if cfg.IncludeMetadata {
		doc.Metadata.Title = markdownTitle(doc.Text)
	}
	return doc, nil
}

// decodeText honours byte-order marks and replaces invalid UTF-8.
func decodeText(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, utf16LE), bytes.HasPrefix(data, utf16BE):
		le := bytes.HasPrefix(data, utf16LE)
		data = data[2:]
		u := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			if le {
				u = append(u, uint16(data[i])|uint16(data[i+1])<<8)
			} else {
				u = append(u, uint16(data[i])<<8|uint16(data[i+1]))
			}
		}
		return string(utf16.Decode(u))
	}
	return strings.ToValidUTF8(string(data), "�")
}

// markdownTitle returns the first ATX heading, if any.
func markdownTitle(s string) string {
	for _, line := range strings.Split(s, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}

package extract

import (
	"context"
	"encoding/xml"
	"strings"
)

// extractXML decodes strictly: any syntax error fails the whole document and
// no partial text is returned.
func extractXML(ctx context.Context, data []byte, cfg Config, _ budget) (*Document, error) {
	match := newPathMatcher(cfg.XMLElementPath)

	var (
		stack    []string
		captured strings.Builder
		capDepth = -1
		lines    []string
	)
	err := walkXML(ctx, data, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if capDepth < 0 && match(stack) {
				capDepth = len(stack)
				captured.Reset()
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				return nil
			}
			switch {
			case capDepth > 0:
				if captured.Len() > 0 {
					captured.WriteByte(' ')
				}
				captured.WriteString(text)
			case cfg.XMLElementPath == "":
				lines = append(lines, text)
			}
		case xml.EndElement:
			if capDepth == len(stack) {
				if s := strings.Join(strings.Fields(captured.String()), " "); s != "" {
					lines = append(lines, s)
				}
				capDepth = -1
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc := &Document{Metadata: Metadata{ElementPath: cfg.XMLElementPath}}
	out := newBuilder(cfg)
	out.block(strings.Join(lines, "\n"), "\n")
	doc.Text = out.String()
	if cfg.XMLElementPath != "" && len(lines) == 0 {
		doc.Warnings = append(doc.Warnings, "element path "+cfg.XMLElementPath+" matched no text")
	}
	return doc, nil
}

// newPathMatcher builds a matcher over the open-element stack. An empty path
// matches nothing so that every text node is taken individually.
func newPathMatcher(p string) func([]string) bool {
	p = strings.TrimSpace(p)
	if p == "" {
		return func([]string) bool { return false }
	}
	absolute := strings.HasPrefix(p, "/")
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	return func(stack []string) bool {
		if len(stack) < len(parts) || (absolute && len(stack) != len(parts)) {
			return false
		}
		tail := stack[len(stack)-len(parts):]
		for i, part := range parts {
			if part != "*" && part != tail[i] {
				return false
			}
		}
		return true
	}
}

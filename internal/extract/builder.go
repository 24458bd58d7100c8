package extract

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode"
)

// builder assembles extracted blocks into one text and records where each
// located section landed.
type builder struct {
	sb       strings.Builder
	spans    []Span
	collapse bool
}

func newBuilder(cfg Config) *builder {
	return &builder{collapse: !cfg.PreserveFormatting}
}

// block appends s separated from previous content by sep. Empty blocks are dropped.
func (b *builder) block(s, sep string) (start, end int) {
	if b.collapse {
		s = collapseSpaces(s)
	}
	s = strings.Trim(s, "\n")
	if strings.TrimSpace(s) == "" {
		return b.sb.Len(), b.sb.Len()
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString(sep)
	}
	start = b.sb.Len()
	b.sb.WriteString(s)
	return start, b.sb.Len()
}

func (b *builder) para(s string) (int, int) { return b.block(s, "\n\n") }

// verbatim appends s without whitespace collapsing (preformatted text).
func (b *builder) verbatim(s, sep string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString(sep)
	}
	b.sb.WriteString(s)
}

// located appends s as a paragraph and tags it with loc.
func (b *builder) located(s string, loc Span) {
	start, end := b.para(s)
	if end > start {
		loc.Start, loc.End = start, end
		b.spans = append(b.spans, loc)
	}
}

func (b *builder) String() string { return b.sb.String() }

// collapseSpaces squeezes runs of spaces inside each line, drops trailing
// whitespace and caps blank-line runs at one. Leading indentation and tabs
// (table cell separators) are kept.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, line)
			continue
		}
		blank = 0
		body := strings.TrimLeft(line, " ")
		indent := line[:len(line)-len(body)]
		out = append(out, indent+squeeze(body))
	}
	return strings.Join(out, "\n")
}

func squeeze(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if r != '\t' && unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func heading(cfg Config, level int, text string) string {
	text = strings.TrimSpace(text)
	if !cfg.structured() || !cfg.PreserveHeadings || level <= 0 {
		return text
	}
	return strings.Repeat("#", min(level, 6)) + " " + text
}

func listItem(cfg Config, level int, text string) string {
	text = strings.TrimSpace(text)
	if !cfg.structured() || !cfg.PreserveLists {
		return text
	}
	return strings.Repeat("  ", max(level, 0)) + "- " + text
}

// table linearizes rows row-major in the configured table format.
func table(cfg Config, rows [][]string) string {
	rows = trimEmptyRows(rows)
	if len(rows) == 0 {
		return ""
	}
	switch cfg.tableFormat() {
	case TableCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.WriteAll(rows)
		return strings.TrimRight(buf.String(), "\n")
	case TableMarkdown:
		return markdownTable(rows)
	default:
		lines := make([]string, 0, len(rows))
		for _, r := range rows {
			lines = append(lines, strings.Join(r, "\t"))
		}
		return strings.Join(lines, "\n")
	}
}

func markdownTable(rows [][]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	var sb strings.Builder
	writeRow := func(r []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(r) {
				cell = strings.ReplaceAll(strings.ReplaceAll(r[i], "|", `\|`), "\n", " ")
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}
	writeRow(rows[0])
	sb.WriteString("|")
	for i := 0; i < width; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		for len(r) > 0 && strings.TrimSpace(r[len(r)-1]) == "" {
			r = r[:len(r)-1]
		}
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

package text

import "context"

// Markdown splits on headings outside fenced code blocks. Sections larger
// than ChunkSize are packed from blocks; with PreserveCodeBlocks a fence is
// never cut and no overlap starts inside one.
type Markdown struct {
	cfg Config
}

func (m *Markdown) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := []rune(text)
	if blank(src) {
		return nil, ErrEmptyInput
	}
	fences := findFences(src)
	size, ov := m.cfg.ChunkSize, m.cfg.ChunkOverlap

	// Cores after the first leave room for the overlap they will carry.
	var cores []span
	for _, sec := range m.sections(src, fences) {
		limit := size
		if len(cores) > 0 {
			limit = size - ov
		}
		if sec.size() <= limit {
			cores = append(cores, sec)
			continue
		}
		cores = append(cores, m.packBlocks(m.blocks(src, sec, fences), limit, size-ov)...)
	}
	return assemble(src, cores, m.cfg.MinChunkSize, size, m.overlap(fences)), nil
}

func (m *Markdown) overlap(fences []span) overlapFunc {
	ov := m.cfg.ChunkOverlap
	return func(prev span) int {
		if !m.cfg.PreserveCodeBlocks {
			return ov
		}
		pos := prev.end - ov
		for _, f := range fences {
			if f.start < pos && pos < f.end {
				pos = min(f.end, prev.end)
				break
			}
		}
		return prev.end - pos
	}
}

// lineEnd returns the index just past the newline ending the line at i.
func lineEnd(src []rune, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++
	}
	return i
}

// fenceMarker returns the fence character and run length of a line opening
// or closing a code fence, after at most three spaces of indentation.
func fenceMarker(line []rune) (rune, int, int) {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	if i >= len(line) || (line[i] != '`' && line[i] != '~') {
		return 0, 0, 0
	}
	c := line[i]
	j := i
	for j < len(line) && line[j] == c {
		j++
	}
	if j-i < 3 {
		return 0, 0, 0
	}
	return c, j - i, j
}

// findFences locates fenced code blocks. A fence closes on a line with the
// same character repeated at least as often; an unclosed fence runs to the end.
func findFences(src []rune) []span {
	var out []span
	open := -1
	var char rune
	var n int
	for ls := 0; ls < len(src); {
		le := lineEnd(src, ls)
		line := src[ls:le]
		c, cnt, after := fenceMarker(line)
		switch {
		case open < 0 && cnt > 0:
			open, char, n = ls, c, cnt
		case open >= 0 && c == char && cnt >= n && blank(line[after:]):
			out = append(out, span{open, le})
			open = -1
		}
		ls = le
	}
	if open >= 0 {
		out = append(out, span{open, len(src)})
	}
	return out
}

func inFence(fences []span, i int) bool {
	for _, f := range fences {
		if i >= f.start && i < f.end {
			return true
		}
	}
	return false
}

func isHeading(line []rune) bool {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	n := 0
	for i < len(line) && line[i] == '#' {
		i++
		n++
	}
	if n < 1 || n > 6 {
		return false
	}
	return i == len(line) || line[i] == ' ' || line[i] == '\t' || line[i] == '\n' || line[i] == '\r'
}

// sections tiles the text, starting a new section at every heading line
// outside a fence.
func (m *Markdown) sections(src []rune, fences []span) []span {
	if !m.cfg.SplitOnHeaders {
		return []span{{0, len(src)}}
	}
	var out []span
	start := 0
	for ls := 0; ls < len(src); {
		le := lineEnd(src, ls)
		if ls > start && !inFence(fences, ls) && isHeading(src[ls:le]) {
			out = append(out, span{start, ls})
			start = ls
		}
		ls = le
	}
	return append(out, span{start, len(src)})
}

type mdBlock struct {
	span
	atomic bool
}

// blocks tiles sec with paragraphs (ending after a blank-line run) and, when
// code blocks are preserved, whole fences.
func (m *Markdown) blocks(src []rune, sec span, fences []span) []mdBlock {
	var out []mdBlock
	start := sec.start
	flush := func(end int) {
		if end > start {
			out = append(out, mdBlock{span: span{start, end}})
			start = end
		}
	}
	for ls := sec.start; ls < sec.end; {
		if m.cfg.PreserveCodeBlocks {
			if f, ok := fenceAt(fences, ls); ok {
				flush(ls)
				end := min(f.end, sec.end)
				// trailing blank lines stay with the fence
				for end < sec.end {
					next := min(lineEnd(src, end), sec.end)
					if !blank(src[end:next]) {
						break
					}
					end = next
				}
				out = append(out, mdBlock{span: span{ls, end}, atomic: true})
				start, ls = end, end
				continue
			}
		}
		le := min(lineEnd(src, ls), sec.end)
		if blank(src[ls:le]) && ls > start && !blank(src[start:ls]) {
			// extend over the whole blank run, then close the paragraph
			end := le
			for end < sec.end {
				next := min(lineEnd(src, end), sec.end)
				if !blank(src[end:next]) {
					break
				}
				end = next
			}
			flush(end)
			ls = end
			continue
		}
		ls = le
	}
	flush(sec.end)
	return out
}

func fenceAt(fences []span, i int) (span, bool) {
	for _, f := range fences {
		if f.start == i {
			return f, true
		}
	}
	return span{}, false
}

// packBlocks packs blocks up to first runes for the first core and rest for
// the others. Oversized prose falls back to fixed-size windows, oversized
// atomic blocks stay whole.
func (m *Markdown) packBlocks(blocks []mdBlock, first, rest int) []span {
	var cores []span
	limit := first
	cur, open := span{}, false
	emit := func(s span) {
		cores = append(cores, s)
		limit = rest
	}
	flush := func() {
		if open {
			emit(cur)
			open = false
		}
	}
	for _, b := range blocks {
		if b.size() > limit {
			flush()
			if b.atomic {
				emit(b.span)
				continue
			}
			head := span{b.start, b.start + limit}
			emit(head)
			cores = append(cores, hardSplit(span{head.end, b.end}, rest)...)
			continue
		}
		if open && b.end-cur.start > limit {
			flush()
		}
		if !open {
			cur, open = b.span, true
			continue
		}
		cur.end = b.end
	}
	flush()
	return cores
}

package text

import "unicode"

// span is a half-open rune range [start, end).
type span struct {
	start int
	end   int
}

func (s span) size() int { return s.end - s.start }

// overlapFunc reports how many runes before the next core the next chunk
// repeats, given the previous core.
type overlapFunc func(prev span) int

func fixedOverlap(n int) overlapFunc {
	return func(span) int { return n }
}

// assemble turns contiguous core spans into chunks: undersized cores are
// folded into a neighbour, then each chunk is prefixed with its overlap.
// The overlap is clamped to the previous chunk's length and, when maxLen is
// positive, so that the chunk stays within maxLen runes.
func assemble(src []rune, cores []span, minSize, maxLen int, overlap overlapFunc) []Chunk {
	cores = mergeSmall(src, cores, minSize, maxLen, overlap)
	chunks := make([]Chunk, 0, len(cores))
	prevStart := 0
	for i, c := range cores {
		start, ov := c.start, 0
		if i > 0 && overlap != nil {
			prev := cores[i-1]
			ov = min(max(overlap(prev), 0), prev.end-prevStart)
			if maxLen > 0 {
				ov = min(ov, max(maxLen-c.size(), 0))
			}
			if ov > 0 {
				start = prev.end - ov
			}
		}
		text := string(src[start:c.end])
		chunks = append(chunks, Chunk{
			Text:       text,
			Index:      i,
			Start:      start,
			End:        c.end,
			Overlap:    ov,
			TokenCount: EstimateTokens(text),
		})
		prevStart = start
	}
	return chunks
}

// mergeSmall folds cores whose content is shorter than minSize (or blank)
// into the previous core, or failing that into the next one. A fold only
// happens when the merged chunk, overlap included, stays within maxLen;
// maxLen <= 0 means unbounded. A core that cannot be folded is kept, so a
// single core is never removed and no text is lost.
func mergeSmall(src []rune, cores []span, minSize, maxLen int, overlap overlapFunc) []span {
	small := func(s span) bool {
		n := contentLen(src, s)
		return n == 0 || n < minSize
	}
	// fits reports whether s, placed after the cores in before, is within maxLen.
	fits := func(before []span, s span) bool {
		if maxLen <= 0 {
			return true
		}
		n := s.size()
		if len(before) > 0 && overlap != nil {
			n += max(overlap(before[len(before)-1]), 0)
		}
		return n <= maxLen
	}
	out := make([]span, 0, len(cores))
	carry := -1 // start of a small core handed to the next one
	for i, c := range cores {
		if carry >= 0 {
			c.start, carry = carry, -1
		}
		if len(out) == 0 || !small(c) {
			out = append(out, c)
			continue
		}
		last := len(out) - 1
		if merged := (span{out[last].start, c.end}); fits(out[:last], merged) {
			out[last] = merged
			continue
		}
		if i+1 < len(cores) && fits(out, span{c.start, cores[i+1].end}) {
			carry = c.start
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 && small(out[0]) {
		if merged := (span{out[0].start, out[1].end}); fits(nil, merged) {
			out[1] = merged
			out = out[1:]
		}
	}
	return out
}

// contentLen is the length of s without leading and trailing whitespace.
func contentLen(src []rune, s span) int {
	lo, hi := s.start, s.end
	for lo < hi && unicode.IsSpace(src[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(src[hi-1]) {
		hi--
	}
	return hi - lo
}

// hardSplit cuts s into windows of at most limit runes.
func hardSplit(s span, limit int) []span {
	var out []span
	for start := s.start; start < s.end; start += limit {
		out = append(out, span{start, min(start+limit, s.end)})
	}
	return out
}

// pack greedily concatenates adjacent pieces while the result stays within
// the limit: first for the first core, rest for the others. A piece larger
// than the limit becomes a core of its own.
func pack(pieces []span, first, rest int) []span {
	var cores []span
	limit := first
	cur, open := span{}, false
	for _, p := range pieces {
		if open && p.end-cur.start > limit {
			cores = append(cores, cur)
			open = false
			limit = rest
		}
		if !open {
			cur, open = p, true
			continue
		}
		cur.end = p.end
	}
	if open {
		cores = append(cores, cur)
	}
	return cores
}

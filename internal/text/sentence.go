package text

import (
	"context"
	"strings"
	"unicode"
)

// Sentence packs whole sentences greedily up to ChunkSize characters (or
// MaxSentences sentences). A sentence longer than ChunkSize is emitted alone.
// Overlap is made of whole trailing sentences of the previous chunk.
type Sentence struct {
	cfg Config
}

func (s *Sentence) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := []rune(text)
	if blank(src) {
		return nil, ErrEmptyInput
	}
	sents := splitSentences(src, span{0, len(src)})
	ov := s.cfg.ChunkOverlap
	cores := packSentences(sents, s.cfg.ChunkSize, s.cfg.MaxSentences, ov)
	return assemble(src, cores, s.cfg.MinChunkSize, s.cfg.ChunkSize, func(prev span) int {
		return trailingSentences(sents, prev, ov)
	}), nil
}

// packSentences groups sentences into cores. The budget of every core after
// the first is reduced by the overlap it will carry.
func packSentences(sents []span, limit, maxCount, overlap int) []span {
	var cores []span
	var cur []span
	budget := limit
	size := 0
	flush := func() {
		core := span{cur[0].start, cur[len(cur)-1].end}
		cores = append(cores, core)
		budget = limit - trailingSentences(cur, core, overlap)
		cur, size = nil, 0
	}
	for _, st := range sents {
		if len(cur) > 0 && (size+st.size() > budget || (maxCount > 0 && len(cur) >= maxCount)) {
			flush()
		}
		cur = append(cur, st)
		size += st.size()
	}
	if len(cur) > 0 {
		flush()
	}
	return cores
}

// trailingSentences returns the length of the longest run of whole sentences
// ending at prev.end that fits in limit. At least one sentence of prev is
// never carried over.
func trailingSentences(sents []span, prev span, limit int) int {
	if limit <= 0 {
		return 0
	}
	total, count, inside := 0, 0, 0
	for _, st := range sents {
		if st.start >= prev.start && st.end <= prev.end {
			inside++
		}
	}
	for i := len(sents) - 1; i >= 0; i-- {
		st := sents[i]
		if st.end > prev.end {
			continue
		}
		if st.start < prev.start || total+st.size() > limit || count+1 >= inside {
			break
		}
		total += st.size()
		count++
	}
	return total
}

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true, "jr": true,
	"st": true, "vs": true, "etc": true, "e.g": true, "i.e": true, "cf": true, "al": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "no": true, "fig": true, "vol": true,
	"approx": true, "dept": true, "est": true, "pp": true, "ca": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

func isCloser(r rune) bool {
	return strings.ContainsRune(`"')]}»”’」』`, r)
}

func isCJKTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

// splitSentences tiles s with sentence spans. Each sentence keeps its
// trailing whitespace; paragraph breaks always end a sentence.
func splitSentences(src []rune, s span) []span {
	var out []span
	start := s.start
	emit := func(end int) {
		if blank(src[start:end]) {
			return
		}
		out = append(out, span{start, end})
		start = end
	}
	skipSpace := func(j int) int {
		for j < s.end && unicode.IsSpace(src[j]) {
			j++
		}
		return j
	}

	for i := s.start; i < s.end; {
		r := src[i]
		switch {
		case r == '\n' && paragraphBreak(src, i, s.end):
			end := skipSpace(i)
			emit(end)
			i = end
		case isCJKTerminator(r):
			j := i + 1
			for j < s.end && (isCJKTerminator(src[j]) || isCloser(src[j])) {
				j++
			}
			end := skipSpace(j)
			emit(end)
			i = end
		case r == '.' || r == '!' || r == '?' || r == '…':
			j := i + 1
			for j < s.end && (src[j] == '.' || src[j] == '!' || src[j] == '?') {
				j++
			}
			for j < s.end && isCloser(src[j]) {
				j++
			}
			if j < s.end && !unicode.IsSpace(src[j]) {
				i = j
				continue
			}
			if r == '.' && j == i+1 && !endsSentence(src, i, j, s.end) {
				i = j
				continue
			}
			end := skipSpace(j)
			emit(end)
			i = end
		default:
			i++
		}
	}
	if start < s.end {
		if len(out) > 0 && blank(src[start:s.end]) {
			out[len(out)-1].end = s.end
		} else {
			out = append(out, span{start, s.end})
		}
	}
	return out
}

// paragraphBreak reports whether the newline at i is followed by a blank line.
func paragraphBreak(src []rune, i, end int) bool {
	for j := i + 1; j < end; j++ {
		switch src[j] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return false
}

// endsSentence decides whether the period at dot, followed by whitespace from
// next, terminates a sentence.
func endsSentence(src []rune, dot, next, end int) bool {
	lo := dot
	for lo > 0 && (unicode.IsLetter(src[lo-1]) || src[lo-1] == '.') {
		lo--
	}
	word := string(src[lo:dot])
	if abbreviations[strings.ToLower(word)] {
		return false
	}

	j := next
	for j < end && unicode.IsSpace(src[j]) {
		j++
	}
	if j >= end {
		return true
	}
	if unicode.IsLower(src[j]) {
		return false
	}
	// Initials ("J. Smith") when a capitalized word follows.
	if w := []rune(word); len(w) == 1 && unicode.IsUpper(w[0]) && unicode.IsUpper(src[j]) {
		k := j
		for k < end && unicode.IsLetter(src[k]) {
			k++
		}
		return k-j <= 1
	}
	return true
}

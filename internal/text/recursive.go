package text

import "context"

// Recursive splits on the first separator present in the text, packs the
// pieces greedily and recurses into pieces that are still too large with the
// remaining separators.
type Recursive struct {
	cfg Config
}

func (r *Recursive) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := []rune(text)
	if blank(src) {
		return nil, ErrEmptyInput
	}
	size, ov := r.cfg.ChunkSize, r.cfg.ChunkOverlap
	// Every chunk after the first carries ov runes of overlap, so its core
	// gets size-ov. Pieces are cut to that so they always fit.
	pieces := r.split(src, span{0, len(src)}, r.cfg.separators(), size-ov)
	cores := pack(pieces, size, size-ov)
	return assemble(src, cores, r.cfg.MinChunkSize, size, fixedOverlap(ov)), nil
}

func (r *Recursive) split(src []rune, s span, seps []string, limit int) []span {
	if s.size() <= limit {
		return []span{s}
	}
	for i, sep := range seps {
		if sep == "" {
			return hardSplit(s, limit)
		}
		parts := splitOn(src, s, []rune(sep), r.cfg.KeepSeparator)
		if len(parts) <= 1 {
			continue
		}
		out := make([]span, 0, len(parts))
		for _, p := range parts {
			if p.size() > limit {
				out = append(out, r.split(src, p, seps[i+1:], limit)...)
				continue
			}
			out = append(out, p)
		}
		return out
	}
	return hardSplit(s, limit)
}

// splitOn cuts s at every occurrence of sep. With keep the separator stays at
// the end of the preceding piece; otherwise it belongs to no piece.
func splitOn(src []rune, s span, sep []rune, keep bool) []span {
	var out []span
	start := s.start
	for i := s.start; i+len(sep) <= s.end; {
		if !hasPrefixAt(src, i, sep) {
			i++
			continue
		}
		end, next := i, i+len(sep)
		if keep {
			end = next
		}
		if end > start {
			out = append(out, span{start, end})
		}
		start, i = next, next
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

func hasPrefixAt(src []rune, i int, sep []rune) bool {
	for k, r := range sep {
		if src[i+k] != r {
			return false
		}
	}
	return true
}

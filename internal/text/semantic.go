package text

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Semantic places boundaries where the embedding similarity of adjacent
// sentence windows drops below SimilarityThreshold. Each window spans
// BufferSize sentences on both sides of its sentence.
//
// Adjacent candidate boundaries collapse into one: the lowest similarity
// wins, then the one leaving a group closest to ChunkSize, then the earliest.
type Semantic struct {
	cfg  Config
	emb  Embedder
	opts Options
}

func (s *Semantic) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if s.emb == nil {
		return nil, fmt.Errorf("%w: semantic strategy requires an embedder", ErrInvalidConfig)
	}
	src := []rune(text)
	if blank(src) {
		return nil, ErrEmptyInput
	}
	sents := splitSentences(src, span{0, len(src)})

	var cuts []int
	if len(sents) > 1 {
		windows := make([]string, len(sents))
		for i := range sents {
			lo := max(0, i-s.cfg.BufferSize)
			hi := min(len(sents), i+s.cfg.BufferSize+1)
			windows[i] = string(src[sents[lo].start:sents[hi-1].end])
		}
		vecs, err := s.embed(ctx, windows)
		if err != nil {
			return nil, err
		}
		sims := make([]float64, len(sents)-1)
		for i := range sims {
			sims[i] = cosine(vecs[i], vecs[i+1])
		}
		cuts = s.boundaries(sents, sims)
	}

	var groups []span
	first := 0
	for _, c := range cuts {
		groups = append(groups, span{sents[first].start, sents[c].end})
		first = c + 1
	}
	groups = append(groups, span{sents[first].start, len(src)})
	groups = mergeSmall(src, groups, s.cfg.MinChunkSize, 0, nil)

	var cores []span
	for _, g := range groups {
		if g.size() <= s.cfg.MaxChunkSize {
			cores = append(cores, g)
			continue
		}
		cores = append(cores, s.forceSplit(src, g)...)
	}
	// Groups were already merged; force-split remainders may stay small so
	// that MaxChunkSize holds.
	return assemble(src, cores, 0, 0, nil), nil
}

// boundaries returns the indices of sentences after which a chunk ends.
func (s *Semantic) boundaries(sents []span, sims []float64) []int {
	var cuts []int
	groupStart := sents[0].start
	dist := func(k int) int {
		d := sents[k].end - groupStart - s.cfg.ChunkSize
		if d < 0 {
			return -d
		}
		return d
	}
	for i := 0; i < len(sims); {
		if sims[i] >= s.cfg.SimilarityThreshold {
			i++
			continue
		}
		j := i
		for j+1 < len(sims) && sims[j+1] < s.cfg.SimilarityThreshold {
			j++
		}
		best := i
		for k := i + 1; k <= j; k++ {
			if sims[k] < sims[best] || (sims[k] == sims[best] && dist(k) < dist(best)) {
				best = k
			}
		}
		cuts = append(cuts, best)
		groupStart = sents[best].end
		i = j + 1
	}
	return cuts
}

// forceSplit packs the sentences of an oversized group up to MaxChunkSize;
// a single sentence beyond it is cut by characters.
func (s *Semantic) forceSplit(src []rune, g span) []span {
	limit := s.cfg.MaxChunkSize
	var pieces []span
	for _, st := range splitSentences(src, g) {
		if st.size() > limit {
			pieces = append(pieces, hardSplit(st, limit)...)
			continue
		}
		pieces = append(pieces, st)
	}
	return pack(pieces, limit, limit)
}

func (s *Semantic) embed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := max(s.opts.EmbedBatchSize, 1)
	vecs := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.opts.EmbedConcurrency, 1))
	for lo := 0; lo < len(texts); lo += batch {
		hi := min(lo+batch, len(texts))
		g.Go(func() error {
			out, err := s.emb.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrEmbedder, err)
			}
			if len(out) != hi-lo {
				return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbedder, len(out), hi-lo)
			}
			copy(vecs[lo:hi], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

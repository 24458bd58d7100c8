package text

import "context"

// FixedSize slides a window of ChunkSize characters that advances by
// ChunkSize-ChunkOverlap.
type FixedSize struct {
	cfg Config
}

func (f *FixedSize) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := []rune(text)
	if blank(src) {
		return nil, ErrEmptyInput
	}
	size, ov := f.cfg.ChunkSize, f.cfg.ChunkOverlap
	var cores []span
	for start := 0; start < len(src); {
		step := size
		if len(cores) > 0 {
			step = size - ov
		}
		end := min(start+step, len(src))
		cores = append(cores, span{start, end})
		start = end
	}
	return assemble(src, cores, f.cfg.MinChunkSize, size, fixedOverlap(ov)), nil
}

package extract

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
)

// budget bounds one extraction: every decompressed byte is charged against
// remaining, and depth counts nested archive levels.
type budget struct {
	remaining *atomic.Int64
	depth     int
	maxDepth  int
}

// newBudget treats a non-positive byte limit as unlimited.
func newBudget(maxBytes int64, maxDepth int) budget {
	if maxBytes <= 0 {
		maxBytes = math.MaxInt64
	}
	r := &atomic.Int64{}
	r.Store(maxBytes)
	return budget{remaining: r, maxDepth: maxDepth}
}

// nested returns the budget for an archive member one level deeper.
// It shares the byte counter with its parent.
func (b budget) nested() (budget, error) {
	if b.depth+1 > b.maxDepth {
		return b, fmt.Errorf("archive nesting deeper than %d", b.maxDepth)
	}
	b.depth++
	return b, nil
}

func (b budget) charge(n int64) error {
	if b.remaining.Add(-n) < 0 {
		return ErrLimitExceeded
	}
	return nil
}

// readAll reads r fully, charging the budget as it goes, and fails as soon as
// the budget is exhausted instead of buffering the whole stream.
func (b budget) readAll(r io.Reader) ([]byte, error) {
	lr := &budgetReader{r: r, b: b}
	return io.ReadAll(lr)
}

type budgetReader struct {
	r io.Reader
	b budget
}

func (br *budgetReader) Read(p []byte) (int, error) {
	n, err := br.r.Read(p)
	if n > 0 {
		if cerr := br.b.charge(int64(n)); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}

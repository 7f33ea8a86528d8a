// Package dist holds the probability plumbing shared by the process model and
// the scheduler: ordered cumulative-threshold tables, inclusive uniform
// draws, and the Zipf rank selector used to pick page sizes.
package dist

import (
	"fmt"
	"math/rand/v2"
)

// Branch is one row of a Table. A draw p selects the first branch whose
// UpTo is strictly greater than p.
type Branch[K any] struct {
	UpTo    float64
	Outcome K
}

// Table is an ordered list of cumulative thresholds. The last row should
// have UpTo == 1 so every draw in [0,1) lands somewhere.
type Table[K any] []Branch[K]

// Select maps a uniform draw in [0,1) to an outcome. Draws at or beyond the
// final threshold fall through to the last outcome.
func (t Table[K]) Select(p float64) K {
	for _, b := range t {
		if p < b.UpTo {
			return b.Outcome
		}
	}
	return t[len(t)-1].Outcome
}

// Draw pulls a uniform value from r and selects an outcome. The draw is
// returned as well so callers can log it.
func (t Table[K]) Draw(r *rand.Rand) (K, float64) {
	p := r.Float64()
	return t.Select(p), p
}

// Validate checks that thresholds are strictly increasing, within (0,1],
// and that the table closes at 1.
func (t Table[K]) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("table is empty")
	}
	prev := 0.0
	for i, b := range t {
		if b.UpTo <= prev || b.UpTo > 1 {
			return fmt.Errorf("threshold %d (%v) must be in (%v, 1]", i, b.UpTo, prev)
		}
		prev = b.UpTo
	}
	if prev != 1 {
		return fmt.Errorf("last threshold is %v, want 1", prev)
	}
	return nil
}

// IntRange returns a uniform integer in the closed range [lo, hi].
// It panics if hi < lo.
func IntRange(r *rand.Rand, lo, hi int64) int64 {
	if hi < lo {
		panic(fmt.Sprintf("dist: empty range [%d, %d]", lo, hi))
	}
	return lo + r.Int64N(hi-lo+1)
}

// Uint64Range returns a uniform value in the half-open range [lo, hi).
// It panics if hi <= lo.
func Uint64Range(r *rand.Rand, lo, hi uint64) uint64 {
	if hi <= lo {
		panic(fmt.Sprintf("dist: empty range [%d, %d)", lo, hi))
	}
	return lo + r.Uint64N(hi-lo)
}

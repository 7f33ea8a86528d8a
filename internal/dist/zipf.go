package dist

import "math/rand/v2"

// zipfRankLimit caps raw ranks well above any candidate list length so the
// generator behaves like an unbounded Zipf sampler.
const zipfRankLimit = 1 << 32

// RankSelector draws list indices with Zipf-distributed ranks. Rank k (k >= 1)
// is drawn with probability proportional to k^-s; ranks past the end of the
// list collapse onto the last index, so the tail mass lands on the largest
// candidate.
type RankSelector struct {
	zipf *rand.Zipf
}

// NewRankSelector builds a selector with skew s drawing from r. s must be
// greater than 1.
func NewRankSelector(r *rand.Rand, s float64) *RankSelector {
	z := rand.NewZipf(r, s, 1, zipfRankLimit)
	if z == nil {
		panic("dist: zipf skew must be > 1")
	}
	return &RankSelector{zipf: z}
}

// Pick returns an index in [0, n). n must be positive.
func (rs *RankSelector) Pick(n int) int {
	rank := rs.zipf.Uint64() + 1
	if rank > uint64(n) {
		rank = uint64(n)
	}
	return int(rank - 1)
}

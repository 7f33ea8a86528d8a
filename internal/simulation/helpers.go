package simulation

import (
	"math/rand/v2"
	"time"
)

// seedStream is the fixed PCG stream selector ("memtrace" in ASCII).
const seedStream = 0x6d656d7472616365

// NewRand returns the random source for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seedStream))
}

// TimeSeed derives a seed from the wall clock for runs without one.
func TimeSeed() uint64 {
	return uint64(time.Now().UnixNano())
}

package dist

import (
	"math/rand/v2"
	"testing"
)

type outcome int

const (
	first outcome = iota
	second
	third
)

var testTable = Table[outcome]{
	{UpTo: 0.5, Outcome: first},
	{UpTo: 0.9, Outcome: second},
	{UpTo: 1, Outcome: third},
}

func TestTableSelect(t *testing.T) {
	tests := []struct {
		p    float64
		want outcome
	}{
		{0, first},
		{0.4999, first},
		{0.5, second},
		{0.8999, second},
		{0.9, third},
		{0.99999, third},
		{1, third},
	}
	for _, tt := range tests {
		if got := testTable.Select(tt.p); got != tt.want {
			t.Errorf("Select(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTableValidate(t *testing.T) {
	if err := testTable.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	bad := []Table[outcome]{
		{},
		{{UpTo: 0.5, Outcome: first}},
		{{UpTo: 0.5, Outcome: first}, {UpTo: 0.4, Outcome: second}, {UpTo: 1, Outcome: third}},
		{{UpTo: 0, Outcome: first}, {UpTo: 1, Outcome: second}},
		{{UpTo: 1.2, Outcome: first}},
	}
	for i, tbl := range bad {
		if err := tbl.Validate(); err == nil {
			t.Errorf("table %d: expected validation error", i)
		}
	}
}

func TestIntRangeInclusive(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	seen := map[int64]bool{}
	for i := 0; i < 2000; i++ {
		v := IntRange(r, -1, 1)
		if v < -1 || v > 1 {
			t.Fatalf("IntRange(-1, 1) = %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all of -1, 0, 1 to be drawn, got %v", seen)
	}
}

func TestUint64RangeHalfOpen(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 1000; i++ {
		if v := Uint64Range(r, 10, 12); v < 10 || v >= 12 {
			t.Fatalf("Uint64Range(10, 12) = %d", v)
		}
	}
}

func TestRankSelectorSkew(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	rs := NewRankSelector(r, 1.5)

	counts := make([]int, 4)
	for i := 0; i < 10000; i++ {
		idx := rs.Pick(len(counts))
		if idx < 0 || idx >= len(counts) {
			t.Fatalf("Pick(4) = %d", idx)
		}
		counts[idx]++
	}

	// Rank 1 carries roughly 38% of the mass for s=1.5; rank 2 about 13%.
	if counts[0] <= counts[1] {
		t.Errorf("first index should dominate: %v", counts)
	}
	if counts[0] < 3000 {
		t.Errorf("first index drawn %d times, expected a strong skew", counts[0])
	}
	// The last index absorbs the whole tail.
	if counts[3] <= counts[2] {
		t.Errorf("last index should collect the tail: %v", counts)
	}
}

func TestRankSelectorSingleCandidate(t *testing.T) {
	rs := NewRankSelector(rand.New(rand.NewPCG(7, 8)), 1.5)
	for i := 0; i < 100; i++ {
		if idx := rs.Pick(1); idx != 0 {
			t.Fatalf("Pick(1) = %d, want 0", idx)
		}
	}
}

package ratelimit

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("request after burst exhaustion should be rejected")
	}
}

func TestAllow_Refill(t *testing.T) {
	now := time.Now()
	l := NewLimiter(10.0, 1)
	l.nowFunc = func() time.Time { return now }

	if !l.Allow("key1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("key1") {
		t.Fatal("second request should be rejected")
	}

	// 10/s refills one token in 100ms
	now = now.Add(150 * time.Millisecond)
	if !l.Allow("key1") {
		t.Error("expected allow after refill")
	}
}

func TestAllow_BurstCap(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100.0, 3)
	l.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.Allow("key1")
	}
	now = now.Add(10 * time.Second)

	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed after refill", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("4th request should be rejected (burst cap)")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1.0, 1)
	l.Allow("key1")
	if l.Allow("key1") {
		t.Error("key1 should be exhausted")
	}
	if !l.Allow("key2") {
		t.Error("key2 should be allowed (independent bucket)")
	}
}

func TestAllow_ZeroRate(t *testing.T) {
	l := NewLimiter(0.0, 2)
	if !l.Allow("key1") || !l.Allow("key1") {
		t.Error("initial burst should be available")
	}
	if l.Allow("key1") {
		t.Error("should be rejected with zero rate")
	}
}

func TestAllow_ConcurrentAccess(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1.0, 100)
	l.nowFunc = func() time.Time { return now }

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("allowed %d requests, want exactly the burst of 100", allowed)
	}
}

func TestToolLimits(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool  string
		burst int
	}{
		{"memtrace_generate", 2},
		{"memtrace_stats", 10},
		{"memtrace_runs", 10},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			for i := 0; i < tt.burst; i++ {
				if err := CheckLimit(limiters, tt.tool); err != nil {
					t.Fatalf("call %d: %v", i+1, err)
				}
			}
			err := CheckLimit(limiters, tt.tool)
			if err == nil || !strings.Contains(err.Error(), "rate limit exceeded for "+tt.tool) {
				t.Errorf("CheckLimit() after burst = %v", err)
			}
		})
	}
}

func TestCheckLimit_UnknownTool(t *testing.T) {
	if err := CheckLimit(NewToolLimiters(), "memtrace_unknown"); err != nil {
		t.Errorf("unknown tool should not be limited: %v", err)
	}
}

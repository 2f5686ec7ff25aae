// Copyright 2025 Joseph Cumines
//
// Rate limiter unit tests

package transport

import (
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		wantBurst int
	}{
		{"positive rate", 10, 20},
		{"zero rate", 0, 0},
		{"negative rate", -1, 0},
		{"small positive rate", 0.25, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.rate)
			if (rl != nil) != (tt.wantBurst > 0) {
				t.Fatalf("NewRateLimiter(%v) = %v", tt.rate, rl)
			}
			if got := rl.Burst(); got != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

func TestRateLimiter_NilAllowsEverything(t *testing.T) {
	var rl *RateLimiter
	for range 100 {
		if !rl.Allow() {
			t.Fatal("nil limiter should always allow")
		}
	}
	if got := rl.Burst(); got != 0 {
		t.Errorf("Burst() = %d, want 0", got)
	}
}

func TestRateLimiter_AllowAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2) // burst 4

	for i := range 4 {
		if !rl.AllowAt(now) {
			t.Errorf("request %d should be allowed within burst", i+1)
		}
	}
	if rl.AllowAt(now) {
		t.Error("request 5 should be rejected")
	}

	now = now.Add(time.Second)
	if !rl.AllowAt(now) || !rl.AllowAt(now) {
		t.Error("two requests should be allowed after refilling for 1s")
	}
	if rl.AllowAt(now) {
		t.Error("third request after 1s should be rejected")
	}

	// refill is capped at the burst
	now = now.Add(time.Minute)
	for i := range 4 {
		if !rl.AllowAt(now) {
			t.Errorf("request %d should be allowed after a full refill", i+1)
		}
	}
	if rl.AllowAt(now) {
		t.Error("refill should not exceed the burst")
	}
}

package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NilRedisAdmits(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		result, err := l.Check(context.Background(), "rpm:key-1", 10, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("check %d denied without Redis", i)
		}
	}
}

func TestLimiter_ZeroLimitDisablesBucket(t *testing.T) {
	result, err := NewLimiter(nil).Check(context.Background(), "rpm:key-1", 0, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed || result.Remaining != 0 {
		t.Errorf("result = %+v, want allowed with remaining 0", result)
	}
}

func TestWindowResult(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)
	window := time.Minute

	tests := []struct {
		name          string
		count         int64
		admitted      bool
		oldest        time.Time
		wantRemaining int64
		wantReset     time.Time
		wantRetry     time.Duration
	}{
		{
			name:          "first request",
			count:         1,
			admitted:      true,
			oldest:        now,
			wantRemaining: 4,
			wantReset:     now.Add(window),
		},
		{
			name:          "last slot",
			count:         5,
			admitted:      true,
			oldest:        now.Add(-20 * time.Second),
			wantRemaining: 0,
			wantReset:     now.Add(40 * time.Second),
		},
		{
			name:          "denied until oldest ages out",
			count:         5,
			admitted:      false,
			oldest:        now.Add(-50 * time.Second),
			wantRemaining: 0,
			wantReset:     now.Add(10 * time.Second),
			wantRetry:     10 * time.Second,
		},
		{
			name:          "retry never below one second",
			count:         5,
			admitted:      false,
			oldest:        now.Add(-window),
			wantRemaining: 0,
			wantReset:     now,
			wantRetry:     time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := windowResult(now, window, 5, tt.count, tt.admitted, tt.oldest)
			if got.Allowed != tt.admitted {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.admitted)
			}
			if got.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", got.Remaining, tt.wantRemaining)
			}
			if !got.ResetAt.Equal(tt.wantReset) {
				t.Errorf("ResetAt = %s, want %s", got.ResetAt, tt.wantReset)
			}
			if got.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %s, want %s", got.RetryAfter, tt.wantRetry)
			}
		})
	}
}

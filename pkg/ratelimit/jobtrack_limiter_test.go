package ratelimit

import (
	"context"
	"testing"
)

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	tests := []struct {
		name    string
		limiter *SlidingWindowLimiter
	}{
		{"nil limiter", nil},
		{"no redis", NewSlidingWindowLimiter(nil, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, wait := tt.limiter.Allow(context.Background(), "gmail")
			if !ok || wait != 0 {
				t.Errorf("Allow() = %v, %v, want true, 0", ok, wait)
			}
			if err := tt.limiter.Wait(context.Background(), "gmail"); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		})
	}
}

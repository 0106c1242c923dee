package ratelimit_test

import (
	"testing"
	"time"

	"push-relay/internal/ratelimit"

	"github.com/stretchr/testify/assert"
)

func TestWindowStart(t *testing.T) {
	window := time.Minute

	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"exact boundary", base, base.UnixMilli()},
		{"mid window", base.Add(25 * time.Second), base.UnixMilli()},
		{"last millisecond", base.Add(time.Minute - time.Millisecond), base.UnixMilli()},
		{"next window", base.Add(time.Minute), base.Add(time.Minute).UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ratelimit.WindowStart(tt.now, window))
		})
	}
}

// Two clocks inside the same window must address the same counter, two clocks
// in different windows must not.
func TestWindowStartSeparatesWindows(t *testing.T) {
	window := 30 * time.Second
	now := time.Date(2026, 3, 14, 10, 30, 10, 0, time.UTC)

	same := ratelimit.WindowStart(now.Add(5*time.Second), window)
	assert.Equal(t, ratelimit.WindowStart(now, window), same)

	next := ratelimit.WindowStart(now.Add(window), window)
	assert.NotEqual(t, ratelimit.WindowStart(now, window), next)
}

package server

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"uuid", "5f0c6c1e-8a8e-4d36-9d3e-2f6f9a1f4b2a", true},
		{"short token", "abc", true},
		{"empty", "", false},
		{"space", "a b", false},
		{"newline", "abc\ndef", false},
		{"non ascii", "réquest", false},
		{"max length", strings.Repeat("a", maxRequestIDLength), true},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validRequestID(tt.id))
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	limiter := newRateLimiter(0.001, 2)

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"), "burst exhausted")

	assert.True(t, limiter.allow("10.0.0.2"), "other clients keep their own bucket")
}

func TestRateLimiter_ExpiresIdleEntries(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	limiter.allow("stale")

	limiter.mu.Lock()
	limiter.entries["stale"].lastSeen = time.Now().Add(-time.Hour)
	limiter.lastCleanup = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	limiter.allow("fresh")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.entries, "stale")
	assert.Contains(t, limiter.entries, "fresh")
}

func TestRateLimiter_BurstFloor(t *testing.T) {
	limiter := newRateLimiter(1, 0)
	assert.Equal(t, 1, limiter.burst)
}

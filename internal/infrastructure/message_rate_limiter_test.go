package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageRateLimiterBurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewMessageRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "origins have independent buckets")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestMessageRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewMessageRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(5 * time.Minute)
	rl.Allow("b")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Stats()["active_origins"])
}

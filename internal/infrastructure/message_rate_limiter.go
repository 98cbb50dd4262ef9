package infrastructure

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageRateLimiter throttles turns per visitor origin with a token bucket.
type MessageRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*originBucket
	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type originBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMessageRateLimiter allows r turns per second with the given burst.
func NewMessageRateLimiter(r float64, burst int) *MessageRateLimiter {
	return &MessageRateLimiter{
		buckets: make(map[string]*originBucket),
		rate:    rate.Limit(r),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow consumes one token for origin if available.
func (rl *MessageRateLimiter) Allow(origin string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[origin]
	if !ok {
		b = &originBucket{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.buckets[origin] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the TTL and returns how many were removed.
func (rl *MessageRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for origin, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idleTTL {
			delete(rl.buckets, origin)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until stop is closed.
func (rl *MessageRateLimiter) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-stop:
			return
		}
	}
}

// Stats returns limiter statistics.
func (rl *MessageRateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"active_origins": len(rl.buckets),
		"rate":           float64(rl.rate),
		"burst":          rl.burst,
	}
}

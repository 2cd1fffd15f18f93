package telegram

import (
	"context"
	"sync"
	"time"
)

// RateLimiter gates Bot API calls. It combines a token bucket with the
// pauses Telegram asks for in 429 responses (retry_after).
type RateLimiter struct {
	mu         sync.Mutex
	unlimited  bool
	tokens     float64
	max        float64
	rate       float64 // tokens per second
	lastRefill time.Time
	pausedTill time.Time
}

// NewRateLimiter returns a bucket holding maxBurst tokens that refills at
// ratePerMinute. Telegram allows roughly one message per second per chat and
// twenty per minute per group, hence the defaults.
func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 20
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	return &RateLimiter{
		tokens:     float64(maxBurst),
		max:        float64(maxBurst),
		rate:       ratePerMinute / 60.0,
		lastRefill: time.Now(),
	}
}

// NewUnlimitedRateLimiter never throttles on its own; it only honours Pause.
func NewUnlimitedRateLimiter() *RateLimiter {
	return &RateLimiter{unlimited: true}
}

// Pause blocks every Wait for d and empties the bucket, so sends resume one
// token at a time once the pause is over.
func (rl *RateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if until := time.Now().Add(d); until.After(rl.pausedTill) {
		rl.pausedTill = until
	}
	rl.tokens = 0
}

// Wait blocks until a send may proceed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := rl.reserve(time.Now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns 0, or returns how long to wait first.
func (rl *RateLimiter) reserve(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Before(rl.pausedTill) {
		return rl.pausedTill.Sub(now)
	}
	if rl.unlimited {
		return 0
	}

	// The bucket does not refill while paused.
	from := rl.lastRefill
	if rl.pausedTill.After(from) {
		from = rl.pausedTill
	}
	if now.After(from) {
		rl.tokens = min(rl.max, rl.tokens+now.Sub(from).Seconds()*rl.rate)
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}

package crawl

import (
	"sync"
	"time"
)

// RateBudget is a per-site token bucket. Refill is lazy: tokens accrue on
// each call based on elapsed time, so no background timer is needed.
// TryAcquire never blocks; callers decide whether to queue, sleep, or abort.
type RateBudget struct {
	mu           sync.Mutex
	site         Site
	capacity     float64
	refillPerSec float64
	tokens       float64
	lastRefill   time.Time
	clock        Clock
}

// NewRateBudget creates a bucket that starts full.
func NewRateBudget(site Site, capacity, refillPerSec float64, clock Clock) *RateBudget {
	if clock == nil {
		clock = RealClock()
	}
	return &RateBudget{
		site:         site,
		capacity:     capacity,
		refillPerSec: refillPerSec,
		tokens:       capacity,
		lastRefill:   clock.Now(),
		clock:        clock,
	}
}

// TryAcquire takes cost tokens if available and reports whether it did.
func (b *RateBudget) TryAcquire(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// WaitHint estimates how long until cost tokens will be available. Zero
// means an acquire would succeed now.
func (b *RateBudget) WaitHint(cost float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= cost {
		return 0
	}
	if b.refillPerSec <= 0 {
		return time.Hour
	}
	missing := cost - b.tokens
	return time.Duration(missing / b.refillPerSec * float64(time.Second))
}

// Tokens reports the current token count after refill.
func (b *RateBudget) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// refill must be called with the lock held.
func (b *RateBudget) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

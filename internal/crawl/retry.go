package crawl

import (
	"math"
	"math/rand"
	"time"
)

// Action is what the orchestrator should do after a failed attempt.
type Action int

const (
	ActionFail Action = iota
	ActionRetry
	ActionEscalate
)

// Decision is the retry policy's verdict for one failed attempt.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// RetryPolicy classifies transport failures and decides retry/backoff. It
// holds no mutable state; one value can serve concurrent operations.
type RetryPolicy struct {
	// MaxAttempts bounds consecutive transient-network attempts.
	MaxAttempts int
	// BackoffBase, BackoffMultiplier, BackoffMax shape the exponential
	// delay for transient failures.
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	// RateLimitDelay is the single bounded wait after an upstream 429.
	// The rate budget already self-regulates, so this budget is small.
	RateLimitDelay time.Duration
	// JitterFraction adds up to this fraction of the delay as random
	// jitter, decorrelating concurrently retrying operations. Zero
	// disables jitter.
	JitterFraction float64
}

// DefaultRetryPolicy mirrors the conservative settings the site crawlers
// ship with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		BackoffMax:        30 * time.Second,
		RateLimitDelay:    7 * time.Second,
		JitterFraction:    0.25,
	}
}

// Classify maps an HTTP status (err == nil) or a transport error onto the
// shared classification set. Body inspection is AntiBotGuard's job.
func (p RetryPolicy) Classify(status int, err error) Classification {
	if err != nil {
		return ClassTransientNetwork
	}
	switch {
	case status == 403:
		return ClassRegionBlocked
	case status == 429:
		return ClassRateLimited
	case status == 404:
		return ClassItemNotFound
	case status >= 500:
		return ClassTransientNetwork
	case status >= 200 && status < 300:
		return ClassSuccess
	default:
		return ClassFatalProtocol
	}
}

// Decide returns the action for the n-th occurrence (1-based) of a
// classification within one operation.
func (p RetryPolicy) Decide(c Classification, occurrence int) Decision {
	switch c {
	case ClassTransientNetwork:
		if occurrence >= p.MaxAttempts {
			return Decision{Action: ActionFail}
		}
		return Decision{Action: ActionRetry, Delay: p.backoff(occurrence)}
	case ClassRateLimited:
		if occurrence > 1 {
			return Decision{Action: ActionFail}
		}
		return Decision{Action: ActionRetry, Delay: p.RateLimitDelay}
	case ClassAntiBotDetected:
		if occurrence > 1 {
			return Decision{Action: ActionFail}
		}
		return Decision{Action: ActionEscalate}
	default:
		return Decision{Action: ActionFail}
	}
}

// backoff computes base * multiplier^(n-1) + jitter, capped at BackoffMax.
// With zero jitter the delay is non-decreasing in n.
func (p RetryPolicy) backoff(occurrence int) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(p.BackoffBase) * math.Pow(mult, float64(occurrence-1)))
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	if p.JitterFraction > 0 {
		d += time.Duration(rand.Float64() * p.JitterFraction * float64(d))
		if p.BackoffMax > 0 && d > p.BackoffMax {
			d = p.BackoffMax
		}
	}
	return d
}

package llmstream

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff for transient request failures.
type RetryPolicy struct {
	MaxRetries     int           // retry attempts after the initial call
	BaseDelay      time.Duration // first backoff step
	MaxDelay       time.Duration // cap applied after jitter
	JitterFraction float64       // jitter sampled uniformly from [0, fraction*step)
}

// DefaultRetryPolicy returns the default policy: 2 retries, 500ms base,
// 5s cap, up to 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		JitterFraction: 0.2,
	}
}

// Delay calculates the backoff for attempt n (0-indexed):
// min(base * 2^attempt + jitter, cap).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	step := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := 0.0
	if p.JitterFraction > 0 {
		jitter = step * p.JitterFraction * rand.Float64()
	}
	total := step + jitter
	if cap := float64(p.MaxDelay); p.MaxDelay > 0 && total > cap {
		total = cap
	}
	return time.Duration(total)
}

// delayFor honors a server-provided Retry-After on rate limit errors, falling
// back to the computed backoff.
func (p RetryPolicy) delayFor(err error, attempt int) time.Duration {
	if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
		suggested := time.Duration(*rl.RetryAfter * float64(time.Second))
		if p.MaxDelay > 0 && suggested > p.MaxDelay {
			return p.MaxDelay
		}
		return suggested
	}
	return p.Delay(attempt)
}

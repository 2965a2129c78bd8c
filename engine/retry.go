package engine

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy controls retry behavior for transient node failures.
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     bool          `yaml:"jitter"`
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.BaseDelay <= 0 {
		q.BaseDelay = 200 * time.Millisecond
	}
	if q.MaxDelay <= 0 {
		q.MaxDelay = 5 * time.Second
	}
	if q.MaxDelay < q.BaseDelay {
		q.MaxDelay = q.BaseDelay
	}
	if q.MaxRetries < 0 {
		q.MaxRetries = 0
	}
	return q
}

// backoff returns the delay before retry number attempt (0-based).
func backoff(attempt int, base, maxDelay time.Duration, jitter bool) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := base << attempt
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	if !jitter {
		return d
	}
	// jitter within [d/2, d)
	half := d / 2
	if half <= 0 {
		return d
	}
	delta := rand.N(half) // #nosec G404 non-crypto
	return half + delta
}

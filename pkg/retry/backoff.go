package retry

import (
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

// Backoff computes the delay before the next retry attempt.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows delays by powers of two, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay for the given attempt (1-based).
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := base << shift
	if b.Max > 0 && (delay > b.Max || delay <= 0) {
		return b.Max
	}
	return delay
}

// Policy maps a submission outcome and the number of consecutive retryable
// outcomes seen so far to the pause before the next submission. It never
// sleeps, so callers decide how to wait.
type Policy struct {
	RateLimited Backoff
	Transport   Backoff
}

// DefaultPolicy backs off on rate limits and does not pause on transport errors.
func DefaultPolicy() Policy {
	return Policy{
		RateLimited: ExponentialBackoff{Base: time.Second, Max: 30 * time.Second},
	}
}

// Delay returns how long to wait after outcome. Zero means continue at once.
func (p Policy) Delay(attempt int, outcome domain.Outcome) time.Duration {
	var b Backoff
	switch outcome {
	case domain.OutcomeRateLimited:
		b = p.RateLimited
	case domain.OutcomeTransportError:
		b = p.Transport
	}
	if b == nil || attempt < 1 {
		return 0
	}
	return b.Next(attempt)
}

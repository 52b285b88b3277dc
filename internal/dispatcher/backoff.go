package dispatcher

import (
	"math/rand"
	"time"
)

const (
	defaultBackoffBase   = 30 * time.Second
	defaultBackoffCap    = 30 * time.Minute
	defaultBackoffJitter = 5 * time.Second
)

// BackoffPolicy computes the delay before a failed job becomes
// eligible again: min(base * 2^(n-1), cap) plus or minus jitter.
// Exact constants are tunable, not a correctness property.
type BackoffPolicy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration

	// rand is injectable for deterministic tests.
	rand func(n int64) int64
}

func NewBackoffPolicy(base, cap, jitter time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	if jitter < 0 {
		jitter = defaultBackoffJitter
	}
	return &BackoffPolicy{
		Base:   base,
		Cap:    cap,
		Jitter: jitter,
		rand:   rand.Int63n,
	}
}

// Delay returns the backoff for the given attempt number (1-based).
// The result is always positive so a rescheduled job lands in the
// future.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Cap {
			delay = p.Cap
			break
		}
	}
	if delay > p.Cap {
		delay = p.Cap
	}

	if p.Jitter > 0 && p.rand != nil {
		// Spread in [-jitter, +jitter], floored so delay stays positive.
		offset := time.Duration(p.rand(int64(2*p.Jitter))) - p.Jitter
		delay += offset
		if delay < p.Base/2 {
			delay = p.Base / 2
		}
	}

	return delay
}

package dispatcher

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/notify-engine/internal/model"
)

// ChannelLimiter throttles sends per channel so one noisy channel
// cannot starve a shared provider account.
type ChannelLimiter struct {
	mu       sync.Mutex
	limiters map[model.Channel]*rate.Limiter
	perSec   float64
	burst    int
}

func NewChannelLimiter(perSecond float64, burst int) *ChannelLimiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &ChannelLimiter{
		limiters: make(map[model.Channel]*rate.Limiter),
		perSec:   perSecond,
		burst:    burst,
	}
}

// Wait blocks until the channel's limiter grants a token or the
// context is cancelled.
func (l *ChannelLimiter) Wait(ctx context.Context, channel model.Channel) error {
	l.mu.Lock()
	limiter, ok := l.limiters[channel]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.perSec), l.burst)
		l.limiters[channel] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

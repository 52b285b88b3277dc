package dispatcher

import (
	"context"
	"time"

	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/logger"
	"github.com/jwalitptl/notify-engine/pkg/metrics"
)

const (
	defaultSweepInterval = time.Minute
	defaultStaleness     = 5 * time.Minute
)

// Sweeper reclaims jobs stuck in PROCESSING past the staleness window.
// The original attempt's outcome is unknown, so reclaimed jobs keep
// their retry count.
type Sweeper struct {
	queue     repository.QueueRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	staleness time.Duration
	now       func() time.Time
}

func NewSweeper(queue repository.QueueRepository, interval, staleness time.Duration, log *logger.Logger, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		queue:     queue,
		logger:    log,
		metrics:   m,
		interval:  interval,
		staleness: staleness,
		now:       time.Now,
	}
}

// Start sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting staleness sweeper", "staleness", s.staleness.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(err, "sweep failed")
			}
		}
	}
}

// SweepOnce runs a single reclaim pass and returns the count requeued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	reclaimed, err := s.queue.ReclaimStale(ctx, s.now().Add(-s.staleness))
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		if s.metrics != nil {
			s.metrics.StaleReclaimed.Add(float64(reclaimed))
		}
		s.logger.Warn("reclaimed stale processing jobs", "count", reclaimed)
	}
	return reclaimed, nil
}

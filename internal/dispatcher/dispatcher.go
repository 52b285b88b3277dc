package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/provider"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/circuitbreaker"
	"github.com/jwalitptl/notify-engine/pkg/errors"
	"github.com/jwalitptl/notify-engine/pkg/logger"
	"github.com/jwalitptl/notify-engine/pkg/messaging"
	"github.com/jwalitptl/notify-engine/pkg/metrics"
)

// Config holds dispatcher tunables.
type Config struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	SendTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
}

// Dispatcher drains due jobs from the queue store and drives each
// through exactly one send attempt per claim cycle. Workers do not
// coordinate with each other; the atomic claim in the store is the
// only synchronization point.
type Dispatcher struct {
	queue    repository.QueueRepository
	registry *provider.Registry
	broker   messaging.Broker
	limiter  *ChannelLimiter
	backoff  *BackoffPolicy
	logger   *logger.Logger
	metrics  *metrics.Metrics
	config   Config

	breakersMu sync.Mutex
	breakers   map[model.Channel]*circuitbreaker.CircuitBreaker

	now func() time.Time
}

func New(
	queue repository.QueueRepository,
	registry *provider.Registry,
	broker messaging.Broker,
	limiter *ChannelLimiter,
	backoff *BackoffPolicy,
	config Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	config.applyDefaults()
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if backoff == nil {
		backoff = NewBackoffPolicy(0, 0, -1)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Dispatcher{
		queue:    queue,
		registry: registry,
		broker:   broker,
		limiter:  limiter,
		backoff:  backoff,
		logger:   log,
		metrics:  m,
		config:   config,
		breakers: make(map[model.Channel]*circuitbreaker.CircuitBreaker),
		now:      time.Now,
	}
}

// Start runs the worker pool until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting dispatcher", "workers", d.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < d.config.Workers; i++ {
		wg.Add(1)
		workerID := i + 1
		go func() {
			defer wg.Done()
			d.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) runWorker(ctx context.Context, workerID int) {
	log := d.logger.WithFields(map[string]interface{}{"worker_id": workerID})
	log.Info("worker started")

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				log.Error(err, "failed to drain due jobs")
			}
		}
	}
}

// DrainOnce claims one batch of due jobs and processes it. Returns the
// number of jobs claimed.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	jobs, err := d.queue.ClaimDue(ctx, d.config.BatchSize, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to claim due jobs: %w", err)
	}
	if d.metrics != nil {
		d.metrics.ClaimBatchSize.Observe(float64(len(jobs)))
	}

	for _, job := range jobs {
		d.Process(ctx, job)
	}
	return len(jobs), nil
}

// Process drives one claimed job through a single send attempt. Every
// outcome is written through RecordOutcome, the sole authority for
// moving a job out of PROCESSING. Non-provider errors leave the job
// claimed for the staleness sweep.
func (d *Dispatcher) Process(ctx context.Context, job *model.Notification) {
	log := d.logger.WithFields(map[string]interface{}{
		"job_id":  job.ID.String(),
		"channel": job.Type.String(),
	})
	if d.metrics != nil {
		d.metrics.WorkersInFlight.Inc()
		defer d.metrics.WorkersInFlight.Dec()
	}

	adapter, err := d.registry.Resolve(job.Type)
	if err != nil {
		log.Error(err, "no adapter for channel, leaving job for sweep")
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, job.Type); err != nil {
			log.Error(err, "rate limiter wait interrupted")
			return
		}
	}

	var timer *prometheus.Timer
	if d.metrics != nil {
		timer = prometheus.NewTimer(d.metrics.SendDuration.WithLabelValues(job.Type.String()))
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	var result *provider.Result
	sendErr := d.breakerFor(job.Type).Execute(func() error {
		var innerErr error
		result, innerErr = adapter.Send(sendCtx, job.Recipient, job.Subject, job.Content)
		return innerErr
	})
	cancel()
	if timer != nil {
		timer.ObserveDuration()
	}

	if sendErr != nil && !errors.Retryable(classifySendError(sendErr)) {
		// No attempt reached the provider (open breaker, cancellation).
		// The retry budget is untouched; the claim is left for the
		// staleness sweep, same as a missing adapter.
		log.Warn("send not attempted, leaving job claimed", "error", sendErr.Error())
		return
	}

	outcome := d.buildOutcome(job, result, sendErr)
	if err := d.queue.RecordOutcome(ctx, job.ID, outcome); err != nil {
		if errors.IsInvalidState(err) {
			// Stale or duplicate completion; the claim was resolved
			// elsewhere and this attempt's result must not be applied.
			log.Warn("stale claim, outcome rejected")
			return
		}
		log.Error(err, "failed to record outcome")
		return
	}

	d.publishOutcome(ctx, job, outcome, log)
}

// classifySendError folds a raw adapter error into the application
// taxonomy so Retryable can decide whether it consumes a retry slot.
func classifySendError(err error) error {
	if provider.IsTimeout(err) {
		return errors.NewTimeout("send deadline exceeded", err)
	}
	var provErr *provider.Error
	if stderrors.As(err, &provErr) {
		return errors.NewProvider(provErr.Message, err)
	}
	return err
}

func (d *Dispatcher) buildOutcome(job *model.Notification, result *provider.Result, sendErr error) model.Outcome {
	now := d.now()

	if sendErr == nil {
		outcome := model.Outcome{
			Success:     true,
			CompletedAt: now,
		}
		if result != nil {
			outcome.ExternalID = result.ExternalID
			outcome.ProviderResponse = result.Response
		}
		return outcome
	}

	attempt := job.RetryCount + 1
	return model.Outcome{
		Success:       false,
		ErrorMessage:  sendErr.Error(),
		Permanent:     provider.IsPermanent(sendErr),
		NextAttemptAt: now.Add(d.backoff.Delay(attempt)),
		CompletedAt:   now,
	}
}

func (d *Dispatcher) publishOutcome(ctx context.Context, job *model.Notification, outcome model.Outcome, log *logger.Logger) {
	channel := job.Type.String()

	if outcome.Success {
		if d.metrics != nil {
			d.metrics.JobsSent.WithLabelValues(channel).Inc()
		}
		d.publish(ctx, messaging.ChannelSent, job, outcome, log)
		log.Info("job sent", "external_id", outcome.ExternalID)
		return
	}

	exhausted := outcome.Permanent || job.RetryCount+1 > job.MaxRetries
	if exhausted {
		if d.metrics != nil {
			reason := "retry_exhausted"
			if outcome.Permanent {
				reason = "permanent_error"
			}
			d.metrics.JobsFailed.WithLabelValues(channel, reason).Inc()
		}
		d.publish(ctx, messaging.ChannelFailed, job, outcome, log)
		log.Warn("job failed permanently", "error", outcome.ErrorMessage)
		return
	}

	if d.metrics != nil {
		d.metrics.RetriesTotal.WithLabelValues(channel).Inc()
	}
	log.Info("job rescheduled for retry",
		"retry_count", job.RetryCount+1,
		"next_attempt_at", outcome.NextAttemptAt,
	)
}

func (d *Dispatcher) publish(ctx context.Context, eventChannel string, job *model.Notification, outcome model.Outcome, log *logger.Logger) {
	event := map[string]interface{}{
		"job_id":      job.ID.String(),
		"branch_id":   job.BranchID.String(),
		"customer_id": job.CustomerID.String(),
		"channel":     job.Type.String(),
		"external_id": outcome.ExternalID,
		"at":          outcome.CompletedAt,
	}
	if !outcome.Success {
		event["error"] = outcome.ErrorMessage
	}
	if err := d.broker.Publish(ctx, eventChannel, event); err != nil {
		log.Error(err, "failed to publish lifecycle event")
	}
}

func (d *Dispatcher) breakerFor(channel model.Channel) *circuitbreaker.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()

	cb, ok := d.breakers[channel]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "provider-" + channel.String(),
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		})
		d.breakers[channel] = cb
	}
	return cb
}

package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/provider"
	"github.com/jwalitptl/notify-engine/internal/repository/memory"
	"github.com/jwalitptl/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/notify-engine/pkg/errors"
)

type fakeAdapter struct {
	mu     sync.Mutex
	calls  int
	result *provider.Result
	err    error
}

func (f *fakeAdapter) Send(ctx context.Context, recipient, subject, content string) (*provider.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type recordingBroker struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, channel)
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func enqueueJob(t *testing.T, repo *memory.QueueRepository, channel model.Channel, maxRetries int) *model.Notification {
	t.Helper()
	n := &model.Notification{
		BranchID:   uuid.New(),
		CustomerID: uuid.New(),
		Type:       channel,
		Recipient:  "+15550002222",
		Content:    "order ready for pickup",
		MaxRetries: maxRetries,
	}
	require.NoError(t, repo.Enqueue(context.Background(), n))
	return n
}

func newTestDispatcher(repo *memory.QueueRepository, adapter provider.Adapter, broker *recordingBroker) *Dispatcher {
	registry := provider.NewRegistry()
	registry.Register(model.ChannelSMS, adapter)

	var d *Dispatcher
	if broker != nil {
		d = New(repo, registry, broker, nil, NewBackoffPolicy(time.Second, time.Minute, 0), Config{BatchSize: 10}, nil, nil)
	} else {
		d = New(repo, registry, nil, nil, NewBackoffPolicy(time.Second, time.Minute, 0), Config{BatchSize: 10}, nil, nil)
	}
	return d
}

func TestDrainOnceSendsDueJob(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{result: &provider.Result{
		ExternalID: "msg-42",
		Response:   model.JSONMap{"status": "accepted"},
	}}
	broker := &recordingBroker{}
	d := newTestDispatcher(repo, adapter, broker)

	n := enqueueJob(t, repo, model.ChannelSMS, 3)

	claimed, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, adapter.callCount())

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.Equal(t, "msg-42", stored.ExternalID)
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, []string{"notification.sent"}, broker.published())
}

func TestTransientFailureReschedulesWithBackoff(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{err: &provider.Error{StatusCode: 503, Message: "gateway busy"}}
	d := newTestDispatcher(repo, adapter, nil)

	base := time.Now()
	d.now = func() time.Time { return base }

	n := enqueueJob(t, repo, model.ChannelSMS, 3)

	_, err := d.DrainOnce(context.Background())
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "gateway busy")
	// First retry lands one base delay out.
	assert.Equal(t, base.Add(time.Second), stored.ScheduledAt)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{err: &provider.Error{StatusCode: 400, Message: "invalid recipient", Permanent: true}}
	broker := &recordingBroker{}
	d := newTestDispatcher(repo, adapter, broker)

	n := enqueueJob(t, repo, model.ChannelSMS, 3)

	_, err := d.DrainOnce(context.Background())
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, []string{"notification.failed"}, broker.published())
}

func TestRetriesExhaustEventuallyFail(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{err: &provider.Error{StatusCode: 502, Message: "bad gateway"}}
	d := newTestDispatcher(repo, adapter, nil)

	n := enqueueJob(t, repo, model.ChannelSMS, 1)

	// Drive time forward past each backoff so the job is always due.
	current := time.Now()
	d.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		_, err := d.DrainOnce(context.Background())
		require.NoError(t, err)
		current = current.Add(time.Hour)
	}

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, 2, adapter.callCount())
}

func TestUnknownChannelLeavesJobClaimed(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{result: &provider.Result{ExternalID: "x"}}
	d := newTestDispatcher(repo, adapter, nil)

	n := enqueueJob(t, repo, model.ChannelEmail, 3)

	_, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, adapter.callCount())

	// No adapter means no outcome; the sweeper owns recovery.
	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, stored.Status)
}

func TestOpenBreakerDoesNotConsumeRetryBudget(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{err: &provider.Error{StatusCode: 503, Message: "gateway down"}}
	d := newTestDispatcher(repo, adapter, nil)
	ctx := context.Background()

	// Five straight failures trip the per-channel breaker; each
	// rescheduled job lands one backoff out, past the frozen clock.
	for i := 0; i < 5; i++ {
		enqueueJob(t, repo, model.ChannelSMS, 10)
	}
	base := time.Now()
	d.now = func() time.Time { return base }

	_, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, adapter.callCount())

	// The gateway recovers, but the breaker is still open.
	adapter.setErr(nil)
	fresh := &model.Notification{
		BranchID:    uuid.New(),
		CustomerID:  uuid.New(),
		Type:        model.ChannelSMS,
		Recipient:   "+15550002222",
		Content:     "order ready for pickup",
		MaxRetries:  3,
		ScheduledAt: base.Add(-time.Minute),
	}
	require.NoError(t, repo.Enqueue(ctx, fresh))

	_, err = d.DrainOnce(ctx)
	require.NoError(t, err)

	// No attempt was made, so the job keeps its claim and its full
	// retry budget; the staleness sweep owns recovery.
	assert.Equal(t, 5, adapter.callCount())
	stored, err := repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, stored.ErrorMessage)
}

func TestClassifySendError(t *testing.T) {
	provErr := &provider.Error{StatusCode: 502, Message: "bad gateway"}
	assert.True(t, apperrors.Retryable(classifySendError(provErr)))
	assert.True(t, apperrors.Retryable(classifySendError(context.DeadlineExceeded)))
	assert.False(t, apperrors.Retryable(classifySendError(circuitbreaker.ErrOpen)))
	assert.False(t, apperrors.Retryable(classifySendError(context.Canceled)))
}

func TestSweeperRequeuesStaleJobs(t *testing.T) {
	repo := memory.NewQueueRepository()
	ctx := context.Background()

	n := enqueueJob(t, repo, model.ChannelSMS, 3)
	claimed, err := repo.ClaimDue(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s := NewSweeper(repo, time.Minute, 5*time.Minute, nil, nil)
	s.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	reclaimed, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestStaleClaimOutcomeIsRejected(t *testing.T) {
	repo := memory.NewQueueRepository()
	adapter := &fakeAdapter{result: &provider.Result{ExternalID: "late"}}
	broker := &recordingBroker{}
	d := newTestDispatcher(repo, adapter, broker)
	ctx := context.Background()

	n := enqueueJob(t, repo, model.ChannelSMS, 3)
	claimed, err := repo.ClaimDue(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// The sweep reclaims the job before the attempt completes.
	_, err = repo.ReclaimStale(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)

	d.Process(ctx, claimed[0])

	// The late result must not be applied or published.
	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, stored.ExternalID)
	assert.Empty(t, broker.published())
}

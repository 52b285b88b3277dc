package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-engine/internal/model"
	apperrors "github.com/jwalitptl/notify-engine/pkg/errors"
)

func newTestNotification() *model.Notification {
	return &model.Notification{
		BranchID:   uuid.New(),
		CustomerID: uuid.New(),
		Type:       model.ChannelSMS,
		Recipient:  "+15550001111",
		Content:    "your appointment is tomorrow",
		MaxRetries: 3,
	}
}

func mustEnqueue(t *testing.T, repo *QueueRepository, n *model.Notification) *model.Notification {
	t.Helper()
	require.NoError(t, repo.Enqueue(context.Background(), n))
	return n
}

func claimOne(t *testing.T, repo *QueueRepository, id uuid.UUID) *model.Notification {
	t.Helper()
	claimed, err := repo.ClaimDue(context.Background(), 100, time.Now())
	require.NoError(t, err)
	for _, job := range claimed {
		if job.ID == id {
			return job
		}
	}
	t.Fatalf("job %s was not claimed", id)
	return nil
}

func TestEnqueueAppliesDefaults(t *testing.T) {
	repo := NewQueueRepository()
	n := newTestNotification()
	mustEnqueue(t, repo, n)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, model.DeliveryPending, stored.DeliveryStatus)
	assert.Equal(t, 0, stored.RetryCount)
	assert.False(t, stored.ScheduledAt.IsZero())
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestEnqueueRejectsInvalid(t *testing.T) {
	repo := NewQueueRepository()

	n := newTestNotification()
	n.Recipient = ""
	err := repo.Enqueue(context.Background(), n)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	n = newTestNotification()
	n.Type = model.Channel("PIGEON")
	err = repo.Enqueue(context.Background(), n)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	repo := NewQueueRepository()
	_, err := repo.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClaimDueSkipsFutureJobs(t *testing.T) {
	repo := NewQueueRepository()
	now := time.Now()

	due := newTestNotification()
	mustEnqueue(t, repo, due)

	future := newTestNotification()
	future.ScheduledAt = now.Add(time.Hour)
	mustEnqueue(t, repo, future)

	claimed, err := repo.ClaimDue(context.Background(), 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, model.StatusProcessing, claimed[0].Status)

	// The future job is untouched until its time arrives.
	stored, err := repo.Get(context.Background(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)

	claimed, err = repo.ClaimDue(context.Background(), 10, now.Add(61*time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, future.ID, claimed[0].ID)
}

func TestClaimDueOrdersByScheduledAt(t *testing.T) {
	repo := NewQueueRepository()
	now := time.Now()

	later := newTestNotification()
	later.ScheduledAt = now.Add(-time.Minute)
	mustEnqueue(t, repo, later)

	earlier := newTestNotification()
	earlier.ScheduledAt = now.Add(-time.Hour)
	mustEnqueue(t, repo, earlier)

	claimed, err := repo.ClaimDue(context.Background(), 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, earlier.ID, claimed[0].ID)
}

func TestClaimDueConcurrentClaimsAreDisjoint(t *testing.T) {
	repo := NewQueueRepository()
	for i := 0; i < 50; i++ {
		mustEnqueue(t, repo, newTestNotification())
	}

	const claimers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := repo.ClaimDue(context.Background(), 10, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, job := range jobs {
				claimed[job.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 50)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestRecordOutcomeSuccess(t *testing.T) {
	repo := NewQueueRepository()
	n := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, n.ID)

	err := repo.RecordOutcome(context.Background(), n.ID, model.Outcome{
		Success:          true,
		ExternalID:       "prov-123",
		ProviderResponse: model.JSONMap{"status": "queued"},
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.Equal(t, "prov-123", stored.ExternalID)
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, model.DeliveryPending, stored.DeliveryStatus)
}

func TestRecordOutcomeRetryWalkEndsFailed(t *testing.T) {
	repo := NewQueueRepository()
	n := newTestNotification()
	n.MaxRetries = 2
	mustEnqueue(t, repo, n)

	// Attempts 1 and 2 fail transiently and go back to PENDING.
	for attempt := 1; attempt <= 2; attempt++ {
		claimOne(t, repo, n.ID)
		err := repo.RecordOutcome(context.Background(), n.ID, model.Outcome{
			ErrorMessage:  "gateway timeout",
			NextAttemptAt: time.Now().Add(-time.Second),
		})
		require.NoError(t, err)

		stored, err := repo.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, stored.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, stored.RetryCount)
	}

	// Third failure exhausts maxRetries=2.
	claimOne(t, repo, n.ID)
	err := repo.RecordOutcome(context.Background(), n.ID, model.Outcome{
		ErrorMessage: "gateway timeout",
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, "gateway timeout", stored.ErrorMessage)
}

func TestRecordOutcomePermanentFailsImmediately(t *testing.T) {
	repo := NewQueueRepository()
	n := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, n.ID)

	err := repo.RecordOutcome(context.Background(), n.ID, model.Outcome{
		ErrorMessage: "recipient opted out",
		Permanent:    true,
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestRecordOutcomeRequiresProcessing(t *testing.T) {
	repo := NewQueueRepository()
	n := mustEnqueue(t, repo, newTestNotification())

	err := repo.RecordOutcome(context.Background(), n.ID, model.Outcome{Success: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))

	err = repo.RecordOutcome(context.Background(), uuid.New(), model.Outcome{Success: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCancelOnlyPending(t *testing.T) {
	repo := NewQueueRepository()
	n := mustEnqueue(t, repo, newTestNotification())

	require.NoError(t, repo.Cancel(context.Background(), n.ID))
	stored, err := repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)

	// A processing job cannot be cancelled.
	other := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, other.ID)
	err = repo.Cancel(context.Background(), other.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func sentNotification(t *testing.T, repo *QueueRepository, externalID string) *model.Notification {
	t.Helper()
	n := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, n.ID)
	require.NoError(t, repo.RecordOutcome(context.Background(), n.ID, model.Outcome{
		Success:    true,
		ExternalID: externalID,
	}))
	return n
}

func TestUpdateDeliveryStatusForwardOnly(t *testing.T) {
	repo := NewQueueRepository()
	n := sentNotification(t, repo, "ext-1")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-1", model.DeliveryRead, now))
	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryRead, stored.DeliveryStatus)
	require.NotNil(t, stored.ReadAt)

	// A late DELIVERED must not regress READ.
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-1", model.DeliveryDelivered, now))
	stored, err = repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryRead, stored.DeliveryStatus)

	// Replaying READ is a no-op, not an error.
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-1", model.DeliveryRead, now))
}

func TestUpdateDeliveryStatusFailedIsTerminal(t *testing.T) {
	repo := NewQueueRepository()
	n := sentNotification(t, repo, "ext-2")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-2", model.DeliveryFailed, now))
	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, stored.DeliveryStatus)

	// Nothing supersedes delivery failure.
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-2", model.DeliveryDelivered, now))
	stored, err = repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, stored.DeliveryStatus)
}

func TestUpdateDeliveryStatusFailedOnlyFromPending(t *testing.T) {
	repo := NewQueueRepository()
	n := sentNotification(t, repo, "ext-3")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-3", model.DeliveryDelivered, now))
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-3", model.DeliveryFailed, now))

	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, stored.DeliveryStatus)
}

func TestUpdateDeliveryStatusReplayKeepsTimestamp(t *testing.T) {
	repo := NewQueueRepository()
	n := sentNotification(t, repo, "ext-4")
	ctx := context.Background()

	first := time.Now().Add(-time.Minute)
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-4", model.DeliveryDelivered, first))
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, "ext-4", model.DeliveryDelivered, time.Now()))

	stored, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	assert.Equal(t, first, *stored.DeliveredAt)
}

func TestUpdateDeliveryStatusUnknownExternalID(t *testing.T) {
	repo := NewQueueRepository()
	err := repo.UpdateDeliveryStatus(context.Background(), "no-such-id", model.DeliveryDelivered, time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReclaimStaleKeepsRetryCount(t *testing.T) {
	repo := NewQueueRepository()
	ctx := context.Background()

	stale := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, stale.ID)

	fresh := mustEnqueue(t, repo, newTestNotification())

	// The claim stamped UpdatedAt with the claim time, so a cutoff in
	// the future marks it stale.
	reclaimed, err := repo.ReclaimStale(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	stored, err := repo.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)

	storedFresh, err := repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, storedFresh.Status)
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := NewQueueRepository()
	ctx := context.Background()
	branchID := uuid.New()

	for i := 0; i < 5; i++ {
		n := newTestNotification()
		n.BranchID = branchID
		mustEnqueue(t, repo, n)
	}
	mustEnqueue(t, repo, newTestNotification())

	jobs, total, err := repo.List(ctx, model.NotificationFilter{BranchID: branchID}, model.Pagination{Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, jobs, 3)

	jobs, total, err = repo.List(ctx, model.NotificationFilter{BranchID: branchID}, model.Pagination{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, jobs, 2)

	// A page past the end is empty, not an error.
	jobs, total, err = repo.List(ctx, model.NotificationFilter{BranchID: branchID}, model.Pagination{Page: 9, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, jobs)
}

func TestListFiltersByStatus(t *testing.T) {
	repo := NewQueueRepository()
	ctx := context.Background()

	n := mustEnqueue(t, repo, newTestNotification())
	claimOne(t, repo, n.ID)
	mustEnqueue(t, repo, newTestNotification())

	jobs, total, err := repo.List(ctx, model.NotificationFilter{Status: model.StatusProcessing}, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, n.ID, jobs[0].ID)
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/errors"
)

// QueueRepository is an in-memory queue store. Every lifecycle change
// happens under the store mutex, so the claim is a true compare-and-set
// and concurrent callers cannot double-claim a job.
type QueueRepository struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*model.Notification
	byExternal map[string]uuid.UUID
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{
		jobs:       make(map[uuid.UUID]*model.Notification),
		byExternal: make(map[string]uuid.UUID),
	}
}

var _ repository.QueueRepository = (*QueueRepository)(nil)

func (r *QueueRepository) Enqueue(_ context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return errors.NewValidation("invalid notification", err)
	}

	now := time.Now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = now
	}
	n.Status = model.StatusPending
	n.DeliveryStatus = model.DeliveryPending
	n.RetryCount = 0
	n.CreatedAt = now
	n.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *n
	r.jobs[n.ID] = &clone
	return nil
}

func (r *QueueRepository) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.NewNotFound("notification", nil)
	}
	clone := *job
	return &clone, nil
}

func (r *QueueRepository) ClaimDue(_ context.Context, limit int, now time.Time) ([]*model.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*model.Notification, 0, limit)
	for _, job := range r.jobs {
		if job.Status == model.StatusPending && !job.ScheduledAt.After(now) {
			due = append(due, job)
		}
	}
	// Oldest scheduled first, id as tiebreak for determinism.
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID.String() < due[j].ID.String()
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*model.Notification, 0, len(due))
	for _, job := range due {
		job.Status = model.StatusProcessing
		job.UpdatedAt = now
		clone := *job
		claimed = append(claimed, &clone)
	}
	return claimed, nil
}

func (r *QueueRepository) RecordOutcome(_ context.Context, id uuid.UUID, outcome model.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return errors.NewNotFound("notification", nil)
	}
	if job.Status != model.StatusProcessing {
		return errors.NewInvalidState("notification is not processing", nil)
	}

	now := outcome.CompletedAt
	if now.IsZero() {
		now = time.Now()
	}

	if outcome.Success {
		job.Status = model.StatusSent
		job.SentAt = &now
		job.ExternalID = outcome.ExternalID
		job.ProviderResponse = outcome.ProviderResponse
		job.ErrorMessage = ""
		if job.ExternalID != "" {
			r.byExternal[job.ExternalID] = job.ID
		}
	} else {
		job.RetryCount++
		job.ErrorMessage = outcome.ErrorMessage
		if outcome.ProviderResponse != nil {
			job.ProviderResponse = outcome.ProviderResponse
		}
		if outcome.Permanent || job.RetryCount > job.MaxRetries {
			job.Status = model.StatusFailed
		} else {
			job.Status = model.StatusPending
			job.ScheduledAt = outcome.NextAttemptAt
		}
	}
	job.UpdatedAt = now
	return nil
}

func (r *QueueRepository) Cancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return errors.NewNotFound("notification", nil)
	}
	if job.Status != model.StatusPending {
		return errors.NewInvalidState("notification is not pending", nil)
	}
	job.Status = model.StatusCancelled
	job.UpdatedAt = time.Now()
	return nil
}

func (r *QueueRepository) UpdateDeliveryStatus(_ context.Context, externalID string, status model.DeliveryStatus, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return errors.NewNotFound("notification", nil)
	}
	job := r.jobs[id]
	if job.Status != model.StatusSent {
		return errors.NewInvalidState("notification was never sent", nil)
	}

	// Delivery FAILED is terminal and never superseded.
	if job.DeliveryStatus == model.DeliveryFailed {
		return nil
	}
	if status == model.DeliveryFailed {
		if job.DeliveryStatus == model.DeliveryPending {
			job.DeliveryStatus = model.DeliveryFailed
			job.UpdatedAt = time.Now()
		}
		return nil
	}

	// Forward-only: replays and out-of-order regressions are no-ops.
	if status.Rank() <= job.DeliveryStatus.Rank() {
		return nil
	}

	job.DeliveryStatus = status
	switch status {
	case model.DeliveryDelivered:
		if job.DeliveredAt == nil {
			t := ts
			job.DeliveredAt = &t
		}
	case model.DeliveryRead:
		if job.ReadAt == nil {
			t := ts
			job.ReadAt = &t
		}
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (r *QueueRepository) ReclaimStale(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reclaimed int64
	now := time.Now()
	for _, job := range r.jobs {
		if job.Status == model.StatusProcessing && job.UpdatedAt.Before(olderThan) {
			// Outcome of the original attempt is unknown, so the
			// retry count stays untouched.
			job.Status = model.StatusPending
			job.ScheduledAt = now
			job.UpdatedAt = now
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (r *QueueRepository) List(_ context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, int, error) {
	page.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*model.Notification, 0)
	for _, job := range r.jobs {
		if !matchesFilter(job, filter) {
			continue
		}
		clone := *job
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := page.Offset()
	if start >= total {
		return []*model.Notification{}, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesFilter(job *model.Notification, f model.NotificationFilter) bool {
	if f.BranchID != uuid.Nil && job.BranchID != f.BranchID {
		return false
	}
	if f.CustomerID != uuid.Nil && job.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	if f.StartDate != nil && job.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && job.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

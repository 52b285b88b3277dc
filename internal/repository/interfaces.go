package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/model"
)

// QueueRepository is the durable record of every notification job and
// the single authority over its lifecycle fields. All state changes
// route through these contracted operations.
type QueueRepository interface {
	// Enqueue inserts a new job in PENDING with retryCount zero.
	Enqueue(ctx context.Context, n *model.Notification) error

	// Get returns a job snapshot by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// ClaimDue atomically moves up to limit due PENDING jobs to
	// PROCESSING and returns them. Concurrent callers never receive
	// the same job.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*model.Notification, error)

	// RecordOutcome applies a send result to a PROCESSING job. It is
	// the only operation that moves a job out of PROCESSING.
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome model.Outcome) error

	// Cancel transitions PENDING to CANCELLED.
	Cancel(ctx context.Context, id uuid.UUID) error

	// UpdateDeliveryStatus applies a provider delivery event, keyed by
	// external id, advancing the delivery axis forward only.
	UpdateDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, ts time.Time) error

	// ReclaimStale requeues PROCESSING jobs whose claim predates
	// olderThan, without touching retryCount.
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)

	// List returns a filtered history page plus the total match count.
	List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, int, error)
}

// DirectoryRepository resolves customer/branch/template identity for
// the history projection and the template resolver. Ownership of these
// entities lives elsewhere; this is read-only.
type DirectoryRepository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*model.CustomerSummary, error)
	GetBranch(ctx context.Context, id uuid.UUID) (*model.BranchSummary, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*model.TemplateSummary, error)
}

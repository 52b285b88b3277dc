package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/errors"
)

const notificationColumns = `
	id, branch_id, customer_id, template_id, type, recipient, subject, content,
	status, delivery_status, scheduled_at, sent_at, delivered_at, read_at,
	retry_count, max_retries, error_message, external_id, metadata,
	provider_response, created_at, updated_at`

type queueRepository struct {
	*BaseRepository
}

func NewQueueRepository(base *BaseRepository) repository.QueueRepository {
	return &queueRepository{BaseRepository: base}
}

func (r *queueRepository) Enqueue(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return errors.NewValidation("invalid notification", err)
	}

	query := `
		INSERT INTO notifications (
			id, branch_id, customer_id, template_id, type, recipient,
			subject, content, status, delivery_status, scheduled_at,
			retry_count, max_retries, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`
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

	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.BranchID,
		n.CustomerID,
		n.TemplateID,
		n.Type,
		n.Recipient,
		n.Subject,
		n.Content,
		n.Status,
		n.DeliveryStatus,
		n.ScheduledAt,
		n.RetryCount,
		n.MaxRetries,
		n.Metadata,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n model.Notification
	err := r.db.GetContext(ctx, &n, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("notification", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// ClaimDue is a compare-and-set on status: the inner select takes row
// locks with SKIP LOCKED, so two concurrent callers partition the due
// set instead of double-claiming.
func (r *queueRepository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*model.Notification, error) {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = $3 AND scheduled_at <= $4
			ORDER BY scheduled_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns

	var claimed []*model.Notification
	err := r.db.SelectContext(ctx, &claimed, query,
		model.StatusProcessing, now, model.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due notifications: %w", err)
	}
	return claimed, nil
}

func (r *queueRepository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome model.Outcome) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var n model.Notification
		query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &n, query, id); err != nil {
			if err == sql.ErrNoRows {
				return errors.NewNotFound("notification", err)
			}
			return fmt.Errorf("failed to lock notification: %w", err)
		}
		if n.Status != model.StatusProcessing {
			return errors.NewInvalidState("notification is not processing", nil)
		}

		now := outcome.CompletedAt
		if now.IsZero() {
			now = time.Now()
		}

		if outcome.Success {
			update := `
				UPDATE notifications
				SET status = $1, sent_at = $2, external_id = $3,
					provider_response = $4, error_message = '', updated_at = $5
				WHERE id = $6
			`
			_, err := tx.ExecContext(ctx, update,
				model.StatusSent, now, outcome.ExternalID, outcome.ProviderResponse, now, id)
			if err != nil {
				return fmt.Errorf("failed to record success: %w", err)
			}
			return nil
		}

		retryCount := n.RetryCount + 1
		status := model.StatusPending
		scheduledAt := outcome.NextAttemptAt
		if outcome.Permanent || retryCount > n.MaxRetries {
			status = model.StatusFailed
			scheduledAt = n.ScheduledAt
		}
		update := `
			UPDATE notifications
			SET status = $1, retry_count = $2, scheduled_at = $3,
				error_message = $4, provider_response = COALESCE($5, provider_response),
				updated_at = $6
			WHERE id = $7
		`
		_, err := tx.ExecContext(ctx, update,
			status, retryCount, scheduledAt, outcome.ErrorMessage,
			outcome.ProviderResponse, now, id)
		if err != nil {
			return fmt.Errorf("failed to record failure: %w", err)
		}
		return nil
	})
}

func (r *queueRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.StatusCancelled, time.Now(), id, model.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("failed to check notification: %w", err)
		}
		if !exists {
			return errors.NewNotFound("notification", nil)
		}
		return errors.NewInvalidState("notification is not pending", nil)
	}
	return nil
}

func (r *queueRepository) UpdateDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, ts time.Time) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var n model.Notification
		query := `SELECT ` + notificationColumns + ` FROM notifications WHERE external_id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &n, query, externalID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NewNotFound("notification", err)
			}
			return fmt.Errorf("failed to lock notification: %w", err)
		}
		if n.Status != model.StatusSent {
			return errors.NewInvalidState("notification was never sent", nil)
		}

		// Delivery FAILED is terminal; anything after it is a no-op.
		if n.DeliveryStatus == model.DeliveryFailed {
			return nil
		}
		if status == model.DeliveryFailed {
			if n.DeliveryStatus != model.DeliveryPending {
				return nil
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE notifications SET delivery_status = $1, updated_at = $2 WHERE id = $3`,
				model.DeliveryFailed, time.Now(), n.ID)
			if err != nil {
				return fmt.Errorf("failed to update delivery status: %w", err)
			}
			return nil
		}

		if status.Rank() <= n.DeliveryStatus.Rank() {
			return nil
		}

		update := `
			UPDATE notifications
			SET delivery_status = $1,
				delivered_at = CASE WHEN $1 = 'DELIVERED' AND delivered_at IS NULL THEN $2 ELSE delivered_at END,
				read_at = CASE WHEN $1 = 'READ' AND read_at IS NULL THEN $2 ELSE read_at END,
				updated_at = $3
			WHERE id = $4
		`
		_, err := tx.ExecContext(ctx, update, status, ts, time.Now(), n.ID)
		if err != nil {
			return fmt.Errorf("failed to update delivery status: %w", err)
		}
		return nil
	})
}

func (r *queueRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET status = $1, scheduled_at = $2, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`
	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		model.StatusPending, now, model.StatusProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale notifications: %w", err)
	}
	return result.RowsAffected()
}

func (r *queueRepository) List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, int, error) {
	page.Normalize()

	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.BranchID != uuid.Nil {
		where += fmt.Sprintf(" AND branch_id = $%d", argCount)
		args = append(args, filter.BranchID)
		argCount++
	}
	if filter.CustomerID != uuid.Nil {
		where += fmt.Sprintf(" AND customer_id = $%d", argCount)
		args = append(args, filter.CustomerID)
		argCount++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
		argCount++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", argCount)
		args = append(args, filter.Type)
		argCount++
	}
	if filter.StartDate != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartDate)
		argCount++
	}
	if filter.EndDate != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndDate)
		argCount++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM notifications" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := "SELECT " + notificationColumns + " FROM notifications" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, page.Limit, page.Offset())

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

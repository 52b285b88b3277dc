package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/errors"
)

type directoryRepository struct {
	*BaseRepository
}

func NewDirectoryRepository(base *BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{BaseRepository: base}
}

func (r *directoryRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*model.CustomerSummary, error) {
	query := `SELECT id, name, phone, email FROM customers WHERE id = $1`

	var c model.CustomerSummary
	err := r.db.GetContext(ctx, &c, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("customer", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (r *directoryRepository) GetBranch(ctx context.Context, id uuid.UUID) (*model.BranchSummary, error) {
	query := `SELECT id, name, code FROM branches WHERE id = $1`

	var b model.BranchSummary
	err := r.db.GetContext(ctx, &b, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("branch", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}
	return &b, nil
}

func (r *directoryRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*model.TemplateSummary, error) {
	query := `SELECT id, name, subject, body FROM notification_templates WHERE id = $1`

	var t model.TemplateSummary
	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("template", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

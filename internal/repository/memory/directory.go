package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/errors"
)

// DirectoryRepository is an in-memory customer/branch/template lookup
// used by tests and local development.
type DirectoryRepository struct {
	mu        sync.RWMutex
	customers map[uuid.UUID]model.CustomerSummary
	branches  map[uuid.UUID]model.BranchSummary
	templates map[uuid.UUID]model.TemplateSummary
}

func NewDirectoryRepository() *DirectoryRepository {
	return &DirectoryRepository{
		customers: make(map[uuid.UUID]model.CustomerSummary),
		branches:  make(map[uuid.UUID]model.BranchSummary),
		templates: make(map[uuid.UUID]model.TemplateSummary),
	}
}

var _ repository.DirectoryRepository = (*DirectoryRepository)(nil)

func (r *DirectoryRepository) PutCustomer(c model.CustomerSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[c.ID] = c
}

func (r *DirectoryRepository) PutBranch(b model.BranchSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches[b.ID] = b
}

func (r *DirectoryRepository) PutTemplate(t model.TemplateSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
}

func (r *DirectoryRepository) GetCustomer(_ context.Context, id uuid.UUID) (*model.CustomerSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, errors.NewNotFound("customer", nil)
	}
	return &c, nil
}

func (r *DirectoryRepository) GetBranch(_ context.Context, id uuid.UUID) (*model.BranchSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.branches[id]
	if !ok {
		return nil, errors.NewNotFound("branch", nil)
	}
	return &b, nil
}

func (r *DirectoryRepository) GetTemplate(_ context.Context, id uuid.UUID) (*model.TemplateSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, errors.NewNotFound("template", nil)
	}
	return &t, nil
}

package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/internal/template"
	apperrors "github.com/jwalitptl/notify-engine/pkg/errors"
	"github.com/jwalitptl/notify-engine/pkg/logger"
	"github.com/jwalitptl/notify-engine/pkg/messaging"
	"github.com/jwalitptl/notify-engine/pkg/metrics"
	"github.com/jwalitptl/notify-engine/pkg/validator"
)

const (
	summaryCacheTTL     = 5 * time.Minute
	summaryCacheCleanup = 10 * time.Minute
)

// Service orchestrates enqueue, cancel and history across the queue
// store, template resolver and directory lookups. It never mutates a
// job except through the store's contracted operations.
type Service interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	History(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.NotificationHistoryItem, int, error)
}

type service struct {
	queue     repository.QueueRepository
	directory repository.DirectoryRepository
	resolver  template.Resolver
	broker    messaging.Broker
	logger    *logger.Logger
	metrics   *metrics.Metrics
	summaries *gocache.Cache
}

func NewService(
	queue repository.QueueRepository,
	directory repository.DirectoryRepository,
	resolver template.Resolver,
	broker messaging.Broker,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &service{
		queue:     queue,
		directory: directory,
		resolver:  resolver,
		broker:    broker,
		logger:    log,
		metrics:   m,
		summaries: gocache.New(summaryCacheTTL, summaryCacheCleanup),
	}
}

func (s *service) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Notification, error) {
	channel, err := model.ParseChannel(req.Type)
	if err != nil {
		return nil, apperrors.NewValidation("invalid channel", err)
	}

	if err := validateRecipient(channel, req.Recipient); err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	maxRetries := model.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, apperrors.NewValidation("max retries cannot be negative", nil)
		}
		maxRetries = *req.MaxRetries
	}

	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	subject, content := req.Subject, req.Content
	if content == "" {
		if req.TemplateID == uuid.Nil {
			return nil, apperrors.NewValidation("content or template ID is required", nil)
		}
		renderCtx := s.renderContext(ctx, req)
		subject, content, err = s.resolver.Render(ctx, req.TemplateID, renderCtx)
		if err != nil {
			return nil, apperrors.NewValidation("failed to render template", err)
		}
	}

	n := &model.Notification{
		BranchID:    req.BranchID,
		CustomerID:  req.CustomerID,
		TemplateID:  req.TemplateID,
		Type:        channel,
		Recipient:   req.Recipient,
		Subject:     subject,
		Content:     content,
		ScheduledAt: scheduledAt,
		MaxRetries:  maxRetries,
		Metadata:    req.Metadata,
	}

	if err := s.queue.Enqueue(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	if s.metrics != nil {
		s.metrics.JobsEnqueued.WithLabelValues(channel.String()).Inc()
	}
	if err := s.broker.Publish(ctx, messaging.ChannelEnqueued, map[string]interface{}{
		"job_id":       n.ID.String(),
		"branch_id":    n.BranchID.String(),
		"customer_id":  n.CustomerID.String(),
		"channel":      n.Type.String(),
		"scheduled_at": n.ScheduledAt,
	}); err != nil {
		s.logger.Error(err, "failed to publish enqueue event", "job_id", n.ID.String())
	}

	s.logger.Info("notification enqueued",
		"job_id", n.ID.String(),
		"channel", n.Type.String(),
		"scheduled_at", n.ScheduledAt,
	)
	return n, nil
}

// validateRecipient enforces the address shape each channel expects.
func validateRecipient(channel model.Channel, recipient string) error {
	switch channel {
	case model.ChannelEmail:
		return validator.ValidateEmail(recipient)
	default:
		return validator.ValidatePhone(recipient)
	}
}

// renderContext gathers customer/branch identity for template
// rendering; lookups are best-effort and missing entries just leave
// the placeholders empty.
func (s *service) renderContext(ctx context.Context, req *model.EnqueueRequest) map[string]interface{} {
	data := map[string]interface{}{
		"Recipient": req.Recipient,
	}
	for k, v := range req.Metadata {
		data[k] = v
	}
	if customer, err := s.customerSummary(ctx, req.CustomerID); err == nil {
		data["CustomerName"] = customer.Name
	}
	if branch, err := s.branchSummary(ctx, req.BranchID); err == nil {
		data["BranchName"] = branch.Name
	}
	return data
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.queue.Cancel(ctx, id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.JobsCancelled.Inc()
	}
	s.logger.Info("notification cancelled", "job_id", id.String())
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.queue.Get(ctx, id)
}

// History is a read-only projection; it enriches each job with
// customer/template/branch summaries but never writes back.
func (s *service) History(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.NotificationHistoryItem, int, error) {
	jobs, total, err := s.queue.List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	items := make([]*model.NotificationHistoryItem, 0, len(jobs))
	for _, job := range jobs {
		item := &model.NotificationHistoryItem{Notification: *job}
		if customer, err := s.customerSummary(ctx, job.CustomerID); err == nil {
			item.Customer = customer
		}
		if branch, err := s.branchSummary(ctx, job.BranchID); err == nil {
			item.Branch = branch
		}
		if job.TemplateID != uuid.Nil {
			if tmpl, err := s.templateSummary(ctx, job.TemplateID); err == nil {
				item.Template = tmpl
			}
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *service) customerSummary(ctx context.Context, id uuid.UUID) (*model.CustomerSummary, error) {
	key := "customer:" + id.String()
	if cached, ok := s.summaries.Get(key); ok {
		return cached.(*model.CustomerSummary), nil
	}
	customer, err := s.directory.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	s.summaries.Set(key, customer, gocache.DefaultExpiration)
	return customer, nil
}

func (s *service) branchSummary(ctx context.Context, id uuid.UUID) (*model.BranchSummary, error) {
	key := "branch:" + id.String()
	if cached, ok := s.summaries.Get(key); ok {
		return cached.(*model.BranchSummary), nil
	}
	branch, err := s.directory.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	s.summaries.Set(key, branch, gocache.DefaultExpiration)
	return branch, nil
}

func (s *service) templateSummary(ctx context.Context, id uuid.UUID) (*model.TemplateSummary, error) {
	key := "template:" + id.String()
	if cached, ok := s.summaries.Get(key); ok {
		return cached.(*model.TemplateSummary), nil
	}
	tmpl, err := s.directory.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.summaries.Set(key, tmpl, gocache.DefaultExpiration)
	return tmpl, nil
}

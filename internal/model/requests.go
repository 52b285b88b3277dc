package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries applies when an enqueue request leaves the retry
// ceiling unset.
const DefaultMaxRetries = 3

// EnqueueRequest is the payload accepted by the enqueue API. Subject
// and content may be omitted when a template ID is supplied; rendering
// happens before the job is persisted.
type EnqueueRequest struct {
	BranchID    uuid.UUID  `json:"branch_id" binding:"required"`
	CustomerID  uuid.UUID  `json:"customer_id" binding:"required"`
	TemplateID  uuid.UUID  `json:"template_id"`
	Type        string     `json:"type" binding:"required"`
	Recipient   string     `json:"recipient" binding:"required"`
	Subject     string     `json:"subject"`
	Content     string     `json:"content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	MaxRetries  *int       `json:"max_retries"`
	Metadata    JSONMap    `json:"metadata"`
}

// HistoryRequest carries history query filters plus pagination.
type HistoryRequest struct {
	BranchID   string `form:"branch_id"`
	CustomerID string `form:"customer_id"`
	Status     string `form:"status"`
	Type       string `form:"type"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

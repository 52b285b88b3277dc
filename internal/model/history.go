package model

import (
	"github.com/google/uuid"
)

// CustomerSummary is the slice of customer identity the history view
// exposes alongside a job.
type CustomerSummary struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Phone string    `json:"phone,omitempty" db:"phone"`
	Email string    `json:"email,omitempty" db:"email"`
}

// BranchSummary identifies the branch a job belongs to.
type BranchSummary struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
	Code string    `json:"code,omitempty" db:"code"`
}

// TemplateSummary identifies the template a job was rendered from.
type TemplateSummary struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Name    string    `json:"name" db:"name"`
	Subject string    `json:"subject,omitempty" db:"subject"`
	Body    string    `json:"body,omitempty" db:"body"`
}

// NotificationHistoryItem is the read-only projection of a job joined
// with customer/template/branch context for reporting.
type NotificationHistoryItem struct {
	Notification
	Customer *CustomerSummary `json:"customer,omitempty"`
	Branch   *BranchSummary   `json:"branch,omitempty"`
	Template *TemplateSummary `json:"template,omitempty"`
}

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the send-lifecycle state of a notification.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the send axis can still move.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// DeliveryStatus is the provider-acknowledged lifecycle, an axis
// independent of Status and only meaningful once a job is SENT.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
	DeliveryRead      DeliveryStatus = "READ"
)

func (d DeliveryStatus) String() string { return string(d) }

func (d DeliveryStatus) IsValid() bool {
	switch d {
	case DeliveryPending, DeliveryDelivered, DeliveryFailed, DeliveryRead:
		return true
	}
	return false
}

// Rank orders delivery states for forward-only transitions:
// PENDING < DELIVERED < READ. FAILED is terminal and handled apart.
func (d DeliveryStatus) Rank() int {
	switch d {
	case DeliveryDelivered:
		return 1
	case DeliveryRead:
		return 2
	default:
		return 0
	}
}

// Channel identifies the provider adapter that handles a job.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelEmail:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("invalid channel %q", s)
	}
	return ch, nil
}

// Notification is the durable unit of outbound messaging. The queue
// store is the only component allowed to mutate its lifecycle fields.
type Notification struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	BranchID         uuid.UUID      `json:"branch_id" db:"branch_id"`
	CustomerID       uuid.UUID      `json:"customer_id" db:"customer_id"`
	TemplateID       uuid.UUID      `json:"template_id" db:"template_id"`
	Type             Channel        `json:"type" db:"type"`
	Recipient        string         `json:"recipient" db:"recipient"`
	Subject          string         `json:"subject" db:"subject"`
	Content          string         `json:"content" db:"content"`
	Status           Status         `json:"status" db:"status"`
	DeliveryStatus   DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	ScheduledAt      time.Time      `json:"scheduled_at" db:"scheduled_at"`
	SentAt           *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt           *time.Time     `json:"read_at,omitempty" db:"read_at"`
	RetryCount       int            `json:"retry_count" db:"retry_count"`
	MaxRetries       int            `json:"max_retries" db:"max_retries"`
	ErrorMessage     string         `json:"error_message,omitempty" db:"error_message"`
	ExternalID       string         `json:"external_id,omitempty" db:"external_id"`
	Metadata         JSONMap        `json:"metadata,omitempty" db:"metadata"`
	ProviderResponse JSONMap        `json:"provider_response,omitempty" db:"provider_response"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

func (n *Notification) Validate() error {
	if n.BranchID == uuid.Nil {
		return fmt.Errorf("branch ID is required")
	}
	if n.CustomerID == uuid.Nil {
		return fmt.Errorf("customer ID is required")
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("invalid channel %q", n.Type)
	}
	if n.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if n.Content == "" {
		return fmt.Errorf("content is required")
	}
	if n.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Outcome is the result of one send attempt, written back through the
// queue store's RecordOutcome.
type Outcome struct {
	Success          bool
	ExternalID       string
	ProviderResponse JSONMap
	ErrorMessage     string
	// Permanent short-circuits the retry ladder straight to FAILED.
	Permanent bool
	// NextAttemptAt is the backoff-adjusted eligibility time applied
	// when the job goes back to PENDING for another attempt.
	NextAttemptAt time.Time
	CompletedAt   time.Time
}

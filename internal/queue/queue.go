// Package queue implements the durable outbound message queue: enqueueing,
// batch dispatch with retry/backoff, and cancellation.
package queue

import "time"

// Status represents the delivery status of a queue item.
type Status string

// Queue item statuses. Processing is a transient claim marker used while an
// item is being dispatched; the externally visible lifecycle is
// pending -> sent | failed | cancelled.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Item represents an outbound message in the queue.
type Item struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Destination  string            `json:"destination"`
	TemplateKey  string            `json:"template_key"`
	ResolvedText string            `json:"resolved_text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       Status            `json:"status"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
}

// Stats contains queue size counts by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}

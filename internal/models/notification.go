// internal/models/notification.go
package models

import "time"

// Notification channels
const (
	ChannelSMS     = "sms"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Notification job statuses
const (
	JobPending = "pending"
	JobSent    = "sent"
	JobFailed  = "failed"
)

// Event types
const (
	EventReviewCreated  = "review.created"
	EventReplyGenerated = "reply.generated"
)

// Event is a business event fanned out to notification channels. ID is the
// idempotency key together with the channel.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	BusinessID string                 `json:"business_id"`
	ReviewID   string                 `json:"review_id,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NotificationJob is the delivery record for one event on one channel.
type NotificationJob struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	BusinessID string    `json:"business_id"`
	ReviewID   string    `json:"review_id,omitempty"`
	Channel    string    `json:"channel"`
	Target     string    `json:"target"`
	Payload    []byte    `json:"payload"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the job can no longer change.
func (j *NotificationJob) Terminal() bool {
	return j.Status == JobSent || j.Status == JobFailed
}

// internal/models/business.go
package models

import "time"

// Business is the tenant root. Every review, integration and notification job
// is scoped to exactly one business.
type Business struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Channels    []ChannelTarget `json:"channels"`
	AutoDraft   bool            `json:"auto_draft"`
	DefaultTone string          `json:"default_tone,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ChannelTarget is one configured notification destination.
type ChannelTarget struct {
	Channel string `json:"channel"` // "sms", "email", "webhook"
	Target  string `json:"target"`  // phone number, email address or URL
}

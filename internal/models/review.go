// internal/models/review.go
package models

import "time"

// Review platforms
const (
	PlatformGoogle = "google"
)

// Reply draft states
const (
	ReplyStateNone       = "none"
	ReplyStateGenerating = "generating"
	ReplyStateDrafted    = "drafted"
	ReplyStateSent       = "sent"
)

// Review is a stored customer review. (BusinessID, Platform, PlatformReviewID)
// is unique.
type Review struct {
	ID               string    `json:"id"`
	BusinessID       string    `json:"business_id"`
	Platform         string    `json:"platform"`
	PlatformReviewID string    `json:"platform_review_id"`
	Author           string    `json:"author"`
	Rating           int       `json:"rating"`
	Body             string    `json:"body"`
	PostedAt         time.Time `json:"posted_at"`
	IngestedAt       time.Time `json:"ingested_at"`
	ReplyState       string    `json:"reply_state"`
	ReplyText        string    `json:"reply_text,omitempty"`
}

// RawReview is a review as returned by a platform, before admission.
type RawReview struct {
	PlatformReviewID string    `json:"platform_review_id"`
	Author           string    `json:"author"`
	Rating           int       `json:"rating"`
	Body             string    `json:"body"`
	PostedAt         time.Time `json:"posted_at"`
}

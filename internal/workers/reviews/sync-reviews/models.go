// internal/workers/reviews/sync-reviews/models.go
package syncreviews

import (
	"review-workers/internal/models"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
)

// Input triggers one sync run.
type Input struct {
	BusinessID string `json:"business_id"`
	Platform   string `json:"platform"`
	PlaceID    string `json:"place_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Output summarizes one sync run.
type Output struct {
	BusinessID    string                           `json:"business_id"`
	Platform      string                           `json:"platform"`
	Fetched       int                              `json:"fetched"`
	Admitted      int                              `json:"admitted"`
	Skipped       int                              `json:"skipped"`
	ReviewIDs     []string                         `json:"review_ids"`
	Cursor        string                           `json:"cursor,omitempty"`
	Committed     bool                             `json:"committed"`
	Detached      bool                             `json:"detached,omitempty"`
	Drafted       int                              `json:"drafted"`
	Notifications []dispatchnotification.JobResult `json:"notifications"`
}

// FanOutResult is what happened downstream of admission.
type FanOutResult struct {
	Drafted       int
	Notifications []dispatchnotification.JobResult
}

// ReviewEvent builds the review.created event for a newly admitted review.
// The id is derived from the review's storage id, so it is stable across
// redeliveries.
func ReviewEvent(review *models.Review, source string) *models.Event {
	return &models.Event{
		ID:         "review:" + review.ID,
		Type:       models.EventReviewCreated,
		BusinessID: review.BusinessID,
		ReviewID:   review.ID,
		Source:     source,
		Payload: map[string]interface{}{
			"platform":           review.Platform,
			"platform_review_id": review.PlatformReviewID,
			"author":             review.Author,
			"rating":             review.Rating,
			"body":               review.Body,
			"posted_at":          review.PostedAt,
		},
		OccurredAt: review.IngestedAt,
	}
}

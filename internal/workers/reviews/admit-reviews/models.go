// internal/workers/reviews/admit-reviews/models.go
package admitreviews

import (
	"context"

	"review-workers/internal/models"
)

// Review sources
const (
	SourceSync     = "sync"
	SourceWebhook  = "webhook"
	SourceRecovery = "recovery"
)

// Stream is a finite source of raw reviews with a commit cursor.
type Stream interface {
	Next(ctx context.Context) (models.RawReview, bool)
	Err() error
	Cursor() string
}

// Result describes one admission pass.
type Result struct {
	Admitted  []models.Review `json:"admitted"`
	Fetched   int             `json:"fetched"`
	Skipped   int             `json:"skipped"`
	Cursor    string          `json:"cursor,omitempty"`
	Committed bool            `json:"committed"`
}

// ReviewIDs lists the ids of the admitted reviews in arrival order.
func (r *Result) ReviewIDs() []string {
	ids := make([]string, len(r.Admitted))
	for i, rv := range r.Admitted {
		ids[i] = rv.ID
	}
	return ids
}

// Package store persists businesses, integrations, reviews and notification
// jobs. Uniqueness of reviews and notification jobs is enforced by the
// storage itself; inserts that hit an existing key report "not inserted"
// instead of failing.
package store

import (
	"context"
	"time"

	"review-workers/internal/models"
)

type BusinessStore interface {
	GetBusiness(ctx context.Context, businessID string) (*models.Business, error)
}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, businessID, platform string) (*models.Integration, error)
	// ListConnected returns connected integrations for the given platforms.
	ListConnected(ctx context.Context, platforms []string) ([]models.Integration, error)
	// MarkSynced commits the fetch cursor and resets the failure counter.
	MarkSynced(ctx context.Context, integrationID, cursor string, at time.Time) error
	// RecordSyncFailure counts a transient failure and flips the status to
	// error once threshold consecutive failures are reached.
	RecordSyncFailure(ctx context.Context, integrationID, reason string, threshold int) (*models.Integration, error)
	MarkIntegrationError(ctx context.Context, integrationID, reason string) error
}

type ReviewStore interface {
	// InsertReviewIfAbsent inserts r unless its natural key is already stored.
	// On insert r.ID and r.IngestedAt are set.
	InsertReviewIfAbsent(ctx context.Context, r *models.Review) (bool, error)
	GetReview(ctx context.Context, businessID, reviewID string) (*models.Review, error)
	// TransitionReplyState moves the reply state to `to` only when the current
	// state is one of from. replyText nil keeps the stored text.
	TransitionReplyState(ctx context.Context, businessID, reviewID, to string, replyText *string, from ...string) (*models.Review, error)
	// ListUnfannedReviews returns reviews ingested before the cutoff whose
	// downstream fan-out was never recorded, oldest first.
	ListUnfannedReviews(ctx context.Context, ingestedBefore time.Time, limit int) ([]models.Review, error)
	MarkFannedOut(ctx context.Context, reviewIDs []string, at time.Time) error
}

type JobStore interface {
	// CreateJobIfAbsent returns the stored job for (business, event, channel)
	// and whether this call created it.
	CreateJobIfAbsent(ctx context.Context, job *models.NotificationJob) (*models.NotificationJob, bool, error)
	// UpdateJob persists status, attempts and last error of a pending job.
	UpdateJob(ctx context.Context, job *models.NotificationJob) error
	// ClaimStaleJob takes over a pending job last touched before staleBefore.
	// Only one caller wins the claim.
	ClaimStaleJob(ctx context.Context, jobID string, staleBefore time.Time) (*models.NotificationJob, bool, error)
	ListJobsForEvent(ctx context.Context, businessID, eventID string) ([]models.NotificationJob, error)
}

type Store interface {
	BusinessStore
	IntegrationStore
	ReviewStore
	JobStore
	Ping(ctx context.Context) error
}

// internal/workers/reviews/admit-reviews/service.go
package admitreviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/metrics"
	"review-workers/internal/models"
)

type Store interface {
	InsertReviewIfAbsent(ctx context.Context, r *models.Review) (bool, error)
	MarkSynced(ctx context.Context, integrationID, cursor string, at time.Time) error
	RecordSyncFailure(ctx context.Context, integrationID, reason string, threshold int) (*models.Integration, error)
	MarkIntegrationError(ctx context.Context, integrationID, reason string) error
}

type Service struct {
	config *Config
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func NewService(config *Config, store Store, log logger.Logger) *Service {
	return &Service{
		config: config,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "admit-reviews"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AdmitReviews drains stream and stores every review whose natural key is
// new. Reviews already stored are skipped silently. The integration cursor
// and last-sync time are committed only when the stream ends without error;
// on failure the rows inserted so far stay and the next run replays from the
// previous cursor.
func (s *Service) AdmitReviews(ctx context.Context, integration *models.Integration, stream Stream) (*Result, error) {
	result, err := s.drain(ctx, integration, stream)
	if err != nil {
		return result, err
	}

	if err := stream.Err(); err != nil {
		s.RecordFetchFailure(ctx, integration, err)
		return result, err
	}

	result.Cursor = stream.Cursor()
	if err := s.store.MarkSynced(ctx, integration.ID, result.Cursor, s.now()); err != nil {
		return result, err
	}
	result.Committed = true

	s.logger.Info("reviews admitted", map[string]interface{}{
		"businessId": integration.BusinessID,
		"platform":   integration.Platform,
		"fetched":    result.Fetched,
		"admitted":   len(result.Admitted),
		"skipped":    result.Skipped,
	})
	return result, nil
}

// AdmitDetached stores reviews read from a location other than the
// integration's own. The integration is left alone: its cursor tracks a
// different listing, and a failure here says nothing about its health. A
// location the platform refuses is the caller's mistake and comes back as a
// validation error.
func (s *Service) AdmitDetached(ctx context.Context, integration *models.Integration, stream Stream) (*Result, error) {
	result, err := s.drain(ctx, integration, stream)
	if err != nil {
		return result, err
	}

	if err := stream.Err(); err != nil {
		if errors.Is(err, apperrors.ErrIntegrationUnavailable) {
			return result, apperrors.NewValidationError(fmt.Sprintf("requested location cannot be read: %v", err))
		}
		return result, err
	}

	s.logger.Info("reviews admitted from detached location", map[string]interface{}{
		"businessId": integration.BusinessID,
		"platform":   integration.Platform,
		"fetched":    result.Fetched,
		"admitted":   len(result.Admitted),
		"skipped":    result.Skipped,
	})
	return result, nil
}

func (s *Service) drain(ctx context.Context, integration *models.Integration, stream Stream) (*Result, error) {
	result := &Result{}
	for {
		raw, ok := stream.Next(ctx)
		if !ok {
			return result, nil
		}
		result.Fetched++

		review, inserted, err := s.admit(ctx, integration.BusinessID, integration.Platform, raw)
		if err != nil {
			s.logger.Error("review insert failed, aborting run", map[string]interface{}{
				"businessId": integration.BusinessID,
				"platform":   integration.Platform,
				"error":      err,
			})
			return result, err
		}
		if !inserted {
			result.Skipped++
			metrics.ReviewsSkipped.WithLabelValues(integration.Platform, SourceSync).Inc()
			continue
		}
		result.Admitted = append(result.Admitted, *review)
		metrics.ReviewsAdmitted.WithLabelValues(integration.Platform, SourceSync).Inc()
	}
}

// AdmitInbound stores reviews pushed by a webhook. There is no cursor to commit.
func (s *Service) AdmitInbound(ctx context.Context, businessID, platform string, raws []models.RawReview) (*Result, error) {
	result := &Result{}
	for _, raw := range raws {
		result.Fetched++
		review, inserted, err := s.admit(ctx, businessID, platform, raw)
		if err != nil {
			return result, err
		}
		if !inserted {
			result.Skipped++
			metrics.ReviewsSkipped.WithLabelValues(platform, SourceWebhook).Inc()
			continue
		}
		result.Admitted = append(result.Admitted, *review)
		metrics.ReviewsAdmitted.WithLabelValues(platform, SourceWebhook).Inc()
	}
	result.Committed = true
	return result, nil
}

func (s *Service) admit(ctx context.Context, businessID, platform string, raw models.RawReview) (*models.Review, bool, error) {
	if raw.PlatformReviewID == "" {
		s.logger.Warn("dropping review without native id", map[string]interface{}{
			"businessId": businessID, "platform": platform,
		})
		return nil, false, nil
	}

	review := &models.Review{
		BusinessID:       businessID,
		Platform:         platform,
		PlatformReviewID: raw.PlatformReviewID,
		Author:           raw.Author,
		Rating:           raw.Rating,
		Body:             raw.Body,
		PostedAt:         raw.PostedAt,
		ReplyState:       models.ReplyStateNone,
	}
	inserted, err := s.store.InsertReviewIfAbsent(ctx, review)
	if err != nil {
		return nil, false, err
	}
	return review, inserted, nil
}

// RecordFetchFailure updates integration health after a failed fetch.
// IntegrationUnavailable flags the integration at once; transient errors
// only after MaxConsecutiveFailures runs in a row.
func (s *Service) RecordFetchFailure(ctx context.Context, integration *models.Integration, fetchErr error) {
	if integration == nil || integration.ID == "" {
		return
	}
	log := s.logger.WithFields(map[string]interface{}{
		"businessId":    integration.BusinessID,
		"platform":      integration.Platform,
		"integrationId": integration.ID,
		"error":         fetchErr,
	})

	switch {
	case errors.Is(fetchErr, apperrors.ErrIntegrationUnavailable):
		if integration.Status == models.IntegrationDisconnected {
			return
		}
		if err := s.store.MarkIntegrationError(ctx, integration.ID, fetchErr.Error()); err != nil {
			log.Error("failed to flag integration", map[string]interface{}{"storeError": err})
			return
		}
		log.Warn("integration unavailable, flagged as error", nil)

	case apperrors.IsTransient(fetchErr):
		updated, err := s.store.RecordSyncFailure(ctx, integration.ID, fetchErr.Error(), s.config.MaxConsecutiveFailures)
		if err != nil {
			log.Error("failed to record sync failure", map[string]interface{}{"storeError": err})
			return
		}
		if updated.Status == models.IntegrationError {
			log.Error("integration flagged as error after repeated failures", map[string]interface{}{
				"consecutiveFailures": updated.ConsecutiveFailures,
			})
			return
		}
		log.Warn("transient sync failure", map[string]interface{}{"consecutiveFailures": updated.ConsecutiveFailures})
	}
}

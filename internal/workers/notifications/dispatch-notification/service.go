// internal/workers/notifications/dispatch-notification/service.go
package dispatchnotification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "review-workers/internal/common/errors"
	httpclient "review-workers/internal/common/http"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/metrics"
	"review-workers/internal/models"
)

type JobStore interface {
	CreateJobIfAbsent(ctx context.Context, job *models.NotificationJob) (*models.NotificationJob, bool, error)
	UpdateJob(ctx context.Context, job *models.NotificationJob) error
	ClaimStaleJob(ctx context.Context, jobID string, staleBefore time.Time) (*models.NotificationJob, bool, error)
}

type BusinessReader interface {
	GetBusiness(ctx context.Context, businessID string) (*models.Business, error)
}

type Service struct {
	config     *Config
	jobs       JobStore
	businesses BusinessReader
	senders    Senders
	logger     logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func NewService(config *Config, jobs JobStore, businesses BusinessReader, senders Senders, log logger.Logger) *Service {
	return &Service{
		config:     config,
		jobs:       jobs,
		businesses: businesses,
		senders:    senders,
		logger:     log.WithFields(map[string]interface{}{"component": "dispatch-notification"}),
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchEvent fans event out to the channels configured on its business.
func (s *Service) DispatchEvent(ctx context.Context, event *models.Event) ([]JobResult, error) {
	business, err := s.businesses.GetBusiness(ctx, event.BusinessID)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, event, business.Channels), nil
}

// Dispatch creates one job per channel and delivers each independently.
// (business, event id, channel) is the idempotency key: a second dispatch of
// the same event returns the existing jobs marked Duplicate without sending,
// unless a job was left pending by a worker that went away, in which case the
// remaining attempts are run. Results are in channel order.
func (s *Service) Dispatch(ctx context.Context, event *models.Event, channels []models.ChannelTarget) []JobResult {
	results := make([]JobResult, len(channels))
	if len(channels) == 0 {
		return results
	}

	var g errgroup.Group
	if s.config.Concurrency > 0 {
		g.SetLimit(s.config.Concurrency)
	}
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = s.dispatchOne(ctx, event, ch)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) dispatchOne(ctx context.Context, event *models.Event, target models.ChannelTarget) JobResult {
	log := s.logger.WithFields(map[string]interface{}{
		"businessId": event.BusinessID,
		"eventId":    event.ID,
		"channel":    target.Channel,
	})

	payload, err := encodeMessage(buildMessage(event, target))
	if err != nil {
		log.Error("failed to encode notification payload", map[string]interface{}{"error": err})
		return JobResult{Channel: target.Channel, Target: target.Target, Status: models.JobFailed, LastError: err.Error()}
	}

	job, created, err := s.jobs.CreateJobIfAbsent(ctx, &models.NotificationJob{
		EventID:    event.ID,
		BusinessID: event.BusinessID,
		ReviewID:   event.ReviewID,
		Channel:    target.Channel,
		Target:     target.Target,
		Payload:    payload,
		Status:     models.JobPending,
	})
	if err != nil {
		log.Error("failed to create notification job", map[string]interface{}{"error": err})
		return JobResult{Channel: target.Channel, Target: target.Target, Status: models.JobFailed, LastError: err.Error()}
	}
	if !created {
		if res, ok := s.resume(ctx, job, log); ok {
			return res
		}
		log.Info("notification job already exists, skipping", map[string]interface{}{"jobId": job.ID, "status": job.Status})
		res := resultOf(job)
		res.Duplicate = true
		return res
	}

	s.deliver(ctx, job, log)
	return resultOf(job)
}

// resume takes over a pending job nobody has touched for StaleAfter. The
// store claim is conditional, so concurrent redeliveries resume it once.
func (s *Service) resume(ctx context.Context, job *models.NotificationJob, log logger.Logger) (JobResult, bool) {
	if job.Status != models.JobPending || s.config.StaleAfter <= 0 {
		return JobResult{}, false
	}
	staleBefore := s.now().Add(-s.config.StaleAfter)
	if !job.UpdatedAt.Before(staleBefore) {
		return JobResult{}, false
	}

	claimed, ok, err := s.jobs.ClaimStaleJob(ctx, job.ID, staleBefore)
	if err != nil {
		log.Error("failed to claim stale notification job", map[string]interface{}{"jobId": job.ID, "error": err})
		return JobResult{}, false
	}
	if !ok {
		return JobResult{}, false
	}

	log.Warn("resuming stale notification job", map[string]interface{}{"jobId": claimed.ID, "attempts": claimed.Attempts})
	s.deliver(ctx, claimed, log)
	res := resultOf(claimed)
	res.Resumed = true
	return res, true
}

// deliver runs the attempt loop and persists the job after every attempt.
func (s *Service) deliver(ctx context.Context, job *models.NotificationJob, log logger.Logger) {
	sender, ok := s.senders[job.Channel]
	if !ok {
		s.finish(ctx, job, models.JobFailed, fmt.Sprintf("channel %q is not enabled", job.Channel), log)
		return
	}
	msg, err := decodeMessage(job.Payload)
	if err != nil {
		s.finish(ctx, job, models.JobFailed, fmt.Sprintf("decode payload: %v", err), log)
		return
	}

	for attempt := job.Attempts + 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.config.backoff(attempt-1)); err != nil {
				s.finish(ctx, job, models.JobFailed, "abandoned: "+err.Error(), log)
				return
			}
		}

		res := s.attempt(ctx, sender, msg)
		job.Attempts = attempt
		metrics.NotificationAttempts.WithLabelValues(job.Channel, res.Outcome.String()).Inc()

		if res.OK() {
			s.finish(ctx, job, models.JobSent, "", log)
			return
		}

		reason := apperrors.NewNotificationDeliveryError(job.Channel, res.Err, res.Outcome == httpclient.OutcomeTransient).Details
		if res.Outcome == httpclient.OutcomeFatal || attempt == s.config.MaxAttempts {
			s.finish(ctx, job, models.JobFailed, reason, log)
			return
		}

		job.LastError = reason
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			log.Error("failed to record notification attempt", map[string]interface{}{"jobId": job.ID, "error": err})
		}
		log.Warn("notification attempt failed, retrying", map[string]interface{}{
			"jobId":   job.ID,
			"attempt": attempt,
			"timeout": res.Timeout,
			"reason":  reason,
		})
	}

	// MaxAttempts below one, or a resumed job that had used them all
	if !job.Terminal() {
		s.finish(ctx, job, models.JobFailed, "no delivery attempts left", log)
	}
}

func (s *Service) attempt(ctx context.Context, sender Sender, msg Message) httpclient.Result {
	actx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
	defer cancel()
	return sender.Send(actx, msg)
}

// finish moves job to a terminal status. The write outlives a cancelled ctx
// so an abandoned job is still recorded.
func (s *Service) finish(ctx context.Context, job *models.NotificationJob, status, reason string, log logger.Logger) {
	job.Status = status
	if reason != "" {
		job.LastError = reason
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.jobs.UpdateJob(wctx, job); err != nil {
		log.Error("failed to persist notification job", map[string]interface{}{"jobId": job.ID, "status": status, "error": err})
	}

	metrics.NotificationJobs.WithLabelValues(job.Channel, status).Inc()
	if status == models.JobFailed {
		log.Error("notification delivery failed", map[string]interface{}{
			"jobId":    job.ID,
			"target":   job.Target,
			"attempts": job.Attempts,
			"reason":   job.LastError,
		})
		return
	}
	log.Info("notification sent", map[string]interface{}{"jobId": job.ID, "attempts": job.Attempts})
}

func resultOf(job *models.NotificationJob) JobResult {
	return JobResult{
		JobID:     job.ID,
		Channel:   job.Channel,
		Target:    job.Target,
		Status:    job.Status,
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}
}

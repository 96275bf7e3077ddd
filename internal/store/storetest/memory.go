// Package storetest provides an in-process store for tests of packages that
// depend on internal/store.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process store.Store. Its maps are keyed the same way as the
// Postgres unique constraints, so it gives the same insert-or-skip behavior.
type Memory struct {
	mu           sync.Mutex
	businesses   map[string]models.Business
	integrations map[string]*models.Integration // by id
	reviews      map[string]*models.Review      // by id
	reviewKeys   map[string]string              // natural key -> review id
	fannedOut    map[string]time.Time           // by review id
	jobs         map[string]*models.NotificationJob
	jobKeys      map[string]string // business/event/channel -> job id
}

func NewMemory() *Memory {
	return &Memory{
		businesses:   make(map[string]models.Business),
		integrations: make(map[string]*models.Integration),
		reviews:      make(map[string]*models.Review),
		reviewKeys:   make(map[string]string),
		fannedOut:    make(map[string]time.Time),
		jobs:         make(map[string]*models.NotificationJob),
		jobKeys:      make(map[string]string),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

// PutBusiness seeds a business.
func (m *Memory) PutBusiness(b models.Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
}

// PutIntegration seeds an integration and returns its id.
func (m *Memory) PutIntegration(i models.Integration) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	m.integrations[i.ID] = &i
	return i.ID
}

// Reviews returns a snapshot of the stored reviews of a business.
func (m *Memory) Reviews(businessID string) []models.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Review
	for _, r := range m.reviews {
		if r.BusinessID == businessID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformReviewID < out[j].PlatformReviewID })
	return out
}

func (m *Memory) GetBusiness(_ context.Context, businessID string) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return nil, apperrors.NewNotFoundError("business", businessID)
	}
	b.Channels = append([]models.ChannelTarget(nil), b.Channels...)
	return &b, nil
}

func (m *Memory) GetIntegration(_ context.Context, businessID, platform string) (*models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.integrations {
		if i.BusinessID == businessID && i.Platform == platform {
			c := *i
			return &c, nil
		}
	}
	return nil, apperrors.NewNotFoundError("integration", businessID+"/"+platform)
}

func (m *Memory) ListConnected(_ context.Context, platforms []string) ([]models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		wanted[p] = true
	}
	var out []models.Integration
	for _, i := range m.integrations {
		if i.Status == models.IntegrationConnected && wanted[i.Platform] {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].BusinessID != out[b].BusinessID {
			return out[a].BusinessID < out[b].BusinessID
		}
		return out[a].Platform < out[b].Platform
	})
	return out, nil
}

func (m *Memory) integration(id string) (*models.Integration, error) {
	i, ok := m.integrations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("integration", id)
	}
	return i, nil
}

func (m *Memory) MarkSynced(_ context.Context, integrationID, cursor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.integration(integrationID)
	if err != nil {
		return err
	}
	i.Cursor = cursor
	i.LastSyncAt = &at
	i.ConsecutiveFailures = 0
	i.LastError = ""
	return nil
}

func (m *Memory) RecordSyncFailure(_ context.Context, integrationID, reason string, threshold int) (*models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.integration(integrationID)
	if err != nil {
		return nil, err
	}
	i.ConsecutiveFailures++
	i.LastError = reason
	if i.ConsecutiveFailures >= threshold {
		i.Status = models.IntegrationError
	}
	c := *i
	return &c, nil
}

func (m *Memory) MarkIntegrationError(_ context.Context, integrationID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.integration(integrationID)
	if err != nil {
		return err
	}
	i.Status = models.IntegrationError
	i.LastError = reason
	return nil
}

func reviewKey(businessID, platform, nativeID string) string {
	return businessID + "\x00" + platform + "\x00" + nativeID
}

func (m *Memory) InsertReviewIfAbsent(_ context.Context, r *models.Review) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reviewKey(r.BusinessID, r.Platform, r.PlatformReviewID)
	if _, exists := m.reviewKeys[key]; exists {
		return false, nil
	}
	r.ID = uuid.NewString()
	r.IngestedAt = time.Now().UTC()
	if r.ReplyState == "" {
		r.ReplyState = models.ReplyStateNone
	}
	stored := *r
	m.reviews[r.ID] = &stored
	m.reviewKeys[key] = r.ID
	return true, nil
}

func (m *Memory) GetReview(_ context.Context, businessID, reviewID string) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[reviewID]
	if !ok || r.BusinessID != businessID {
		return nil, apperrors.NewNotFoundError("review", reviewID)
	}
	c := *r
	return &c, nil
}

func (m *Memory) TransitionReplyState(_ context.Context, businessID, reviewID, to string, replyText *string, from ...string) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[reviewID]
	if !ok || r.BusinessID != businessID {
		return nil, apperrors.NewNotFoundError("review", reviewID)
	}
	allowed := false
	for _, f := range from {
		if r.ReplyState == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.NewConflictError(fmt.Sprintf("reply state is %s", r.ReplyState))
	}
	r.ReplyState = to
	if replyText != nil {
		r.ReplyText = *replyText
	}
	c := *r
	return &c, nil
}

func (m *Memory) ListUnfannedReviews(_ context.Context, ingestedBefore time.Time, limit int) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Review
	for id, r := range m.reviews {
		if _, done := m.fannedOut[id]; done || !r.IngestedAt.Before(ingestedBefore) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].IngestedAt.Equal(out[b].IngestedAt) {
			return out[a].IngestedAt.Before(out[b].IngestedAt)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkFannedOut(_ context.Context, reviewIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range reviewIDs {
		if _, ok := m.reviews[id]; !ok {
			continue
		}
		if _, done := m.fannedOut[id]; !done {
			m.fannedOut[id] = at
		}
	}
	return nil
}

func (m *Memory) CreateJobIfAbsent(_ context.Context, job *models.NotificationJob) (*models.NotificationJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := job.BusinessID + "\x00" + job.EventID + "\x00" + job.Channel
	if id, exists := m.jobKeys[key]; exists {
		c := *m.jobs[id]
		return &c, false, nil
	}
	now := time.Now().UTC()
	created := *job
	created.ID = uuid.NewString()
	created.Status = models.JobPending
	created.Attempts = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	stored := created
	m.jobs[created.ID] = &stored
	m.jobKeys[key] = created.ID
	return &created, true, nil
}

func (m *Memory) UpdateJob(_ context.Context, job *models.NotificationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return apperrors.NewNotFoundError("notification job", job.ID)
	}
	if stored.Terminal() {
		return apperrors.NewConflictError(fmt.Sprintf("notification job %s is not pending", job.ID))
	}
	stored.Status = job.Status
	stored.Attempts = job.Attempts
	stored.LastError = job.LastError
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ClaimStaleJob(_ context.Context, jobID string, staleBefore time.Time) (*models.NotificationJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobPending || !j.UpdatedAt.Before(staleBefore) {
		return nil, false, nil
	}
	j.UpdatedAt = time.Now().UTC()
	c := *j
	return &c, true, nil
}

func (m *Memory) ListJobsForEvent(_ context.Context, businessID, eventID string) ([]models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationJob
	for _, j := range m.jobs {
		if j.BusinessID == businessID && j.EventID == eventID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Channel < out[b].Channel })
	return out, nil
}

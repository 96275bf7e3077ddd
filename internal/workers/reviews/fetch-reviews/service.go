// internal/workers/reviews/fetch-reviews/service.go
package fetchreviews

import (
	"context"
	"fmt"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/metrics"
	"review-workers/internal/common/platform"
	"review-workers/internal/models"
)

// IntegrationReader is the store slice the fetcher needs.
type IntegrationReader interface {
	GetIntegration(ctx context.Context, businessID, platform string) (*models.Integration, error)
}

type Service struct {
	config    *Config
	platforms *platform.Registry
	store     IntegrationReader
	logger    logger.Logger
}

func NewService(config *Config, platforms *platform.Registry, store IntegrationReader, log logger.Logger) *Service {
	return &Service{
		config:    config,
		platforms: platforms,
		store:     store,
		logger:    log.WithFields(map[string]interface{}{"component": "fetch-reviews"}),
	}
}

// FetchReviews opens a lazy review stream for one business and platform.
// Nothing is fetched until the first Next call. The integration must be
// connected and carry credential material. An empty sinceCursor resumes from
// the integration's committed cursor, which is itself empty before the first
// successful run.
//
// WithExternalRef naming a location other than the integration's own yields
// a detached stream: it starts from the beginning of that location's listing
// and its cursor belongs to no integration.
func (s *Service) FetchReviews(ctx context.Context, businessID, platformName, sinceCursor string, opts ...Option) (*ReviewStream, *models.Integration, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}

	integration, err := s.store.GetIntegration(ctx, businessID, platformName)
	if err != nil {
		if apperrors.Normalize(err).Code == apperrors.ErrCodeNotFound {
			return nil, nil, apperrors.NewIntegrationUnavailableError(platformName, "no integration configured")
		}
		return nil, nil, err
	}
	if !integration.Usable() {
		return nil, integration, apperrors.NewIntegrationUnavailableError(platformName,
			fmt.Sprintf("integration status %s", integration.Status))
	}

	ref := integration.ExternalRef
	detached := o.ExternalRef != "" && o.ExternalRef != integration.ExternalRef
	if detached {
		ref = o.ExternalRef
	}

	if sinceCursor == "" && !detached {
		sinceCursor = integration.Cursor
	}

	client, err := s.platforms.Get(platformName)
	if err != nil {
		return nil, integration, apperrors.NewValidationError(err.Error())
	}

	limit := o.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	var since time.Time
	if sinceCursor != "" {
		if since, err = time.Parse(time.RFC3339Nano, sinceCursor); err != nil {
			// an unreadable cursor means "everything"; dedup absorbs the replay
			s.logger.Warn("ignoring unparseable cursor", map[string]interface{}{
				"businessId": businessID, "platform": platformName, "cursor": sinceCursor,
			})
			since = time.Time{}
			sinceCursor = ""
		}
	}

	creds := platform.Credentials{Token: integration.Credential}
	stream := newStream(platformName, func(ctx context.Context, pageToken string) (*platform.Page, error) {
		return client.FetchPage(ctx, creds, ref, pageToken)
	}, since, sinceCursor, limit)
	stream.maxPages = s.config.MaxPages
	stream.detached = detached
	return stream, integration, nil
}

// ReviewStream yields raw reviews page by page. It is finite and cannot be
// restarted; after a failure the caller starts a new stream from the last
// committed cursor.
type ReviewStream struct {
	platform string
	fetch    func(ctx context.Context, pageToken string) (*platform.Page, error)

	buf       []models.RawReview
	pageToken string
	pages     int
	started   bool
	done      bool
	err       error

	since     time.Time
	cursor    string
	newest    time.Time
	limit     int
	maxPages  int
	yielded   int
	truncated bool
	detached  bool
}

func newStream(platformName string, fetch func(ctx context.Context, pageToken string) (*platform.Page, error), since time.Time, sinceCursor string, limit int) *ReviewStream {
	return &ReviewStream{platform: platformName, fetch: fetch, since: since, cursor: sinceCursor, limit: limit}
}

// Next returns the next raw review. ok is false when the stream is exhausted
// or failed; check Err to tell the two apart.
func (s *ReviewStream) Next(ctx context.Context) (review models.RawReview, ok bool) {
	for {
		if s.err != nil || (s.limit > 0 && s.yielded >= s.limit && s.markTruncated()) {
			return models.RawReview{}, false
		}

		if len(s.buf) > 0 {
			r := s.buf[0]
			s.buf = s.buf[1:]
			if !s.since.IsZero() && !r.PostedAt.IsZero() && r.PostedAt.Before(s.since) {
				continue
			}
			if r.PostedAt.After(s.newest) {
				s.newest = r.PostedAt
			}
			s.yielded++
			metrics.ReviewsFetched.WithLabelValues(s.platform).Inc()
			return r, true
		}

		if s.done {
			return models.RawReview{}, false
		}
		if s.started && s.pageToken == "" {
			s.done = true
			continue
		}
		if s.maxPages > 0 && s.pages >= s.maxPages {
			s.done = true
			s.truncated = true
			continue
		}
		if err := ctx.Err(); err != nil {
			s.err = apperrors.NewTimeoutError(s.platform, err)
			continue
		}

		page, err := s.fetch(ctx, s.pageToken)
		s.started = true
		s.pages++
		if err != nil {
			s.err = err
			continue
		}
		s.buf = page.Reviews
		s.pageToken = page.NextPageToken
	}
}

// markTruncated records that the limit cut the listing short.
func (s *ReviewStream) markTruncated() bool {
	if !s.done && (len(s.buf) > 0 || !s.started || s.pageToken != "") {
		s.truncated = true
	}
	s.done = true
	return true
}

// Err reports the failure that ended the stream, if any.
func (s *ReviewStream) Err() error {
	return s.err
}

// Detached reports whether the stream reads a location other than the
// integration's own. Its cursor and failures must not be recorded on the
// integration.
func (s *ReviewStream) Detached() bool {
	return s.detached
}

// Cursor is the value to commit once the stream has been fully drained: the
// publish time of the newest review seen. A truncated stream keeps the
// incoming cursor so unseen reviews are fetched next time.
func (s *ReviewStream) Cursor() string {
	if s.truncated || s.newest.IsZero() {
		return s.cursor
	}
	if !s.since.IsZero() && !s.newest.After(s.since) {
		return s.cursor
	}
	return s.newest.UTC().Format(time.RFC3339Nano)
}

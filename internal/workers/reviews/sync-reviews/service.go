// internal/workers/reviews/sync-reviews/service.go
package syncreviews

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/observability"
	"review-workers/internal/models"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
	draftreplies "review-workers/internal/workers/replies/draft-replies"
	admitreviews "review-workers/internal/workers/reviews/admit-reviews"
	fetchreviews "review-workers/internal/workers/reviews/fetch-reviews"
)

type BusinessReader interface {
	GetBusiness(ctx context.Context, businessID string) (*models.Business, error)
}

type Drafter interface {
	Execute(ctx context.Context, input *draftreplies.Input) (*draftreplies.Output, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event, channels []models.ChannelTarget) []dispatchnotification.JobResult
}

type Indexer interface {
	IndexReviews(ctx context.Context, reviews []models.Review) error
}

// FanOutLog records which admitted reviews have had their downstream work run.
type FanOutLog interface {
	ListUnfannedReviews(ctx context.Context, ingestedBefore time.Time, limit int) ([]models.Review, error)
	MarkFannedOut(ctx context.Context, reviewIDs []string, at time.Time) error
}

type Dependencies struct {
	Fetcher       *fetchreviews.Service
	Gate          *admitreviews.Service
	Businesses    BusinessReader
	Drafter       Drafter
	Dispatcher    Dispatcher
	Indexer       Indexer
	FanOutLog     FanOutLog
	Observability *observability.Observability
	Logger        logger.Logger
}

type Service struct {
	config *Config
	deps   Dependencies
	logger logger.Logger
	now    func() time.Time
}

func NewService(config *Config, deps Dependencies) *Service {
	return &Service{
		config: config,
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "sync-reviews"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sync runs the fetcher and the gate for one business and platform, then fans
// the admitted reviews out to drafting, notification and indexing. Reviews
// admitted before a mid-stream failure are still fanned out, since a replay
// would skip them. A PlaceID other than the integration's own location is
// read detached: its reviews are admitted but the integration's cursor and
// health are left untouched.
func (s *Service) Sync(ctx context.Context, input *Input) (out *Output, err error) {
	if input.BusinessID == "" {
		return nil, apperrors.NewValidationError("business_id is required")
	}
	platformName := input.Platform
	if platformName == "" {
		platformName = s.config.DefaultPlatform
	}

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = string(apperrors.Normalize(err).Code)
		}
		s.deps.Observability.RecordSyncRun(context.WithoutCancel(ctx), platformName, status, time.Since(start))
	}()

	log := s.logger.WithFields(map[string]interface{}{"businessId": input.BusinessID, "platform": platformName})

	business, err := s.deps.Businesses.GetBusiness(ctx, input.BusinessID)
	if err != nil {
		return nil, err
	}

	var opts []fetchreviews.Option
	if input.Limit > 0 {
		opts = append(opts, fetchreviews.WithLimit(input.Limit))
	}
	if input.PlaceID != "" {
		opts = append(opts, fetchreviews.WithExternalRef(input.PlaceID))
	}

	stream, integration, err := s.deps.Fetcher.FetchReviews(ctx, business.ID, platformName, "", opts...)
	if err != nil {
		s.deps.Gate.RecordFetchFailure(ctx, integration, err)
		log.Warn("sync not started", map[string]interface{}{"error": err})
		return nil, err
	}

	var result *admitreviews.Result
	if stream.Detached() {
		log.Info("reading detached location", map[string]interface{}{"placeId": input.PlaceID})
		result, err = s.deps.Gate.AdmitDetached(ctx, integration, stream)
	} else {
		result, err = s.deps.Gate.AdmitReviews(ctx, integration, stream)
	}
	out = &Output{
		BusinessID:    business.ID,
		Platform:      platformName,
		Detached:      stream.Detached(),
		ReviewIDs:     []string{},
		Notifications: []dispatchnotification.JobResult{},
	}
	if result != nil {
		out.Fetched = result.Fetched
		out.Admitted = len(result.Admitted)
		out.Skipped = result.Skipped
		out.Cursor = result.Cursor
		out.Committed = result.Committed
		out.ReviewIDs = result.ReviewIDs()

		fan := s.FanOut(context.WithoutCancel(ctx), business, result.Admitted, admitreviews.SourceSync)
		out.Drafted = fan.Drafted
		out.Notifications = fan.Notifications
	}
	if err != nil {
		return out, err
	}

	log.Info("sync completed", map[string]interface{}{
		"fetched":  out.Fetched,
		"admitted": out.Admitted,
		"skipped":  out.Skipped,
	})
	return out, nil
}

// Recover runs the fan-out that a crash cut short: reviews admitted more
// than RecoveryGrace ago with no fan-out on record. Dispatch is idempotent
// per event and channel, so reviews that got part of the way are completed
// rather than notified twice. It returns how many reviews were fanned out.
func (s *Service) Recover(ctx context.Context) (int, error) {
	if s.deps.FanOutLog == nil {
		return 0, nil
	}
	pending, err := s.deps.FanOutLog.ListUnfannedReviews(ctx, s.now().Add(-s.config.RecoveryGrace), s.config.RecoveryBatch)
	if err != nil {
		return 0, err
	}

	var order []string
	byBusiness := make(map[string][]models.Review)
	for _, r := range pending {
		if _, seen := byBusiness[r.BusinessID]; !seen {
			order = append(order, r.BusinessID)
		}
		byBusiness[r.BusinessID] = append(byBusiness[r.BusinessID], r)
	}

	recovered := 0
	for _, businessID := range order {
		business, err := s.deps.Businesses.GetBusiness(ctx, businessID)
		if err != nil {
			s.logger.Warn("fan-out recovery skipped business", map[string]interface{}{"businessId": businessID, "error": err})
			continue
		}
		reviews := byBusiness[businessID]
		s.FanOut(ctx, business, reviews, admitreviews.SourceRecovery)
		recovered += len(reviews)
	}

	if recovered > 0 {
		s.logger.Warn("recovered interrupted fan-out", map[string]interface{}{"reviews": recovered})
	}
	return recovered, nil
}

// FanOut hands newly admitted reviews to the indexer, the reply drafter (when
// the business opted in) and the notification dispatcher. The three run
// independently; failures are logged and never reach the caller. Once all
// three have returned the reviews are recorded as fanned out.
func (s *Service) FanOut(ctx context.Context, business *models.Business, reviews []models.Review, source string) FanOutResult {
	var result FanOutResult
	if len(reviews) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	if s.deps.Indexer != nil {
		g.Go(func() error {
			if err := s.deps.Indexer.IndexReviews(ctx, reviews); err != nil {
				s.logger.Warn("review indexing failed", map[string]interface{}{"businessId": business.ID, "error": err})
			}
			return nil
		})
	}

	if s.config.AutoDraft && business.AutoDraft && s.deps.Drafter != nil {
		g.Go(func() error {
			drafted := 0
			for _, r := range reviews {
				if r.ReplyState == models.ReplyStateDrafted || r.ReplyState == models.ReplyStateSent {
					continue
				}
				_, err := s.deps.Drafter.Execute(ctx, &draftreplies.Input{BusinessID: business.ID, ReviewID: r.ID, Tone: business.DefaultTone})
				if err != nil {
					s.logger.Warn("auto draft failed", map[string]interface{}{"reviewId": r.ID, "error": err})
					continue
				}
				drafted++
			}
			mu.Lock()
			result.Drafted = drafted
			mu.Unlock()
			return nil
		})
	}

	if len(business.Channels) > 0 && s.deps.Dispatcher != nil {
		g.Go(func() error {
			var inner errgroup.Group
			if s.config.FanOutConcurrency > 0 {
				inner.SetLimit(s.config.FanOutConcurrency)
			}
			perReview := make([][]dispatchnotification.JobResult, len(reviews))
			for i := range reviews {
				i := i
				inner.Go(func() error {
					perReview[i] = s.deps.Dispatcher.Dispatch(ctx, ReviewEvent(&reviews[i], source), business.Channels)
					return nil
				})
			}
			_ = inner.Wait()

			mu.Lock()
			for _, rs := range perReview {
				result.Notifications = append(result.Notifications, rs...)
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	if s.deps.FanOutLog != nil {
		ids := make([]string, len(reviews))
		for i, r := range reviews {
			ids[i] = r.ID
		}
		if err := s.deps.FanOutLog.MarkFannedOut(ctx, ids, s.now()); err != nil {
			s.logger.Error("failed to record fan-out", map[string]interface{}{"businessId": business.ID, "error": err})
		}
	}
	return result
}

// Package api exposes the review pipeline over HTTP: inbound webhooks,
// the reply coach, manual sync triggers and operational probes.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"review-workers/internal/common/logger"
	"review-workers/internal/gateway"
	"review-workers/internal/models"
	"review-workers/internal/search"
	draftreplies "review-workers/internal/workers/replies/draft-replies"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

const defaultBodyLimit = 1 << 20

type EventProcessor interface {
	Process(ctx context.Context, ev *gateway.InboundEvent) (*gateway.Result, error)
}

type ReplyDrafter interface {
	Execute(ctx context.Context, input *draftreplies.Input) (*draftreplies.Output, error)
}

type Syncer interface {
	Sync(ctx context.Context, input *syncreviews.Input) (*syncreviews.Output, error)
}

type ReplyMarker interface {
	MarkReplySent(ctx context.Context, businessID, reviewID string, replyText *string) (*models.Review, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Hit, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the handlers. Searcher may be nil when no search
// backend is configured.
type Dependencies struct {
	Gateway   *gateway.Gateway
	Processor EventProcessor
	Drafter   ReplyDrafter
	Syncer    Syncer
	Replies   ReplyMarker
	Searcher  Searcher
	Ready     []Pinger
	Logger    logger.Logger

	BodyLimit    int64
	MaxSyncLimit int
}

type Handlers struct {
	deps   Dependencies
	logger logger.Logger
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(deps Dependencies) http.Handler {
	if deps.BodyLimit <= 0 {
		deps.BodyLimit = defaultBodyLimit
	}
	h := &Handlers{
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(requestLogger(h.logger))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	MountRoutes(r, h)
	return r
}

// MountRoutes registers all routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	// Inbound webhooks authenticate inside the gateway, per source
	r.Route("/webhooks", func(r chi.Router) {
		r.HandleFunc("/{source}", h.HandleWebhook)
	})

	r.Post("/reply-coach", h.ReplyCoach)

	r.Route("/reviews", func(r chi.Router) {
		r.Post("/sync", h.SyncReviews)
		r.Get("/search", h.SearchReviews)
		r.Post("/{id}/reply-sent", h.MarkReplySent)
	})

	r.Get("/health", h.Health)
	r.Get("/ready", h.Readiness)
	r.Handle("/metrics", promhttp.Handler())
}

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/search"
	draftreplies "review-workers/internal/workers/replies/draft-replies"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// HandleWebhook answers GET with an unauthenticated ping and hands every
// other method to the gateway, which rejects anything but POST.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	source := urlParam(r, "source")

	if r.Method == http.MethodGet {
		if _, ok := h.deps.Gateway.Source(source); !ok {
			writeError(w, http.StatusNotFound, "unknown webhook source")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	ev, err := h.deps.Gateway.Admit(r, source)
	if err != nil {
		if status := apperrors.HTTPStatus(err); status == http.StatusMethodNotAllowed {
			w.Header().Set("Allow", "GET, POST")
		}
		writeAppError(w, err, h.logger)
		return
	}

	result, err := h.deps.Processor.Process(r.Context(), ev)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Reply coach
// ---------------------------------------------------------------------------

type replyCoachRequest struct {
	ReviewID   string `json:"review_id"`
	BusinessID string `json:"business_id"`
	Tone       string `json:"tone"`
}

type replyCoachResponse struct {
	Suggestions draftreplies.Suggestions `json:"suggestions"`
	Fallback    bool                     `json:"fallback,omitempty"`
}

func (h *Handlers) ReplyCoach(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[replyCoachRequest](w, r, h.deps.BodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.ReviewID, "review_id") || !requireField(w, req.BusinessID, "business_id") {
		return
	}

	out, err := h.deps.Drafter.Execute(r.Context(), &draftreplies.Input{
		BusinessID: req.BusinessID,
		ReviewID:   req.ReviewID,
		Tone:       req.Tone,
	})
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, replyCoachResponse{Suggestions: out.Suggestions, Fallback: out.Fallback})
}

// ---------------------------------------------------------------------------
// Reviews
// ---------------------------------------------------------------------------

type syncRequest struct {
	BusinessID string `json:"business_id"`
	PlaceID    string `json:"place_id"`
	Platform   string `json:"platform"`
	Limit      int    `json:"limit"`
}

func (h *Handlers) SyncReviews(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[syncRequest](w, r, h.deps.BodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.BusinessID, "business_id") {
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}
	if h.deps.MaxSyncLimit > 0 && req.Limit > h.deps.MaxSyncLimit {
		req.Limit = h.deps.MaxSyncLimit
	}

	out, err := h.deps.Syncer.Sync(r.Context(), &syncreviews.Input{
		BusinessID: req.BusinessID,
		Platform:   req.Platform,
		PlaceID:    req.PlaceID,
		Limit:      req.Limit,
	})
	if err != nil {
		// a partial run still reports what was admitted
		if out != nil {
			h.logger.Warn("sync finished with error", map[string]interface{}{"businessId": req.BusinessID, "error": err})
			writeJSON(w, apperrors.HTTPStatus(err), out)
			return
		}
		writeAppError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type replySentRequest struct {
	BusinessID string  `json:"business_id"`
	ReplyText  *string `json:"reply_text"`
}

func (h *Handlers) MarkReplySent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[replySentRequest](w, r, h.deps.BodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.BusinessID, "business_id") {
		return
	}

	review, err := h.deps.Replies.MarkReplySent(r.Context(), req.BusinessID, urlParam(r, "id"), req.ReplyText)
	if err != nil {
		writeAppError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handlers) SearchReviews(w http.ResponseWriter, r *http.Request) {
	if h.deps.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	q := r.URL.Query()
	query := search.Query{BusinessID: q.Get("business_id"), Text: q.Get("q")}
	if !requireField(w, query.BusinessID, "business_id") {
		return
	}
	for name, dst := range map[string]*int{"min_rating": &query.MinRating, "max_rating": &query.MaxRating, "size": &query.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	hits, err := h.deps.Searcher.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("review search failed", map[string]interface{}{"businessId": query.BusinessID, "error": err})
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}

// ---------------------------------------------------------------------------
// Probes
// ---------------------------------------------------------------------------

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings every backing service the pipeline cannot run without.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", map[string]interface{}{"error": err})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/gateway"
	"review-workers/internal/models"
	"review-workers/internal/search"
	"review-workers/internal/store/storetest"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
	draftreplies "review-workers/internal/workers/replies/draft-replies"
	admitreviews "review-workers/internal/workers/reviews/admit-reviews"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

// ==========================
// Mock Implementations
// ==========================

type MockSMSSender struct {
	calls int32
}

func (m *MockSMSSender) SendSMS(context.Context, string, string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	return "sns-1", nil
}

type MockSyncer struct {
	SyncFunc func(ctx context.Context, input *syncreviews.Input) (*syncreviews.Output, error)
}

func (m *MockSyncer) Sync(ctx context.Context, input *syncreviews.Input) (*syncreviews.Output, error) {
	return m.SyncFunc(ctx, input)
}

type MockSearcher struct {
	SearchFunc func(ctx context.Context, q search.Query) ([]search.Hit, error)
}

func (m *MockSearcher) Search(ctx context.Context, q search.Query) ([]search.Hit, error) {
	return m.SearchFunc(ctx, q)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ==========================
// Test Helper Functions
// ==========================

const zapierToken = "deploy-secret"

type fixture struct {
	mem  *storetest.Memory
	sms  *MockSMSSender
	deps Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	mem := storetest.NewMemory()
	mem.PutBusiness(models.Business{ID: "B1", Channels: []models.ChannelTarget{{Channel: models.ChannelSMS, Target: "+15550100"}}})

	sms := &MockSMSSender{}
	dispatcher := dispatchnotification.NewService(dispatchnotification.LoadConfig(), mem, mem,
		dispatchnotification.NewSenders(sms, nil, nil), log)
	fan := syncreviews.NewService(syncreviews.LoadConfig(), syncreviews.Dependencies{
		Businesses: mem, Dispatcher: dispatcher, Logger: log,
	})
	gate := admitreviews.NewService(admitreviews.LoadConfig(), mem, log)

	gw := gateway.New(gateway.Config{Sources: []gateway.Source{
		{Name: models.PlatformZapier, Header: "X-Zapier-Token", Token: zapierToken},
		{Name: models.PlatformQuickBooks, Header: "X-QBO-Token", Token: "qbo-secret"},
	}}, mem, log)

	// no generation service configured: drafts come from the fallback table
	drafter := draftreplies.NewHandler(&draftreplies.Config{}, nil, mem, log)

	return &fixture{
		mem: mem,
		sms: sms,
		deps: Dependencies{
			Gateway:   gw,
			Processor: gateway.NewProcessor(mem, gate, fan, dispatcher, log),
			Drafter:   drafter,
			Syncer: &MockSyncer{SyncFunc: func(context.Context, *syncreviews.Input) (*syncreviews.Output, error) {
				return nil, errors.New("not expected")
			}},
			Replies: drafter,
			Ready:   []Pinger{mem},
			Logger:  log,
		},
	}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	NewRouter(f.deps).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) seedReview(t *testing.T) *models.Review {
	t.Helper()
	r := &models.Review{BusinessID: "B1", Platform: models.PlatformGoogle, PlatformReviewID: "g-1", Author: "Ana Lima", Rating: 5, Body: "Great!"}
	inserted, err := f.mem.InsertReviewIfAbsent(context.Background(), r)
	require.NoError(t, err)
	require.True(t, inserted)
	return r
}

const reviewWebhook = `{"business_id":"B1","type":"review.created","review":{"platform_review_id":"z-1","author":"Ana","rating":5,"body":"Great!"}}`

// ==========================
// Webhooks
// ==========================

func TestWebhook_AdmitsAndDispatches(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/webhooks/zapier", reviewWebhook, map[string]string{"X-Zapier-Token": zapierToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[gateway.Result](t, rec)
	assert.Equal(t, 1, res.Admitted)
	assert.False(t, res.Duplicate)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, models.JobSent, res.Notifications[0].Status)
	assert.Len(t, f.mem.Reviews("B1"), 1)

	// redelivery is acknowledged without a second review or send
	rec = f.do(http.MethodPost, "/webhooks/zapier", reviewWebhook, map[string]string{"X-Zapier-Token": zapierToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[gateway.Result](t, rec).Duplicate)
	assert.Len(t, f.mem.Reviews("B1"), 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.sms.calls))
}

func TestWebhook_RejectionsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		body    string
		status  int
	}{
		{"missing token", http.MethodPost, "/webhooks/zapier", nil, reviewWebhook, http.StatusUnauthorized},
		{"wrong token", http.MethodPost, "/webhooks/zapier", map[string]string{"X-Zapier-Token": "nope"}, reviewWebhook, http.StatusUnauthorized},
		{"other source token", http.MethodPost, "/webhooks/quickbooks", map[string]string{"X-QBO-Token": zapierToken}, reviewWebhook, http.StatusUnauthorized},
		{"put", http.MethodPut, "/webhooks/zapier", map[string]string{"X-Zapier-Token": zapierToken}, reviewWebhook, http.StatusMethodNotAllowed},
		{"delete", http.MethodDelete, "/webhooks/zapier", map[string]string{"X-Zapier-Token": zapierToken}, "", http.StatusMethodNotAllowed},
		{"schema violation", http.MethodPost, "/webhooks/zapier", map[string]string{"X-Zapier-Token": zapierToken}, `{"business_id":"B1"}`, http.StatusBadRequest},
		{"unknown source", http.MethodPost, "/webhooks/stripe", map[string]string{"X-Zapier-Token": zapierToken}, reviewWebhook, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(tt.method, tt.path, tt.body, tt.headers)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Empty(t, f.mem.Reviews("B1"))
			assert.Zero(t, atomic.LoadInt32(&f.sms.calls))
		})
	}
}

func TestWebhook_MethodNotAllowedSetsAllow(t *testing.T) {
	rec := newFixture(t).do(http.MethodPatch, "/webhooks/zapier", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestWebhook_GetIsAnUnauthenticatedPing(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/webhooks/quickbooks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/webhooks/stripe", "", nil).Code)
}

func TestWebhook_UnknownBusiness(t *testing.T) {
	body := `{"business_id":"B9","type":"invoice.paid"}`
	rec := newFixture(t).do(http.MethodPost, "/webhooks/zapier", body, map[string]string{"X-Zapier-Token": zapierToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ==========================
// Reply coach
// ==========================

func TestReplyCoach_ReturnsSuggestions(t *testing.T) {
	f := newFixture(t)
	review := f.seedReview(t)

	body := `{"review_id":"` + review.ID + `","business_id":"B1","tone":"friendly"}`
	rec := f.do(http.MethodPost, "/reply-coach", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Suggestions struct {
			Option1   string `json:"option1"`
			Option2   string `json:"option2"`
			Tone      string `json:"tone"`
			WordCount [2]int `json:"word_count"`
		} `json:"suggestions"`
		Fallback bool `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Equal(t, "friendly", resp.Suggestions.Tone)
	assert.NotEmpty(t, resp.Suggestions.Option1)
	assert.NotEmpty(t, resp.Suggestions.Option2)
	assert.LessOrEqual(t, resp.Suggestions.WordCount[0], resp.Suggestions.WordCount[1])
}

func TestReplyCoach_SentReviewConflicts(t *testing.T) {
	f := newFixture(t)
	review := f.seedReview(t)

	rec := f.do(http.MethodPost, "/reviews/"+review.ID+"/reply-sent", `{"business_id":"B1","reply_text":"Thanks!"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ReplyStateSent, decode[models.Review](t, rec).ReplyState)

	rec = f.do(http.MethodPost, "/reply-coach", `{"review_id":"`+review.ID+`","business_id":"B1"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeConflict), decode[errorResponse](t, rec).Code)

	rec = f.do(http.MethodPost, "/reviews/"+review.ID+"/reply-sent", `{"business_id":"B1"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReplySent_WithoutDraftNeedsText(t *testing.T) {
	f := newFixture(t)
	review := f.seedReview(t)

	rec := f.do(http.MethodPost, "/reviews/"+review.ID+"/reply-sent", `{"business_id":"B1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), decode[errorResponse](t, rec).Code)
}

func TestReplyCoach_BadRequests(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/reply-coach", `{`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/reply-coach", `{"business_id":"B1"}`, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/reply-coach", `{"business_id":"B1","review_id":"missing"}`, nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/reply-coach", "", nil).Code)
}

func TestReplyCoach_OversizedBody(t *testing.T) {
	f := newFixture(t)
	f.deps.BodyLimit = 16

	rec := f.do(http.MethodPost, "/reply-coach", `{"business_id":"B1","review_id":"r-1","tone":"brief"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ==========================
// Sync
// ==========================

func TestSyncReviews_PassesInputAndClampsLimit(t *testing.T) {
	f := newFixture(t)
	f.deps.MaxSyncLimit = 100

	var got *syncreviews.Input
	f.deps.Syncer = &MockSyncer{SyncFunc: func(_ context.Context, input *syncreviews.Input) (*syncreviews.Output, error) {
		got = input
		return &syncreviews.Output{BusinessID: input.BusinessID, Platform: "google", Admitted: 2, ReviewIDs: []string{"r1", "r2"}}, nil
	}}

	rec := f.do(http.MethodPost, "/reviews/sync", `{"business_id":"B1","place_id":"ChIJ","limit":1000}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, got)
	assert.Equal(t, "ChIJ", got.PlaceID)
	assert.Equal(t, 100, got.Limit)

	out := decode[syncreviews.Output](t, rec)
	assert.Equal(t, 2, out.Admitted)
	assert.Equal(t, []string{"r1", "r2"}, out.ReviewIDs)
}

func TestSyncReviews_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		out    *syncreviews.Output
		status int
	}{
		{"unavailable integration", apperrors.NewIntegrationUnavailableError("google", "token expired"), nil, http.StatusFailedDependency},
		{"platform error", apperrors.NewPlatformError("google", errors.New("503")), nil, http.StatusBadGateway},
		{"partial run", apperrors.NewTimeoutError("google", nil), &syncreviews.Output{Admitted: 1}, http.StatusGatewayTimeout},
		{"unknown business", apperrors.NewNotFoundError("business", "B9"), nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deps.Syncer = &MockSyncer{SyncFunc: func(context.Context, *syncreviews.Input) (*syncreviews.Output, error) {
				return tt.out, tt.err
			}}

			rec := f.do(http.MethodPost, "/reviews/sync", `{"business_id":"B1"}`, nil)
			assert.Equal(t, tt.status, rec.Code)
			if tt.out != nil {
				assert.Equal(t, 1, decode[syncreviews.Output](t, rec).Admitted)
			}
		})
	}
}

func TestSyncReviews_RequiresBusiness(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/reviews/sync", `{"limit":5}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/reviews/sync", `{"business_id":"B1","limit":-1}`, nil).Code)
}

// ==========================
// Search
// ==========================

func TestSearchReviews(t *testing.T) {
	f := newFixture(t)

	var got search.Query
	f.deps.Searcher = &MockSearcher{SearchFunc: func(_ context.Context, q search.Query) ([]search.Hit, error) {
		got = q
		return []search.Hit{{Review: models.Review{ID: "r1", BusinessID: "B1"}, Score: 1.5}}, nil
	}}

	rec := f.do(http.MethodGet, "/reviews/search?business_id=B1&q=coffee&min_rating=4&size=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, search.Query{BusinessID: "B1", Text: "coffee", MinRating: 4, Size: 5}, got)
	assert.Contains(t, rec.Body.String(), `"r1"`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/reviews/search?q=coffee", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/reviews/search?business_id=B1&size=x", "", nil).Code)
}

func TestSearchReviews_NotConfigured(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/reviews/search?business_id=B1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ==========================
// Probes
// ==========================

func TestProbes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "", nil).Code)

	f.deps.Ready = append(f.deps.Ready, pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/ready", "", nil).Code)

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

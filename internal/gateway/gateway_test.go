package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/models"
	"review-workers/internal/store/storetest"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
	admitreviews "review-workers/internal/workers/reviews/admit-reviews"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

// ==========================
// Test Helper Functions
// ==========================

const deploymentToken = "deploy-secret"

func newGateway(t *testing.T, mem *storetest.Memory, allowBusiness bool) *Gateway {
	t.Helper()
	return New(Config{
		Sources: []Source{
			{Name: models.PlatformZapier, Header: "X-Zapier-Token", Token: deploymentToken},
			{Name: models.PlatformQuickBooks, Header: "X-QBO-Token"},
		},
		AllowBusinessSecret: allowBusiness,
		MaxBodyBytes:        1024,
	}, mem, logger.NewTestLogger(t))
}

func request(method, header, token, body string) *http.Request {
	r := httptest.NewRequest(method, "/webhooks/zapier", strings.NewReader(body))
	if token != "" {
		r.Header.Set(header, token)
	}
	return r
}

const reviewBody = `{
  "business_id": "B1",
  "type": "review.created",
  "review": {"platform": "yelp", "platform_review_id": "y-1", "author": "Ana", "rating": 4, "body": "Nice", "posted_at": "2024-05-01T10:00:00Z"}
}`

// ==========================
// Admit
// ==========================

func TestAdmit_Accepts(t *testing.T) {
	g := newGateway(t, storetest.NewMemory(), false)

	ev, err := g.Admit(request(http.MethodPost, "X-Zapier-Token", deploymentToken, reviewBody), "zapier")
	require.NoError(t, err)

	assert.Equal(t, "zapier", ev.Source)
	assert.Equal(t, "B1", ev.BusinessID)
	assert.Equal(t, models.EventReviewCreated, ev.Type)
	assert.Equal(t, "yelp", ev.Platform)
	require.NotNil(t, ev.Review)
	assert.Equal(t, "y-1", ev.Review.PlatformReviewID)
	assert.Equal(t, 4, ev.Review.Rating)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ev.Review.PostedAt)
	assert.True(t, strings.HasPrefix(ev.EventID, "zapier:"))
}

func TestAdmit_DerivedEventIDIsStable(t *testing.T) {
	g := newGateway(t, storetest.NewMemory(), false)
	body := `{"business_id":"B1","type":"invoice.paid","data":{"amount":12}}`

	a, err := g.Admit(request(http.MethodPost, "X-Zapier-Token", deploymentToken, body), "zapier")
	require.NoError(t, err)
	b, err := g.Admit(request(http.MethodPost, "X-Zapier-Token", deploymentToken, body), "zapier")
	require.NoError(t, err)
	assert.Equal(t, a.EventID, b.EventID)

	explicit, err := g.Admit(request(http.MethodPost, "X-Zapier-Token", deploymentToken,
		`{"business_id":"B1","type":"invoice.paid","event_id":"evt-7"}`), "zapier")
	require.NoError(t, err)
	assert.Equal(t, "zapier:evt-7", explicit.EventID)
}

func TestAdmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    *http.Request
		source string
		target error
	}{
		{"get is not allowed", request(http.MethodGet, "X-Zapier-Token", deploymentToken, ""), "zapier", apperrors.ErrMethodNotAllowed},
		{"put is not allowed", request(http.MethodPut, "X-Zapier-Token", deploymentToken, reviewBody), "zapier", apperrors.ErrMethodNotAllowed},
		{"missing token", request(http.MethodPost, "X-Zapier-Token", "", reviewBody), "zapier", apperrors.ErrUnauthorized},
		{"wrong token", request(http.MethodPost, "X-Zapier-Token", "deploy-secreT", reviewBody), "zapier", apperrors.ErrUnauthorized},
		{"token prefix", request(http.MethodPost, "X-Zapier-Token", "deploy", reviewBody), "zapier", apperrors.ErrUnauthorized},
		{"token in wrong header", request(http.MethodPost, "X-QBO-Token", deploymentToken, reviewBody), "zapier", apperrors.ErrUnauthorized},
		{"malformed body, bad token", request(http.MethodPost, "X-Zapier-Token", "nope", "{"), "zapier", apperrors.ErrUnauthorized},
		{"malformed body, good token", request(http.MethodPost, "X-Zapier-Token", deploymentToken, "{"), "zapier", apperrors.ErrValidation},
		{"schema violation", request(http.MethodPost, "X-Zapier-Token", deploymentToken,
			`{"business_id":"B1","type":"review.created","review":{"platform_review_id":"y-1","rating":7}}`), "zapier", apperrors.ErrValidation},
		{"missing business", request(http.MethodPost, "X-Zapier-Token", deploymentToken, `{"type":"invoice.paid"}`), "zapier", apperrors.ErrValidation},
		{"review event without review", request(http.MethodPost, "X-Zapier-Token", deploymentToken,
			`{"business_id":"B1","type":"review.created"}`), "zapier", apperrors.ErrValidation},
		{"oversized, bad token", request(http.MethodPost, "X-Zapier-Token", "nope", strings.Repeat("x", 2048)), "zapier", apperrors.ErrUnauthorized},
		{"oversized, good token", request(http.MethodPost, "X-Zapier-Token", deploymentToken, strings.Repeat("x", 2048)), "zapier", apperrors.ErrValidation},
		{"no deployment secret configured", request(http.MethodPost, "X-QBO-Token", "anything", `{"business_id":"B1","type":"bill.paid"}`), "quickbooks", apperrors.ErrUnauthorized},
		{"unknown source", request(http.MethodPost, "X-Zapier-Token", deploymentToken, reviewBody), "stripe", apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, storetest.NewMemory(), false)
			_, err := g.Admit(tt.req, tt.source)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestAdmit_BusinessSecret(t *testing.T) {
	mem := storetest.NewMemory()
	mem.PutIntegration(models.Integration{BusinessID: "B1", Platform: models.PlatformQuickBooks, Secret: "b1-secret", Status: models.IntegrationConnected})
	mem.PutIntegration(models.Integration{BusinessID: "B2", Platform: models.PlatformQuickBooks, Secret: "b2-secret", Status: models.IntegrationDisconnected})
	body := func(biz string) string { return `{"business_id":"` + biz + `","type":"bill.paid"}` }

	g := newGateway(t, mem, true)

	_, err := g.Admit(request(http.MethodPost, "X-QBO-Token", "b1-secret", body("B1")), "quickbooks")
	assert.NoError(t, err)

	// B1's secret does not authenticate events for another business
	_, err = g.Admit(request(http.MethodPost, "X-QBO-Token", "b1-secret", body("B3")), "quickbooks")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = g.Admit(request(http.MethodPost, "X-QBO-Token", "b2-secret", body("B2")), "quickbooks")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	disabled := newGateway(t, mem, false)
	_, err = disabled.Admit(request(http.MethodPost, "X-QBO-Token", "b1-secret", body("B1")), "quickbooks")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// ==========================
// Processor
// ==========================

type MockSMSSender struct {
	SendSMSFunc func(ctx context.Context, phone, message string) (string, error)
}

func (m *MockSMSSender) SendSMS(ctx context.Context, phone, message string) (string, error) {
	return m.SendSMSFunc(ctx, phone, message)
}

func newProcessor(t *testing.T, mem *storetest.Memory) *Processor {
	t.Helper()
	log := logger.NewTestLogger(t)
	sms := &MockSMSSender{SendSMSFunc: func(context.Context, string, string) (string, error) { return "sns-1", nil }}
	dispatcher := dispatchnotification.NewService(dispatchnotification.LoadConfig(), mem, mem,
		dispatchnotification.NewSenders(sms, nil, nil), log)
	fan := syncreviews.NewService(syncreviews.LoadConfig(), syncreviews.Dependencies{
		Businesses: mem, Dispatcher: dispatcher, Logger: log,
	})
	gate := admitreviews.NewService(admitreviews.LoadConfig(), mem, log)
	return NewProcessor(mem, gate, fan, dispatcher, log)
}

func seedBusiness(mem *storetest.Memory) {
	mem.PutBusiness(models.Business{ID: "B1", Channels: []models.ChannelTarget{{Channel: models.ChannelSMS, Target: "+15550100"}}})
}

func TestProcess_ReviewCreated(t *testing.T) {
	mem := storetest.NewMemory()
	seedBusiness(mem)
	p := newProcessor(t, mem)
	g := newGateway(t, mem, false)

	ev, err := g.Admit(request(http.MethodPost, "X-Zapier-Token", deploymentToken, reviewBody), "zapier")
	require.NoError(t, err)

	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Admitted)
	assert.False(t, res.Duplicate)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, models.JobSent, res.Notifications[0].Status)

	reviews := mem.Reviews("B1")
	require.Len(t, reviews, 1)
	assert.Equal(t, "yelp", reviews[0].Platform)

	// redelivery of the same review
	res, err = p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Admitted)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.Notifications)
	assert.Len(t, mem.Reviews("B1"), 1)
}

func TestProcess_OtherEventDispatchesOnly(t *testing.T) {
	mem := storetest.NewMemory()
	seedBusiness(mem)
	p := newProcessor(t, mem)

	ev := &InboundEvent{Source: "quickbooks", EventID: "quickbooks:evt-1", Type: "invoice.paid", BusinessID: "B1",
		Data: map[string]interface{}{"message": "Invoice 42 paid"}, OccurredAt: time.Now()}

	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Admitted)
	require.Len(t, res.Notifications, 1)
	assert.Empty(t, mem.Reviews("B1"))

	res, err = p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	jobs, err := mem.ListJobsForEvent(context.Background(), "B1", "quickbooks:evt-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestProcess_UnknownBusiness(t *testing.T) {
	p := newProcessor(t, storetest.NewMemory())
	_, err := p.Process(context.Background(), &InboundEvent{BusinessID: "ghost", Type: "invoice.paid", EventID: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// internal/workers/reviews/fetch-reviews/service_test.go
package fetchreviews

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/platform"
	"review-workers/internal/models"
	"review-workers/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fake platform
// ==========================

type fakePlatform struct {
	pages    map[string]*platform.Page // by page token
	failOn   string
	err      error
	calls    int
	lastRef  string
	lastCred string
}

func (f *fakePlatform) Name() string { return "fake" }

func (f *fakePlatform) FetchPage(_ context.Context, creds platform.Credentials, ref, pageToken string) (*platform.Page, error) {
	f.calls++
	f.lastRef = ref
	f.lastCred = creds.Token
	if f.err != nil && pageToken == f.failOn {
		return nil, f.err
	}
	return f.pages[pageToken], nil
}

func raw(id string, posted time.Time) models.RawReview {
	return models.RawReview{PlatformReviewID: id, Author: "a-" + id, Rating: 4, Body: "body " + id, PostedAt: posted}
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func twoPages() map[string]*platform.Page {
	return map[string]*platform.Page{
		"":   {Reviews: []models.RawReview{raw("r1", t0), raw("r2", t0.Add(time.Hour))}, NextPageToken: "p2"},
		"p2": {Reviews: []models.RawReview{raw("r3", t0.Add(2*time.Hour))}},
	}
}

func newService(t *testing.T, fp *fakePlatform, integration models.Integration) *Service {
	t.Helper()
	mem := storetest.NewMemory()
	mem.PutIntegration(integration)
	return NewService(LoadConfig(), platform.NewRegistry(fp), mem, logger.NewTestLogger(t))
}

func connected() models.Integration {
	return models.Integration{BusinessID: "B1", Platform: "fake", Credential: "tok", ExternalRef: "loc-1", Status: models.IntegrationConnected}
}

func drain(t *testing.T, s *ReviewStream) []string {
	t.Helper()
	var ids []string
	for {
		r, ok := s.Next(context.Background())
		if !ok {
			return ids
		}
		ids = append(ids, r.PlatformReviewID)
	}
}

// ==========================
// Tests
// ==========================

func TestFetchReviews_LazyAndOrderPreserving(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	svc := newService(t, fp, connected())

	stream, integration, err := svc.FetchReviews(context.Background(), "B1", "fake", "")
	require.NoError(t, err)
	assert.Equal(t, "B1", integration.BusinessID)
	assert.Equal(t, 0, fp.calls, "no fetch before the first Next")

	assert.Equal(t, []string{"r1", "r2", "r3"}, drain(t, stream))
	assert.NoError(t, stream.Err())
	assert.Equal(t, 2, fp.calls)
	assert.Equal(t, "loc-1", fp.lastRef)
	assert.Equal(t, "tok", fp.lastCred)
	assert.Equal(t, t0.Add(2*time.Hour).Format(time.RFC3339Nano), stream.Cursor())
}

func TestFetchReviews_SkipsReviewsOlderThanCursor(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	svc := newService(t, fp, connected())

	cursor := t0.Add(time.Hour).Format(time.RFC3339Nano)
	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", cursor)
	require.NoError(t, err)

	// r2 sits exactly on the cursor and is replayed; dedup drops it later
	assert.Equal(t, []string{"r2", "r3"}, drain(t, stream))
}

func TestFetchReviews_ResumesFromStoredCursor(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	i := connected()
	i.Cursor = t0.Add(90 * time.Minute).Format(time.RFC3339Nano)
	svc := newService(t, fp, i)

	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, drain(t, stream))
}

func TestFetchReviews_ForeignRefIsDetached(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	i := connected()
	i.Cursor = t0.Add(90 * time.Minute).Format(time.RFC3339Nano)
	svc := newService(t, fp, i)

	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", "", WithExternalRef("loc-2"))
	require.NoError(t, err)
	assert.True(t, stream.Detached())

	// the stored cursor belongs to loc-1 and does not filter loc-2
	assert.Equal(t, []string{"r1", "r2", "r3"}, drain(t, stream))
	assert.Equal(t, "loc-2", fp.lastRef)
}

func TestFetchReviews_OwnRefIsNotDetached(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	i := connected()
	i.Cursor = t0.Add(90 * time.Minute).Format(time.RFC3339Nano)
	svc := newService(t, fp, i)

	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", "", WithExternalRef("loc-1"))
	require.NoError(t, err)
	assert.False(t, stream.Detached())
	assert.Equal(t, []string{"r3"}, drain(t, stream))
}

func TestFetchReviews_LimitKeepsCursor(t *testing.T) {
	fp := &fakePlatform{pages: twoPages()}
	svc := newService(t, fp, connected())

	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", "", WithLimit(2), WithExternalRef("loc-override"))
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, drain(t, stream))
	assert.True(t, stream.truncated)
	assert.Equal(t, "", stream.Cursor())
	assert.Equal(t, "loc-override", fp.lastRef)
	assert.Equal(t, 1, fp.calls)
}

func TestFetchReviews_MidStreamFailure(t *testing.T) {
	fp := &fakePlatform{pages: twoPages(), failOn: "p2", err: apperrors.NewPlatformError("fake", fmt.Errorf("503"))}
	svc := newService(t, fp, connected())

	stream, _, err := svc.FetchReviews(context.Background(), "B1", "fake", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, drain(t, stream))
	require.Error(t, stream.Err())
	assert.True(t, stderrors.Is(stream.Err(), apperrors.ErrPlatform))

	// a failed stream stays failed
	_, ok := stream.Next(context.Background())
	assert.False(t, ok)
}

func TestFetchReviews_Preconditions(t *testing.T) {
	tests := []struct {
		name        string
		integration models.Integration
		business    string
		platform    string
		target      error
	}{
		{"no integration", connected(), "B2", "fake", apperrors.ErrIntegrationUnavailable},
		{"disconnected", func() models.Integration { i := connected(); i.Status = models.IntegrationDisconnected; return i }(), "B1", "fake", apperrors.ErrIntegrationUnavailable},
		{"no credential", func() models.Integration { i := connected(); i.Credential = ""; return i }(), "B1", "fake", apperrors.ErrIntegrationUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, &fakePlatform{}, tt.integration)
			_, _, err := svc.FetchReviews(context.Background(), tt.business, tt.platform, "")
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.target), err.Error())
		})
	}
}

func TestFetchReviews_UnknownPlatform(t *testing.T) {
	i := connected()
	i.Platform = "yelp"
	svc := newService(t, &fakePlatform{}, i)

	_, _, err := svc.FetchReviews(context.Background(), "B1", "yelp", "")
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestReviewStream_CancelledContext(t *testing.T) {
	stream := newStream("fake", func(ctx context.Context, _ string) (*platform.Page, error) {
		t.Fatal("fetch must not run on a cancelled context")
		return nil, nil
	}, time.Time{}, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := stream.Next(ctx)
	assert.False(t, ok)
	assert.Error(t, stream.Err())
}

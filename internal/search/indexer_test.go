package search

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-workers/internal/common/logger"
	"review-workers/internal/models"
)

type esRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeES records requests and answers with canned bodies per path suffix.
func fakeES(t *testing.T, responses map[string]string, statuses map[string]int) (*elasticsearch.Client, *[]esRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []esRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			b.WriteString(sc.Text())
			b.WriteString("\n")
		}
		mu.Lock()
		reqs = append(reqs, esRequest{Method: r.Method, Path: r.URL.Path, Body: b.String()})
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		key := r.Method + " " + r.URL.Path
		if status, ok := statuses[key]; ok {
			w.WriteHeader(status)
		}
		if body, ok := responses[key]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return es, &reqs
}

func review(id, businessID string) models.Review {
	return models.Review{ID: id, BusinessID: businessID, Platform: "google", PlatformReviewID: "g-" + id,
		Author: "Ana", Rating: 5, Body: "Great coffee", PostedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ReplyState: models.ReplyStateNone}
}

func TestIndexReviews_BulkBody(t *testing.T) {
	es, reqs := fakeES(t, map[string]string{
		"POST /reviews/_bulk": `{"errors":false,"items":[{"index":{"_id":"r1"}},{"index":{"_id":"r2"}}]}`,
	}, nil)
	ix := NewIndexer(es, "reviews", logger.NewTestLogger(t))

	require.NoError(t, ix.IndexReviews(context.Background(), []models.Review{review("r1", "B1"), review("r2", "B1")}))

	require.Len(t, *reqs, 1)
	lines := strings.Split(strings.TrimSpace((*reqs)[0].Body), "\n")
	require.Len(t, lines, 4)

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "r1", meta["index"]["_id"])

	var doc models.Review
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "B1", doc.BusinessID)
	assert.Equal(t, "Great coffee", doc.Body)
}

func TestIndexReviews_ItemErrors(t *testing.T) {
	es, _ := fakeES(t, map[string]string{
		"POST /reviews/_bulk": `{"errors":true,"items":[{"index":{"_id":"r1","error":{"type":"mapper_parsing_exception"}}}]}`,
	}, nil)

	err := NewIndexer(es, "", logger.NewNoOpLogger()).IndexReviews(context.Background(), []models.Review{review("r1", "B1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1")
}

func TestIndexer_NilIsNoOp(t *testing.T) {
	var ix *Indexer
	assert.Nil(t, NewIndexer(nil, "reviews", logger.NewNoOpLogger()))
	assert.NoError(t, ix.IndexReviews(context.Background(), []models.Review{review("r1", "B1")}))
	assert.NoError(t, ix.EnsureIndex(context.Background()))
	_, err := ix.Search(context.Background(), Query{BusinessID: "B1"})
	assert.Error(t, err)
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	es, reqs := fakeES(t, nil, map[string]int{"HEAD /reviews": http.StatusNotFound})

	require.NoError(t, NewIndexer(es, "reviews", logger.NewNoOpLogger()).EnsureIndex(context.Background()))
	require.Len(t, *reqs, 2)
	assert.Equal(t, "PUT", (*reqs)[1].Method)
	assert.Contains(t, (*reqs)[1].Body, `"business_id"`)
}

func TestEnsureIndex_ExistingIndexUntouched(t *testing.T) {
	es, reqs := fakeES(t, nil, nil)

	require.NoError(t, NewIndexer(es, "reviews", logger.NewNoOpLogger()).EnsureIndex(context.Background()))
	assert.Len(t, *reqs, 1)
}

func TestSearch_ScopedToBusiness(t *testing.T) {
	es, reqs := fakeES(t, map[string]string{
		"POST /reviews/_search": `{"hits":{"hits":[{"_score":1.5,"_source":{"id":"r1","business_id":"B1","body":"Great coffee","rating":5}}]}}`,
	}, nil)
	ix := NewIndexer(es, "reviews", logger.NewNoOpLogger())

	hits, err := ix.Search(context.Background(), Query{BusinessID: "B1", Text: "coffee", MinRating: 4})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].Review.ID)
	assert.Equal(t, 1.5, hits[0].Score)

	body := (*reqs)[0].Body
	assert.Contains(t, body, `"business_id":"B1"`)
	assert.Contains(t, body, `"gte":4`)
	assert.Contains(t, body, `"multi_match"`)

	_, err = ix.Search(context.Background(), Query{})
	assert.Error(t, err)
}

func TestBuildQuery_SortsByDateWithoutText(t *testing.T) {
	q := buildQuery(Query{BusinessID: "B1", Size: 5})
	assert.Equal(t, 5, q["size"])
	assert.NotNil(t, q["sort"])
}

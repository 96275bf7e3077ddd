// Package search keeps a searchable copy of admitted reviews in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"review-workers/internal/common/logger"
	"review-workers/internal/models"
)

const reviewMapping = `{
  "mappings": {
    "properties": {
      "business_id":        {"type": "keyword"},
      "platform":           {"type": "keyword"},
      "platform_review_id": {"type": "keyword"},
      "author":             {"type": "text"},
      "rating":             {"type": "integer"},
      "body":               {"type": "text"},
      "posted_at":          {"type": "date"},
      "ingested_at":        {"type": "date"},
      "reply_state":        {"type": "keyword"}
    }
  }
}`

// Indexer writes reviews to a single index. A nil *Indexer is a no-op so
// deployments without Elasticsearch need no special casing.
type Indexer struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(es *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if es == nil {
		return nil
	}
	if index == "" {
		index = "reviews"
	}
	return &Indexer{es: es, index: index, logger: log.WithFields(map[string]interface{}{"index": index})}
}

// EnsureIndex creates the review index with its mapping when it is missing.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	if ix == nil {
		return nil
	}
	res, err := ix.es.Indices.Exists([]string{ix.index}, ix.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = ix.es.Indices.Create(ix.index,
		ix.es.Indices.Create.WithContext(ctx),
		ix.es.Indices.Create.WithBody(strings.NewReader(reviewMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readAll(res.Body), "resource_already_exists_exception") {
		return fmt.Errorf("create index: %s", res.Status())
	}
	return nil
}

// IndexReviews bulk-indexes reviews keyed by their storage id, so re-indexing
// the same review overwrites it.
func (ix *Indexer) IndexReviews(ctx context.Context, reviews []models.Review) error {
	if ix == nil || len(reviews) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range reviews {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": ix.index, "_id": r.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	res, err := ix.es.Bulk(bytes.NewReader(buf.Bytes()),
		ix.es.Bulk.WithContext(ctx),
		ix.es.Bulk.WithIndex(ix.index),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.Status())
	}

	var body struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string          `json:"_id"`
			Error json.RawMessage `json:"error,omitempty"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if body.Errors {
		failed := 0
		for _, item := range body.Items {
			for _, v := range item {
				if len(v.Error) > 0 {
					failed++
				}
			}
		}
		return fmt.Errorf("bulk index: %d of %d documents failed", failed, len(reviews))
	}

	ix.logger.Debug("reviews indexed", map[string]interface{}{"count": len(reviews)})
	return nil
}

// Query filters a review search. BusinessID is mandatory.
type Query struct {
	BusinessID string
	Text       string
	MinRating  int
	MaxRating  int
	Size       int
}

type Hit struct {
	Review models.Review `json:"review"`
	Score  float64       `json:"score"`
}

// Search returns reviews of one business matching q, newest first when no
// text is given.
func (ix *Indexer) Search(ctx context.Context, q Query) ([]Hit, error) {
	if ix == nil {
		return nil, fmt.Errorf("search is not configured")
	}
	if q.BusinessID == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := ix.es.Search(
		ix.es.Search.WithContext(ctx),
		ix.es.Search.WithIndex(ix.index),
		ix.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float64       `json:"_score"`
				Source models.Review `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, Hit{Review: h.Source, Score: h.Score})
	}
	return hits, nil
}

func buildQuery(q Query) map[string]interface{} {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"business_id": q.BusinessID}},
	}
	if q.MinRating > 0 || q.MaxRating > 0 {
		rng := map[string]interface{}{}
		if q.MinRating > 0 {
			rng["gte"] = q.MinRating
		}
		if q.MaxRating > 0 {
			rng["lte"] = q.MaxRating
		}
		filter = append(filter, map[string]interface{}{"range": map[string]interface{}{"rating": rng}})
	}

	boolQuery := map[string]interface{}{"filter": filter}
	query := map[string]interface{}{"size": q.Size}
	if strings.TrimSpace(q.Text) != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"body", "author"},
			}},
		}
	} else {
		query["sort"] = []interface{}{map[string]interface{}{"posted_at": "desc"}}
	}
	query["query"] = map[string]interface{}{"bool": boolQuery}
	return query
}

func readAll(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}

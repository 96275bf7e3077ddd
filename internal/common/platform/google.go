package platform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "review-workers/internal/common/errors"
	httpclient "review-workers/internal/common/http"
	"review-workers/internal/models"
)

const googleFieldMask = "id,reviews"

// GoogleConfig configures the Places API (v1) adapter.
type GoogleConfig struct {
	BaseURL string
	APIKey  string // deployment key, used when the integration carries none
	Timeout time.Duration
}

// GoogleClient reads place reviews from the Google Places API. The API returns
// at most five reviews per place and does not paginate.
type GoogleClient struct {
	config GoogleConfig
	http   *httpclient.Client
}

func NewGoogleClient(cfg GoogleConfig, client *httpclient.Client) *GoogleClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = httpclient.NewClient(cfg.Timeout+time.Second, "review-workers")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GoogleClient{config: cfg, http: client}
}

func (c *GoogleClient) Name() string {
	return models.PlatformGoogle
}

type placeResponse struct {
	ID      string         `json:"id"`
	Reviews []googleReview `json:"reviews"`
}

type googleReview struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	Text   struct {
		Text string `json:"text"`
	} `json:"text"`
	OriginalText struct {
		Text string `json:"text"`
	} `json:"originalText"`
	AuthorAttribution struct {
		DisplayName string `json:"displayName"`
	} `json:"authorAttribution"`
	PublishTime string `json:"publishTime"`
}

func (c *GoogleClient) FetchPage(ctx context.Context, creds Credentials, placeID, _ string) (*Page, error) {
	if placeID == "" {
		return nil, apperrors.NewIntegrationUnavailableError(models.PlatformGoogle, "integration has no place id")
	}
	key := creds.Token
	if key == "" {
		key = c.config.APIKey
	}
	if key == "" {
		return nil, apperrors.NewIntegrationUnavailableError(models.PlatformGoogle, "no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/places/%s", c.config.BaseURL, url.PathEscape(placeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewPlatformError(models.PlatformGoogle, err)
	}
	req.Header.Set("X-Goog-Api-Key", key)
	req.Header.Set("X-Goog-FieldMask", googleFieldMask)

	res := c.http.Do(ctx, req)
	if !res.OK() {
		return nil, c.mapFailure(res)
	}

	var place placeResponse
	if err := json.Unmarshal(res.Body, &place); err != nil {
		return nil, apperrors.NewPlatformError(models.PlatformGoogle, fmt.Errorf("decode place: %w", err))
	}

	page := &Page{Reviews: make([]models.RawReview, 0, len(place.Reviews))}
	for _, r := range place.Reviews {
		page.Reviews = append(page.Reviews, normalizeGoogle(r))
	}
	return page, nil
}

func (c *GoogleClient) mapFailure(res httpclient.Result) error {
	switch {
	case res.Timeout:
		return apperrors.NewTimeoutError(models.PlatformGoogle, res.Err)
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return apperrors.NewIntegrationUnavailableError(models.PlatformGoogle, res.Err.Error())
	case res.StatusCode == http.StatusNotFound:
		return apperrors.NewIntegrationUnavailableError(models.PlatformGoogle, "place not found")
	default:
		return apperrors.NewPlatformError(models.PlatformGoogle, res.Err)
	}
}

func normalizeGoogle(r googleReview) models.RawReview {
	body := r.Text.Text
	if body == "" {
		body = r.OriginalText.Text
	}
	posted, _ := time.Parse(time.RFC3339, r.PublishTime)

	id := r.Name
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		// reviews without a resource name get a content-derived id
		sum := sha256.Sum256([]byte(r.AuthorAttribution.DisplayName + "|" + r.PublishTime + "|" + body))
		id = "h-" + hex.EncodeToString(sum[:8])
	}

	return models.RawReview{
		PlatformReviewID: id,
		Author:           r.AuthorAttribution.DisplayName,
		Rating:           int(math.Round(r.Rating)),
		Body:             body,
		PostedAt:         posted.UTC(),
	}
}

// Package gateway authenticates and normalizes events pushed by external
// systems before they enter the review pipeline.
package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/metrics"
	"review-workers/internal/models"
)

const defaultMaxBodyBytes = 256 << 10

// Source describes one inbound endpoint.
type Source struct {
	Name   string // "zapier", "quickbooks"
	Header string // token header, e.g. X-Zapier-Token
	Token  string // per-deployment secret; may be empty when business secrets are allowed
}

type Config struct {
	Sources []Source
	// AllowBusinessSecret lets a business's own integration secret
	// authenticate requests that name that business.
	AllowBusinessSecret bool
	MaxBodyBytes        int64
}

// SecretReader resolves per-business integration secrets.
type SecretReader interface {
	GetIntegration(ctx context.Context, businessID, platform string) (*models.Integration, error)
}

// InboundEvent is a normalized, authenticated webhook event.
type InboundEvent struct {
	Source     string                 `json:"source"`
	EventID    string                 `json:"event_id"`
	Type       string                 `json:"type"`
	BusinessID string                 `json:"business_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Platform   string                 `json:"platform,omitempty"`
	Review     *models.RawReview      `json:"review,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type payload struct {
	BusinessID string                 `json:"business_id"`
	Type       string                 `json:"type"`
	EventID    string                 `json:"event_id"`
	OccurredAt *time.Time             `json:"occurred_at"`
	Review     *reviewPayload         `json:"review"`
	Data       map[string]interface{} `json:"data"`
}

type reviewPayload struct {
	Platform         string     `json:"platform"`
	PlatformReviewID string     `json:"platform_review_id"`
	Author           string     `json:"author"`
	Rating           int        `json:"rating"`
	Body             string     `json:"body"`
	PostedAt         *time.Time `json:"posted_at"`
}

type Gateway struct {
	config  Config
	sources map[string]Source
	secrets SecretReader
	logger  logger.Logger
	now     func() time.Time
}

func New(config Config, secrets SecretReader, log logger.Logger) *Gateway {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	sources := make(map[string]Source, len(config.Sources))
	for _, s := range config.Sources {
		sources[s.Name] = s
	}
	return &Gateway{
		config:  config,
		sources: sources,
		secrets: secrets,
		logger:  log.WithFields(map[string]interface{}{"component": "gateway"}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Source returns the endpoint configuration for name.
func (g *Gateway) Source(name string) (Source, bool) {
	s, ok := g.sources[name]
	return s, ok
}

// Admit authenticates r for the named source and returns the normalized
// event. Checks run in order: method, token presence, body, token value,
// schema. Nothing is persisted or dispatched here.
func (g *Gateway) Admit(r *http.Request, sourceName string) (ev *InboundEvent, err error) {
	defer func() {
		metrics.WebhookRequests.WithLabelValues(sourceName, resultLabel(err)).Inc()
	}()

	src, ok := g.sources[sourceName]
	if !ok {
		return nil, apperrors.NewNotFoundError("webhook source", sourceName)
	}
	if r.Method != http.MethodPost {
		return nil, apperrors.NewMethodNotAllowedError(r.Method)
	}

	token := r.Header.Get(src.Header)
	if token == "" {
		return nil, apperrors.NewUnauthorizedError("missing " + src.Header + " header")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, g.config.MaxBodyBytes+1))
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("read body: %v", err))
	}
	if int64(len(body)) > g.config.MaxBodyBytes {
		// unauthenticated callers get the same answer as a bad token
		if !g.matchesDeployment(src, token) {
			return nil, apperrors.NewUnauthorizedError("invalid token")
		}
		return nil, apperrors.NewValidationError("payload too large")
	}

	// a malformed body only disables business-secret lookup; it is reported
	// after authentication so unauthenticated callers learn nothing
	var p payload
	decodeErr := json.Unmarshal(body, &p)

	if !g.authenticate(r.Context(), src, p.BusinessID, token) {
		g.logger.Warn("webhook rejected", map[string]interface{}{"source": src.Name, "businessId": p.BusinessID})
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}

	if decodeErr != nil {
		return nil, apperrors.NewValidationError("malformed JSON body")
	}
	result, err := inboundSchema.ValidateBytes(body)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}

	return g.normalize(src, &p, body)
}

func (g *Gateway) authenticate(ctx context.Context, src Source, businessID, token string) bool {
	matched := g.matchesDeployment(src, token)

	if g.config.AllowBusinessSecret && businessID != "" && g.secrets != nil {
		integration, err := g.secrets.GetIntegration(ctx, businessID, src.Name)
		if err == nil && integration.Secret != "" && integration.Status != models.IntegrationDisconnected {
			if subtle.ConstantTimeCompare([]byte(token), []byte(integration.Secret)) == 1 {
				matched = true
			}
		}
	}
	return matched
}

func (g *Gateway) matchesDeployment(src Source, token string) bool {
	return src.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(src.Token)) == 1
}

func (g *Gateway) normalize(src Source, p *payload, body []byte) (*InboundEvent, error) {
	ev := &InboundEvent{
		Source:     src.Name,
		EventID:    p.EventID,
		Type:       strings.ToLower(p.Type),
		BusinessID: p.BusinessID,
		Data:       p.Data,
		OccurredAt: g.now(),
	}
	if p.OccurredAt != nil {
		ev.OccurredAt = p.OccurredAt.UTC()
	}
	if ev.EventID == "" {
		// retried deliveries of the same body map to the same id
		sum := sha256.Sum256(body)
		ev.EventID = src.Name + ":" + hex.EncodeToString(sum[:16])
	} else {
		ev.EventID = src.Name + ":" + ev.EventID
	}

	if ev.Type == models.EventReviewCreated {
		if p.Review == nil {
			return nil, apperrors.NewValidationError("review.created requires a review object")
		}
		ev.Platform = p.Review.Platform
		if ev.Platform == "" {
			ev.Platform = src.Name
		}
		ev.Review = &models.RawReview{
			PlatformReviewID: p.Review.PlatformReviewID,
			Author:           p.Review.Author,
			Rating:           p.Review.Rating,
			Body:             p.Review.Body,
			PostedAt:         ev.OccurredAt,
		}
		if p.Review.PostedAt != nil {
			ev.Review.PostedAt = p.Review.PostedAt.UTC()
		}
	}
	return ev, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "accepted"
	}
	return strings.ToLower(string(apperrors.Normalize(err).Code))
}

// internal/workers/replies/draft-replies/handler.go
package draftreplies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "review-workers/internal/common/errors"
	httpclient "review-workers/internal/common/http"
	"review-workers/internal/common/logger"
	"review-workers/internal/common/metrics"
	"review-workers/internal/models"
)

const (
	TaskType = "reply-draft"
)

type ReviewStore interface {
	GetReview(ctx context.Context, businessID, reviewID string) (*models.Review, error)
	TransitionReplyState(ctx context.Context, businessID, reviewID, to string, replyText *string, from ...string) (*models.Review, error)
}

type Handler struct {
	config       *Config
	client       *httpclient.Client
	store        ReviewStore
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, client *httpclient.Client, store ReviewStore, log logger.Logger) *Handler {
	if client == nil {
		client = httpclient.NewClient(config.Timeout+time.Second, "review-workers/"+TaskType)
	}
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		client:       client,
		store:        store,
		logger:       l,
		errorHandler: apperrors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout+5*time.Second)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute runs the reply-coach flow for one stored review: refuse once the
// reply is sent, mark the review generating, draft, then store the first
// option as the drafted reply.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.BusinessID == "" || input.ReviewID == "" {
		return nil, apperrors.NewValidationError("businessId and reviewId are required")
	}

	review, err := h.store.GetReview(ctx, input.BusinessID, input.ReviewID)
	if err != nil {
		return nil, err
	}
	if review.ReplyState == models.ReplyStateSent {
		return nil, apperrors.NewConflictError("reply already sent")
	}

	// generating is re-enterable so a crashed draft does not pin the review
	review, err = h.store.TransitionReplyState(ctx, input.BusinessID, input.ReviewID, models.ReplyStateGenerating, nil,
		models.ReplyStateNone, models.ReplyStateDrafted, models.ReplyStateGenerating)
	if err != nil {
		return nil, err
	}

	suggestions, fallback := h.DraftReplies(ctx, review, input.Tone)

	if _, err := h.store.TransitionReplyState(ctx, input.BusinessID, input.ReviewID, models.ReplyStateDrafted,
		&suggestions.Option1, models.ReplyStateGenerating); err != nil {
		return nil, err
	}

	return &Output{ReviewID: review.ID, Suggestions: suggestions, Fallback: fallback}, nil
}

// MarkReplySent records that the owner published a reply. A nil replyText
// keeps the drafted text, so it is only accepted once a draft exists.
// Sending twice is a conflict.
func (h *Handler) MarkReplySent(ctx context.Context, businessID, reviewID string, replyText *string) (*models.Review, error) {
	if businessID == "" || reviewID == "" {
		return nil, apperrors.NewValidationError("businessId and reviewId are required")
	}
	if replyText != nil && strings.TrimSpace(*replyText) == "" {
		return nil, apperrors.NewValidationError("reply_text must not be blank")
	}

	from := []string{models.ReplyStateDrafted}
	if replyText != nil {
		from = append(from, models.ReplyStateNone, models.ReplyStateGenerating)
	}
	review, err := h.store.TransitionReplyState(ctx, businessID, reviewID, models.ReplyStateSent, replyText, from...)
	if err != nil {
		if replyText == nil && errors.Is(err, apperrors.ErrConflict) {
			if current, getErr := h.store.GetReview(ctx, businessID, reviewID); getErr == nil && current.ReplyState != models.ReplyStateSent {
				return nil, apperrors.NewValidationError("reply_text is required when no draft exists")
			}
		}
		return nil, err
	}
	h.logger.Info("reply marked sent", map[string]interface{}{"businessId": businessID, "reviewId": reviewID})
	return review, nil
}

// DraftReplies asks the generation service for two reply variants. It never
// fails: any service problem yields the templated fallback with fallback set.
func (h *Handler) DraftReplies(ctx context.Context, review *models.Review, tone string) (Suggestions, bool) {
	tone = NormalizeTone(tone)

	pair, err := h.generate(ctx, review, tone)
	if err != nil {
		h.logger.Warn("reply generation failed, using fallback", map[string]interface{}{
			"reviewId": review.ID,
			"tone":     tone,
			"error":    apperrors.NewReplyGenerationError(err),
		})
		metrics.ReplyDrafts.WithLabelValues("fallback").Inc()
		return fallbackSuggestions(review, tone), true
	}

	metrics.ReplyDrafts.WithLabelValues("generated").Inc()
	return Suggestions{
		Option1:   pair.Option1,
		Option2:   pair.Option2,
		Tone:      tone,
		WordCount: wordCountRange(pair.Option1, pair.Option2),
	}, false
}

func (h *Handler) generate(ctx context.Context, review *models.Review, tone string) (*draftPair, error) {
	if h.config.GenAIBaseURL == "" {
		return nil, fmt.Errorf("generation service not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req := chatRequest{
		Model: h.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: h.buildPrompt(review, tone)},
		},
		MaxTokens:      h.config.MaxTokens,
		Temperature:    h.config.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{}
	if h.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + h.config.APIKey
	}

	res := h.client.PostJSON(ctx, strings.TrimRight(h.config.GenAIBaseURL, "/")+"/v1/chat/completions", headers, req)
	if !res.OK() {
		if res.Timeout {
			return nil, apperrors.NewTimeoutError("genai", res.Err)
		}
		return nil, res.Err
	}

	var resp chatResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	var pair draftPair
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &pair); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	pair.Option1 = strings.TrimSpace(pair.Option1)
	pair.Option2 = strings.TrimSpace(pair.Option2)
	if pair.Option1 == "" || pair.Option2 == "" {
		return nil, fmt.Errorf("empty draft option")
	}
	return &pair, nil
}

const systemPrompt = `You write short public replies from a business owner to customer reviews. ` +
	`Respond with a JSON object {"option1": string, "option2": string} holding two different replies. ` +
	`Never invent facts, offers or refunds.`

func (h *Handler) buildPrompt(review *models.Review, tone string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Tone: %s", tone))
	if tone == ToneBrief {
		parts = append(parts, "Keep each reply under 20 words.")
	} else {
		parts = append(parts, "Keep each reply under 80 words.")
	}
	parts = append(parts, fmt.Sprintf("Rating: %d/5", review.Rating))
	if review.Author != "" {
		parts = append(parts, fmt.Sprintf("Reviewer: %s", review.Author))
	}
	body := strings.TrimSpace(review.Body)
	if body == "" {
		body = "(no text)"
	}
	parts = append(parts, "Review:", body)
	return strings.Join(parts, "\n")
}

// stripFences removes a ```json fence some models wrap JSON output in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

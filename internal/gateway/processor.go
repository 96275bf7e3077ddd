package gateway

import (
	"context"

	"review-workers/internal/common/logger"
	"review-workers/internal/models"
	dispatchnotification "review-workers/internal/workers/notifications/dispatch-notification"
	admitreviews "review-workers/internal/workers/reviews/admit-reviews"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

type BusinessReader interface {
	GetBusiness(ctx context.Context, businessID string) (*models.Business, error)
}

type Admitter interface {
	AdmitInbound(ctx context.Context, businessID, platform string, raws []models.RawReview) (*admitreviews.Result, error)
}

type FanOut interface {
	FanOut(ctx context.Context, business *models.Business, reviews []models.Review, source string) syncreviews.FanOutResult
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event, channels []models.ChannelTarget) []dispatchnotification.JobResult
}

// Processor hands admitted events to the persistence gate and the
// dispatcher, the same primitives the sync path uses.
type Processor struct {
	businesses BusinessReader
	gate       Admitter
	fanOut     FanOut
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewProcessor(businesses BusinessReader, gate Admitter, fanOut FanOut, dispatcher Dispatcher, log logger.Logger) *Processor {
	return &Processor{
		businesses: businesses,
		gate:       gate,
		fanOut:     fanOut,
		dispatcher: dispatcher,
		logger:     log.WithFields(map[string]interface{}{"component": "gateway-processor"}),
	}
}

type Result struct {
	EventID       string                           `json:"event_id"`
	Type          string                           `json:"type"`
	Admitted      int                              `json:"admitted"`
	Duplicate     bool                             `json:"duplicate"`
	ReviewIDs     []string                         `json:"review_ids,omitempty"`
	Notifications []dispatchnotification.JobResult `json:"notifications"`
}

func (p *Processor) Process(ctx context.Context, ev *InboundEvent) (*Result, error) {
	business, err := p.businesses.GetBusiness(ctx, ev.BusinessID)
	if err != nil {
		return nil, err
	}

	out := &Result{EventID: ev.EventID, Type: ev.Type, Notifications: []dispatchnotification.JobResult{}}

	if ev.Type == models.EventReviewCreated && ev.Review != nil {
		admitted, err := p.gate.AdmitInbound(ctx, business.ID, ev.Platform, []models.RawReview{*ev.Review})
		if err != nil {
			return nil, err
		}
		out.Admitted = len(admitted.Admitted)
		out.Duplicate = out.Admitted == 0
		out.ReviewIDs = admitted.ReviewIDs()

		fan := p.fanOut.FanOut(ctx, business, admitted.Admitted, admitreviews.SourceWebhook)
		out.Notifications = append(out.Notifications, fan.Notifications...)
		return out, nil
	}

	event := &models.Event{
		ID:         ev.EventID,
		Type:       ev.Type,
		BusinessID: business.ID,
		Source:     ev.Source,
		Payload:    ev.Data,
		OccurredAt: ev.OccurredAt,
	}
	out.Notifications = append(out.Notifications, p.dispatcher.Dispatch(ctx, event, business.Channels)...)
	for _, n := range out.Notifications {
		if n.Duplicate {
			out.Duplicate = true
		}
	}

	p.logger.Info("inbound event dispatched", map[string]interface{}{
		"businessId": business.ID,
		"eventId":    ev.EventID,
		"type":       ev.Type,
		"jobs":       len(out.Notifications),
	})
	return out, nil
}

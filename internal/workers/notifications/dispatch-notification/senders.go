// internal/workers/notifications/dispatch-notification/senders.go
package dispatchnotification

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	awsclient "review-workers/internal/common/aws"
	httpclient "review-workers/internal/common/http"
	"review-workers/internal/models"
)

// Sender delivers one message on one channel and classifies the outcome.
type Sender interface {
	Send(ctx context.Context, msg Message) httpclient.Result
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

// SMSChannel publishes through SNS.
type SMSChannel struct {
	sender SMSSender
}

func NewSMSChannel(sender SMSSender) *SMSChannel {
	return &SMSChannel{sender: sender}
}

func (c *SMSChannel) Send(ctx context.Context, msg Message) httpclient.Result {
	if msg.To == "" {
		return httpclient.Result{Outcome: httpclient.OutcomeFatal, Err: errors.New("empty phone number")}
	}
	_, err := c.sender.SendSMS(ctx, msg.To, msg.Message)
	return providerResult(ctx, err)
}

// EmailChannel sends through SES.
type EmailChannel struct {
	sender EmailSender
}

func NewEmailChannel(sender EmailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Send(ctx context.Context, msg Message) httpclient.Result {
	if msg.To == "" {
		return httpclient.Result{Outcome: httpclient.OutcomeFatal, Err: errors.New("empty email address")}
	}
	_, err := c.sender.SendEmail(ctx, msg.To, msg.Subject, msg.Message)
	return providerResult(ctx, err)
}

func providerResult(ctx context.Context, err error) httpclient.Result {
	switch {
	case err == nil:
		return httpclient.Result{Outcome: httpclient.OutcomeSuccess}
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return httpclient.Result{Outcome: httpclient.OutcomeTransient, Timeout: true, Err: err}
	case awsclient.IsPermanent(err):
		return httpclient.Result{Outcome: httpclient.OutcomeFatal, Err: err}
	default:
		return httpclient.Result{Outcome: httpclient.OutcomeTransient, Err: err}
	}
}

// WebhookChannel POSTs the message as JSON to the business's URL.
type WebhookChannel struct {
	client *httpclient.Client
}

func NewWebhookChannel(client *httpclient.Client) *WebhookChannel {
	return &WebhookChannel{client: client}
}

func (c *WebhookChannel) Send(ctx context.Context, msg Message) httpclient.Result {
	u, err := url.Parse(msg.To)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return httpclient.Result{Outcome: httpclient.OutcomeFatal, Err: fmt.Errorf("invalid webhook url %q", msg.To)}
	}

	headers := map[string]string{}
	if msg.Event != nil {
		headers["X-Event-Id"] = msg.Event.ID
		headers["X-Event-Type"] = msg.Event.Type
	}
	return c.client.PostJSON(ctx, msg.To, headers, msg)
}

// Senders maps channel names to their senders.
type Senders map[string]Sender

// NewSenders wires the senders that are configured; a nil argument leaves
// that channel disabled.
func NewSenders(sms SMSSender, email EmailSender, webhook *httpclient.Client) Senders {
	s := Senders{}
	if sms != nil {
		s[models.ChannelSMS] = NewSMSChannel(sms)
	}
	if email != nil {
		s[models.ChannelEmail] = NewEmailChannel(email)
	}
	if webhook != nil {
		s[models.ChannelWebhook] = NewWebhookChannel(webhook)
	}
	return s
}

// internal/workers/notifications/dispatch-notification/models.go
package dispatchnotification

import (
	"encoding/json"
	"fmt"
	"strings"

	"review-workers/internal/models"
)

// Input is the variable set of a notification-dispatch job. When Channels is
// empty the business's configured channels are used.
type Input struct {
	Event    models.Event           `json:"event"`
	Channels []models.ChannelTarget `json:"channels,omitempty"`
}

type Output struct {
	EventID    string      `json:"eventId"`
	Results    []JobResult `json:"results"`
	Sent       int         `json:"sent"`
	Failed     int         `json:"failed"`
	Duplicates int         `json:"duplicates"`
}

// JobResult is the observable end state of one channel delivery.
type JobResult struct {
	JobID     string `json:"job_id,omitempty"`
	Channel   string `json:"channel"`
	Target    string `json:"target"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Resumed   bool   `json:"resumed,omitempty"`
}

func newOutput(eventID string, results []JobResult) *Output {
	out := &Output{EventID: eventID, Results: results}
	for _, r := range results {
		switch {
		case r.Duplicate:
			out.Duplicates++
		case r.Status == models.JobSent:
			out.Sent++
		case r.Status == models.JobFailed:
			out.Failed++
		}
	}
	return out
}

// Message is the stored payload of a job and what every sender receives.
type Message struct {
	To      string        `json:"to"`
	Message string        `json:"message"`
	Channel string        `json:"channel"`
	Subject string        `json:"subject,omitempty"`
	Event   *models.Event `json:"event,omitempty"` // webhooks only
}

func buildMessage(event *models.Event, target models.ChannelTarget) Message {
	msg := Message{
		To:      target.Target,
		Message: renderText(event),
		Channel: target.Channel,
	}
	switch target.Channel {
	case models.ChannelEmail:
		msg.Subject = renderSubject(event)
	case models.ChannelWebhook:
		msg.Event = event
	}
	return msg
}

func encodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func decodeMessage(b []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(b, &msg)
	return msg, err
}

func renderSubject(event *models.Event) string {
	if s, ok := event.Payload["subject"].(string); ok && s != "" {
		return s
	}
	switch event.Type {
	case models.EventReviewCreated:
		return "You have a new customer review"
	case models.EventReplyGenerated:
		return "A reply draft is ready for review"
	default:
		return "Business notification"
	}
}

func renderText(event *models.Event) string {
	if s, ok := event.Payload["message"].(string); ok && s != "" {
		return s
	}
	switch event.Type {
	case models.EventReviewCreated:
		var b strings.Builder
		b.WriteString("New")
		if rating := payloadInt(event.Payload, "rating"); rating > 0 {
			fmt.Fprintf(&b, " %d-star", rating)
		}
		b.WriteString(" review")
		if p, _ := event.Payload["platform"].(string); p != "" {
			fmt.Fprintf(&b, " on %s", p)
		}
		if a, _ := event.Payload["author"].(string); a != "" {
			fmt.Fprintf(&b, " from %s", a)
		}
		if body, _ := event.Payload["body"].(string); body != "" {
			fmt.Fprintf(&b, ": %q", snippet(body, 140))
		}
		return b.String()
	case models.EventReplyGenerated:
		return "A reply draft is ready for your latest review."
	default:
		return fmt.Sprintf("New %s event for your business.", event.Type)
	}
}

func payloadInt(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func snippet(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of a response body is kept.
const maxBodyBytes = 1 << 20

// Outcome classifies an outbound call for retry decisions.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Result is the typed result of one outbound call. Err is set for every
// non-success outcome.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Timeout    bool
	Err        error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a client whose overall timeout is a backstop; callers bound
// each call with their own context.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// NewClientWith wraps an existing *http.Client, e.g. httptest's.
func NewClientWith(c *http.Client, userAgent string) *Client {
	return &Client{httpClient: c, userAgent: userAgent}
}

// Do sends req with ctx and classifies the response.
func (c *Client) Do(ctx context.Context, req *http.Request) Result {
	req = req.WithContext(ctx)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		if ctxErr := ctx.Err(); ctxErr != nil && !timeout {
			// caller cancelled; retrying is pointless
			return Result{Outcome: OutcomeFatal, Err: ctxErr}
		}
		return Result{Outcome: OutcomeTransient, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	outcome := Classify(resp.StatusCode)
	res := Result{Outcome: outcome, StatusCode: resp.StatusCode, Body: body}
	if outcome != OutcomeSuccess {
		res.Err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	} else if readErr != nil {
		res.Outcome = OutcomeTransient
		res.Err = fmt.Errorf("read response body: %w", readErr)
	}
	return res
}

// PostJSON marshals payload and POSTs it to url.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.Do(ctx, req)
}

// Classify maps an HTTP status onto an Outcome. 408, 429 and 5xx are
// transient; any other non-2xx is fatal.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package webhook delivers cell execution events to an HTTP endpoint.
//
// Each event is POSTed as JSON with headers naming the event type, the
// kernel session and an idempotency key derived from the session and
// execution count, so receivers can drop duplicates caused by retries.
// Server errors, 408 and 429 are retried; any other 4xx is final.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/justapithecus/vkernel/adapter"
	"github.com/justapithecus/vkernel/iox"
	"github.com/justapithecus/vkernel/types"
)

// Request headers set on every delivery.
const (
	HeaderEvent          = "X-Vkernel-Event"
	HeaderSession        = "X-Vkernel-Session"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the retry count used by the CLI when none is configured.
	DefaultRetries = 3
)

// maxDrain caps how much of a response body is read before the
// connection is handed back to the pool.
const maxDrain = 64 << 10

// Config configures the webhook adapter.
type Config struct {
	URL     string            // http or https endpoint (required)
	Headers map[string]string // extra request headers, applied last
	Timeout time.Duration     // per attempt; DefaultTimeout when zero
	Retries int               // attempts after the first
}

func (c Config) validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if u, err := url.Parse(c.URL); err != nil {
		errs = append(errs, fmt.Errorf("invalid url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("url scheme must be http or https, got %q", u.Scheme))
	} else if u.Host == "" {
		errs = append(errs, errors.New("url has no host"))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must be >= 0, got %d", c.Retries))
	}
	return errors.Join(errs...)
}

// Adapter POSTs cell execution events.
type Adapter struct {
	endpoint string
	extra    http.Header
	retries  int
	client   *http.Client
}

// New creates a webhook adapter.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	extra := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		extra.Set(k, v)
	}
	return &Adapter{
		endpoint: cfg.URL,
		extra:    extra,
		retries:  cfg.Retries,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// IdempotencyKey identifies one execution attempt. It is identical for
// every retry of the same event.
func IdempotencyKey(event *adapter.CellExecutedEvent) string {
	return fmt.Sprintf("%s:%d", event.SessionID, event.ExecutionCount)
}

// Publish delivers the event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.CellExecutedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	return adapter.Retry(ctx, "webhook", a.retries, func(ctx context.Context) error {
		return a.deliver(ctx, event, body)
	})
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Retryable reports whether a later attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

func (a *Adapter) deliver(ctx context.Context, event *adapter.CellExecutedEvent, body []byte) error {
	req, err := a.newRequest(ctx, event, body)
	if err != nil {
		return &adapter.Permanent{Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s #%d: %w", event.SessionID, event.ExecutionCount, err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	if !statusErr.Retryable() {
		return &adapter.Permanent{Err: statusErr}
	}
	return statusErr
}

func (a *Adapter) newRequest(ctx context.Context, event *adapter.CellExecutedEvent, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vkernel/"+types.Version)
	req.Header.Set(HeaderEvent, event.EventType)
	req.Header.Set(HeaderSession, event.SessionID)
	req.Header.Set(HeaderIdempotencyKey, IdempotencyKey(event))
	for k, vs := range a.extra {
		req.Header[k] = vs
	}
	return req, nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)

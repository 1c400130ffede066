// Package delivery implements at-least-once callback delivery: when a task
// reaches a terminal state its full record is POSTed to the callback URL
// registered at submission. Failed sends are retried a fixed number of times
// with a fixed delay; receivers must upsert idempotently by task id since
// the same record may arrive more than once.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zenovak/2100-AAA/internal/metrics"
	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
)

// Client delivers terminal task records to callback URLs.
type Client struct {
	client      *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	retryDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the collector set attempts and failures are counted on.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithMaxAttempts overrides the attempt limit.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay overrides the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// NewClient creates a delivery client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver POSTs the task snapshot to its callback URL, retrying failures up
// to the attempt limit with a fixed delay in between. Delivery failures
// never alter the task record; after the last attempt the error is returned
// for logging only.
func (c *Client) Deliver(ctx context.Context, snap task.Snapshot) error {
	if snap.Callback == "" {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return types.WrapError(types.DELIVERY_FAILED, "could not encode task", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.metrics != nil {
			c.metrics.DeliveryAttempts.Inc()
		}

		lastErr = c.post(ctx, snap.Callback, payload)
		if lastErr == nil {
			c.logger.Info("callback delivered",
				"task", snap.ID.String(),
				"callback", snap.Callback,
				"attempt", attempt)
			return nil
		}

		c.logger.Warn("callback delivery failed",
			"task", snap.ID.String(),
			"callback", snap.Callback,
			"attempt", attempt,
			"error", lastErr)

		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return types.WrapError(types.DELIVERY_FAILED, "delivery canceled", ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}

	if c.metrics != nil {
		c.metrics.DeliveryFailures.Inc()
	}
	return types.WrapError(types.DELIVERY_FAILED,
		fmt.Sprintf("gave up delivering task %s after %d attempts", snap.ID, c.maxAttempts),
		lastErr)
}

func (c *Client) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

// Package httpclient is the shared outbound HTTP client used by every
// egress call (data sources, LLM backends, control plane, STT, TTS): a
// plain net/http.Client with a bounded per-call timeout plus
// exponential-backoff retry gated on a retryable-error check.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client wraps net/http.Client with timeout + retry policy.
type Client struct {
	http        *http.Client
	maxAttempts uint64
	baseDelay   time.Duration
}

// New creates a Client with the given per-call timeout and retry budget.
func New(timeout time.Duration, maxAttempts uint64) *Client {
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		baseDelay:   100 * time.Millisecond,
	}
}

// RetryableError marks a failure as worth retrying (e.g. a 5xx or network
// timeout); non-retryable errors (4xx, parse failures) should not be
// wrapped in this type.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// DoJSON issues method to url with body marshaled as JSON (nil for no
// body), decodes the response into out, and retries on RetryableError or
// network-level failures using exponential backoff bounded by ctx.
func (c *Client) DoJSON(ctx context.Context, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal request: %w", err)
		}
		payload = b
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), c.maxAttempts-1), ctx)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return &RetryableError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &RetryableError{Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &RetryableError{Err: fmt.Errorf("rate limited (429)")}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("upstream returned %d", resp.StatusCode))
		}

		if out == nil {
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("httpclient: read response: %w", err))
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("httpclient: decode response: %w", err))
		}
		return nil
	}

	return backoff.Retry(operation, policy)
}

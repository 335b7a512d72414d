package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 8 << 20

// HTTPOptions tunes the shared JSON transport used by the HTTP providers.
type HTTPOptions struct {
	Timeout    time.Duration
	MaxRetries int           // retries after the first attempt for 429 and 5xx
	Backoff    time.Duration // first retry delay, doubled per attempt
	Limiter    *rate.Limiter // paces requests; nil uses one request per 100ms
	Logger     *zap.Logger
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.Limiter == nil {
		o.Limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// statusError is a non-retryable HTTP failure from a provider.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

type jsonTransport struct {
	client *http.Client
	opts   HTTPOptions
}

func newJSONTransport(opts HTTPOptions) *jsonTransport {
	opts = opts.withDefaults()
	return &jsonTransport{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// post sends body as JSON and returns the raw response for a 200. Rate
// limits and server errors are retried with exponential backoff.
func (t *jsonTransport) post(ctx context.Context, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.opts.Backoff * time.Duration(1<<uint(attempt-1))
			t.opts.Logger.Debug("retrying model request",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := t.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return data, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = &statusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
			continue
		default:
			return nil, &statusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

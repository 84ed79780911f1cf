package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// postRequest describes one POST for postWithRetries.
type postRequest struct {
	URL           string
	Body          []byte
	ContentType   string
	AuthToken     string
	Timeout       time.Duration
	Attempts      int
	CorrelationID string
}

// postWithRetries posts body to url, retrying transport errors and 5xx
// responses with exponential backoff starting at 200ms. Caller must close
// resp.Body.
func postWithRetries(ctx context.Context, client *http.Client, r postRequest) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if !sleepCtx(ctx, time.Duration(200*(1<<(i-1)))*time.Millisecond) {
				return nil, ctx.Err()
			}
		}
		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.Timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
		if err != nil {
			cancel()
			return nil, err
		}
		req.Header.Set("Content-Type", r.ContentType)
		if r.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+r.AuthToken)
		}
		if r.CorrelationID != "" {
			req.Header.Set("X-Correlation-ID", r.CorrelationID)
		}
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			logging.Debugw("http: POST attempt failed", "url", r.URL, "attempt", i+1, "err", err, "correlation_id", r.CorrelationID)
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			logging.Debugw("http: POST attempt got server error", "url", r.URL, "attempt", i+1, "status", resp.StatusCode, "correlation_id", r.CorrelationID)
			continue
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return nil, fmt.Errorf("POST %s failed after %d attempts: %w", r.URL, attempts, lastErr)
}

// cancelOnClose releases the per-request timeout once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

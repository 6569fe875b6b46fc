package bandcamp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxRetries = 3

// call makes an HTTP request with retry logic and returns the response body.
//
// It handles:
// - Request construction with proper headers
// - Optional downgrade of https:// to http://
// - Error handling and retry logic for 5xx and network failures
// - Context cancellation
func (c *Client) call(ctx context.Context, method, target string, body []byte, contentType string) ([]byte, error) {
	if c.preferHTTP {
		target = Downgrade(target)
	}

	// Retry with exponential backoff
	var lastErr error
	backoff := c.backoff

	for i := 0; i < maxRetries; i++ {
		c.logDebugf("bandcamp: %s %s (attempt %d/%d)", method, target, i+1, maxRetries)

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetryNetworkError(err) && i < maxRetries-1 {
				c.logDebugf("bandcamp: network error, retrying: %v", err)
				if !sleep(ctx, backoff) {
					return nil, ctx.Err()
				}
				backoff = nextBackoff(backoff)
				continue
			}
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &Error{StatusCode: resp.StatusCode, URL: target, Message: http.StatusText(resp.StatusCode)}
			if apiErr.Temporary() && i < maxRetries-1 {
				c.logDebugf("bandcamp: temporary error, retrying: %v", apiErr)
				lastErr = apiErr
				if !sleep(ctx, backoff) {
					return nil, ctx.Err()
				}
				backoff = nextBackoff(backoff)
				continue
			}
			return nil, apiErr
		}

		c.logDebugf("bandcamp: %s %s succeeded", method, target)
		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// getPage fetches an HTML page.
func (c *Client) getPage(ctx context.Context, target string) ([]byte, error) {
	return c.call(ctx, http.MethodGet, target, nil, "")
}

// getJSON fetches target and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, target string, out interface{}) error {
	body, err := c.call(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// postJSON encodes in as the request body and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, target string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	body, err := c.call(ctx, http.MethodPost, target, payload, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// *url.Error satisfies net.Error, so transport failures land here too.
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(duration):
		return true
	}
}

// nextBackoff calculates the next backoff duration with exponential increase.
// Maximum backoff is capped at 30 seconds.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > 30*time.Second {
		return 30 * time.Second
	}
	return next
}

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRateInterval = 100 * time.Millisecond
	maxRetries          = 3
	initialBackoff      = 1 * time.Second
	maxBackoff          = 16 * time.Second
	userAgent           = "shopbot-api/1.0"
)

// rawResponse is an HTTP response with its body already read.
type rawResponse struct {
	StatusCode int
	Body       []byte
}

// transport performs rate-limited HTTP requests, retrying network failures
// and 429 responses with exponential backoff.
type transport struct {
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	initialBackoff time.Duration
}

func newTransport(timeout, interval time.Duration) *transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if interval <= 0 {
		interval = defaultRateInterval
	}
	return &transport{
		httpClient:     &http.Client{Timeout: timeout},
		rateLimiter:    rate.NewLimiter(rate.Every(interval), 1),
		initialBackoff: initialBackoff,
	}
}

func (t *transport) do(ctx context.Context, method, url string, header http.Header, body []byte) (*rawResponse, error) {
	var lastErr error
	backoff := t.initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if attempt < maxRetries && ctx.Err() == nil {
				if err := sleep(ctx, backoff); err != nil {
					return nil, lastErr
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return nil, lastErr
		}

		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			wait := backoff
			if s := resp.Header.Get("Retry-After"); s != "" {
				if secs, err := strconv.Atoi(s); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, lastErr
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		return &rawResponse{StatusCode: resp.StatusCode, Body: data}, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

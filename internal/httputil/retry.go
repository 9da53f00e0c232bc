// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP client and retry policy shared by every
// component that talks to a remote service.
package httputil

import (
	"context"
	"io"
	"net/http"
	"time"
)

// RetryBaseDelay and RetryMaxDelay bound the exponential backoff between
// attempts. Tests override them to avoid real sleeps.
var (
	RetryBaseDelay = 600 * time.Millisecond
	RetryMaxDelay  = 10 * time.Second
)

const defaultMaxAttempts = 5

// Retryable reports whether a response status is worth another attempt:
// rate limiting and transient gateway or server failures.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Backoff returns the delay before retry number attempt (0-based):
// RetryBaseDelay doubled per attempt, capped at RetryMaxDelay.
func Backoff(attempt int) time.Duration {
	d := RetryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= RetryMaxDelay {
			return RetryMaxDelay
		}
	}
	return d
}

// RetryTransport is an http.RoundTripper that retries transport errors and
// Retryable statuses. At most MaxAttempts round trips are made per request.
// Requests with a body are only retried when GetBody is set.
type RetryTransport struct {
	Base        http.RoundTripper
	MaxAttempts int
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxAttempts = 1
	}

	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		resp, err := base.RoundTrip(r)
		if err == nil && !Retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt+1 >= maxAttempts {
			return resp, err
		}
		if err == nil {
			// Drain so the connection can be reused.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if sleepErr := sleep(req.Context(), Backoff(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
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

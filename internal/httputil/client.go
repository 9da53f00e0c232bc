// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultTimeout applies when HTTPConfig.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is a browser-like agent; several mirrors reject
// non-browser clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewClient builds an http.Client with proxy selection, timeout and the
// retrying transport configured from cfg.
func NewClient(cfg types.HTTPConfig) (*http.Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &RetryTransport{
			Base:        transport,
			MaxAttempts: cfg.MaxAttempts,
		},
	}, nil
}

func newTransport(cfg types.HTTPConfig) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	switch {
	case cfg.ProxyURL != "":
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL %q: %w", cfg.ProxyURL, err)
		}
		t.Proxy = http.ProxyURL(u)
	case cfg.TrustEnvProxy:
		t.Proxy = http.ProxyFromEnvironment
	default:
		t.Proxy = nil
	}
	return t, nil
}

// UserAgent returns cfg.UserAgent or DefaultUserAgent.
func UserAgent(cfg types.HTTPConfig) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return DefaultUserAgent
}

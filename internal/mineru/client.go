// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mineru is a client for the MinerU asynchronous document parsing
// service. A conversion is a four-step protocol: request upload URLs for a
// batch, upload each file, poll the batch until every item is terminal,
// then download each result archive and read its Markdown.
package mineru

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/ratelimit"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Defaults applied by New when the configuration leaves a field empty.
const (
	DefaultBaseURL      = "https://mineru.net"
	DefaultModelVersion = "vlm"
	DefaultSubmitRPM    = 300
	DefaultPollRPM      = 1000
	DefaultPollInterval = 5 * time.Second
	DefaultPollDeadline = 900 * time.Second

	// minTransferTimeout is the floor for upload and archive download
	// timeouts.
	minTransferTimeout = 120 * time.Second
	harvestAttempts    = 5
)

// HarvestRetryDelay is the base delay between archive download attempts.
// Tests override it to avoid real sleeps.
var HarvestRetryDelay = time.Second

var (
	// ErrUnauthorized means the service rejected the credential. The
	// credential is revoked for the lifetime of the client.
	ErrUnauthorized = errors.New("mineru: credential rejected")

	// ErrRejected means the service answered with a non-zero code.
	ErrRejected = errors.New("mineru: request rejected")

	// ErrItemFailed means the service reported the item as failed.
	ErrItemFailed = errors.New("mineru: extraction failed")

	// ErrDeadline means the item was still pending when polling stopped.
	ErrDeadline = errors.New("mineru: poll deadline exceeded")

	// ErrBadArchive means the result download was not a readable zip.
	ErrBadArchive = errors.New("mineru: invalid result archive")

	// ErrNoMarkdown means the result archive held no .md entry.
	ErrNoMarkdown = errors.New("mineru: no markdown in result archive")
)

// Limiter admits calls per endpoint class and credential.
type Limiter interface {
	Wait(ctx context.Context, class ratelimit.Class, credential string) error
}

// File is one document to convert. DataID is echoed back by the service and
// correlates results with inputs.
type File struct {
	Path   string
	DataID string
}

// Name returns the upload filename.
func (f File) Name() string { return filepath.Base(f.Path) }

// ItemResult is the outcome for one File of a batch.
type ItemResult struct {
	DataID   string
	Name     string
	Markdown string
	Err      error
}

// Client talks to one MinerU deployment. It is safe for concurrent use.
type Client struct {
	api      *http.Client
	transfer *http.Client
	limiter  Limiter
	logger   *zap.Logger

	baseURL      string
	modelVersion string
	timeout      time.Duration
	pollInterval time.Duration
	pollDeadline time.Duration

	mu      sync.Mutex
	revoked map[string]bool
}

// New builds a Client. API calls use a client bounded by httpCfg.Timeout;
// uploads and archive downloads use per-transfer timeouts instead.
func New(cfg types.RemoteParseConfig, httpCfg types.HTTPConfig, limiter Limiter, logger *zap.Logger) (*Client, error) {
	api, err := httputil.NewClient(httpCfg)
	if err != nil {
		return nil, err
	}
	transferCfg := httpCfg
	transferCfg.Timeout = 0
	transfer, err := httputil.NewClient(transferCfg)
	if err != nil {
		return nil, err
	}
	transfer.Timeout = 0

	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		api:          api,
		transfer:     transfer,
		limiter:      limiter,
		logger:       logger,
		baseURL:      cfg.BaseURL,
		modelVersion: cfg.ModelVersion,
		timeout:      api.Timeout,
		pollInterval: cfg.PollInterval,
		pollDeadline: cfg.PollDeadline,
		revoked:      make(map[string]bool),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.modelVersion == "" {
		c.modelVersion = DefaultModelVersion
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollDeadline <= 0 {
		c.pollDeadline = DefaultPollDeadline
	}
	return c, nil
}

// NewLimiter returns a ratelimit.Limiter with the submit and poll ceilings
// from cfg, falling back to the service defaults.
func NewLimiter(cfg types.RemoteParseConfig, opts ...ratelimit.Option) *ratelimit.Limiter {
	submit, poll := cfg.SubmitRPM, cfg.PollRPM
	if submit <= 0 {
		submit = DefaultSubmitRPM
	}
	if poll <= 0 {
		poll = DefaultPollRPM
	}
	return ratelimit.New(map[ratelimit.Class]int{
		ratelimit.ClassSubmit: submit,
		ratelimit.ClassPoll:   poll,
	}, opts...)
}

// Revoked reports whether token was rejected earlier.
func (c *Client) Revoked(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked[token]
}

func (c *Client) revoke(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.revoked[token] {
		c.logger.Warn("mineru credential revoked", zap.String("token", Mask(token)))
	}
	c.revoked[token] = true
}

// Mask returns a log-safe form of a credential.
func Mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

// transferTimeout scales the transfer floor by payload size: one extra
// second per MiB.
func (c *Client) transferTimeout(size int64) time.Duration {
	t := c.timeout
	if t < minTransferTimeout {
		t = minTransferTimeout
	}
	return t + time.Duration(size>>20)*time.Second
}

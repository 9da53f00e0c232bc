// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire retrieves the raw full text of a paper: a PDF from an
// ordered list of mirrors (with OpenAlex as the last resort) or JATS XML
// from PubMed Central Open Access.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/workpool"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// ErrNoIdentifier is returned when a job has nothing a route can use.
var ErrNoIdentifier = errors.New("no usable identifier")

// Fetched is a retrieved raw artifact.
type Fetched struct {
	Path   string
	Kind   types.ContentKind
	Source string
}

// Retriever downloads raw full text for document jobs. It is safe for
// concurrent use.
type Retriever struct {
	client    *http.Client
	cfg       types.AcquisitionConfig
	mirrors   []string
	userAgent string
	logger    *zap.Logger
}

// New builds a Retriever with an HTTP client configured from cfg.
func New(cfg types.AcquisitionConfig, logger *zap.Logger) (*Retriever, error) {
	client, err := httputil.NewClient(cfg.HTTPConfig)
	if err != nil {
		return nil, err
	}
	return newRetriever(client, cfg, logger), nil
}

func newRetriever(client *http.Client, cfg types.AcquisitionConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	mirrors := cfg.Mirrors
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	return &Retriever{
		client:    client,
		cfg:       cfg,
		mirrors:   mirrors,
		userAgent: httputil.UserAgent(cfg.HTTPConfig),
		logger:    logger,
	}
}

// FetchPDF tries each mirror once, in order, then OpenAlex for DOIs when
// enabled. The first download that carries the PDF signature is written to
// job.PDFPath.
func (r *Retriever) FetchPDF(ctx context.Context, job types.DocumentJob) (Fetched, error) {
	key := mirrorKey(job.IDs)
	if key == "" && (job.IDs.DOI == "" || !r.cfg.UseOpenAlex) {
		return Fetched{}, fmt.Errorf("pdf route: %w", ErrNoIdentifier)
	}

	var errs []error
	if key != "" {
		for _, m := range r.mirrors {
			start := time.Now()
			err := r.fromMirror(ctx, m, key, job.PDFPath)
			if err == nil {
				r.logger.Info("fetched pdf",
					zap.String("stem", job.Stem),
					zap.String("mirror", m),
					zap.Duration("elapsed", time.Since(start)))
				return Fetched{Path: job.PDFPath, Kind: types.KindPDF, Source: "mirror:" + m}, nil
			}
			if ctx.Err() != nil {
				return Fetched{}, ctx.Err()
			}
			r.logger.Debug("mirror failed", zap.String("stem", job.Stem), zap.String("mirror", m), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if job.IDs.DOI != "" && r.cfg.UseOpenAlex {
		err := r.fromOpenAlex(ctx, job.IDs.DOI, job.PDFPath)
		if err == nil {
			r.logger.Info("fetched pdf", zap.String("stem", job.Stem), zap.String("source", "openalex"))
			return Fetched{Path: job.PDFPath, Kind: types.KindPDF, Source: "openalex"}, nil
		}
		errs = append(errs, err)
	}
	return Fetched{}, fmt.Errorf("pdf route: %w", errors.Join(errs...))
}

// Fetch races the PMC XML route against the PDF route. The first success
// cancels the other; when both fail the error carries both causes. A losing
// route that still completed has its artifact removed.
func (r *Retriever) Fetch(ctx context.Context, job types.DocumentJob) (Fetched, error) {
	var got [2]Fetched
	routes := []func(context.Context) (Fetched, error){
		func(ctx context.Context) (Fetched, error) {
			f, err := r.FetchXML(ctx, job)
			got[0] = f
			return f, err
		},
		func(ctx context.Context) (Fetched, error) {
			f, err := r.FetchPDF(ctx, job)
			got[1] = f
			return f, err
		},
	}
	win, err := workpool.First(ctx, routes...)
	if err != nil {
		return Fetched{}, err
	}
	for _, f := range got {
		if f.Path != "" && f.Path != win.Path {
			os.Remove(f.Path)
		}
	}
	return win, nil
}

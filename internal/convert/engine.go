// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultMaxAttempts is the retry budget shared by the whole chain.
const DefaultMaxAttempts = 3

// Engine runs the backend chain for an artifact. Backends are tried in
// order; those that do not accept the content kind, are not in the
// capability registry, are skipped by the input, or are inapplicable to the
// job are passed over for free. Every backend actually invoked consumes one
// attempt whether it fails or returns empty text. The first non-empty result
// wins.
type Engine struct {
	backends    []Backend
	caps        Capabilities
	maxAttempts int
	sections    []string
	stop        *trim.Matcher
	logger      *zap.Logger
}

// NewEngine builds an engine over backends in priority order.
func NewEngine(backends []Backend, caps Capabilities, maxAttempts int, logger *zap.Logger) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backends: backends, caps: caps, maxAttempts: maxAttempts, logger: logger}
}

// SelectSections makes the engine keep only the named sections of every
// converted document. Headings matching stop end the document.
func (e *Engine) SelectSections(names []string, stop *trim.Matcher) {
	e.sections = names
	e.stop = stop
}

// Finish applies the section selection to converted Markdown.
func (e *Engine) Finish(md string) string {
	if len(e.sections) == 0 {
		return md
	}
	return trim.KeepSections(md, e.sections, e.stop)
}

// Capabilities returns the registry the engine filters by.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// Chain returns the names of the backends that would be considered for
// kind, in order.
func (e *Engine) Chain(kind types.ContentKind) []string {
	var out []string
	for _, b := range e.backends {
		if b.Accepts(kind) && e.caps.Has(b.Name()) {
			out = append(out, b.Name())
		}
	}
	return out
}

// Convert runs the chain for in and reports the outcome.
func (e *Engine) Convert(ctx context.Context, in Input) types.ConversionOutcome {
	out := types.ConversionOutcome{Attempts: in.AttemptsUsed}
	var last *Failure
	file := filepath.Base(in.Path)

	for _, b := range e.backends {
		name := b.Name()
		if !b.Accepts(in.Kind) || !e.caps.Has(name) || in.skips(name) {
			continue
		}
		if a, ok := b.(applicable); ok && !a.Applicable(in) {
			continue
		}
		if out.Attempts >= e.maxAttempts {
			last = &Failure{Reason: types.ReasonBudget, Err: fmt.Errorf("%d attempts used", out.Attempts)}
			break
		}
		if err := ctx.Err(); err != nil {
			last = &Failure{Reason: types.ReasonTimeout, Err: err}
			break
		}

		out.Attempts++
		start := time.Now()
		res := b.Convert(ctx, in)
		if res.OK() {
			e.logger.Info("converted",
				zap.String("file", file),
				zap.String("backend", name),
				zap.Int("attempt", out.Attempts),
				zap.Duration("elapsed", time.Since(start)))
			out.Success = true
			out.Backend = name
			out.Text = e.Finish(res.Text)
			out.Reason = ""
			return out
		}
		last = res.Failure
		if last == nil {
			last = &Failure{Reason: types.ReasonEmptyOutput}
		}
		e.logger.Warn("backend failed",
			zap.String("file", file),
			zap.String("backend", name),
			zap.String("reason", string(last.Reason)),
			zap.Error(last.Err))
	}

	if last == nil {
		last = &Failure{Reason: types.ReasonUnavailable, Err: fmt.Errorf("no applicable backend for %s", in.Kind)}
	}
	out.Reason = last.Error()
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package trim cuts a paper down to its subject content before conversion.
// Page trimming drops every page after the first back-matter heading;
// Markdown trimming does the same at heading granularity for converted XML.
package trim

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultMaxPages caps the retained pages when no stop heading is found.
const DefaultMaxPages = 20

// Decide chooses the page range to keep. pageTexts holds the text of the
// leading pages (it may be shorter than totalPages); only the first
// maxPages of them are scanned (0 means all). The first page containing a
// stop heading is the last page kept. Without a match the document is
// capped at maxPages. At least one page is always kept.
func Decide(m *Matcher, pageTexts []string, totalPages, maxPages int) types.TrimDecision {
	d := types.TrimDecision{TotalPages: totalPages}
	if totalPages <= 0 {
		return d
	}

	limit := totalPages
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}
	scan := limit
	if len(pageTexts) < scan {
		scan = len(pageTexts)
	}

	for i := 0; i < scan; i++ {
		if m.PageHasStopHeading(pageTexts[i]) {
			d.LastPage = i
			d.Trim = i+1 < totalPages
			return d
		}
	}
	if limit < totalPages {
		d.Trim = true
		d.LastPage = limit - 1
	}
	return d
}

// PageReader extracts the text of the first limit pages of a PDF and
// reports its total page count.
type PageReader interface {
	PageTexts(path string, limit int) (texts []string, total int, err error)
}

// PageWriter writes the first n pages of in to out.
type PageWriter interface {
	KeepPages(in, out string, n int) error
}

// Trimmer applies Decide to PDF files on disk.
type Trimmer struct {
	matcher  *Matcher
	maxPages int
	reader   PageReader
	writer   PageWriter
	logger   *zap.Logger
}

// NewTrimmer builds a Trimmer backed by ledongthuc/pdf for page text and
// pdfcpu for page selection.
func NewTrimmer(cfg types.TrimConfig, logger *zap.Logger) *Trimmer {
	return newTrimmer(cfg, PlainTextReader{}, PDFCPUWriter{}, logger)
}

func newTrimmer(cfg types.TrimConfig, r PageReader, w PageWriter, logger *zap.Logger) *Trimmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trimmer{
		matcher:  NewMatcher(cfg.StopHeadings),
		maxPages: cfg.MaxPages,
		reader:   r,
		writer:   w,
		logger:   logger,
	}
}

// Matcher returns the stop-heading matcher in use.
func (t *Trimmer) Matcher() *Matcher { return t.matcher }

// Trim decides the page range of the PDF at path and, when pages must be
// dropped, writes the kept range to <stem>.trimmed.pdf beside it. It
// returns the path of the document to convert: the trimmed copy, or path
// itself when no trimming is needed. Trimming an already trimmed file is a
// no-op.
func (t *Trimmer) Trim(ctx context.Context, path string) (string, types.TrimDecision, error) {
	if err := ctx.Err(); err != nil {
		return "", types.TrimDecision{}, err
	}

	texts, total, err := t.reader.PageTexts(path, t.maxPages)
	if err != nil {
		return "", types.TrimDecision{}, fmt.Errorf("reading pages of %s: %w", filepath.Base(path), err)
	}

	d := Decide(t.matcher, texts, total, t.maxPages)
	if !d.Trim {
		return path, d, nil
	}

	out := TrimmedPath(path)
	if err := t.writer.KeepPages(path, out, d.KeptPages()); err != nil {
		return "", d, fmt.Errorf("writing trimmed %s: %w", filepath.Base(out), err)
	}
	t.logger.Debug("trimmed pdf",
		zap.String("file", filepath.Base(path)),
		zap.Int("kept", d.KeptPages()),
		zap.Int("total", d.TotalPages))
	return out, d, nil
}

// TrimmedPath returns the output path used for a trimmed copy of path.
func TrimmedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".trimmed.pdf"
}

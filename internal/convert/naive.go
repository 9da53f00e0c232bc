// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"

	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Naive extracts the text layer page by page. It is the last resort for
// PDFs.
type Naive struct {
	reader trim.PageReader
}

// NewNaive returns the naive backend.
func NewNaive() *Naive { return &Naive{reader: trim.PlainTextReader{}} }

func (n *Naive) Name() string { return BackendNaive }

func (n *Naive) Accepts(kind types.ContentKind) bool { return kind == types.KindPDF }

func (n *Naive) Convert(_ context.Context, in Input) Result {
	texts, total, err := n.reader.PageTexts(in.Path, 0)
	if err != nil {
		return Fail(types.ReasonInvalidFormat, err)
	}
	md := pagesMarkdown(texts)
	if md == "" {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("no text in %d pages", total))
	}
	return Success(md)
}

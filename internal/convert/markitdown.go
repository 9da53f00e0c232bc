// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/paperfetch/internal/toolchain"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// ImageMarkitdown is the container image the markitdown backend runs.
const ImageMarkitdown = "markitdown:latest"

// Markitdown converts PDFs and XML by piping them through the markitdown
// container image.
type Markitdown struct {
	runtime toolchain.Runtime
}

// NewMarkitdown returns the backend when the image exists in rt.
func NewMarkitdown(ctx context.Context, rt toolchain.Runtime) (*Markitdown, error) {
	if rt == nil {
		return nil, fmt.Errorf("markitdown: no container runtime")
	}
	if err := rt.ImageExists(ctx, ImageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt}, nil
}

func (m *Markitdown) Name() string { return BackendMarkitdown }

func (m *Markitdown) Accepts(kind types.ContentKind) bool {
	return kind == types.KindPDF || kind == types.KindXML
}

// Convert streams the file into the container. The extension hint tells
// markitdown how to read stdin.
func (m *Markitdown) Convert(ctx context.Context, in Input) Result {
	f, err := os.Open(in.Path)
	if err != nil {
		return Fail(types.ReasonUnavailable, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, ImageMarkitdown, f, &out, "-x", string(in.Kind)); err != nil {
		if ctx.Err() != nil {
			return Fail(types.ReasonTimeout, err)
		}
		return Fail(types.ReasonBackendError, err)
	}
	if out.Len() == 0 {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("markitdown produced no output for %s", in.Path))
	}
	return Success(out.String())
}

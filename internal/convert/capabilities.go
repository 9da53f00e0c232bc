// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/toolchain"
	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Setup carries everything needed to assemble the default chain.
type Setup struct {
	Toolset    toolchain.Toolset
	Conversion types.ConversionConfig
	Trim       types.TrimConfig

	// Remote is the remote parsing client, or nil when no credential is
	// configured. Pass an untyped nil, not a nil pointer.
	Remote RemoteClient

	// StopKeywords are the headings used for Markdown trimming.
	StopKeywords []string

	Logger *zap.Logger
}

// DetectCapabilities probes the host once. Backends that need nothing
// beyond this binary are always present.
func DetectCapabilities(ctx context.Context, s Setup) Capabilities {
	caps := Capabilities{
		BackendRemote:   s.Remote != nil,
		BackendLayout:   s.Conversion.EnableLayout,
		BackendOCR:      s.Toolset.Pdftoppm != nil,
		BackendJATS:     s.Toolset.Pandoc != nil,
		BackendNaive:    true,
		BackendXMLStrip: true,
	}
	if rt := s.Toolset.Runtime; rt != nil {
		caps[BackendMarkitdown] = rt.ImageExists(ctx, ImageMarkitdown) == nil
	}
	return caps
}

// Backends returns the full chain in priority order. PDF order is remote,
// layout, ocr, markitdown, naive; XML order is jats, markitdown, xmlstrip.
func Backends(s Setup) []Backend {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ocr := NewOCR(s.Conversion, s.Toolset.Pdftoppm, logger)
	ocr.stop = trim.NewMatcher(s.StopKeywords)
	return []Backend{
		NewRemote(s.Remote),
		NewLayout(),
		ocr,
		NewJATS(s.Toolset.Pandoc, s.Trim, s.StopKeywords),
		&Markitdown{runtime: s.Toolset.Runtime},
		NewNaive(),
		XMLStrip{},
	}
}

// Build detects capabilities and returns an engine over the default chain.
func Build(ctx context.Context, s Setup) *Engine {
	caps := DetectCapabilities(ctx, s)
	eng := NewEngine(Backends(s), caps, s.Conversion.MaxAttempts, s.Logger)
	eng.SelectSections(s.Conversion.Sections, trim.NewMatcher(s.StopKeywords))
	if s.Logger != nil {
		s.Logger.Debug("conversion capabilities", zap.Strings("backends", caps.Names()))
	}
	return eng
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// Backend names, in chain order.
const (
	BackendRemote     = "mineru"
	BackendLayout     = "layout"
	BackendOCR        = "ocr"
	BackendJATS       = "jats"
	BackendMarkitdown = "markitdown"
	BackendNaive      = "naive"
	BackendXMLStrip   = "xmlstrip"
)

// Input is one artifact to convert.
type Input struct {
	// Path is the file to convert. For PDFs this is normally the trimmed
	// copy.
	Path string
	Kind types.ContentKind

	// ID correlates remote results with the job (the job stem).
	ID string

	// Token is the remote parsing credential assigned to the job, if any.
	Token string

	// Skip names backends that must not be tried, such as a remote service
	// that already failed the item in a batch submission.
	Skip []string

	// AttemptsUsed is the retry budget already consumed elsewhere.
	AttemptsUsed int
}

func (in Input) skips(name string) bool {
	for _, s := range in.Skip {
		if s == name {
			return true
		}
	}
	return false
}

// Failure explains why a backend produced no text.
type Failure struct {
	Reason types.FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the value a backend returns: text on success, or a Failure.
type Result struct {
	Text    string
	Failure *Failure
}

// Success wraps converted text.
func Success(text string) Result { return Result{Text: text} }

// Fail builds a failed Result.
func Fail(reason types.FailureReason, err error) Result {
	return Result{Failure: &Failure{Reason: reason, Err: err}}
}

// OK reports whether the result carries usable text.
func (r Result) OK() bool {
	return r.Failure == nil && strings.TrimSpace(r.Text) != ""
}

// Backend converts one kind of artifact to Markdown.
type Backend interface {
	Name() string
	Accepts(kind types.ContentKind) bool
	Convert(ctx context.Context, in Input) Result
}

// applicable is implemented by backends whose use depends on the job, such
// as the remote service needing a live credential. An inapplicable backend
// is skipped without consuming retry budget.
type applicable interface {
	Applicable(in Input) bool
}

// Capabilities records which backends the host can run. It is built once at
// startup and read-only afterwards.
type Capabilities map[string]bool

// Has reports whether the named backend is usable.
func (c Capabilities) Has(name string) bool { return c[name] }

// Names returns the usable backends in sorted order.
func (c Capabilities) Names() []string {
	var out []string
	for n, ok := range c {
		if ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// fakeBackend returns a canned result and counts invocations.
type fakeBackend struct {
	name         string
	kinds        []types.ContentKind
	result       Result
	inapplicable bool
	calls        int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Accepts(kind types.ContentKind) bool {
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f *fakeBackend) Applicable(Input) bool { return !f.inapplicable }

func (f *fakeBackend) Convert(context.Context, Input) Result {
	f.calls++
	return f.result
}

func pdfBackend(name string, r Result) *fakeBackend {
	return &fakeBackend{name: name, kinds: []types.ContentKind{types.KindPDF}, result: r}
}

func allCaps(backends ...*fakeBackend) Capabilities {
	caps := Capabilities{}
	for _, b := range backends {
		caps[b.name] = true
	}
	return caps
}

func newTestEngine(t *testing.T, caps Capabilities, backends ...*fakeBackend) *Engine {
	t.Helper()
	bs := make([]Backend, len(backends))
	for i, b := range backends {
		bs[i] = b
	}
	return NewEngine(bs, caps, DefaultMaxAttempts, zaptest.NewLogger(t))
}

func TestEngineFirstSuccessWins(t *testing.T) {
	a := pdfBackend("a", Fail(types.ReasonBackendError, errors.New("boom")))
	b := pdfBackend("b", Success("# Paper\n"))
	c := pdfBackend("c", Success("never"))
	eng := newTestEngine(t, allCaps(a, b, c), a, b, c)

	out := eng.Convert(context.Background(), Input{Path: "x.pdf", Kind: types.KindPDF})
	assert.True(t, out.Success)
	assert.Equal(t, "b", out.Backend)
	assert.Equal(t, "# Paper\n", out.Text)
	assert.Equal(t, 2, out.Attempts)
	assert.Zero(t, c.calls)
}

func TestEngineSelectsSections(t *testing.T) {
	md := "# Paper\n\n## Introduction\n\nWhy.\n\n## Results\n\nWhat.\n\n## References\n\n1. Ref\n"
	a := pdfBackend("a", Success(md))
	eng := newTestEngine(t, allCaps(a), a)

	out := eng.Convert(context.Background(), Input{Kind: types.KindPDF})
	assert.Equal(t, md, out.Text)

	eng.SelectSections([]string{"title", "results"}, nil)
	out = eng.Convert(context.Background(), Input{Kind: types.KindPDF})
	assert.True(t, out.Success)
	assert.Equal(t, "# Paper\n\n## Results\n\nWhat.\n", out.Text)
	assert.Equal(t, "# Paper\n\n## Results\n\nWhat.\n", eng.Finish(md))
}

func TestBuildAppliesSections(t *testing.T) {
	eng := Build(context.Background(), Setup{Conversion: types.ConversionConfig{Sections: []string{"results"}}})
	assert.Equal(t, "## Results\n\nR.\n", eng.Finish("## Methods\n\nM.\n\n## Results\n\nR.\n"))

	eng = Build(context.Background(), Setup{})
	assert.Equal(t, "## Methods\n\nM.\n", eng.Finish("## Methods\n\nM.\n"))
}

func TestEngineEmptyOutputConsumesAttempt(t *testing.T) {
	a := pdfBackend("a", Success("  \n"))
	b := pdfBackend("b", Success("text"))
	eng := newTestEngine(t, allCaps(a, b), a, b)

	out := eng.Convert(context.Background(), Input{Kind: types.KindPDF})
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
}

func TestEngineBudgetExhausted(t *testing.T) {
	var bs []*fakeBackend
	for _, n := range []string{"a", "b", "c", "d"} {
		bs = append(bs, pdfBackend(n, Fail(types.ReasonBackendError, errors.New(n))))
	}
	eng := newTestEngine(t, allCaps(bs...), bs...)

	out := eng.Convert(context.Background(), Input{Kind: types.KindPDF})
	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 1, bs[2].calls)
	assert.Zero(t, bs[3].calls)
	assert.Contains(t, out.Reason, string(types.ReasonBudget))
}

func TestEngineFiltersForFree(t *testing.T) {
	missing := pdfBackend("missing", Success("x"))
	xmlOnly := &fakeBackend{name: "xml", kinds: []types.ContentKind{types.KindXML}, result: Success("x")}
	noToken := pdfBackend("remote", Success("x"))
	noToken.inapplicable = true
	skipped := pdfBackend("skipped", Success("x"))
	f1 := pdfBackend("f1", Fail(types.ReasonTimeout, nil))
	f2 := pdfBackend("f2", Fail(types.ReasonTimeout, nil))
	ok := pdfBackend("ok", Success("done"))

	caps := allCaps(xmlOnly, noToken, skipped, f1, f2, ok)
	eng := newTestEngine(t, caps, missing, xmlOnly, noToken, skipped, f1, f2, ok)

	out := eng.Convert(context.Background(), Input{Kind: types.KindPDF, Skip: []string{"skipped"}})
	require.True(t, out.Success)
	assert.Equal(t, "ok", out.Backend)
	assert.Equal(t, 3, out.Attempts)
	for _, b := range []*fakeBackend{missing, xmlOnly, noToken, skipped} {
		assert.Zero(t, b.calls, b.name)
	}
}

func TestEngineResumesWithAttemptsUsed(t *testing.T) {
	remote := pdfBackend("remote", Success("x"))
	f1 := pdfBackend("f1", Fail(types.ReasonBackendError, nil))
	f2 := pdfBackend("f2", Fail(types.ReasonBackendError, nil))
	last := pdfBackend("last", Success("never"))
	eng := newTestEngine(t, allCaps(remote, f1, f2, last), remote, f1, f2, last)

	out := eng.Convert(context.Background(), Input{
		Kind:         types.KindPDF,
		Skip:         []string{"remote"},
		AttemptsUsed: 1,
	})
	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Zero(t, last.calls)
	assert.Zero(t, remote.calls)
}

func TestEngineNoApplicableBackend(t *testing.T) {
	eng := newTestEngine(t, Capabilities{})
	out := eng.Convert(context.Background(), Input{Kind: types.KindXML})
	assert.False(t, out.Success)
	assert.Zero(t, out.Attempts)
	assert.Contains(t, out.Reason, string(types.ReasonUnavailable))
}

func TestEngineCancelledContext(t *testing.T) {
	a := pdfBackend("a", Success("x"))
	eng := newTestEngine(t, allCaps(a), a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := eng.Convert(ctx, Input{Kind: types.KindPDF})
	assert.False(t, out.Success)
	assert.Zero(t, a.calls)
	assert.Contains(t, out.Reason, string(types.ReasonTimeout))
}

func TestDefaultChainOrder(t *testing.T) {
	caps := Capabilities{}
	for _, n := range []string{BackendRemote, BackendLayout, BackendOCR, BackendJATS, BackendMarkitdown, BackendNaive, BackendXMLStrip} {
		caps[n] = true
	}
	eng := NewEngine(Backends(Setup{}), caps, 0, nil)

	assert.Equal(t,
		[]string{BackendRemote, BackendLayout, BackendOCR, BackendMarkitdown, BackendNaive},
		eng.Chain(types.KindPDF))
	assert.Equal(t,
		[]string{BackendJATS, BackendMarkitdown, BackendXMLStrip},
		eng.Chain(types.KindXML))

	delete(caps, BackendLayout)
	caps[BackendOCR] = false
	assert.Equal(t,
		[]string{BackendRemote, BackendMarkitdown, BackendNaive},
		eng.Chain(types.KindPDF))
}

func TestDetectCapabilitiesWithoutTools(t *testing.T) {
	caps := DetectCapabilities(context.Background(), Setup{})
	assert.Equal(t, []string{BackendNaive, BackendXMLStrip}, caps.Names())

	caps = DetectCapabilities(context.Background(), Setup{
		Conversion: types.ConversionConfig{EnableLayout: true},
		Toolset:    toolsetWith(&fakeRuntime{}),
	})
	assert.True(t, caps.Has(BackendLayout))
	assert.True(t, caps.Has(BackendMarkitdown))
	assert.False(t, caps.Has(BackendRemote))
}

func TestKindOf(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	tests := []struct {
		path    string
		want    types.ContentKind
		wantErr bool
	}{
		{write("a.bin", "%PDF-1.7\n"), types.KindPDF, false},
		{write("b.dat", "\xef\xbb\xbf  <?xml version=\"1.0\"?><article/>"), types.KindXML, false},
		{write("c.nxml", "garbage"), types.KindXML, false},
		{write("d.txt", "hello"), "", true},
	}
	for _, tt := range tests {
		got, err := KindOf(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestConvertPaths(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	pdf := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 fake"), 0o644))
	xmlPath := filepath.Join(dir, "done.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte("<article/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "done.md"), []byte("old"), 0o644))
	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("plain"), 0o644))

	b := pdfBackend("fake", Success("# Converted\n"))
	eng := newTestEngine(t, allCaps(b), b)

	var log bytes.Buffer
	res := ConvertPaths(context.Background(), eng, nil, []string{pdf, xmlPath, bad}, outDir, &log)
	assert.Equal(t, BatchResult{Converted: 1, Skipped: 1, Failed: 1}, res)
	assert.True(t, res.HasFailures())

	got, err := os.ReadFile(filepath.Join(outDir, "paper.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Converted\n", string(got))

	old, err := os.ReadFile(filepath.Join(outDir, "done.md"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))

	out := log.String()
	assert.Contains(t, out, "converted: paper (fake)")
	assert.Contains(t, out, "skipped: done")
	assert.Contains(t, out, "failed:  notes")
	assert.Contains(t, out, "Batch summary: 1 converted, 1 skipped, 1 failed (total: 3)")
}

type fakeTrimmer struct{ dir string }

func (f fakeTrimmer) Trim(_ context.Context, path string) (string, types.TrimDecision, error) {
	out := filepath.Join(f.dir, "trimmed.pdf")
	if err := os.WriteFile(out, []byte("%PDF trimmed"), 0o644); err != nil {
		return "", types.TrimDecision{}, err
	}
	return out, types.TrimDecision{Trim: true, LastPage: 2, TotalPages: 9}, nil
}

type pathRecorder struct {
	fakeBackend
	seen string
}

func (p *pathRecorder) Convert(_ context.Context, in Input) Result {
	p.seen = in.Path
	return Success("ok")
}

func TestDocumentUsesTrimmedCopy(t *testing.T) {
	dir := t.TempDir()
	rec := &pathRecorder{fakeBackend: fakeBackend{name: "rec", kinds: []types.ContentKind{types.KindPDF}}}
	eng := NewEngine([]Backend{rec}, Capabilities{"rec": true}, 0, nil)

	out := Document(context.Background(), eng, fakeTrimmer{dir: dir}, Input{Path: "orig.pdf", Kind: types.KindPDF})
	require.True(t, out.Success)
	assert.Equal(t, filepath.Join(dir, "trimmed.pdf"), rec.seen)
	assert.NoFileExists(t, rec.seen)
}

func TestWriteMarkdownLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "x.md")
	require.NoError(t, WriteMarkdown(path, "body"))
	require.NoError(t, WriteMarkdown(path, "body2"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "body2", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

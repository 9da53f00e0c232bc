// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/toolchain"
	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/internal/workpool"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// OCR defaults.
const (
	DefaultOCRLang = "eng"
	DefaultDPI     = 300
)

// pageRenderer rasterizes one page of a PDF into dir and returns the image
// path.
type pageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page, dpi int, dir string) (string, error)
}

// recognizer turns a page image into text. A recognizer is used by a single
// goroutine.
type recognizer interface {
	Recognize(png []byte) (string, error)
	Close() error
}

// pdftoppm renders pages with the poppler pdftoppm binary.
type pdftoppm struct {
	tool *toolchain.Tool
}

func (p pdftoppm) RenderPage(ctx context.Context, pdfPath string, page, dpi int, dir string) (string, error) {
	prefix := filepath.Join(dir, fmt.Sprintf("page-%04d", page))
	n := strconv.Itoa(page)
	args := []string{"-r", strconv.Itoa(dpi), "-png", "-f", n, "-l", n, "-singlefile", pdfPath, prefix}
	if err := p.tool.Run(ctx, args, nil, nil); err != nil {
		return "", err
	}
	return prefix + ".png", nil
}

// tesseract recognizes with gosseract. In layout mode the page is emitted as
// Tesseract paragraph blocks separated by blank lines.
type tesseract struct {
	client *gosseract.Client
	layout bool
}

func newTesseract(cfg types.ConversionConfig) (recognizer, error) {
	c := gosseract.NewClient()
	lang := cfg.OCRLang
	if lang == "" {
		lang = DefaultOCRLang
	}
	if err := c.SetLanguage(strings.Split(lang, "+")...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(dpiOf(cfg))); err != nil {
		c.Close()
		return nil, fmt.Errorf("set dpi: %w", err)
	}
	return &tesseract{client: c, layout: cfg.OCRLayout}, nil
}

func (t *tesseract) Recognize(png []byte) (string, error) {
	if err := t.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if !t.layout {
		return t.client.Text()
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_PARA)
	if err != nil {
		return "", fmt.Errorf("paragraph boxes: %w", err)
	}
	paras := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if w := strings.TrimSpace(b.Word); w != "" {
			paras = append(paras, w)
		}
	}
	return strings.Join(paras, "\n\n"), nil
}

func (t *tesseract) Close() error { return t.client.Close() }

func dpiOf(cfg types.ConversionConfig) int {
	if cfg.DPI > 0 {
		return cfg.DPI
	}
	return DefaultDPI
}

// OCR rasterizes pages with a bounded render pool and feeds them to a single
// serial recognizer. Output is one "## Page N" section per page with text.
// When sections are selected the recognized lines are assembled into
// headed sections instead, falling back to pages when none is found.
type OCR struct {
	cfg           types.ConversionConfig
	renderer      pageRenderer
	newRecognizer func(types.ConversionConfig) (recognizer, error)
	pageCount     func(string) (int, error)
	stop          *trim.Matcher
	logger        *zap.Logger
}

// NewOCR returns the OCR backend rendering with the given pdftoppm tool.
func NewOCR(cfg types.ConversionConfig, tool *toolchain.Tool, logger *zap.Logger) *OCR {
	return &OCR{
		cfg:           cfg,
		renderer:      pdftoppm{tool: tool},
		newRecognizer: newTesseract,
		pageCount:     trim.PageCount,
		logger:        logger,
	}
}

func (o *OCR) Name() string { return BackendOCR }

func (o *OCR) Accepts(kind types.ContentKind) bool { return kind == types.KindPDF }

type renderedPage struct {
	page int
	path string
	err  error
}

func (o *OCR) Convert(ctx context.Context, in Input) Result {
	n, err := o.pageCount(in.Path)
	if err != nil {
		return Fail(types.ReasonInvalidFormat, err)
	}
	if n == 0 {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("%s has no pages", in.Path))
	}

	rec, err := o.newRecognizer(o.cfg)
	if err != nil {
		return Fail(types.ReasonUnavailable, err)
	}
	defer rec.Close()

	dir, err := os.MkdirTemp("", "paperfetch-ocr-*")
	if err != nil {
		return Fail(types.ReasonBackendError, err)
	}
	defer os.RemoveAll(dir)

	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make([]int, n)
	for i := range pages {
		pages[i] = i + 1
	}
	threads := o.cfg.RenderThreads
	if threads <= 0 {
		threads = workpool.AutoSize(4, 8)
	}

	ch := make(chan renderedPage, threads)
	go func() {
		defer close(ch)
		workpool.Map(renderCtx, threads, pages, func(ctx context.Context, _ int, page int) struct{} {
			path, err := o.renderer.RenderPage(ctx, in.Path, page, dpiOf(o.cfg), dir)
			ch <- renderedPage{page: page, path: path, err: err}
			return struct{}{}
		})
	}()

	texts := make([]string, n)
	var firstErr error
	for r := range ch {
		if firstErr != nil {
			continue
		}
		if r.err == nil {
			var data []byte
			if data, r.err = os.ReadFile(r.path); r.err == nil {
				texts[r.page-1], r.err = rec.Recognize(data)
			}
			os.Remove(r.path)
		}
		if r.err != nil {
			firstErr = fmt.Errorf("page %d: %w", r.page, r.err)
			cancel()
		}
	}
	if firstErr != nil {
		if ctx.Err() != nil {
			return Fail(types.ReasonTimeout, ctx.Err())
		}
		return Fail(types.ReasonBackendError, firstErr)
	}

	md := o.assemble(texts)
	if md == "" {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("no text recognized in %d pages", n))
	}
	o.logger.Debug("ocr complete", zap.String("file", filepath.Base(in.Path)), zap.Int("pages", n))
	return Success(md)
}

func (o *OCR) assemble(texts []string) string {
	if len(o.cfg.Sections) > 0 {
		var lines []string
		for _, t := range texts {
			lines = append(lines, strings.Split(t, "\n")...)
		}
		if md := trim.AssembleSections(lines, o.cfg.Sections, o.stop); md != "" {
			return md
		}
	}
	return pagesMarkdown(texts)
}

// pagesMarkdown renders page texts as "## Page N" sections, skipping pages
// without text.
func pagesMarkdown(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		fmt.Fprintf(&b, "## Page %d\n\n%s\n\n", i+1, t)
	}
	return b.String()
}

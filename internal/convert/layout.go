// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Heading thresholds relative to the dominant body font size.
const (
	h1Ratio       = 1.5
	h2Ratio       = 1.15
	maxHeadingLen = 120
)

// textLine is one visual row of a page with its largest font size.
type textLine struct {
	text string
	size float64
}

// Layout reconstructs headings and paragraphs from glyph positions and font
// sizes. Lines repeated on many pages (running headers, footers) are
// dropped.
type Layout struct {
	read func(path string) ([][]textLine, error)
}

// NewLayout returns the layout backend.
func NewLayout() *Layout { return &Layout{read: readRows} }

func (l *Layout) Name() string { return BackendLayout }

func (l *Layout) Accepts(kind types.ContentKind) bool { return kind == types.KindPDF }

func (l *Layout) Convert(_ context.Context, in Input) Result {
	pages, err := l.read(in.Path)
	if err != nil {
		return Fail(types.ReasonInvalidFormat, err)
	}
	md := layoutMarkdown(pages)
	if md == "" {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("no text layer in %s", in.Path))
	}
	return Success(md)
}

func readRows(path string) (pages [][]textLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, nil)
			continue
		}
		var lines []textLine
		for _, row := range trim.PageRows(p) {
			if ln := rowLine(row); ln.text != "" {
				lines = append(lines, ln)
			}
		}
		pages = append(pages, lines)
	}
	return pages, nil
}

// rowLine is the text of one row with its largest font size.
func rowLine(row []pdf.Text) textLine {
	var size float64
	for _, t := range row {
		size = math.Max(size, t.FontSize)
	}
	return textLine{text: trim.RowText(row), size: size}
}

var digits = regexp.MustCompile(`\d+`)

func noiseKey(s string) string {
	return strings.ToLower(strings.TrimSpace(digits.ReplaceAllString(s, "#")))
}

// bodySize is the font size carrying the most characters, rounded to half
// points.
func bodySize(pages [][]textLine) float64 {
	weight := map[float64]int{}
	for _, lines := range pages {
		for _, ln := range lines {
			weight[math.Round(ln.size*2)/2] += utf8.RuneCountInString(ln.text)
		}
	}
	var best float64
	for s, w := range weight {
		if w > weight[best] || (w == weight[best] && s < best) {
			best = s
		}
	}
	return best
}

// repeatedLines returns the normalized text of lines found on at least half
// of the pages. Documents shorter than three pages have none.
func repeatedLines(pages [][]textLine) map[string]bool {
	noise := map[string]bool{}
	if len(pages) < 3 {
		return noise
	}
	counts := map[string]int{}
	for _, lines := range pages {
		seen := map[string]bool{}
		for _, ln := range lines {
			k := noiseKey(ln.text)
			if k != "" && !seen[k] {
				seen[k] = true
				counts[k]++
			}
		}
	}
	threshold := len(pages) / 2
	if threshold < 3 {
		threshold = 3
	}
	for k, c := range counts {
		if c >= threshold {
			noise[k] = true
		}
	}
	return noise
}

func layoutMarkdown(pages [][]textLine) string {
	body := bodySize(pages)
	noise := repeatedLines(pages)

	var blocks []string
	var para []string
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, joinParagraph(para))
			para = nil
		}
	}
	for _, lines := range pages {
		for _, ln := range lines {
			if noise[noiseKey(ln.text)] {
				continue
			}
			if level := headingLevel(ln, body); level > 0 {
				flush()
				blocks = append(blocks, strings.Repeat("#", level)+" "+ln.text)
				continue
			}
			para = append(para, ln.text)
		}
		flush()
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func headingLevel(ln textLine, body float64) int {
	if body <= 0 || utf8.RuneCountInString(ln.text) > maxHeadingLen {
		return 0
	}
	switch {
	case ln.size >= body*h1Ratio:
		return 1
	case ln.size >= body*h2Ratio:
		return 2
	case trim.IsStopHeading(ln.text):
		return 2
	}
	return 0
}

// joinParagraph joins wrapped lines, rejoining words hyphenated across a
// line break.
func joinParagraph(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			prev := b.String()
			if strings.HasSuffix(prev, "-") && !strings.HasSuffix(prev, " -") {
				b.Reset()
				b.WriteString(strings.TrimSuffix(prev, "-"))
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(l)
	}
	return b.String()
}

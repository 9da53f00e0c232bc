// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trim

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PlainTextReader reads page text with ledongthuc/pdf.
type PlainTextReader struct{}

// PageTexts returns the text of the first limit pages (all pages when limit
// is 0), one visual row per line. Pages without content or whose text
// cannot be decoded yield an empty string so page indices stay aligned.
func (PlainTextReader) PageTexts(path string, limit int) (texts []string, total int, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	total = r.NumPage()
	n := total
	if limit > 0 && limit < n {
		n = limit
	}
	texts = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		var lines []string
		for _, row := range PageRows(p) {
			if s := RowText(row); s != "" {
				lines = append(lines, s)
			}
		}
		texts = append(texts, strings.Join(lines, "\n"))
	}
	return texts, total, nil
}

// PageRows groups the glyphs of p into visual rows, top to bottom, each
// ordered left to right. Glyphs whose baselines differ by less than
// rowTolerance of their font size share a row. Positions come from the
// full text state, so text placed with Td, TD, T* or Tm all lands on the
// right line.
func PageRows(p pdf.Page) [][]pdf.Text {
	var glyphs []pdf.Text
	for _, t := range p.Content().Text {
		if strings.TrimRight(t.S, "\r\n") == "" {
			continue
		}
		glyphs = append(glyphs, t)
	}
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].Y > glyphs[j].Y })

	var rows [][]pdf.Text
	var rowY float64
	for _, t := range glyphs {
		tol := math.Max(2, t.FontSize*rowTolerance)
		if len(rows) > 0 && math.Abs(rowY-t.Y) <= tol {
			rows[len(rows)-1] = append(rows[len(rows)-1], t)
			continue
		}
		rows = append(rows, []pdf.Text{t})
		rowY = t.Y
	}
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
	}
	return rows
}

const rowTolerance = 0.4

// RowText joins the glyphs of one row, inserting a space where the
// horizontal gap is wider than a fraction of the font size. Glyphs without
// width metrics are assumed half an em wide.
func RowText(row []pdf.Text) string {
	var b strings.Builder
	var end float64
	for i, t := range row {
		w := t.W
		if w <= 0 {
			w = float64(utf8.RuneCountInString(t.S)) * t.FontSize * 0.5
		}
		if i > 0 && t.X-end > t.FontSize*0.15 && t.S != " " && !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		end = t.X + w
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// PDFCPUWriter selects pages with pdfcpu.
type PDFCPUWriter struct{}

// KeepPages writes pages 1..n of in to out.
func (PDFCPUWriter) KeepPages(in, out string, n int) error {
	if n < 1 {
		n = 1
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.TrimFile(in, out, []string{fmt.Sprintf("1-%d", n)}, conf)
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package trimtest writes small PDFs with a real text layer for tests.
package trimtest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Line is one line of page text. Size is the font size in points; zero
// means 11.
type Line struct {
	Text string
	Size float64
}

// Lines turns plain strings into body-size lines.
func Lines(texts ...string) []Line {
	out := make([]Line, len(texts))
	for i, t := range texts {
		out[i] = Line{Text: t}
	}
	return out
}

// WritePDF writes a Letter-size PDF with one page per element of pages.
// Lines are set in Helvetica and positioned with relative Td moves, the
// way most typesetters emit them.
func WritePDF(path string, pages [][]Line) error {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, lines := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := content(lines)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func content(lines []Line) string {
	var b strings.Builder
	b.WriteString("BT\n72 720 Td\n")
	var prev float64
	for i, ln := range lines {
		size := ln.Size
		if size <= 0 {
			size = 11
		}
		if i > 0 {
			fmt.Fprintf(&b, "0 %.1f Td\n", -1.4*max(size, prev))
		}
		fmt.Fprintf(&b, "/F1 %.1f Tf\n(%s) Tj\n", size, escape(ln.Text))
		prev = size
	}
	b.WriteString("ET")
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}


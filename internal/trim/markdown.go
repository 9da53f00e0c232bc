// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trim

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TrimMarkdown cuts md before the first heading of one of levels whose text
// contains a keyword (case-insensitive). Headings inside code blocks are
// not considered. The input is returned unchanged when no heading matches.
func TrimMarkdown(md string, keywords []string, levels ...int) string {
	if md == "" || len(keywords) == 0 {
		return md
	}
	if len(levels) == 0 {
		levels = []int{1, 2}
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}

	src := []byte(md)
	root := goldmark.DefaultParser().Parse(text.NewReader(src))

	cut := -1
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		if !containsLevel(levels, h.Level) || h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		title := strings.ToLower(string(h.Text(src)))
		for _, k := range lower {
			if strings.Contains(title, k) {
				cut = lineStart(src, h.Lines().At(0).Start)
				return ast.WalkStop, nil
			}
		}
		return ast.WalkSkipChildren, nil
	})

	if cut < 0 {
		return md
	}
	return strings.TrimRight(md[:cut], " \t\r\n") + "\n"
}

func containsLevel(levels []int, l int) bool {
	for _, v := range levels {
		if v == l {
			return true
		}
	}
	return false
}

// lineStart returns the offset of the first byte of the line holding pos.
func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

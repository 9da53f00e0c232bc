// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// frontProbe bounds how far into the converted text the abstract heading is
// looked for.
const frontProbe = 4000

// toolRunner runs an external program. *toolchain.Tool implements it.
type toolRunner interface {
	Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error
}

// JATS converts JATS XML with pandoc. When pandoc drops the article front
// matter the title, author, article info and abstract block is rebuilt from
// the XML and prepended. With trimming on, the output is cut at the first
// H1 or H2 stop heading.
type JATS struct {
	pandoc   toolRunner
	keywords []string
	trim     bool
}

// NewJATS returns the pandoc JATS backend. keywords are the stop headings
// used when cfg.TrimMarkdown is set.
func NewJATS(pandoc toolRunner, cfg types.TrimConfig, keywords []string) *JATS {
	return &JATS{pandoc: pandoc, keywords: keywords, trim: cfg.TrimMarkdown}
}

func (j *JATS) Name() string { return BackendJATS }

func (j *JATS) Accepts(kind types.ContentKind) bool { return kind == types.KindXML }

func (j *JATS) Convert(ctx context.Context, in Input) Result {
	var out bytes.Buffer
	args := []string{"-f", "jats", "-t", "gfm", "--wrap=none", in.Path}
	if err := j.pandoc.Run(ctx, args, nil, &out); err != nil {
		if ctx.Err() != nil {
			return Fail(types.ReasonTimeout, err)
		}
		return Fail(types.ReasonBackendError, err)
	}
	md := out.String()
	if strings.TrimSpace(md) == "" {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("pandoc produced no output for %s", in.Path))
	}

	if missingFront(md) {
		if root, err := parseXMLFile(in.Path); err == nil {
			md = readFront(root).markdown() + md
		}
	}
	if j.trim {
		md = trim.TrimMarkdown(md, j.keywords)
	}
	return Success(md)
}

// missingFront reports whether md lacks a leading title or an early
// abstract section.
func missingFront(md string) bool {
	if !strings.HasPrefix(strings.TrimLeft(md, " \t\r\n"), "# ") {
		return true
	}
	head := md
	if len(head) > frontProbe {
		head = head[:frontProbe]
	}
	return !strings.Contains(head, "\n## Abstract\n")
}

// XMLStrip renders the title, abstract and section paragraphs of a JATS
// document without any external tool.
type XMLStrip struct{}

func (XMLStrip) Name() string { return BackendXMLStrip }

func (XMLStrip) Accepts(kind types.ContentKind) bool { return kind == types.KindXML }

func (XMLStrip) Convert(_ context.Context, in Input) Result {
	root, err := parseXMLFile(in.Path)
	if err != nil {
		return Fail(types.ReasonInvalidFormat, err)
	}
	md := stripMarkdown(root)
	if strings.TrimSpace(md) == "" {
		return Fail(types.ReasonEmptyOutput, fmt.Errorf("no text in %s", in.Path))
	}
	return Success(md)
}

func stripMarkdown(root *xmlNode) string {
	var b strings.Builder
	front := root.find("front")
	if front == nil {
		front = root
	}
	if t := front.findText("article-title"); t != "" {
		fmt.Fprintf(&b, "# %s\n\n", t)
	}
	if a := front.findText("abstract"); a != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", a)
	}

	body := root.find("body")
	secs := body.findAll("sec")
	if len(secs) == 0 && body != nil {
		secs = []*xmlNode{body}
	}
	for _, sec := range secs {
		if titles := sec.children("title"); len(titles) > 0 {
			if t := titles[0].text(); t != "" {
				fmt.Fprintf(&b, "## %s\n\n", t)
			}
		}
		for _, p := range sec.children("p") {
			if t := p.text(); t != "" {
				fmt.Fprintf(&b, "%s\n\n", t)
			}
		}
	}
	return b.String()
}

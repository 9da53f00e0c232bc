// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultMirrors are tried in order when no mirror list is configured.
var DefaultMirrors = []string{
	"https://sci-hub.se",
	"https://sci-hub.st",
	"https://sci-hub.ru",
}

// maxPageBytes bounds how much of a mirror landing page is parsed.
const maxPageBytes = 4 << 20

var hrefPattern = regexp.MustCompile(`location\.href\s*=\s*['"]([^'"]+)['"]`)

// pdfLinks extracts candidate PDF links from a mirror page, in heuristic
// order: the iframe with id "pdf", an embed of type application/pdf, then
// a button whose onclick assigns location.href. Links are resolved against
// base.
func pdfLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing mirror page: %w", err)
	}

	var iframe, embed, button string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "iframe":
				if iframe == "" && attr(n, "id") == "pdf" {
					iframe = attr(n, "src")
				}
			case "embed":
				if embed == "" && strings.EqualFold(attr(n, "type"), "application/pdf") {
					embed = attr(n, "src")
				}
			case "button":
				if button == "" {
					if m := hrefPattern.FindStringSubmatch(attr(n, "onclick")); m != nil {
						button = m[1]
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var links []string
	seen := map[string]bool{}
	for _, raw := range []string{iframe, embed, button} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}
	return links, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ErrNoPDFLink is returned when a mirror page carries no usable link.
var ErrNoPDFLink = errors.New("no PDF link on mirror page")

// fromMirror tries one mirror: it loads <mirror>/<key>, extracts candidate
// links and downloads the first one that is a PDF.
func (r *Retriever) fromMirror(ctx context.Context, mirror, key, dest string) error {
	pageURL := strings.TrimRight(mirror, "/") + "/" + key
	resp, err := fetch(ctx, r.client, pageURL, r.userAgent, "")
	if err != nil {
		return err
	}
	links, err := pdfLinks(io.LimitReader(resp.Body, maxPageBytes), resp.Request.URL)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return fmt.Errorf("%s: %w", mirror, ErrNoPDFLink)
	}

	var errs []error
	for _, link := range links {
		r.logger.Debug("mirror link", zap.String("mirror", mirror), zap.String("url", link))
		err := downloadFile(ctx, r.client, link, dest, r.userAgent, pdfMagic)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%s: %w", mirror, errors.Join(errs...))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trim

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxHeadingLen is the longest line still considered a section heading.
const maxHeadingLen = 80

// bodyWords mark lines that mention back-matter in running text, such as
// "Supplementary Table S1" or "see Figure 3 in the appendix".
var bodyWords = []string{"table", "figure", "movie", "video"}

// DefaultStopKeywords lists the back-matter headings that end the subject
// content of a paper.
var DefaultStopKeywords = []string{
	"reference", "references",
	"acknowledgement", "acknowledgements",
	"acknowledgment", "acknowledgments",
	"supplement", "supplemental", "supplementary",
	"supplementary material", "supplementary materials",
	"appendix", "appendices",
}

// headingPrefix allows a short run of numbering noise before the keyword:
// "7.", "IV -", "(a)" and similar.
const headingPrefix = `^[\s\(\)\[\]\-–—:,.0-9ivx]{0,8}\b(`

// headingSuffix allows trailing punctuation after the keyword.
const headingSuffix = `)\b[\s\-–—:,.]*$`

var defaultPattern = regexp.MustCompile(`(?i)` + headingPrefix +
	`references?|acknowledg(?:e)?ments?|` +
	`supplement(?:al|ary)(?:\s+materials?)?|` +
	`supplementary(?:\s+materials?)?|` +
	`appendix|appendices` +
	headingSuffix)

// Matcher decides whether a line of page text is a back-matter heading.
type Matcher struct {
	pattern  *regexp.Regexp
	keywords []string
}

// NewMatcher returns a Matcher for keywords. An empty list selects
// DefaultStopKeywords and the built-in heading pattern.
func NewMatcher(keywords []string) *Matcher {
	if len(keywords) == 0 {
		return &Matcher{pattern: defaultPattern, keywords: DefaultStopKeywords}
	}
	alts := make([]string, 0, len(keywords))
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		kept = append(kept, k)
		words := strings.Fields(k)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return NewMatcher(nil)
	}
	return &Matcher{
		pattern:  regexp.MustCompile(`(?i)` + headingPrefix + strings.Join(alts, "|") + headingSuffix),
		keywords: kept,
	}
}

// Keywords returns the lowercase keywords the matcher was built from.
func (m *Matcher) Keywords() []string {
	return m.keywords
}

// IsStopHeading reports whether line is a short standalone back-matter
// heading.
func (m *Matcher) IsStopHeading(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || utf8.RuneCountInString(t) > maxHeadingLen {
		return false
	}
	lower := strings.ToLower(t)
	for _, w := range bodyWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return m.pattern.MatchString(lower)
}

// PageHasStopHeading reports whether any line of a page is a stop heading.
func (m *Matcher) PageHasStopHeading(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if m.IsStopHeading(line) {
			return true
		}
	}
	return false
}

var defaultMatcher = NewMatcher(nil)

// IsStopHeading applies the default matcher.
func IsStopHeading(line string) bool {
	return defaultMatcher.IsStopHeading(line)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trim

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section names understood beyond the body sections.
const (
	SectionTitle   = "title"
	SectionAuthors = "authors"
)

// DefaultSections is the selection used for "default" in a section list.
var DefaultSections = []string{
	SectionTitle, SectionAuthors,
	"abstract", "introduction", "methods", "results", "discussion", "conclusion",
}

// sectionAliases maps a section name to the headings that introduce it.
// Names outside this table match headings equal to the name itself.
var sectionAliases = map[string][]string{
	"abstract":     {"abstract", "summary"},
	"introduction": {"introduction", "background"},
	"methods": {
		"methods", "method", "materials and methods", "methods and materials",
		"patients and methods", "experimental procedures", "star methods",
	},
	"results":    {"results", "result"},
	"discussion": {"discussion"},
	"conclusion": {"conclusion", "conclusions", "concluding remarks"},
}

// sectionOrder fixes the order known sections are probed in.
var sectionOrder = []string{"abstract", "introduction", "methods", "results", "discussion", "conclusion"}

var displayNames = map[string]string{
	"abstract":     "Abstract",
	"introduction": "Introduction",
	"methods":      "Methods",
	"results":      "Results",
	"discussion":   "Discussion",
	"conclusion":   "Conclusion",
}

// ParseSections normalizes a section list given as flag values. Values may
// be comma separated; "default" expands to DefaultSections. Duplicates are
// dropped. An empty result means no selection.
func ParseSections(values []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "default" {
				for _, d := range DefaultSections {
					add(d)
				}
				continue
			}
			add(s)
		}
	}
	return out
}

func aliasesOf(name string) []string {
	if a, ok := sectionAliases[name]; ok {
		return a
	}
	return []string{name}
}

// bodyNames drops title and authors from names.
func bodyNames(names []string) []string {
	var out []string
	for _, n := range names {
		if n != SectionTitle && n != SectionAuthors {
			out = append(out, n)
		}
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

var (
	numbering    = regexp.MustCompile(`^(?:[0-9]+(?:\.[0-9]+)*|[ivx]+|[a-h])[.):]?\s+`)
	headingNoise = regexp.MustCompile(`[\s*_#:.\-–—]+`)
)

// normalizeHeading lowercases a heading, strips leading numbering and
// collapses punctuation and whitespace runs into single spaces.
func normalizeHeading(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "*_# ")
	s = numbering.ReplaceAllString(s, "")
	return strings.TrimSpace(headingNoise.ReplaceAllString(s, " "))
}

// headingSection returns the first of names whose aliases appear as a
// whole phrase in a Markdown heading, or "".
func headingSection(heading string, names []string) string {
	h := normalizeHeading(heading)
	if h == "" || utf8.RuneCountInString(h) > maxHeadingLen {
		return ""
	}
	padded := " " + h + " "
	for _, n := range names {
		for _, a := range aliasesOf(n) {
			if strings.Contains(padded, " "+a+" ") {
				return n
			}
		}
	}
	return ""
}

// lineSection matches a line of plain text against names. Running text
// mentions section words freely, so a line only counts when it is the
// heading alone, a heading joined with "and" to another one, or a heading
// followed by a colon and inline content, which is returned as rest.
func lineSection(line string, names []string) (name, rest string) {
	t := strings.TrimSpace(line)
	if t == "" || utf8.RuneCountInString(t) > maxHeadingLen*2 {
		return "", ""
	}
	lower := strings.ToLower(t)
	if i := strings.IndexByte(lower, ':'); i > 0 {
		head := normalizeHeading(lower[:i])
		for _, n := range names {
			for _, a := range aliasesOf(n) {
				if head == a {
					return n, strings.TrimSpace(t[i+1:])
				}
			}
		}
	}
	if utf8.RuneCountInString(t) > maxHeadingLen {
		return "", ""
	}
	h := normalizeHeading(lower)
	for _, n := range names {
		for _, a := range aliasesOf(n) {
			if h == a || (strings.HasPrefix(h, a+" and ") && len(strings.Fields(h)) <= 6) {
				return n, ""
			}
		}
	}
	return "", ""
}

type mdHeading struct {
	level int
	start int
	end   int
	text  string
}

// KeepSections reduces converted Markdown to the named sections. A leading
// level-1 heading that names no section is the title. The section level is
// the shallowest level of a heading naming a known section; deeper headings
// stay with their section. "title" keeps the
// title heading and "authors" keeps the text between it and the first
// section. A stop heading at section level ends the document. When no
// named body section is found md is returned unchanged.
func KeepSections(md string, names []string, m *Matcher) string {
	body := bodyNames(names)
	if md == "" || len(body) == 0 {
		return md
	}
	if m == nil {
		m = defaultMatcher
	}

	src := []byte(md)
	root := goldmark.DefaultParser().Parse(text.NewReader(src))
	var hs []mdHeading
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(h.Lines().Len() - 1)
		hs = append(hs, mdHeading{
			level: h.Level,
			start: lineStart(src, h.Lines().At(0).Start),
			end:   seg.Stop,
			text:  string(h.Text(src)),
		})
	}
	if len(hs) == 0 {
		return md
	}

	known := append(append([]string(nil), sectionOrder...), body...)
	var title *mdHeading
	if hs[0].level == 1 && headingSection(hs[0].text, known) == "" {
		title = &hs[0]
		hs = hs[1:]
	}
	level := 0
	for _, h := range hs {
		if headingSection(h.text, known) != "" && (level == 0 || h.level < level) {
			level = h.level
		}
	}
	if level == 0 {
		return md
	}
	var sections []mdHeading
	for _, h := range hs {
		if h.level <= level {
			sections = append(sections, h)
		}
	}

	var parts []string
	if title != nil && contains(names, SectionTitle) {
		parts = append(parts, "# "+strings.TrimSpace(title.text))
	}
	if contains(names, SectionAuthors) {
		from := 0
		if title != nil {
			from = title.end
		}
		// A setext title leaves its underline behind.
		pre := strings.TrimLeft(strings.TrimSpace(md[from:sections[0].start]), "=")
		if pre = strings.TrimSpace(pre); pre != "" {
			parts = append(parts, pre)
		}
	}
	kept := 0
	for i, h := range sections {
		if m.IsStopHeading(h.text) {
			break
		}
		if headingSection(h.text, body) == "" {
			continue
		}
		end := len(md)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		parts = append(parts, strings.TrimSpace(md[h.start:end]))
		kept++
	}
	if kept == 0 {
		return md
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// preambleLines bounds the title and author search.
const preambleLines = 25

type lineHeading struct {
	name string
	line int
	rest string
}

// AssembleSections builds Markdown from plain text lines, such as OCR
// output, that carry no heading markup. Section headings are found as
// standalone lines; each section runs to the next heading found or to the
// first stop heading. The title is the longest line before the first
// section heading (searched within the first preambleLines lines) and
// author lines are those before it that list names. It returns "" when none
// of the named body sections is found.
func AssembleSections(lines []string, names []string, m *Matcher) string {
	body := bodyNames(names)
	if len(body) == 0 {
		return ""
	}
	if m == nil {
		m = defaultMatcher
	}

	var clean []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			clean = append(clean, l)
		}
	}

	known := append(append([]string(nil), sectionOrder...), body...)
	seen := map[string]bool{}
	var found []lineHeading
	end := len(clean)
	for i, l := range clean {
		if len(found) > 0 && m.IsStopHeading(l) {
			end = i
			break
		}
		name, rest := lineSection(l, known)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		found = append(found, lineHeading{name: name, line: i, rest: rest})
	}

	pre := min(preambleLines, len(clean))
	if len(found) > 0 {
		pre = min(pre, found[0].line)
	}

	var parts []string
	var title string
	for _, l := range clean[:pre] {
		if utf8.RuneCountInString(l) > utf8.RuneCountInString(title) {
			title = l
		}
	}
	if title != "" && contains(names, SectionTitle) {
		parts = append(parts, "# "+title)
	}
	if contains(names, SectionAuthors) {
		var authors []string
		for _, l := range clean[:pre] {
			if l == title || utf8.RuneCountInString(l) >= 200 {
				continue
			}
			if strings.Contains(l, ",") || strings.Contains(strings.ToLower(l), " and ") {
				authors = append(authors, l)
			}
		}
		if len(authors) > 0 {
			parts = append(parts, "**Authors**: "+strings.Join(authors, ", "))
		}
	}

	kept := 0
	for i, h := range found {
		if !contains(body, h.name) {
			continue
		}
		stop := end
		if i+1 < len(found) {
			stop = found[i+1].line
		}
		var seg []string
		if h.rest != "" {
			seg = append(seg, h.rest)
		}
		seg = append(seg, clean[h.line+1:stop]...)
		if len(seg) == 0 {
			continue
		}
		sep := "\n"
		if h.name == "abstract" {
			sep = " "
		}
		heading := displayNames[h.name]
		if heading == "" {
			heading = strings.ToUpper(h.name[:1]) + h.name[1:]
		}
		parts = append(parts, "## "+heading+"\n\n"+strings.Join(seg, sep))
		kept++
	}
	if kept == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

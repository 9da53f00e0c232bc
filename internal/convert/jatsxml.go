// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// xmlNode is a generic element tree. Inner keeps the raw markup so mixed
// content can be flattened in document order.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Inner    string     `xml:",innerxml"`
	Children []xmlNode  `xml:",any"`
}

func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.Entity = xml.HTMLEntity
	return d
}

func parseXMLFile(path string) (*xmlNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var root xmlNode
	if err := newDecoder(f).Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &root, nil
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// find returns the first descendant named name, depth first.
func (n *xmlNode) find(name string) *xmlNode {
	if n == nil {
		return nil
	}
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local == name {
			return c
		}
		if m := c.find(name); m != nil {
			return m
		}
	}
	return nil
}

// findAll returns every descendant named name in document order.
func (n *xmlNode) findAll(name string) []*xmlNode {
	if n == nil {
		return nil
	}
	var out []*xmlNode
	for i := range n.Children {
		c := &n.Children[i]
		if c.XMLName.Local == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// children returns the direct children named name.
func (n *xmlNode) children(name string) []*xmlNode {
	if n == nil {
		return nil
	}
	var out []*xmlNode
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			out = append(out, &n.Children[i])
		}
	}
	return out
}

// text flattens the element's character data with whitespace collapsed.
func (n *xmlNode) text() string {
	if n == nil {
		return ""
	}
	d := newDecoder(strings.NewReader(n.Inner))
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func (n *xmlNode) findText(name string) string { return n.find(name).text() }

// jatsFront is the bibliographic header of a JATS article.
type jatsFront struct {
	Title    string
	Authors  []string
	Journal  string
	Year     string
	Volume   string
	Issue    string
	FPage    string
	LPage    string
	DOI      string
	Abstract string
}

func readFront(root *xmlNode) jatsFront {
	scope := root.find("front")
	if scope == nil {
		scope = root
	}
	fr := jatsFront{
		Title:    scope.findText("article-title"),
		Journal:  scope.findText("journal-title"),
		Volume:   scope.findText("volume"),
		Issue:    scope.findText("issue"),
		FPage:    scope.findText("fpage"),
		LPage:    scope.findText("lpage"),
		Abstract: scope.findText("abstract"),
	}
	for _, c := range scope.findAll("contrib") {
		if t := c.attr("contrib-type"); t != "" && t != "author" {
			continue
		}
		if name := contribName(c); name != "" {
			fr.Authors = append(fr.Authors, name)
		}
	}
	for _, d := range scope.findAll("pub-date") {
		if d.attr("pub-type") == "ppub" {
			fr.Year = d.findText("year")
			break
		}
	}
	if fr.Year == "" {
		fr.Year = scope.findText("year")
	}
	for _, id := range scope.findAll("article-id") {
		if id.attr("pub-id-type") == "doi" {
			fr.DOI = id.text()
			break
		}
	}
	return fr
}

func contribName(c *xmlNode) string {
	if n := c.find("name"); n != nil {
		full := strings.TrimSpace(n.findText("given-names") + " " + n.findText("surname"))
		if full != "" {
			return full
		}
	}
	if s := c.findText("string-name"); s != "" {
		return s
	}
	return c.findText("collab")
}

// markdown renders the header block: title, authors, article info line and
// abstract, each only when present.
func (f jatsFront) markdown() string {
	var b strings.Builder
	if f.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", f.Title)
	}
	if len(f.Authors) > 0 {
		fmt.Fprintf(&b, "**Authors**: %s\n\n", strings.Join(f.Authors, ", "))
	}
	if info := f.info(); info != "" {
		fmt.Fprintf(&b, "**Article Info**: %s\n\n", info)
	}
	if f.Abstract != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", f.Abstract)
	}
	return b.String()
}

func (f jatsFront) info() string {
	var parts []string
	if f.Journal != "" {
		parts = append(parts, f.Journal)
	}
	if f.Year != "" {
		parts = append(parts, f.Year)
	}
	if f.Volume != "" {
		v := f.Volume
		if f.Issue != "" {
			v += "(" + f.Issue + ")"
		}
		parts = append(parts, v)
	}
	if f.FPage != "" {
		p := f.FPage
		if f.LPage != "" {
			p += "-" + f.LPage
		}
		parts = append(parts, p)
	}
	if f.DOI != "" {
		parts = append(parts, "DOI: "+f.DOI)
	}
	return strings.Join(parts, "; ")
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// titleWidth bounds the title shown in progress lines.
const titleWidth = 60

// object is a JSON object that keeps its keys in document order and its
// values as raw JSON, so manifests round-trip without reformatting numbers
// or reordering fields.
type object struct {
	keys []string
	vals map[string]json.RawMessage
}

func newObject() *object {
	return &object{vals: map[string]json.RawMessage{}}
}

func parseObject(data []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not a JSON object")
	}
	o := newObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := o.vals[key]; !dup {
			o.keys = append(o.keys, key)
		}
		o.vals[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *object) get(key string) (json.RawMessage, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// set stores v, marshalling it unless it is already raw JSON.
func (o *object) set(key string, v any) error {
	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		var buf bytes.Buffer
		if err := json.Compact(&buf, x); err != nil {
			return err
		}
		raw = buf.Bytes()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = raw
	return nil
}

// isObject reports whether key holds a JSON object.
func (o *object) isObject(key string) bool {
	v, ok := o.vals[key]
	return ok && bytes.HasPrefix(bytes.TrimSpace(v), []byte("{"))
}

// str returns a string or number field as text.
func (o *object) str(key string) string {
	v, ok := o.vals[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if dec.Decode(&n) == nil {
		return n.String()
	}
	return ""
}

func (o *object) clone() *object {
	c := &object{keys: append([]string(nil), o.keys...), vals: make(map[string]json.RawMessage, len(o.vals))}
	for k, v := range o.vals {
		c.vals[k] = v
	}
	return c
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(o.vals[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Manifest is an input paper list. Every top-level field is kept so the
// output manifest can inherit them.
type Manifest struct {
	// Path is the file the manifest was read from.
	Path string

	top    *object
	papers []*object
}

// ReadManifest parses the JSON manifest at path. A missing papers field is
// an empty list.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	top, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	m := &Manifest{Path: path, top: top}
	raw, ok := top.get("papers")
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return m, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: papers: %w", path, err)
	}
	for i, item := range items {
		p, err := parseObject(item)
		if err != nil {
			return nil, fmt.Errorf("parsing manifest %s: paper %d: %w", path, i+1, err)
		}
		m.papers = append(m.papers, p)
	}
	return m, nil
}

// Len returns the number of papers.
func (m *Manifest) Len() int { return len(m.papers) }

// Stem returns the manifest filename without its extension.
func (m *Manifest) Stem() string {
	base := filepath.Base(m.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Jobs builds one DocumentJob per paper, indexed from 1, with artifacts
// under outDir.
func (m *Manifest) Jobs(outDir string) []types.DocumentJob {
	jobs := make([]types.DocumentJob, len(m.papers))
	for i, p := range m.papers {
		ids := types.Identifiers{
			DOI:   p.str("doi"),
			PMID:  p.str("pmid"),
			PMCID: p.str("pmcid"),
			URL:   p.str("url"),
		}
		jobs[i] = types.NewDocumentJob(i+1, ids, shortTitle(p.str("title")), outDir)
	}
	return jobs
}

func shortTitle(title string) string {
	if title == "" {
		return "Unknown"
	}
	r := []rune(title)
	if len(r) > titleWidth {
		return string(r[:titleWidth])
	}
	return title
}

// output renders the manifest with papers replaced by succeeded, which
// maps a job index to its enriched record. Records are emitted in job
// order. meta.total is updated when present.
func (m *Manifest) output(succeeded map[int]*object) ([]byte, error) {
	out := m.top.clone()

	papers := make([]*object, 0, len(succeeded))
	for i := range m.papers {
		if p, ok := succeeded[i+1]; ok {
			papers = append(papers, p)
		}
	}
	if err := out.set("papers", papers); err != nil {
		return nil, err
	}

	if out.isObject("meta") {
		raw, _ := out.get("meta")
		meta, err := parseObject(raw)
		if err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		if _, ok := meta.get("total"); ok {
			if err := meta.set("total", len(papers)); err != nil {
				return nil, err
			}
			if err := out.set("meta", meta); err != nil {
				return nil, err
			}
		}
	}

	compact, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writeFileAtomic writes data through a temp file in the target directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

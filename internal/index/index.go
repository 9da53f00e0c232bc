// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index maintains the DOI index: a JSON file in the output
// directory mapping normalized DOIs to the Markdown files already produced
// for them. Every entry points to an existing file; stale entries are
// dropped when the index is loaded or queried.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the index file inside the output directory.
const FileName = "doi_index"

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

var lineBreaks = strings.NewReplacer("\n", " ", "\r", " ")

// NormalizeDOI lower-cases doi and strips one resolver prefix.
func NormalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(lineBreaks.Replace(doi)))
	for _, p := range doiPrefixes {
		if strings.HasPrefix(d, p) {
			return strings.TrimSpace(d[len(p):])
		}
	}
	return d
}

// Index is an in-memory DOI index bound to an output directory. It is not
// safe for concurrent mutation; the batch reads it concurrently only after
// loading.
type Index struct {
	dir     string
	entries map[string]string
}

// Path returns the index file path for dir.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Load reads the index in dir and drops entries whose file is missing. A
// missing index file yields an empty index.
func Load(dir string) (*Index, error) {
	ix := &Index{dir: dir, entries: map[string]string{}}
	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, os.ErrNotExist) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	for doi, md := range raw {
		if k := NormalizeDOI(doi); k != "" && md != "" {
			ix.entries[k] = md
		}
	}
	ix.Reconcile()
	return ix, nil
}

// Reconcile removes entries whose Markdown file no longer exists and
// returns how many were removed.
func (ix *Index) Reconcile() int {
	removed := 0
	for doi, md := range ix.entries {
		if !ix.exists(md) {
			delete(ix.entries, doi)
			removed++
		}
	}
	return removed
}

func (ix *Index) exists(md string) bool {
	info, err := os.Stat(filepath.Join(ix.dir, md))
	return err == nil && !info.IsDir()
}

// Lookup returns the Markdown file recorded for doi when that file still
// exists.
func (ix *Index) Lookup(doi string) (string, bool) {
	k := NormalizeDOI(doi)
	if k == "" {
		return "", false
	}
	md, ok := ix.entries[k]
	if !ok || !ix.exists(md) {
		return "", false
	}
	return md, true
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// DOIs returns the indexed DOIs in sorted order.
func (ix *Index) DOIs() []string {
	out := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// manifest is the subset of a manifest the index reads.
type manifest struct {
	Papers []struct {
		DOI    string `json:"doi"`
		MDFile string `json:"md_file"`
	} `json:"papers"`
}

// Scan builds an index from every *.json manifest in dir, keeping each
// paper whose md_file exists. Files that are not manifests are ignored.
func Scan(dir string) (*Index, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	ix := &Index{dir: dir, entries: map[string]string{}}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var m manifest
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		for _, paper := range m.Papers {
			k := NormalizeDOI(paper.DOI)
			if k == "" || paper.MDFile == "" || !ix.exists(paper.MDFile) {
				continue
			}
			ix.entries[k] = paper.MDFile
		}
	}
	return ix, nil
}

// Rebuild replaces the index file in dir with the result of Scan.
func Rebuild(dir string) (*Index, error) {
	ix, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	return ix, ix.Save()
}

// Merge adds the entries of other, overriding existing ones.
func (ix *Index) Merge(other *Index) {
	for k, v := range other.entries {
		ix.entries[k] = v
	}
}

// Save writes the index as indented JSON through a temp file and rename.
func (ix *Index) Save() error {
	data, err := json.MarshalIndent(ix.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(ix.dir, ".doi_index-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), Path(ix.dir)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving %s: %w", FileName, err)
	}
	return nil
}

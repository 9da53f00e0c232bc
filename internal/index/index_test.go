// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	tests := map[string]string{
		"10.1038/ABC":                   "10.1038/abc",
		" https://doi.org/10.1/X ":      "10.1/x",
		"http://dx.doi.org/10.2/y":      "10.2/y",
		"DOI:10.3/z":                    "10.3/z",
		"10.4/line\nbreak":              "10.4/line break",
		"https://doi.org/doi:10.5/once": "doi:10.5/once",
		"":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDOI(in), "%q", in)
	}
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("# md"), 0o644))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadMissingIsEmpty(t *testing.T) {
	ix, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, ix.Len())
}

func TestLoadReconciles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.md")
	writeJSON(t, Path(dir), map[string]string{
		"https://doi.org/10.1/A": "a.md",
		"10.1/gone":              "gone.md",
	})

	ix, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1/a"}, ix.DOIs())

	md, ok := ix.Lookup("10.1/A")
	assert.True(t, ok)
	assert.Equal(t, "a.md", md)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	_, ok = ix.Lookup("10.1/a")
	assert.False(t, ok)
	assert.Equal(t, 1, ix.Reconcile())
	assert.Zero(t, ix.Len())
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("{not json"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestRebuildScansAllManifests(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.md")
	touch(t, dir, "two.md")

	writeJSON(t, filepath.Join(dir, "run1.json"), map[string]any{
		"meta": map[string]any{"total": 2},
		"papers": []map[string]any{
			{"doi": "10.1/ONE", "md_file": "one.md"},
			{"doi": "10.1/stale", "md_file": "deleted.md"},
		},
	})
	writeJSON(t, filepath.Join(dir, "run2.json"), map[string]any{
		"papers": []map[string]any{
			{"doi": "doi:10.1/two", "md_file": "two.md"},
			{"pmid": "123", "md_file": "two.md"},
		},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("[1,2]"), 0o644))
	writeJSON(t, Path(dir), map[string]string{"10.9/old": "one.md"})

	ix, err := Rebuild(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1/one", "10.1/two"}, ix.DOIs())

	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"10.1/one\": \"one.md\",\n  \"10.1/two\": \"two.md\"\n}\n", string(data))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ix.DOIs(), reloaded.DOIs())
}

func TestScanMergesIntoLoaded(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.md")
	touch(t, dir, "b.md")
	writeJSON(t, Path(dir), map[string]string{"10.1/a": "a.md"})
	writeJSON(t, filepath.Join(dir, "m.json"), map[string]any{
		"papers": []map[string]any{{"doi": "10.1/B", "md_file": "b.md"}},
	})

	ix, err := Load(dir)
	require.NoError(t, err)
	scanned, err := Scan(dir)
	require.NoError(t, err)
	ix.Merge(scanned)
	assert.Equal(t, []string{"10.1/a", "10.1/b"}, ix.DOIs())

	_, err = os.Stat(filepath.Join(dir, "m.json"))
	require.NoError(t, err)
	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "10.1/b", "Scan does not write")
}

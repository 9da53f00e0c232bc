// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API tokens and contact details from a directory of
// plain-text files. Each file in the directory represents one secret: the
// filename is the key name and the file contents (trimmed) are the value.
//
// Supported key files: mineru-api-token, mineru-api-token-1 through
// mineru-api-token-4, ncbi-email.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key file names.
const (
	KeyMinerUToken = "mineru-api-token"
	KeyNCBIEmail   = "ncbi-email"
)

// MaxExtraTokens is the number of numbered token slots after the primary.
const MaxExtraTokens = 4

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// TokenKeys returns the names of the token slots in rotation order. prefix
// is the primary name; numbered slots append -1 to -4.
func TokenKeys(prefix string) []string {
	keys := []string{prefix}
	for i := 1; i <= MaxExtraTokens; i++ {
		keys = append(keys, fmt.Sprintf("%s-%d", prefix, i))
	}
	return keys
}

// Tokens collects the distinct non-empty values of the token slots from
// each source in turn. Earlier sources win; duplicates are dropped so a
// token shared between slots is not rotated twice.
func Tokens(keys []string, sources ...func(string) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, src := range sources {
		for _, k := range keys {
			v := strings.TrimSpace(src(k))
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

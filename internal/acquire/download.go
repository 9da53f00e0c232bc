// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// pdfMagic is the signature every accepted PDF begins with.
var pdfMagic = []byte("%PDF")

// ErrNotPDF is returned when a downloaded document lacks the PDF signature.
var ErrNotPDF = errors.New("response is not a PDF")

// fetch issues a GET and returns the response when the status is 200.
func fetch(ctx context.Context, client *http.Client, url, userAgent, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return resp, nil
}

// downloadFile fetches url to destPath through a temporary file in the same
// directory. When magic is non-nil the body must begin with it. On any
// error, including cancellation, the temporary file is removed and destPath
// is left untouched.
func downloadFile(ctx context.Context, client *http.Client, url, destPath, userAgent string, magic []byte) error {
	accept := ""
	if magic != nil {
		accept = "application/pdf"
	}
	resp, err := fetch(ctx, client, url, userAgent, accept)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := bufio.NewReader(resp.Body)
	if magic != nil {
		head, _ := body.Peek(len(magic))
		if !bytes.Equal(head, magic) {
			return fmt.Errorf("%s: %w", url, ErrNotPDF)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return writeAtomic(destPath, body)
}

// writeAtomic copies r into path via a temp file and rename.
func writeAtomic(path string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

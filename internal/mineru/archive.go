// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mineru

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var zipMagic = []byte("PK\x03\x04")

// harvest downloads a result archive and returns its primary Markdown.
// Download and archive errors are retried; an archive without Markdown is
// not.
func (c *Client) harvest(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= harvestAttempts; attempt++ {
		md, err := c.harvestOnce(ctx, url)
		if err == nil {
			return md, nil
		}
		if errors.Is(err, ErrNoMarkdown) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		c.logger.Debug("mineru archive download failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < harvestAttempts {
			if err := sleep(ctx, HarvestRetryDelay*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

func (c *Client) harvestOnce(ctx context.Context, url string) (string, error) {
	tmp, err := os.CreateTemp("", "mineru-*.zip")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := c.download(ctx, url, tmp); err != nil {
		return "", err
	}
	return readMarkdown(tmp.Name())
}

func (c *Client) download(ctx context.Context, url string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout(0))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.transfer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d downloading archive", resp.StatusCode)
	}

	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(resp.Body, head)
	if err != nil || !bytes.Equal(head[:n], zipMagic) {
		return fmt.Errorf("%w: bad signature", ErrBadArchive)
	}
	if _, err := w.Write(head); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// readMarkdown opens the zip at path and returns the .md entry with the
// fewest path segments, ties broken by the shortest name.
func readMarkdown(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer zr.Close()

	var candidates []*zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".md") && !f.FileInfo().IsDir() {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoMarkdown
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := strings.Count(candidates[i].Name, "/"), strings.Count(candidates[j].Name, "/")
		if di != dj {
			return di < dj
		}
		return len(candidates[i].Name) < len(candidates[j].Name)
	})

	rc, err := candidates[0].Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

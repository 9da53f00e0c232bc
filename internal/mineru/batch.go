// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mineru

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paperfetch/internal/ratelimit"
)

// uploadConcurrency bounds parallel PUTs within one batch.
const uploadConcurrency = 4

// Item states reported by the service.
const (
	stateDone   = "done"
	stateFailed = "failed"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type submitFile struct {
	Name   string `json:"name"`
	DataID string `json:"data_id"`
}

type submitRequest struct {
	Files        []submitFile `json:"files"`
	ModelVersion string       `json:"model_version"`
}

type submitData struct {
	BatchID  string   `json:"batch_id"`
	FileURLs []string `json:"file_urls"`
}

type extractResult struct {
	FileName   string `json:"file_name"`
	DataID     string `json:"data_id"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

type pollData struct {
	BatchID       string          `json:"batch_id"`
	ExtractResult []extractResult `json:"extract_result"`
}

// ConvertFile converts a single document. It is ConvertBatch with one file.
func (c *Client) ConvertFile(ctx context.Context, token string, f File) (string, error) {
	results, err := c.ConvertBatch(ctx, token, []File{f})
	if err != nil {
		return "", err
	}
	return results[0].Markdown, results[0].Err
}

// ConvertBatch submits files as one batch under token and returns one result
// per file in input order. A returned error means the whole batch failed
// (rejected credential, submission or upload failure). Items the service
// fails, or that are still pending at the poll deadline, carry their own
// error in ItemResult.Err.
func (c *Client) ConvertBatch(ctx context.Context, token string, files []File) ([]ItemResult, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if token == "" || c.Revoked(token) {
		return nil, ErrUnauthorized
	}

	batchID, urls, err := c.submit(ctx, token, files)
	if err != nil {
		return nil, err
	}
	c.logger.Info("mineru batch submitted",
		zap.String("batch_id", batchID), zap.Int("files", len(files)))

	if err := c.uploadAll(ctx, files, urls); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	states, err := c.poll(ctx, token, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	results := make([]ItemResult, len(files))
	for i, f := range files {
		results[i] = ItemResult{DataID: f.DataID, Name: f.Name()}
		st, ok := states[f.DataID]
		if !ok {
			st, ok = states[f.Name()]
		}
		switch {
		case !ok || (st.State != stateDone && st.State != stateFailed):
			results[i].Err = ErrDeadline
		case st.State == stateFailed:
			results[i].Err = fmt.Errorf("%w: %s", ErrItemFailed, st.ErrMsg)
		case st.FullZipURL == "":
			results[i].Err = fmt.Errorf("%w: missing archive url", ErrBadArchive)
		default:
			results[i].Markdown, results[i].Err = c.harvest(ctx, st.FullZipURL)
		}
		if results[i].Err != nil {
			c.logger.Warn("mineru item failed",
				zap.String("batch_id", batchID),
				zap.String("file", f.Name()),
				zap.Error(results[i].Err))
		}
	}
	return results, nil
}

func (c *Client) newAPIRequest(ctx context.Context, method, path, token string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doAPI executes req and decodes the response envelope into out.
func (c *Client) doAPI(req *http.Request, token string, out any) error {
	resp, err := c.api.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.revoke(token)
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrRejected, env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, token string, files []File) (string, []string, error) {
	payload := submitRequest{ModelVersion: c.modelVersion}
	for _, f := range files {
		id := f.DataID
		if id == "" {
			id = f.Name()
		}
		payload.Files = append(payload.Files, submitFile{Name: f.Name(), DataID: id})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	if err := c.limiter.Wait(ctx, ratelimit.ClassSubmit, token); err != nil {
		return "", nil, err
	}
	req, err := c.newAPIRequest(ctx, http.MethodPost, "/api/v4/file-urls/batch", token, body)
	if err != nil {
		return "", nil, err
	}
	var data submitData
	if err := c.doAPI(req, token, &data); err != nil {
		return "", nil, fmt.Errorf("submitting batch: %w", err)
	}
	if data.BatchID == "" {
		return "", nil, fmt.Errorf("submitting batch: %w: empty batch id", ErrRejected)
	}
	if len(data.FileURLs) != len(files) {
		return "", nil, fmt.Errorf("submitting batch: %w: %d upload urls for %d files",
			ErrRejected, len(data.FileURLs), len(files))
	}
	return data.BatchID, data.FileURLs, nil
}

func (c *Client) uploadAll(ctx context.Context, files []File, urls []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := c.upload(gctx, f, urls[i]); err != nil {
				return fmt.Errorf("uploading %s: %w", f.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) upload(ctx context.Context, f File, url string) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout(info.Size()))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, fh)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()

	resp, err := c.transfer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// poll queries the batch until every item is terminal or the poll deadline
// passes. It returns the last seen state of each item keyed by data ID and
// by file name. Transient poll errors are logged and retried; a rejected
// credential ends polling.
func (c *Client) poll(ctx context.Context, token, batchID string) (map[string]extractResult, error) {
	deadline := time.Now().Add(c.pollDeadline)
	states := make(map[string]extractResult)

	for {
		if err := c.limiter.Wait(ctx, ratelimit.ClassPoll, token); err != nil {
			return nil, err
		}
		req, err := c.newAPIRequest(ctx, http.MethodGet, "/api/v4/extract-results/batch/"+batchID, token, nil)
		if err != nil {
			return nil, err
		}
		var data pollData
		err = c.doAPI(req, token, &data)
		switch {
		case err == nil:
			for _, r := range data.ExtractResult {
				if r.DataID != "" {
					states[r.DataID] = r
				}
				if r.FileName != "" {
					states[r.FileName] = r
				}
			}
			if len(data.ExtractResult) > 0 && allTerminal(data.ExtractResult) {
				return states, nil
			}
		case errors.Is(err, ErrUnauthorized):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			c.logger.Warn("mineru poll failed", zap.String("batch_id", batchID), zap.Error(err))
		}

		if !time.Now().Add(c.pollInterval).Before(deadline) {
			c.logger.Warn("mineru poll deadline reached", zap.String("batch_id", batchID))
			return states, nil
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
}

func allTerminal(results []extractResult) bool {
	for _, r := range results {
		if r.State != stateDone && r.State != stateFailed {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

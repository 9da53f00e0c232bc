// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// openAlexResponse captures the fields we need from an OpenAlex work record.
type openAlexResponse struct {
	BestOALocation *openAlexLocation `json:"best_oa_location"`
}

type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// resolveOpenAlex returns the open-access PDF URL OpenAlex records for doi,
// or "" when there is none.
func (r *Retriever) resolveOpenAlex(ctx context.Context, doi string) (string, error) {
	apiURL := openAlexAPIBase + "https://doi.org/" + doi
	if r.cfg.ContactEmail != "" {
		apiURL += "?mailto=" + url.QueryEscape(r.cfg.ContactEmail)
	}

	resp, err := fetch(ctx, r.client, apiURL, r.userAgent, "application/json")
	if err != nil {
		return "", fmt.Errorf("OpenAlex API: %w", err)
	}
	defer resp.Body.Close()

	var oa openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return "", fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	if oa.BestOALocation == nil {
		return "", nil
	}
	return oa.BestOALocation.PDFURL, nil
}

// fromOpenAlex downloads the OpenAlex open-access PDF for doi.
func (r *Retriever) fromOpenAlex(ctx context.Context, doi, dest string) error {
	pdfURL, err := r.resolveOpenAlex(ctx, doi)
	if err != nil {
		return err
	}
	if pdfURL == "" {
		return fmt.Errorf("OpenAlex: no open-access PDF for %s", doi)
	}
	return downloadFile(ctx, r.client, pdfURL, dest, r.userAgent, pdfMagic)
}

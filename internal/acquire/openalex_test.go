// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/pkg/types"
)

const sampleOpenAlexOA = `{
  "id": "https://openalex.org/W1234567890",
  "doi": "https://doi.org/10.1145/1234567.1234568",
  "best_oa_location": {
    "pdf_url": "https://example.com/oa-paper.pdf",
    "landing_page_url": "https://example.com/paper-landing"
  }
}`

const sampleOpenAlexNoOA = `{
  "id": "https://openalex.org/W9999999999",
  "doi": "https://doi.org/10.1145/9999999",
  "best_oa_location": null
}`

const sampleOpenAlexNoPDF = `{
  "id": "https://openalex.org/W1111111111",
  "doi": "https://doi.org/10.1145/1111111",
  "best_oa_location": {
    "pdf_url": "",
    "landing_page_url": "https://example.com/landing-only"
  }
}`

func testConfig() types.AcquisitionConfig {
	return types.AcquisitionConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "paperfetch-test/0.1",
		},
		ContactEmail: "lab@example.org",
	}
}

func TestResolveOpenAlex(t *testing.T) {
	tests := []struct {
		name       string
		doi        string
		response   string
		statusCode int
		wantURL    string
		wantErr    bool
	}{
		{
			name:       "OA PDF available",
			doi:        "10.1145/1234567.1234568",
			response:   sampleOpenAlexOA,
			statusCode: http.StatusOK,
			wantURL:    "https://example.com/oa-paper.pdf",
		},
		{
			name:       "no OA location",
			doi:        "10.1145/9999999",
			response:   sampleOpenAlexNoOA,
			statusCode: http.StatusOK,
		},
		{
			name:       "OA location but no PDF URL",
			doi:        "10.1145/1111111",
			response:   sampleOpenAlexNoPDF,
			statusCode: http.StatusOK,
		},
		{
			name:       "API returns 404",
			doi:        "10.1145/nonexistent",
			response:   `{"error": "not found"}`,
			statusCode: http.StatusNotFound,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.response)
			}))
			defer ts.Close()

			origBase := openAlexAPIBase
			openAlexAPIBase = ts.URL + "/"
			defer func() { openAlexAPIBase = origBase }()

			r := newRetriever(ts.Client(), testConfig(), nil)
			got, err := r.resolveOpenAlex(context.Background(), tt.doi)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got)
			assert.Equal(t, "mailto=lab%40example.org", gotQuery)
		})
	}
}

func TestResolveOpenAlexNetworkError(t *testing.T) {
	origBase := openAlexAPIBase
	openAlexAPIBase = "http://127.0.0.1:1/"
	defer func() { openAlexAPIBase = origBase }()

	r := newRetriever(http.DefaultClient, testConfig(), nil)
	_, err := r.resolveOpenAlex(context.Background(), "10.1145/1234567")
	assert.Error(t, err)
}

func TestFetchPDFFallsBackToOpenAlex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mirror/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})
	mux.HandleFunc("/openalex/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"best_oa_location":{"pdf_url":"http://%s/oa.pdf"}}`, r.Host)
	})
	mux.HandleFunc("/oa.pdf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 open access")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	origBase := openAlexAPIBase
	openAlexAPIBase = ts.URL + "/openalex/"
	defer func() { openAlexAPIBase = origBase }()

	cfg := testConfig()
	cfg.Mirrors = []string{ts.URL + "/mirror"}
	cfg.UseOpenAlex = true
	r := newRetriever(ts.Client(), cfg, nil)

	job := types.NewDocumentJob(1, types.Identifiers{DOI: "10.1000/oa"}, "", t.TempDir())
	got, err := r.FetchPDF(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "openalex", got.Source)

	data, err := os.ReadFile(filepath.Clean(job.PDFPath))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 open access", string(data))
}

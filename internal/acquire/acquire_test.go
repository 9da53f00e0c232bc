// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/paperfetch/pkg/types"
)

const pdfBody = "%PDF-1.5\nfake body"

func buildTGZ(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range order {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// pmcServer serves the ID converter, the OA service and one package.
func pmcServer(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	pkg := buildTGZ(t, map[string]string{
		"PMC999/fig1.jpg":      "jpeg",
		"PMC999/article.nxml":  "<article><front/></article>",
		"PMC999/supp/data.xml": "<other/>",
	}, []string{"PMC999/fig1.jpg", "PMC999/article.nxml", "PMC999/supp/data.xml"})

	mux.HandleFunc("/idconv", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "lab@example.org", q.Get("email"))
		switch q.Get("idtype") + ":" + q.Get("ids") {
		case "doi:10.1000/abc":
			fmt.Fprint(w, `{"status":"ok","records":[{"doi":"10.1000/abc","pmid":12345}]}`)
		case "pmid:12345":
			fmt.Fprint(w, `{"status":"ok","records":[{"pmid":"12345","pmcid":"PMC999"}]}`)
		case "doi:10.1000/direct":
			fmt.Fprint(w, `{"status":"ok","records":[{"pmcid":"PMC999"}]}`)
		default:
			fmt.Fprint(w, `{"status":"ok","records":[]}`)
		}
	})
	mux.HandleFunc("/oa", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "PMC999" {
			fmt.Fprint(w, `<OA><error code="idDoesNotExist">unknown id</error></OA>`)
			return
		}
		fmt.Fprintf(w, `<OA><records returned-count="1"><record id="PMC999"><link format="tgz" href="http://%s/pkg/PMC999.tar.gz"/></record></records></OA>`, r.Host)
	})
	mux.HandleFunc("/pkg/PMC999.tar.gz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pkg)
	})
}

func useEndpoints(t *testing.T, base string) {
	t.Helper()
	origConv, origOA, origAlex := idConverterURL, oaServiceURL, openAlexAPIBase
	idConverterURL = base + "/idconv"
	oaServiceURL = base + "/oa"
	openAlexAPIBase = base + "/openalex/"
	t.Cleanup(func() {
		idConverterURL, oaServiceURL, openAlexAPIBase = origConv, origOA, origAlex
	})
}

func TestFetchXMLViaDOIThenPMID(t *testing.T) {
	mux := http.NewServeMux()
	pmcServer(t, mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	useEndpoints(t, ts.URL)

	r := newRetriever(ts.Client(), testConfig(), zaptest.NewLogger(t))
	for _, doi := range []string{"10.1000/abc", "10.1000/direct"} {
		job := types.NewDocumentJob(1, types.Identifiers{DOI: doi}, "", t.TempDir())
		got, err := r.FetchXML(context.Background(), job)
		require.NoError(t, err, doi)
		assert.Equal(t, types.KindXML, got.Kind)
		assert.Equal(t, "pmc:PMC999", got.Source)

		data, err := os.ReadFile(job.XMLPath)
		require.NoError(t, err)
		assert.Equal(t, "<article><front/></article>", string(data))

		entries, err := os.ReadDir(filepath.Dir(job.XMLPath))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp package must be removed")
	}
}

func TestFetchXMLNotInPMC(t *testing.T) {
	mux := http.NewServeMux()
	pmcServer(t, mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	useEndpoints(t, ts.URL)

	r := newRetriever(ts.Client(), testConfig(), nil)
	job := types.NewDocumentJob(1, types.Identifiers{PMID: "777"}, "", t.TempDir())
	_, err := r.FetchXML(context.Background(), job)
	assert.ErrorIs(t, err, ErrNotInPMC)

	job = types.NewDocumentJob(1, types.Identifiers{PMCID: "PMC1"}, "", t.TempDir())
	_, err = r.FetchXML(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoPackage)

	job = types.NewDocumentJob(1, types.Identifiers{URL: "https://example.com/x.pdf"}, "", t.TempDir())
	_, err = r.FetchXML(context.Background(), job)
	assert.ErrorIs(t, err, ErrNotInPMC)
}

func TestPackageURLRewritesFTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<OA><records><record id="PMC5"><link format="pdf" href="ftp://ftp.ncbi.nlm.nih.gov/a.pdf"/><link format="tgz" href="ftp://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_package/aa/bb/PMC5.tar.gz"/></record></records></OA>`)
	}))
	defer ts.Close()
	useEndpoints(t, ts.URL)

	r := newRetriever(ts.Client(), testConfig(), nil)
	got, err := r.packageURL(context.Background(), "PMC5")
	require.NoError(t, err)
	assert.Equal(t, "https://ftp.ncbi.nlm.nih.gov/pub/pmc/oa_package/aa/bb/PMC5.tar.gz", got)
}

func TestExtractArticleNoXML(t *testing.T) {
	dir := t.TempDir()
	tgz := filepath.Join(dir, "p.tar.gz")
	require.NoError(t, os.WriteFile(tgz, buildTGZ(t, map[string]string{"a.jpg": "x"}, []string{"a.jpg"}), 0o644))
	err := extractArticle(tgz, filepath.Join(dir, "out.xml"))
	assert.ErrorIs(t, err, ErrNoArticleXML)
	assert.NoFileExists(t, filepath.Join(dir, "out.xml"))
}

func TestPDFLinks(t *testing.T) {
	base, _ := url.Parse("https://mirror.example/10.1/x")
	tests := []struct {
		name string
		page string
		want []string
	}{
		{
			name: "iframe relative",
			page: `<html><body><iframe id="pdf" src="/downloads/x.pdf#view=FitH"></iframe></body></html>`,
			want: []string{"https://mirror.example/downloads/x.pdf#view=FitH"},
		},
		{
			name: "protocol relative embed",
			page: `<embed type="application/pdf" src="//cdn.example/x.pdf">`,
			want: []string{"https://cdn.example/x.pdf"},
		},
		{
			name: "button onclick",
			page: `<button onclick="location.href='/save/x.pdf?download=true'">save</button>`,
			want: []string{"https://mirror.example/save/x.pdf?download=true"},
		},
		{
			name: "heuristic order",
			page: `<button onclick="location.href='/b.pdf'"></button><embed type="application/pdf" src="/e.pdf"><iframe id="pdf" src="/i.pdf"></iframe>`,
			want: []string{"https://mirror.example/i.pdf", "https://mirror.example/e.pdf", "https://mirror.example/b.pdf"},
		},
		{
			name: "iframe without pdf id ignored",
			page: `<iframe id="ad" src="/ad.html"></iframe><p>not found</p>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pdfLinks(strings.NewReader(tt.page), base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchPDFMirrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/down/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/html/10.1000/abc", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<embed type="application/pdf" src="/captcha.pdf"><button onclick="location.href='/files/abc.pdf'">`)
	})
	mux.HandleFunc("/captcha.pdf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>captcha</html>")
	})
	mux.HandleFunc("/files/abc.pdf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pdfBody)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testConfig()
	cfg.Mirrors = []string{ts.URL + "/down", ts.URL + "/html/"}
	r := newRetriever(ts.Client(), cfg, zaptest.NewLogger(t))

	job := types.NewDocumentJob(3, types.Identifiers{DOI: "10.1000/abc"}, "", t.TempDir())
	got, err := r.FetchPDF(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, types.KindPDF, got.Kind)
	assert.Equal(t, "mirror:"+ts.URL+"/html/", got.Source)

	data, err := os.ReadFile(job.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(data))
}

func TestFetchPDFAllMirrorsFail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<iframe id="pdf" src="/not-a-pdf"></iframe>`)
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.Mirrors = []string{ts.URL + "/a", ts.URL + "/b"}
	r := newRetriever(ts.Client(), cfg, nil)

	dir := t.TempDir()
	job := types.NewDocumentJob(1, types.Identifiers{PMID: "42"}, "", dir)
	_, err := r.FetchPDF(context.Background(), job)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.NoFileExists(t, job.PDFPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	job = types.NewDocumentJob(1, types.Identifiers{PMCID: "PMC1"}, "", dir)
	_, err = r.FetchPDF(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoIdentifier)
}

func TestFetchRaceXMLWins(t *testing.T) {
	mux := http.NewServeMux()
	pmcServer(t, mux)
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	useEndpoints(t, ts.URL)

	cfg := testConfig()
	cfg.Mirrors = []string{ts.URL + "/slow"}
	r := newRetriever(ts.Client(), cfg, zaptest.NewLogger(t))

	job := types.NewDocumentJob(1, types.Identifiers{DOI: "10.1000/abc"}, "", t.TempDir())
	got, err := r.Fetch(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, types.KindXML, got.Kind)
	assert.FileExists(t, job.XMLPath)
	assert.NoFileExists(t, job.PDFPath)
}

func TestFetchBothRoutesFail(t *testing.T) {
	mux := http.NewServeMux()
	pmcServer(t, mux)
	mux.HandleFunc("/m/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	useEndpoints(t, ts.URL)

	cfg := testConfig()
	cfg.Mirrors = []string{ts.URL + "/m"}
	r := newRetriever(ts.Client(), cfg, nil)

	job := types.NewDocumentJob(1, types.Identifiers{DOI: "10.9/missing"}, "", t.TempDir())
	_, err := r.Fetch(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInPMC)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestDownloadFileCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "x.pdf")
	err := downloadFile(ctx, ts.Client(), ts.URL, dest, "ua", pdfMagic)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, dest)
}

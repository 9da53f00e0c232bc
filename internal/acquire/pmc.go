// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// PMC endpoints. Declared as vars so tests can substitute httptest servers.
var (
	idConverterURL = "https://pmc.ncbi.nlm.nih.gov/tools/idconv/api/v1/articles/"
	oaServiceURL   = "https://www.ncbi.nlm.nih.gov/pmc/utils/oa/oa.fcgi"
)

const (
	defaultTool  = "paperfetch"
	ncbiFTPHost  = "ftp://ftp.ncbi.nlm.nih.gov"
	ncbiHTTPHost = "https://ftp.ncbi.nlm.nih.gov"
)

// Sentinel errors for the PMC route.
var (
	ErrNotInPMC     = errors.New("no PMC record")
	ErrNoPackage    = errors.New("no open-access package")
	ErrNoArticleXML = errors.New("no XML member in package")
)

// idString accepts an ID encoded as a JSON string or number.
type idString string

func (s *idString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = idString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = idString(n.String())
	return nil
}

type idConvResponse struct {
	Status  string `json:"status"`
	Records []struct {
		PMCID idString `json:"pmcid"`
		PMID  idString `json:"pmid"`
		DOI   string   `json:"doi"`
	} `json:"records"`
}

// convertID queries the PMC ID converter and returns the record's PMCID and
// PMID.
func (r *Retriever) convertID(ctx context.Context, id, idType string) (pmcid, pmid string, err error) {
	tool := r.cfg.Tool
	if tool == "" {
		tool = defaultTool
	}
	q := url.Values{}
	q.Set("tool", tool)
	q.Set("email", r.cfg.ContactEmail)
	q.Set("ids", id)
	q.Set("idtype", idType)
	q.Set("format", "json")

	resp, err := fetch(ctx, r.client, idConverterURL+"?"+q.Encode(), r.userAgent, "application/json")
	if err != nil {
		return "", "", fmt.Errorf("PMC ID converter: %w", err)
	}
	defer resp.Body.Close()

	var out idConvResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("parsing ID converter response: %w", err)
	}
	if len(out.Records) == 0 {
		return "", "", fmt.Errorf("%s %s: %w", idType, id, ErrNotInPMC)
	}
	rec := out.Records[0]
	return string(rec.PMCID), string(rec.PMID), nil
}

// resolvePMCID finds the PMCID for the job: directly when given, DOI to
// PMCID when the converter record carries one, else DOI to PMID to PMCID.
func (r *Retriever) resolvePMCID(ctx context.Context, ids types.Identifiers) (string, error) {
	if ids.PMCID != "" {
		return ids.PMCID, nil
	}
	pmid := ids.PMID
	if ids.DOI != "" {
		pmcid, viaDOI, err := r.convertID(ctx, ids.DOI, "doi")
		if err == nil && pmcid != "" {
			return pmcid, nil
		}
		if viaDOI != "" {
			pmid = viaDOI
		}
		if pmid == "" {
			if err == nil {
				err = fmt.Errorf("doi %s: %w", ids.DOI, ErrNotInPMC)
			}
			return "", err
		}
	}
	if pmid == "" {
		return "", fmt.Errorf("no DOI, PMID or PMCID: %w", ErrNotInPMC)
	}
	pmcid, _, err := r.convertID(ctx, pmid, "pmid")
	if err != nil {
		return "", err
	}
	if pmcid == "" {
		return "", fmt.Errorf("pmid %s: %w", pmid, ErrNotInPMC)
	}
	return pmcid, nil
}

type oaResponse struct {
	Error *struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"error"`
	Records []struct {
		ID    string `xml:"id,attr"`
		Links []struct {
			Format string `xml:"format,attr"`
			Href   string `xml:"href,attr"`
		} `xml:"link"`
	} `xml:"records>record"`
}

// packageURL asks the OA web service for the article package of pmcid.
func (r *Retriever) packageURL(ctx context.Context, pmcid string) (string, error) {
	q := url.Values{}
	q.Set("id", pmcid)
	q.Set("format", "tgz")

	resp, err := fetch(ctx, r.client, oaServiceURL+"?"+q.Encode(), r.userAgent, "")
	if err != nil {
		return "", fmt.Errorf("PMC OA service: %w", err)
	}
	defer resp.Body.Close()

	var oa oaResponse
	if err := xml.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return "", fmt.Errorf("parsing OA response: %w", err)
	}
	if oa.Error != nil {
		return "", fmt.Errorf("%s: %s: %w", pmcid, strings.TrimSpace(oa.Error.Text), ErrNoPackage)
	}
	for _, rec := range oa.Records {
		for _, l := range rec.Links {
			if l.Href != "" && (l.Format == "" || l.Format == "tgz") {
				href := l.Href
				if strings.HasPrefix(href, ncbiFTPHost) {
					href = ncbiHTTPHost + strings.TrimPrefix(href, ncbiFTPHost)
				}
				return href, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", pmcid, ErrNoPackage)
}

// FetchXML retrieves the JATS full text through PMC Open Access and writes
// it to job.XMLPath.
func (r *Retriever) FetchXML(ctx context.Context, job types.DocumentJob) (Fetched, error) {
	pmcid, err := r.resolvePMCID(ctx, job.IDs)
	if err != nil {
		return Fetched{}, err
	}
	pkg, err := r.packageURL(ctx, pmcid)
	if err != nil {
		return Fetched{}, err
	}

	dir := filepath.Dir(job.XMLPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Fetched{}, fmt.Errorf("creating directory: %w", err)
	}
	tgz, err := os.CreateTemp(dir, ".pmc-*.tar.gz")
	if err != nil {
		return Fetched{}, fmt.Errorf("creating temp file: %w", err)
	}
	tgzPath := tgz.Name()
	tgz.Close()
	defer os.Remove(tgzPath)

	if err := downloadFile(ctx, r.client, pkg, tgzPath, r.userAgent, nil); err != nil {
		return Fetched{}, fmt.Errorf("downloading package: %w", err)
	}
	if err := extractArticle(tgzPath, job.XMLPath); err != nil {
		return Fetched{}, err
	}
	r.logger.Info("fetched xml", zap.String("stem", job.Stem), zap.String("pmcid", pmcid))
	return Fetched{Path: job.XMLPath, Kind: types.KindXML, Source: "pmc:" + pmcid}, nil
}

// extractArticle copies the first .nxml or .xml member of the gzipped tar
// at tgzPath to dest.
func extractArticle(tgzPath, dest string) error {
	f, err := os.Open(tgzPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading package: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return ErrNoArticleXML
		}
		if err != nil {
			return fmt.Errorf("reading package: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.ToLower(hdr.Name)
		if strings.HasSuffix(name, ".nxml") || strings.HasSuffix(name, ".xml") {
			return writeAtomic(dest, tr)
		}
	}
}

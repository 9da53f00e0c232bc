// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// Report summarizes one batch run.
type Report struct {
	RunID string

	// OutputManifest and FailureReport are the files written, empty when
	// not written.
	OutputManifest string
	FailureReport  string

	Results   []types.JobResult
	Converted int
	Cached    int
	Failed    int
}

// Succeeded returns converted plus cached jobs.
func (r Report) Succeeded() int { return r.Converted + r.Cached }

// Total returns the number of jobs.
func (r Report) Total() int { return len(r.Results) }

// OK reports whether at least one job succeeded.
func (r Report) OK() bool { return r.Succeeded() > 0 }

// Failures returns the failed results in job order.
func (r Report) Failures() []types.JobResult {
	var out []types.JobResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) tally() {
	r.Converted, r.Cached, r.Failed = 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case types.StatusCached:
			r.Cached++
		case types.StatusConverted, types.StatusDownloaded:
			r.Converted++
		default:
			r.Failed++
		}
	}
}

// FailedPaper is one entry of the failure report.
type FailedPaper struct {
	Index   int    `yaml:"index"`
	Title   string `yaml:"title,omitempty"`
	DOI     string `yaml:"doi,omitempty"`
	PMID    string `yaml:"pmid,omitempty"`
	PMCID   string `yaml:"pmcid,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Reason  string `yaml:"reason"`
	Elapsed string `yaml:"elapsed,omitempty"`
}

// FailureReport is written next to the output manifest when a run has
// failures, so operators can retry them.
type FailureReport struct {
	Manifest string        `yaml:"manifest"`
	RunID    string        `yaml:"run_id,omitempty"`
	Total    int           `yaml:"total"`
	Failed   int           `yaml:"failed"`
	Papers   []FailedPaper `yaml:"papers"`
}

// NewFailureReport lists the failures of results.
func NewFailureReport(manifest, runID string, results []types.JobResult) FailureReport {
	fr := FailureReport{Manifest: manifest, RunID: runID, Total: len(results)}
	for _, r := range results {
		if r.OK() {
			continue
		}
		fp := FailedPaper{
			Index:  r.Job.Index,
			Title:  r.Job.Title,
			DOI:    r.Job.IDs.DOI,
			PMID:   r.Job.IDs.PMID,
			PMCID:  r.Job.IDs.PMCID,
			URL:    r.Job.IDs.URL,
			Reason: r.Reason,
		}
		if r.Elapsed > 0 {
			fp.Elapsed = r.Elapsed.Round(10 * time.Millisecond).String()
		}
		fr.Papers = append(fr.Papers, fp)
	}
	fr.Failed = len(fr.Papers)
	return fr
}

// failureReportPath returns <outDir>/<stem>.failed.yaml.
func failureReportPath(outDir, stem string) string {
	return filepath.Join(outDir, stem+".failed.yaml")
}

// writeFailureReport writes fr to path, or removes a stale report when
// there are no failures. It returns the path written, if any.
func writeFailureReport(path string, fr FailureReport) (string, error) {
	if fr.Failed == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", err
		}
		return "", nil
	}
	data, err := yaml.Marshal(&fr)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadFailureReport loads a report written by a previous run.
func ReadFailureReport(path string) (FailureReport, error) {
	var fr FailureReport
	data, err := os.ReadFile(path)
	if err != nil {
		return fr, err
	}
	err = yaml.Unmarshal(data, &fr)
	return fr, err
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"strings"
	"time"
)

// ContentKind identifies the format of a retrieved artifact.
type ContentKind string

const (
	KindPDF ContentKind = "pdf"
	KindXML ContentKind = "xml"
)

// Identifiers holds the external identifiers of one paper. At least one
// must be non-empty for the job to be processable.
type Identifiers struct {
	DOI   string `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMID  string `json:"pmid,omitempty" yaml:"pmid,omitempty"`
	PMCID string `json:"pmcid,omitempty" yaml:"pmcid,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Empty reports whether no identifier is set.
func (ids Identifiers) Empty() bool {
	return ids.DOI == "" && ids.PMID == "" && ids.PMCID == "" && ids.URL == ""
}

// Primary returns the first present identifier in DOI, PMID, PMCID, URL
// order.
func (ids Identifiers) Primary() string {
	for _, v := range []string{ids.DOI, ids.PMID, ids.PMCID, ids.URL} {
		if v != "" {
			return v
		}
	}
	return ""
}

// DocumentJob is one unit of batch work. It is built once by NewDocumentJob
// and never mutated afterwards.
type DocumentJob struct {
	// Index is the 1-based position of the job in its batch.
	Index int `json:"index" yaml:"index"`

	IDs Identifiers `json:"ids" yaml:"ids"`

	// Title is carried for progress output only.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Stem is the filesystem-safe name shared by every artifact of the job.
	Stem string `json:"stem" yaml:"stem"`

	PDFPath      string `json:"pdf_path" yaml:"pdf_path"`
	XMLPath      string `json:"xml_path" yaml:"xml_path"`
	MarkdownPath string `json:"markdown_path" yaml:"markdown_path"`
}

// NewDocumentJob derives the stem and target paths for ids under dir.
func NewDocumentJob(index int, ids Identifiers, title, dir string) DocumentJob {
	stem := SafeStem(ids)
	return DocumentJob{
		Index:        index,
		IDs:          ids,
		Title:        title,
		Stem:         stem,
		PDFPath:      filepath.Join(dir, stem+".pdf"),
		XMLPath:      filepath.Join(dir, stem+".xml"),
		MarkdownPath: filepath.Join(dir, stem+".md"),
	}
}

// MarkdownFile returns the Markdown filename relative to the output
// directory.
func (j DocumentJob) MarkdownFile() string {
	return j.Stem + ".md"
}

// stemReplacer maps path separators, drive and extension markers, and
// characters rejected by common filesystems to underscores.
var stemReplacer = strings.NewReplacer(
	"/", "_", ":", "_", ".", "_", "\\", "_",
	"?", "_", "*", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	" ", "_", "\n", "_", "\r", "_", "\t", "_",
)

// SafeStem returns the filename stem for ids: the primary identifier with
// unsafe characters replaced by underscores, or "paper" when no identifier
// is set.
func SafeStem(ids Identifiers) string {
	primary := strings.TrimSpace(ids.Primary())
	if primary == "" {
		return "paper"
	}
	return stemReplacer.Replace(primary)
}

// FailureReason classifies why a conversion attempt failed.
type FailureReason string

const (
	ReasonUnavailable   FailureReason = "unavailable"
	ReasonEmptyOutput   FailureReason = "empty-output"
	ReasonInvalidFormat FailureReason = "invalid-format"
	ReasonAuth          FailureReason = "auth"
	ReasonTimeout       FailureReason = "timeout"
	ReasonBackendError  FailureReason = "backend-error"
	ReasonBudget        FailureReason = "budget-exhausted"
)

// ConversionOutcome is the engine's verdict for one artifact.
type ConversionOutcome struct {
	Success bool   `json:"success" yaml:"success"`
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Text    string `json:"-" yaml:"-"`

	// Reason describes the last failure when Success is false.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Attempts counts the backends that consumed retry budget.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// TrimDecision is the page range retained by the trimmer. LastPage is a
// 0-based inclusive index and is meaningful only when Trim is true.
type TrimDecision struct {
	Trim       bool `json:"trim" yaml:"trim"`
	LastPage   int  `json:"last_page" yaml:"last_page"`
	TotalPages int  `json:"total_pages" yaml:"total_pages"`
}

// KeptPages returns the number of pages the decision retains.
func (d TrimDecision) KeptPages() int {
	if !d.Trim {
		return d.TotalPages
	}
	return d.LastPage + 1
}

// JobStatus is the terminal state of one batch job.
type JobStatus string

const (
	// StatusConverted means Markdown was produced by this run.
	StatusConverted JobStatus = "converted"
	// StatusCached means the DOI index already pointed to existing Markdown.
	StatusCached JobStatus = "cached"
	// StatusDownloaded means the raw artifact was kept without conversion.
	StatusDownloaded JobStatus = "downloaded"
	StatusFailed     JobStatus = "failed"
)

// JobResult records how one job ended.
type JobResult struct {
	Job    DocumentJob `json:"job" yaml:"job"`
	Status JobStatus   `json:"status" yaml:"status"`

	// Source names the route that supplied the artifact (pmc, a mirror
	// host, openalex, index).
	Source  string        `json:"source,omitempty" yaml:"source,omitempty"`
	Backend string        `json:"backend,omitempty" yaml:"backend,omitempty"`
	Reason  string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`

	// MarkdownFile is the output filename relative to the output directory.
	// For cached jobs it is the file the index points to.
	MarkdownFile string `json:"md_file,omitempty" yaml:"md_file,omitempty"`
}

// OK reports whether the job produced or reused an output.
func (r JobResult) OK() bool { return r.Status != StatusFailed && r.Status != "" }

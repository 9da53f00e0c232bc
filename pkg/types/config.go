package types

import "time"

// HTTPConfig holds shared HTTP settings used by every component that makes
// network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// ProxyURL routes all requests through an explicit proxy when set.
	ProxyURL string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`

	// TrustEnvProxy honors HTTP_PROXY/HTTPS_PROXY/NO_PROXY when ProxyURL is
	// empty.
	TrustEnvProxy bool `json:"trust_env_proxy" yaml:"trust_env_proxy"`

	// MaxAttempts bounds the number of transport-level attempts for a
	// single request, including the first (default 5).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// AcquisitionConfig holds settings for content retrieval.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline"`

	// Mirrors lists mirror base URLs tried in order by the PDF path.
	Mirrors []string `json:"mirrors" yaml:"mirrors"`

	// UseOpenAlex enables the OpenAlex open-access PDF lookup after the
	// mirrors for DOI identifiers.
	UseOpenAlex bool `json:"use_openalex" yaml:"use_openalex"`

	// ContactEmail is sent to NCBI and OpenAlex as the polite-pool contact.
	ContactEmail string `json:"contact_email" yaml:"contact_email"`

	// Tool is the tool name reported to the PMC ID converter.
	Tool string `json:"tool" yaml:"tool"`
}

// TrimConfig controls page-level and heading-level trimming.
type TrimConfig struct {
	// StopHeadings are the back-matter keywords that end the subject
	// content. Empty means the built-in list.
	StopHeadings []string `json:"stop_headings,omitempty" yaml:"stop_headings,omitempty"`

	// MaxPages caps the number of retained pages (default 20, 0 = no cap).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// TrimMarkdown applies the H1/H2 heading trim to converted XML output.
	TrimMarkdown bool `json:"trim_markdown" yaml:"trim_markdown"`
}

// RemoteParseConfig holds settings for the remote document parsing service.
type RemoteParseConfig struct {
	// BaseURL is the service root (default https://mineru.net).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Tokens are the API credentials. Jobs are assigned a token round-robin.
	Tokens []string `json:"-" yaml:"-"`

	// ModelVersion is sent with every submission (default "vlm").
	ModelVersion string `json:"model_version" yaml:"model_version"`

	// SubmitRPM is the per-token ceiling for submissions per minute.
	SubmitRPM int `json:"submit_rpm" yaml:"submit_rpm"`

	// PollRPM is the per-token ceiling for status polls per minute.
	PollRPM int `json:"poll_rpm" yaml:"poll_rpm"`

	// PollInterval is the delay between status polls (default 5s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// PollDeadline bounds the total polling time for one batch (default 900s).
	PollDeadline time.Duration `json:"poll_deadline" yaml:"poll_deadline"`
}

// ConversionConfig controls the conversion strategy chain.
type ConversionConfig struct {
	// EnableLayout turns on the local layout-aware PDF converter.
	EnableLayout bool `json:"enable_layout" yaml:"enable_layout"`

	// OCRLang is the OCR language (default "eng").
	OCRLang string `json:"ocr_lang" yaml:"ocr_lang"`

	// DPI is the page render resolution for OCR (default 180).
	DPI int `json:"dpi" yaml:"dpi"`

	// OCRLayout emits paragraph blocks from layout analysis instead of
	// plain page text.
	OCRLayout bool `json:"ocr_layout" yaml:"ocr_layout"`

	// RenderThreads sizes the OCR page render pool (0 = auto, 4 to 8).
	RenderThreads int `json:"render_threads" yaml:"render_threads"`

	// MaxAttempts is the global retry budget across the chain (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Sections selects the parts of a paper kept in the Markdown (title,
	// authors, abstract, introduction, methods, results, discussion,
	// conclusion). Empty keeps everything.
	Sections []string `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// BatchConfig holds settings for the batch orchestrator.
type BatchConfig struct {
	// OutputDir receives Markdown files, manifests and the DOI index.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Workers sizes the job pool (0 = auto, 4 to 8).
	Workers int `json:"workers" yaml:"workers"`

	// UseIndex enables the DOI index fast path.
	UseIndex bool `json:"use_index" yaml:"use_index"`

	// RemoteBatch submits all pending PDFs to the remote service in
	// per-token batches after acquisition.
	RemoteBatch bool `json:"remote_batch" yaml:"remote_batch"`

	// KeepRaw keeps downloaded PDF and XML files next to the Markdown.
	KeepRaw bool `json:"keep_raw" yaml:"keep_raw"`

	// Context populates the extraction_context annotation of each success.
	Context ExtractionContext `json:"extraction_context" yaml:"extraction_context"`
}

// ExtractionContext describes why a batch was run. Values are copied
// verbatim into every successful paper record.
type ExtractionContext struct {
	Timestamp         string `json:"extraction_timestamp" yaml:"extraction_timestamp"`
	ManuscriptSection string `json:"target_manuscript_section" yaml:"target_manuscript_section"`
	CitationPointID   string `json:"citation_point_id" yaml:"citation_point_id"`
	Purpose           string `json:"extraction_purpose" yaml:"extraction_purpose"`
}

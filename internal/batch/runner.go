// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs a manifest of papers through retrieval and conversion.
// Jobs run on a bounded pool; each job races the PMC XML route against the
// PDF route and writes the winner's Markdown once. Papers already in the
// DOI index are not fetched again. After the run the success manifest,
// failure report and refreshed index are written to the output directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/acquire"
	"github.com/pdiddy/paperfetch/internal/convert"
	"github.com/pdiddy/paperfetch/internal/index"
	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/internal/mineru"
	"github.com/pdiddy/paperfetch/internal/workpool"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Fetcher retrieves raw artifacts. *acquire.Retriever implements it.
type Fetcher interface {
	FetchXML(ctx context.Context, job types.DocumentJob) (acquire.Fetched, error)
	FetchPDF(ctx context.Context, job types.DocumentJob) (acquire.Fetched, error)
	// Fetch races both routes and returns the first success.
	Fetch(ctx context.Context, job types.DocumentJob) (acquire.Fetched, error)
}

// RemoteBatcher converts many PDFs in one remote submission.
// *mineru.Client implements it.
type RemoteBatcher interface {
	ConvertBatch(ctx context.Context, token string, files []mineru.File) ([]mineru.ItemResult, error)
}

// Deps are the collaborators of a Runner. Remote, Tokens, Ledger and
// Trimmer are optional.
type Deps struct {
	Fetcher Fetcher
	Engine  *convert.Engine
	Trimmer convert.PDFTrimmer
	Remote  RemoteBatcher
	Tokens  []string
	Ledger  *ledger.Ledger
	Out     io.Writer
	Logger  *zap.Logger
}

// Runner executes batches and single downloads.
type Runner struct {
	cfg     types.BatchConfig
	fetcher Fetcher
	engine  *convert.Engine
	trimmer convert.PDFTrimmer
	remote  RemoteBatcher
	tokens  []string
	ledger  *ledger.Ledger
	out     *lockedWriter
	logger  *zap.Logger
}

// New builds a Runner.
func New(cfg types.BatchConfig, d Deps) *Runner {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	return &Runner{
		cfg:     cfg,
		fetcher: d.Fetcher,
		engine:  d.Engine,
		trimmer: d.Trimmer,
		remote:  d.Remote,
		tokens:  d.Tokens,
		ledger:  d.Ledger,
		out:     &lockedWriter{w: d.Out},
		logger:  d.Logger,
	}
}

// lockedWriter keeps progress lines from concurrent jobs whole.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

// token returns the credential for the job at 1-based position index.
func (r *Runner) token(index int) string {
	if len(r.tokens) == 0 {
		return ""
	}
	return r.tokens[(index-1)%len(r.tokens)]
}

// winner is what a successful route produced: Markdown text, or a trimmed
// PDF left for the remote batch.
type winner struct {
	kind    types.ContentKind
	source  string
	backend string
	text    string
	pending string
}

// pending is a job waiting for the remote batch.
type pending struct {
	token string
	path  string
}

type jobOutcome struct {
	result  types.JobResult
	pending *pending
}

func (r *Runner) xmlRoute(job types.DocumentJob, token string) func(context.Context) (winner, error) {
	return func(ctx context.Context) (winner, error) {
		f, err := r.fetcher.FetchXML(ctx, job)
		if err != nil {
			return winner{}, fmt.Errorf("xml route: %w", err)
		}
		out := r.engine.Convert(ctx, convert.Input{Path: f.Path, Kind: types.KindXML, ID: job.Stem, Token: token})
		if !out.Success {
			return winner{}, fmt.Errorf("xml route: %s", out.Reason)
		}
		return winner{kind: types.KindXML, source: f.Source, backend: out.Backend, text: out.Text}, nil
	}
}

// pdfRoute fetches and converts the PDF. With deferRemote it only trims,
// reporting the trimmed copy through trimmed so a losing route can clean up.
func (r *Runner) pdfRoute(job types.DocumentJob, token string, deferRemote bool, trimmed *string) func(context.Context) (winner, error) {
	return func(ctx context.Context) (winner, error) {
		f, err := r.fetcher.FetchPDF(ctx, job)
		if err != nil {
			return winner{}, fmt.Errorf("pdf route: %w", err)
		}
		if deferRemote {
			path := f.Path
			if r.trimmer != nil {
				if p, _, err := r.trimmer.Trim(ctx, f.Path); err == nil {
					path = p
					*trimmed = p
				}
			}
			return winner{kind: types.KindPDF, source: f.Source, pending: path}, nil
		}
		out := convert.Document(ctx, r.engine, r.trimmer, convert.Input{Path: f.Path, Kind: types.KindPDF, ID: job.Stem, Token: token})
		if !out.Success {
			return winner{}, fmt.Errorf("pdf route: %s", out.Reason)
		}
		return winner{kind: types.KindPDF, source: f.Source, backend: out.Backend, text: out.Text}, nil
	}
}

// removeRaw deletes the downloaded artifacts of job except keep's kind when
// raw files are retained.
func (r *Runner) removeRaw(job types.DocumentJob, keep types.ContentKind) {
	if !(r.cfg.KeepRaw && keep == types.KindXML) {
		os.Remove(job.XMLPath)
	}
	if !(r.cfg.KeepRaw && keep == types.KindPDF) {
		os.Remove(job.PDFPath)
	}
}

func reasonOf(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

// runJob processes one job. With deferRemote a PDF winner is left pending
// for finishRemote.
func (r *Runner) runJob(ctx context.Context, job types.DocumentJob, total int, ix *index.Index, deferRemote bool) jobOutcome {
	start := time.Now()
	r.out.printf("[%d/%d] %s\n", job.Index, total, job.Title)
	res := types.JobResult{Job: job}

	if ix != nil && job.IDs.DOI != "" {
		if md, ok := ix.Lookup(job.IDs.DOI); ok {
			res.Status = types.StatusCached
			res.Source = "index"
			res.MarkdownFile = md
			res.Elapsed = time.Since(start)
			r.out.printf("  cached: %s -> %s\n", job.IDs.DOI, md)
			return jobOutcome{result: res}
		}
	}

	token := r.token(job.Index)
	var trimmed string
	win, err := workpool.First(ctx,
		r.xmlRoute(job, token),
		r.pdfRoute(job, token, deferRemote, &trimmed),
	)
	if trimmed != "" && trimmed != job.PDFPath && trimmed != win.pending {
		os.Remove(trimmed)
	}
	if err != nil {
		r.removeRaw(job, "")
		return jobOutcome{result: r.fail(res, start, reasonOf(err))}
	}

	res.Source = win.source
	if win.pending != "" {
		os.Remove(job.XMLPath)
		res.Elapsed = time.Since(start)
		return jobOutcome{result: res, pending: &pending{token: token, path: win.pending}}
	}

	r.removeRaw(job, win.kind)
	if err := r.save(ctx, job, win.text); err != nil {
		return jobOutcome{result: r.fail(res, start, reasonOf(err))}
	}
	res.Backend = win.backend
	return jobOutcome{result: r.succeed(res, start)}
}

func (r *Runner) save(ctx context.Context, job types.DocumentJob, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := convert.WriteMarkdown(job.MarkdownPath, text); err != nil {
		return fmt.Errorf("writing markdown: %w", err)
	}
	return nil
}

func (r *Runner) succeed(res types.JobResult, start time.Time) types.JobResult {
	res.Status = types.StatusConverted
	res.MarkdownFile = res.Job.MarkdownFile()
	res.Elapsed += time.Since(start)
	r.out.printf("  converted: %s (%s, %s) %s\n", res.Job.Stem, res.Backend, res.Source, res.Elapsed.Round(10*time.Millisecond))
	r.logger.Info("job converted",
		zap.Int("index", res.Job.Index),
		zap.String("stem", res.Job.Stem),
		zap.String("backend", res.Backend),
		zap.String("source", res.Source),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

func (r *Runner) fail(res types.JobResult, start time.Time, reason string) types.JobResult {
	res.Status = types.StatusFailed
	res.Reason = reason
	res.Elapsed += time.Since(start)
	r.out.printf("  failed: %s (%s)\n", res.Job.Stem, reason)
	r.logger.Warn("job failed",
		zap.Int("index", res.Job.Index),
		zap.String("stem", res.Job.Stem),
		zap.String("reason", reason),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// group is the pending jobs sharing one credential.
type group struct {
	token string
	jobs  []int
}

type groupResult struct {
	items []mineru.ItemResult
	err   error
}

// finishRemote submits every pending PDF to the remote service, one batch
// per credential, and runs the rest of the chain for items the service did
// not convert.
func (r *Runner) finishRemote(ctx context.Context, outcomes []jobOutcome) {
	var groups []group
	byToken := map[string]int{}
	for i, o := range outcomes {
		if o.pending == nil {
			continue
		}
		g, ok := byToken[o.pending.token]
		if !ok {
			g = len(groups)
			byToken[o.pending.token] = g
			groups = append(groups, group{token: o.pending.token})
		}
		groups[g].jobs = append(groups[g].jobs, i)
	}
	if len(groups) == 0 {
		return
	}

	r.out.printf("Remote batch: %d papers in %d submissions\n", countPending(outcomes), len(groups))
	results := workpool.Map(ctx, len(groups), groups, func(ctx context.Context, _ int, g group) groupResult {
		files := make([]mineru.File, len(g.jobs))
		for k, i := range g.jobs {
			files[k] = mineru.File{Path: outcomes[i].pending.path, DataID: outcomes[i].result.Job.Stem}
		}
		items, err := r.remote.ConvertBatch(ctx, g.token, files)
		if err != nil {
			r.logger.Warn("remote batch failed",
				zap.String("token", mineru.Mask(g.token)),
				zap.Int("files", len(files)),
				zap.Error(err))
		}
		return groupResult{items: items, err: err}
	})

	for gi, g := range groups {
		gr := results[gi]
		for k, i := range g.jobs {
			o := &outcomes[i]
			start := time.Now()
			var item mineru.ItemResult
			if gr.err == nil && k < len(gr.items) {
				item = gr.items[k]
			} else {
				item.Err = gr.err
				if item.Err == nil {
					item.Err = ctx.Err()
				}
			}
			o.result = r.completeRemote(ctx, o.result, o.pending, item, start)
			r.dropPending(o.result.Job, o.pending)
			o.pending = nil
		}
	}
}

func countPending(outcomes []jobOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.pending != nil {
			n++
		}
	}
	return n
}

// completeRemote turns one remote item into a job result, falling back to
// the local chain when the service failed it.
func (r *Runner) completeRemote(ctx context.Context, res types.JobResult, p *pending, item mineru.ItemResult, start time.Time) types.JobResult {
	text, backend := item.Markdown, convert.BackendRemote
	if item.Err != nil || strings.TrimSpace(text) == "" {
		if item.Err != nil {
			r.logger.Info("remote item failed, continuing chain",
				zap.String("stem", res.Job.Stem), zap.Error(item.Err))
		}
		out := r.engine.Convert(ctx, convert.Input{
			Path:         p.path,
			Kind:         types.KindPDF,
			ID:           res.Job.Stem,
			Token:        p.token,
			Skip:         []string{convert.BackendRemote},
			AttemptsUsed: 1,
		})
		if !out.Success {
			return r.fail(res, start, out.Reason)
		}
		text, backend = out.Text, out.Backend
	} else {
		text = r.engine.Finish(text)
	}
	if err := r.save(ctx, res.Job, text); err != nil {
		return r.fail(res, start, reasonOf(err))
	}
	res.Backend = backend
	return r.succeed(res, start)
}

func (r *Runner) dropPending(job types.DocumentJob, p *pending) {
	if p.path != job.PDFPath {
		os.Remove(p.path)
	}
	if !r.cfg.KeepRaw {
		os.Remove(job.PDFPath)
	}
}

// loadIndex reads the DOI index and merges in every manifest already in
// dir. A corrupt index file is replaced by the manifest scan.
func (r *Runner) loadIndex(dir string) *index.Index {
	ix, err := index.Load(dir)
	if err != nil {
		r.logger.Warn("ignoring unreadable doi index", zap.Error(err))
		ix = nil
	}
	scanned, err := index.Scan(dir)
	if err != nil {
		r.logger.Warn("scanning manifests", zap.Error(err))
		return ix
	}
	if ix == nil {
		return scanned
	}
	ix.Merge(scanned)
	return ix
}

// Run processes the manifest at manifestPath. The returned error is set
// only when the run could not start or was cancelled; per-job failures are
// in the report. A cancelled run writes no manifest, report or index.
func (r *Runner) Run(ctx context.Context, manifestPath string) (Report, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return Report{}, err
	}
	outDir := r.cfg.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("creating output directory: %w", err)
	}

	jobs := m.Jobs(outDir)
	r.out.printf("Batch: %d papers, output %s\n", len(jobs), outDir)

	var ix *index.Index
	if r.cfg.UseIndex {
		ix = r.loadIndex(outDir)
	}

	var runID string
	if r.ledger != nil {
		run, err := r.ledger.StartRun(ctx, manifestPath, len(jobs))
		if err != nil {
			r.logger.Warn("ledger unavailable", zap.Error(err))
		} else {
			runID = run.ID
		}
	}

	deferRemote := r.cfg.RemoteBatch && r.remote != nil && len(r.tokens) > 0 &&
		r.engine.Capabilities().Has(convert.BackendRemote)
	size := r.cfg.Workers
	if size <= 0 {
		size = workpool.AutoSize(4, 8)
	}

	outcomes := workpool.Map(ctx, size, jobs, func(ctx context.Context, _ int, job types.DocumentJob) jobOutcome {
		return r.runJob(ctx, job, len(jobs), ix, deferRemote)
	})
	if deferRemote {
		r.finishRemote(ctx, outcomes)
	}

	rep := Report{RunID: runID, Results: make([]types.JobResult, len(jobs))}
	for i, o := range outcomes {
		res := o.result
		if res.Status == "" {
			res = types.JobResult{Job: jobs[i], Status: types.StatusFailed, Reason: "not started"}
			if err := ctx.Err(); err != nil {
				res.Reason = "not started: " + err.Error()
			}
		}
		rep.Results[i] = res
	}
	rep.tally()
	r.record(ctx, runID, rep)

	if err := ctx.Err(); err != nil {
		r.out.printf("\nBatch cancelled: %d converted, %d cached, %d failed (total: %d)\n",
			rep.Converted, rep.Cached, rep.Failed, rep.Total())
		return rep, err
	}

	if err := r.writeOutputs(m, &rep); err != nil {
		return rep, err
	}

	r.out.printf("\nBatch summary: %d converted, %d cached, %d failed (total: %d)\n",
		rep.Converted, rep.Cached, rep.Failed, rep.Total())
	if rep.Failed > 0 {
		r.out.printf("Failed papers:\n")
		for _, f := range rep.Failures() {
			r.out.printf("  - [%d] %s (%s)\n", f.Job.Index, f.Job.Title, f.Reason)
		}
	}
	return rep, nil
}

func (r *Runner) writeOutputs(m *Manifest, rep *Report) error {
	outDir := r.cfg.OutputDir
	succeeded := map[int]*object{}
	for _, res := range rep.Results {
		if !res.OK() || res.MarkdownFile == "" {
			continue
		}
		p, err := enrich(m.papers[res.Job.Index-1], res.MarkdownFile, r.cfg.Context)
		if err != nil {
			return fmt.Errorf("annotating paper %d: %w", res.Job.Index, err)
		}
		succeeded[res.Job.Index] = p
	}
	data, err := m.output(succeeded)
	if err != nil {
		return fmt.Errorf("rendering manifest: %w", err)
	}
	rep.OutputManifest = filepath.Join(outDir, m.Stem()+".json")
	if err := writeFileAtomic(rep.OutputManifest, data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	fr := NewFailureReport(m.Path, rep.RunID, rep.Results)
	rep.FailureReport, err = writeFailureReport(failureReportPath(outDir, m.Stem()), fr)
	if err != nil {
		return fmt.Errorf("writing failure report: %w", err)
	}

	if _, err := index.Rebuild(outDir); err != nil {
		r.logger.Warn("rebuilding doi index", zap.Error(err))
	}
	return nil
}

// record stores every result in the ledger. It runs even when ctx is
// cancelled so interrupted runs stay visible to the report command.
func (r *Runner) record(ctx context.Context, runID string, rep Report) {
	if r.ledger == nil || runID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, res := range rep.Results {
		if err := r.ledger.RecordJob(ctx, runID, res); err != nil {
			r.logger.Warn("recording job", zap.Error(err))
		}
	}
	if err := r.ledger.FinishRun(ctx, runID, rep.Succeeded(), rep.Failed); err != nil {
		r.logger.Warn("finishing run", zap.Error(err))
	}
}

// ErrNotRetrieved is returned by Download when no route produced content.
var ErrNotRetrieved = errors.New("not retrieved")

// Download processes a single paper into the output directory. With
// convertText false the raw PDF or XML is kept and no Markdown is written.
func (r *Runner) Download(ctx context.Context, ids types.Identifiers, title string, convertText bool) (types.JobResult, error) {
	if ids.Empty() {
		return types.JobResult{}, acquire.ErrNoIdentifier
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return types.JobResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	job := types.NewDocumentJob(1, ids, shortTitle(title), r.cfg.OutputDir)

	var res types.JobResult
	if convertText {
		res = r.runJob(ctx, job, 1, nil, false).result
	} else {
		res = r.fetchOnly(ctx, job)
	}
	if !res.OK() {
		return res, fmt.Errorf("%s: %w", ids.Primary(), ErrNotRetrieved)
	}
	return res, nil
}

func (r *Runner) fetchOnly(ctx context.Context, job types.DocumentJob) types.JobResult {
	start := time.Now()
	res := types.JobResult{Job: job}
	f, err := r.fetcher.Fetch(ctx, job)
	if err != nil {
		r.removeRaw(job, "")
		return r.fail(res, start, reasonOf(err))
	}
	if f.Kind == types.KindXML {
		os.Remove(job.PDFPath)
	} else {
		os.Remove(job.XMLPath)
	}
	res.Status = types.StatusDownloaded
	res.Source = f.Source
	res.Elapsed = time.Since(start)
	r.out.printf("  downloaded: %s (%s)\n", f.Path, f.Source)
	return res
}

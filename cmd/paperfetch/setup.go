// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/acquire"
	"github.com/pdiddy/paperfetch/internal/batch"
	"github.com/pdiddy/paperfetch/internal/convert"
	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/internal/mineru"
	"github.com/pdiddy/paperfetch/internal/secrets"
	"github.com/pdiddy/paperfetch/internal/toolchain"
	"github.com/pdiddy/paperfetch/internal/trim"
	"github.com/pdiddy/paperfetch/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "paperfetch/0.1"
	defaultTool      = "paperfetch"
)

// addConversionFlags registers the flags shared by every command that
// converts documents.
func addConversionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("ocr-lang", "eng", "OCR language")
	f.Int("dpi", 180, "page render resolution for OCR")
	f.Bool("ocr-layout", false, "emit OCR paragraph blocks instead of plain page text")
	f.Bool("layout", false, "enable the local layout-aware PDF converter")
	f.Int("render-threads", 0, "OCR page render pool size (0 = auto)")
	f.Int("max-attempts", 3, "retry budget across the converter chain")
	f.Int("max-pages", 20, "keep at most this many PDF pages (0 = no cap)")
	f.StringSlice("stop-after", nil, "back-matter headings that end the content (default: built-in list)")
	f.Bool("no-trim-markdown", false, "keep back matter in Markdown converted from XML")
	f.Bool("no-remote", false, "never use the remote parsing service")
	f.StringSlice("sections", nil, `keep only these parts of each paper ("default" = title, authors, abstract, introduction, methods, results, discussion, conclusion)`)
}

func conversionConfig(cmd *cobra.Command) types.ConversionConfig {
	f := cmd.Flags()
	var c types.ConversionConfig
	c.OCRLang, _ = f.GetString("ocr-lang")
	c.DPI, _ = f.GetInt("dpi")
	c.OCRLayout, _ = f.GetBool("ocr-layout")
	c.EnableLayout, _ = f.GetBool("layout")
	c.RenderThreads, _ = f.GetInt("render-threads")
	c.MaxAttempts, _ = f.GetInt("max-attempts")
	sections, _ := f.GetStringSlice("sections")
	if !f.Changed("sections") {
		sections = viper.GetStringSlice("conversion.sections")
	}
	c.Sections = trim.ParseSections(sections)
	return c
}

func trimConfig(cmd *cobra.Command) types.TrimConfig {
	f := cmd.Flags()
	var c types.TrimConfig
	c.MaxPages, _ = f.GetInt("max-pages")
	c.StopHeadings, _ = f.GetStringSlice("stop-after")
	noTrim, _ := f.GetBool("no-trim-markdown")
	c.TrimMarkdown = !noTrim
	return c
}

// seconds reads a duration given either as a bare number of seconds or
// in Go duration syntax.
func seconds(key string, fallback time.Duration) time.Duration {
	s := strings.TrimSpace(viper.GetString(key))
	if s == "" {
		return fallback
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	logger.Sugar().Warnf("ignoring invalid duration %s=%q", key, s)
	return fallback
}

func httpConfig() types.HTTPConfig {
	return types.HTTPConfig{
		Timeout:       seconds("mineru.timeout", defaultTimeout),
		UserAgent:     defaultUserAgent,
		ProxyURL:      viper.GetString("mineru.proxy"),
		TrustEnvProxy: viper.GetBool("mineru.trust_env"),
	}
}

func acquisitionConfig() types.AcquisitionConfig {
	email := viper.GetString("ncbi.email")
	if email == "" {
		email = loadedSecrets[secrets.KeyNCBIEmail]
	}
	return types.AcquisitionConfig{
		HTTPConfig:   httpConfig(),
		Mirrors:      viper.GetStringSlice("mirrors"),
		UseOpenAlex:  !viper.IsSet("use_openalex") || viper.GetBool("use_openalex"),
		ContactEmail: email,
		Tool:         defaultTool,
	}
}

// tokenEnv maps a token slot name to its environment variable.
func tokenEnv(key string) string {
	return os.Getenv(strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
}

func remoteConfig() types.RemoteParseConfig {
	return types.RemoteParseConfig{
		BaseURL:      viper.GetString("mineru.base_url"),
		Tokens:       secrets.Tokens(secrets.TokenKeys(secrets.KeyMinerUToken), tokenEnv, func(k string) string { return loadedSecrets[k] }),
		ModelVersion: viper.GetString("mineru.model_version"),
		SubmitRPM:    viper.GetInt("mineru.submit_rpm"),
		PollRPM:      viper.GetInt("mineru.poll_rpm"),
		PollInterval: seconds("mineru.poll_interval", 0),
		PollDeadline: seconds("mineru.poll_deadline", 0),
	}
}

func extractionContext() types.ExtractionContext {
	return types.ExtractionContext{
		Timestamp:         viper.GetString("extraction.extraction_timestamp"),
		ManuscriptSection: viper.GetString("extraction.target_manuscript_section"),
		CitationPointID:   viper.GetString("extraction.citation_point_id"),
		Purpose:           viper.GetString("extraction.extraction_purpose"),
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// pipeline holds the collaborators shared by download, batch and convert.
type pipeline struct {
	engine  *convert.Engine
	trimmer *trim.Trimmer
	remote  *mineru.Client
	tokens  []string
}

// newPipeline probes the host and assembles the converter chain. The
// remote client is built only when a token is configured.
func newPipeline(ctx context.Context, cmd *cobra.Command) (*pipeline, error) {
	conv := conversionConfig(cmd)
	tc := trimConfig(cmd)
	p := &pipeline{trimmer: trim.NewTrimmer(tc, logger)}

	noRemote, _ := cmd.Flags().GetBool("no-remote")
	rc := remoteConfig()
	setup := convert.Setup{
		Toolset:      toolchain.Detect(ctx),
		Conversion:   conv,
		Trim:         tc,
		StopKeywords: p.trimmer.Matcher().Keywords(),
		Logger:       logger,
	}
	if !noRemote && len(rc.Tokens) > 0 {
		client, err := mineru.New(rc, httpConfig(), mineru.NewLimiter(rc), logger)
		if err != nil {
			return nil, fmt.Errorf("building remote client: %w", err)
		}
		p.remote = client
		p.tokens = rc.Tokens
		setup.Remote = client
	}
	p.engine = convert.Build(ctx, setup)
	printChains(os.Stderr, p.engine)
	return p, nil
}

// printChains lists the converters that will be tried for each content
// kind, in order.
func printChains(w io.Writer, eng *convert.Engine) {
	for _, kind := range []types.ContentKind{types.KindPDF, types.KindXML} {
		chain := eng.Chain(kind)
		if len(chain) == 0 {
			chain = []string{"(none)"}
		}
		fmt.Fprintf(w, "Converters (%s): %s\n", kind, strings.Join(chain, " > "))
	}
}

// runner builds a batch runner over p writing to cfg.OutputDir. The
// ledger is optional and closed by the caller.
func (p *pipeline) runner(cfg types.BatchConfig, led *ledger.Ledger) (*batch.Runner, error) {
	fetcher, err := acquire.New(acquisitionConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("building retriever: %w", err)
	}
	d := batch.Deps{
		Fetcher: fetcher,
		Engine:  p.engine,
		Trimmer: p.trimmer,
		Tokens:  p.tokens,
		Ledger:  led,
		Out:     os.Stdout,
		Logger:  logger,
	}
	if p.remote != nil {
		d.Remote = p.remote
	}
	return batch.New(cfg, d), nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfetch/internal/acquire"
	"github.com/pdiddy/paperfetch/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download [identifier]",
	Short: "Retrieve one paper and convert it to Markdown",
	Long: `Download resolves a single paper identifier to full text. The PubMed
Central XML route and the PDF mirror route run concurrently; the first to
deliver content wins and is converted to <output>/<identifier>.md.

The identifier may be given as an argument (its type is detected) or with
--doi, --pmid, --pmcid or --url. With --no-convert the raw PDF or XML is
kept and no Markdown is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	addIdentifierFlags(downloadCmd)
	f := downloadCmd.Flags()
	f.String("title", "", "title shown in progress output")
	f.StringP("output", "o", ".", "output directory")
	f.Bool("no-convert", false, "keep the raw file, skip conversion")
	addConversionFlags(downloadCmd)

	rootCmd.AddCommand(downloadCmd)
}

func addIdentifierFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("doi", "", "paper DOI")
	f.String("pmid", "", "PubMed ID")
	f.String("pmcid", "", "PubMed Central ID")
	f.String("url", "", "direct PDF or landing page URL")
}

func downloadIdentifiers(cmd *cobra.Command, args []string) (types.Identifiers, error) {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}
	ids := types.Identifiers{DOI: get("doi"), PMID: get("pmid"), PMCID: get("pmcid"), URL: get("url")}

	if len(args) == 0 {
		if ids.Empty() {
			return ids, fmt.Errorf("provide an identifier or one of --doi, --pmid, --pmcid, --url")
		}
		return ids, nil
	}
	if !ids.Empty() {
		return ids, fmt.Errorf("give the identifier as an argument or a flag, not both")
	}
	return acquire.Identify(args[0])
}

func runDownload(cmd *cobra.Command, args []string) error {
	ids, err := downloadIdentifiers(cmd, args)
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("output")
	noConvert, _ := cmd.Flags().GetBool("no-convert")
	title, _ := cmd.Flags().GetString("title")
	if title == "" {
		title = ids.Primary()
	}

	ctx, stop := signalContext()
	defer stop()

	p, err := newPipeline(ctx, cmd)
	if err != nil {
		return err
	}
	r, err := p.runner(types.BatchConfig{OutputDir: outDir, KeepRaw: noConvert}, nil)
	if err != nil {
		return err
	}

	res, err := r.Download(ctx, ids, title, !noConvert)
	if err != nil {
		if res.Reason != "" {
			return fmt.Errorf("%w (%s)", err, res.Reason)
		}
		return err
	}
	if res.MarkdownFile != "" {
		fmt.Printf("Saved: %s\n", filepath.Join(outDir, res.MarkdownFile))
	}
	return nil
}

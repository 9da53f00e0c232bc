// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch [manifest]",
	Short: "Retrieve and convert every paper in a JSON manifest",
	Long: `Batch reads a JSON manifest with a "papers" array and processes each
paper on a bounded worker pool. Papers already recorded in the output
directory's DOI index are not fetched again.

On completion it writes <output>/<manifest>.json with only the converted
papers (each annotated with md_file and placeholder evaluation objects),
<output>/<manifest>.failed.yaml when any paper failed, and the refreshed
DOI index. Every run is recorded in <output>/.paperfetch/ledger.db.

The command succeeds when at least one paper was converted or cached.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringP("input", "i", "", "manifest file (alternative to the argument)")
	f.StringP("output", "o", "markdown_output", "output directory")
	f.IntP("workers", "w", 0, "concurrent jobs (0 = auto, 4 to 8)")
	f.Bool("remote-batch", false, "submit all PDFs to the remote service in per-token batches")
	f.Bool("keep-raw", false, "keep downloaded PDF and XML files")
	f.Bool("no-index", false, "ignore the DOI index and fetch every paper")
	f.Bool("no-ledger", false, "do not record the run in the ledger")
	addConversionFlags(batchCmd)

	rootCmd.AddCommand(batchCmd)
}

func batchConfig(cmd *cobra.Command) types.BatchConfig {
	f := cmd.Flags()
	cfg := types.BatchConfig{Context: extractionContext()}
	cfg.OutputDir, _ = f.GetString("output")
	cfg.Workers, _ = f.GetInt("workers")
	cfg.RemoteBatch, _ = f.GetBool("remote-batch")
	cfg.KeepRaw, _ = f.GetBool("keep-raw")
	noIndex, _ := f.GetBool("no-index")
	cfg.UseIndex = !noIndex
	return cfg
}

func runBatch(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	switch {
	case len(args) == 1 && input != "":
		return errors.New("give the manifest as an argument or with --input, not both")
	case len(args) == 1:
		input = args[0]
	case input == "":
		return errors.New("provide a manifest file")
	}
	cfg := batchConfig(cmd)

	ctx, stop := signalContext()
	defer stop()

	var led *ledger.Ledger
	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); !noLedger {
		l, err := ledger.Open(cfg.OutputDir)
		if err != nil {
			return err
		}
		defer l.Close()
		led = l
	}

	p, err := newPipeline(ctx, cmd)
	if err != nil {
		return err
	}
	r, err := p.runner(cfg, led)
	if err != nil {
		return err
	}

	report, err := r.Run(ctx, input)
	if err != nil {
		return err
	}
	if report.OutputManifest != "" {
		fmt.Printf("Manifest: %s\n", report.OutputManifest)
	}
	if report.FailureReport != "" {
		fmt.Printf("Failure report: %s\n", report.FailureReport)
	}
	if report.Total() > 0 && !report.OK() {
		return fmt.Errorf("no paper succeeded (%d failed)", report.Failed)
	}
	return nil
}

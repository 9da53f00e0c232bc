// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfetch/internal/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert local PDF or JATS XML files to Markdown",
	Long: `Convert runs local files through the converter chain without any
retrieval. PDFs are trimmed of back matter first. Each file becomes
<output>/<name>.md; files whose Markdown already exists are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", ".", "output directory")
	addConversionFlags(convertCmd)

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	p, err := newPipeline(ctx, cmd)
	if err != nil {
		return err
	}
	result := convert.ConvertPaths(ctx, p.engine, p.trimmer, args, outDir, os.Stdout)
	if result.HasFailures() && result.Converted+result.Skipped == 0 {
		return fmt.Errorf("%d file(s) failed conversion", result.Failed)
	}
	return nil
}

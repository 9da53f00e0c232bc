// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperfetch/internal/batch"
	"github.com/pdiddy/paperfetch/internal/ledger"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the failed papers of the last batch run",
	Long: `Report reads the run ledger in the output directory and lists the
papers that failed in the most recent batch, with the reason for each.
With --yaml the list is printed in the failure report format so it can be
edited into a retry manifest.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringP("output", "o", "markdown_output", "batch output directory")
	reportCmd.Flags().Bool("yaml", false, "print the failures as YAML")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("output")
	asYAML, _ := cmd.Flags().GetBool("yaml")

	if _, err := os.Stat(ledger.Path(outDir)); os.IsNotExist(err) {
		fmt.Printf("No runs recorded in %s\n", outDir)
		return nil
	}
	led, err := ledger.Open(outDir)
	if err != nil {
		return err
	}
	defer led.Close()

	ctx := context.Background()
	run, err := led.LastRun(ctx)
	if errors.Is(err, ledger.ErrNoRuns) {
		fmt.Printf("No runs recorded in %s\n", outDir)
		return nil
	}
	if err != nil {
		return err
	}
	failures, err := led.Failures(ctx, run.ID)
	if err != nil {
		return err
	}

	if asYAML {
		fr := batch.NewFailureReport(run.Manifest, run.ID, failures)
		fr.Total = run.Total
		data, err := yaml.Marshal(&fr)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	printRun(os.Stdout, run)
	if len(failures) == 0 {
		fmt.Println("\nNo failed papers.")
		return nil
	}
	fmt.Println("\nFailed papers:")
	for _, f := range failures {
		fmt.Printf("  - [%d] %s (%s)\n", f.Job.Index, f.Job.Title, f.Reason)
		if id := f.Job.IDs.Primary(); id != "" {
			fmt.Printf("        %s\n", id)
		}
	}
	return nil
}

func printRun(w io.Writer, run ledger.Run) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Manifest: %s\n", run.Manifest)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt.IsZero() {
		fmt.Fprintln(w, "Finished: (interrupted)")
	} else {
		fmt.Fprintf(w, "Finished: %s (%s)\n", run.FinishedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "Papers:   %d succeeded, %d failed (total: %d)\n", run.Succeeded, run.Failed, run.Total)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperfetch CLI. It retrieves
// scholarly full text by DOI, PMID, PMCID or URL and converts it to
// Markdown, one paper at a time or from a batch manifest.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds the files loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is built in the root pre-run and shared by every command.
var logger = zap.NewNop()

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"mineru.base_url":                      "MINERU_BASE_URL",
	"mineru.model_version":                 "MINERU_MODEL_VERSION",
	"mineru.submit_rpm":                    "MINERU_SUBMIT_RPM",
	"mineru.poll_rpm":                      "MINERU_POLL_RPM",
	"mineru.proxy":                         "MINERU_PROXIES",
	"mineru.trust_env":                     "MINERU_TRUST_ENV",
	"mineru.timeout":                       "MINERU_TIMEOUT",
	"ncbi.email":                           "NCBI_EMAIL",
	"extraction.extraction_timestamp":      "EXTRACTION_TIMESTAMP",
	"extraction.target_manuscript_section": "TARGET_MANUSCRIPT_SECTION",
	"extraction.citation_point_id":         "CITATION_POINT_ID",
	"extraction.extraction_purpose":        "EXTRACTION_PURPOSE",
}

var rootCmd = &cobra.Command{
	Use:   "paperfetch",
	Short: "Retrieve scholarly papers and convert them to Markdown",
	Long: `paperfetch resolves paper identifiers (DOI, PMID, PMCID, URL) to full text,
racing PubMed Central XML against PDF mirrors, and converts the result to
Markdown through a chain of local and remote converters.

Use download for a single paper and batch for a JSON manifest. Batch runs
keep a DOI index in the output directory so papers are not fetched twice.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperfetch.yaml or ~/.config/paperfetch/paperfetch.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "development logging at debug level")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperfetch"))
		}
	}

	for key, env := range envBindings {
		_ = viper.BindEnv(key, env)
	}
	viper.SetEnvPrefix("PAPERFETCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

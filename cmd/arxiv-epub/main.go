// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the arxiv-epub CLI. The root command
// reads a list of arXiv URLs and writes an EPUB and/or PDF for each paper;
// the catalog subcommands inspect the local metadata cache and run log.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-epub/internal/catalog"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd converts every paper listed in the input file.
var rootCmd = &cobra.Command{
	Use:   "arxiv-epub",
	Short: "Turn a list of arXiv URLs into EPUB and PDF files",
	Long: `arxiv-epub reads a text file with one arXiv URL per line and, for each
paper, writes "{Surname} {Year} - {Title}.epub" from the ar5iv HTML rendering
(images downloaded locally, math rendered as MathML by pandoc) and/or the
same name with ".pdf" from arXiv.

Outputs that already exist are skipped, so re-running over the same list only
does the missing work. A failure on one paper is reported and the batch moves
on; the command exits non-zero if any artifact failed.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBatch,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./arxiv-epub.yaml or ~/.config/arxiv-epub/arxiv-epub.yaml)")
	pf.String("catalog", catalog.DefaultPath, `SQLite metadata cache and run log ("" disables)`)

	f := rootCmd.Flags()
	f.StringP("input", "i", "", "file with one arXiv URL per line (required)")
	f.StringP("epub-output", "o", "", "directory for generated EPUB files")
	f.StringP("pdf-output", "p", "", "directory for downloaded PDF files")
	f.IntP("workers", "w", defaultWorkers, "papers processed concurrently")
	f.Int("image-workers", defaultImageWorkers, "concurrent image downloads per paper")
	f.Duration("timeout", defaultTimeout, "timeout for each HTTP request")
	f.Int("max-retries", defaultMaxRetries, "retries for throttled or failed HTTP requests")
	f.Duration("api-delay", defaultAPIDelay, "minimum spacing between arXiv API queries")
	f.String("user-agent", defaultUserAgent, "User-Agent header for HTTP requests")
	f.String("backend", defaultBackend, "converter backend: pandoc or container")
	f.String("pandoc", "", "pandoc binary for the pandoc backend")
	f.String("image", defaultImage, "pandoc image for the container backend")
	f.String("report", "", "write a YAML run report to this path")
	f.Bool("progress", false, "show a progress bar on stderr")

	bindFlags(rootCmd)
}

// flagKeys maps flag names to viper keys where the two differ.
var flagKeys = map[string]string{
	"backend": "converter.backend",
	"pandoc":  "converter.pandoc_path",
	"image":   "converter.image",
}

// bindFlags binds every flag of cmd to its viper key ("epub-output" becomes
// "epub_output").
func bindFlags(cmd *cobra.Command) {
	bind := func(fl *pflag.Flag) {
		key, ok := flagKeys[fl.Name]
		if !ok {
			key = strings.ReplaceAll(fl.Name, "-", "_")
		}
		if key == "config" {
			return
		}
		_ = viper.BindPFlag(key, fl)
	}
	cmd.PersistentFlags().VisitAll(bind)
	cmd.Flags().VisitAll(bind)
}

func initConfig() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("arxiv-epub")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "arxiv-epub"))
		}
	}

	viper.SetEnvPrefix("ARXIV_EPUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

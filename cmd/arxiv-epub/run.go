// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/internal/batch"
	"github.com/pdiddy/arxiv-epub/internal/catalog"
	"github.com/pdiddy/arxiv-epub/internal/convert"
	"github.com/pdiddy/arxiv-epub/internal/localize"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 0
	defaultWorkers      = 1
	defaultImageWorkers = 4
	defaultAPIDelay     = 3 * time.Second
	defaultUserAgent    = "arxiv-epub/0.1"
	defaultBackend      = string(types.BackendPandoc)
	defaultImage        = "pandoc/core:3.5"
)

// configFrom assembles the batch configuration from v.
func configFrom(v *viper.Viper) types.BatchConfig {
	return types.BatchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:    v.GetDuration("timeout"),
			UserAgent:  v.GetString("user_agent"),
			MaxRetries: v.GetInt("max_retries"),
		},
		SourceConfig: types.SourceConfig{
			HTMLBase: v.GetString("html_base"),
			PDFBase:  v.GetString("pdf_base"),
			APIBase:  v.GetString("api_base"),
			APIDelay: v.GetDuration("api_delay"),
		},
		Input:        v.GetString("input"),
		EPUBOutput:   v.GetString("epub_output"),
		PDFOutput:    v.GetString("pdf_output"),
		Workers:      v.GetInt("workers"),
		ImageWorkers: v.GetInt("image_workers"),
		Catalog:      v.GetString("catalog"),
		Report:       v.GetString("report"),
		Converter: types.ConverterConfig{
			Backend:    types.ConverterBackend(v.GetString("converter.backend")),
			PandocPath: v.GetString("converter.pandoc_path"),
			Image:      v.GetString("converter.image"),
			Stylesheet: v.GetString("converter.stylesheet"),
		},
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := configFrom(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner, closeFn, err := newRunner(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if viper.GetBool("progress") {
		runner.Progress = os.Stderr
	}

	result, err := runner.RunFile(ctx, cfg.Input, os.Stdout)
	if err != nil {
		return err
	}

	if cfg.Report != "" {
		if err := batch.WriteReport(cfg.Report, result); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s\n", cfg.Report)
	}

	fmt.Println("Finished processing.")
	if result.HasFailures() {
		return fmt.Errorf("%d artifact(s) failed", result.Failed)
	}
	return nil
}

// newRunner wires the batch collaborators for cfg. The returned function
// releases the catalog.
func newRunner(cfg types.BatchConfig) (*batch.Runner, func(), error) {
	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	var resolver acquire.Resolver = acquire.NewArxivResolver(client, cfg.HTTPConfig, cfg.SourceConfig)
	runner := &batch.Runner{Workers: cfg.Workers}
	closeFn := func() {}

	if cfg.Catalog != "" {
		store, err := catalog.Open(cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { store.Close() }
		resolver = catalog.NewCachedResolver(store, resolver, os.Stderr)
		runner.Recorder = store
	}
	runner.Resolver = resolver

	if cfg.EPUBOutput != "" {
		conv, err := convert.New(cfg.Converter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			conv = convert.Unavailable(err)
		}
		runner.Converter = conv
		runner.Localizer = localize.New(client, cfg.HTTPConfig, cfg.HTMLBase, cfg.ImageWorkers)
		runner.EPUBDir = cfg.EPUBOutput
	}
	if cfg.PDFOutput != "" {
		runner.PDF = acquire.NewPDFFetcher(client, cfg.HTTPConfig, cfg.PDFBase)
		runner.PDFDir = cfg.PDFOutput
	}
	return runner, closeFn, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch drives a list of arXiv URLs through identification, metadata
// resolution, EPUB generation and PDF download. Each URL is processed
// independently: a failure is logged and recorded, and the batch continues.
// Existing output files are never regenerated.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/internal/convert"
	"github.com/pdiddy/arxiv-epub/internal/localize"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// Localizer fetches a paper's HTML and localizes its images.
type Localizer interface {
	Localize(ctx context.Context, id types.Identifier, imageDir string, w io.Writer) (*localize.Document, error)
}

// PDFFetcher downloads a paper's PDF to destPath.
type PDFFetcher interface {
	Fetch(ctx context.Context, id types.Identifier, destPath string) error
}

// Recorder persists run outcomes. catalog.Store satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, id uuid.UUID, input string) error
	RecordOutcome(ctx context.Context, runID uuid.UUID, o types.ArtifactOutcome) error
	FinishRun(ctx context.Context, id uuid.UUID, produced, skipped, failed int) error
}

// Runner holds the collaborators and output locations of a batch.
// Localizer and Converter are required when EPUBDir is set, PDF when
// PDFDir is set.
type Runner struct {
	Resolver  acquire.Resolver
	Localizer Localizer
	Converter convert.Converter
	PDF       PDFFetcher

	// Recorder, when set, receives every outcome.
	Recorder Recorder

	// EPUBDir and PDFDir are the output directories. An empty directory
	// disables that artifact.
	EPUBDir string
	PDFDir  string

	// Workers is the number of URLs processed concurrently.
	Workers int

	// Progress, when set, receives a progress bar over the URL list.
	Progress io.Writer

	locks sync.Map // types.Identifier -> *sync.Mutex
}

// Result holds the outcome of a batch run.
type Result struct {
	RunID      uuid.UUID
	Input      string
	StartedAt  time.Time
	FinishedAt time.Time

	Produced int
	Skipped  int
	Failed   int

	// Outcomes lists one entry per requested artifact per URL, in input order.
	Outcomes []types.ArtifactOutcome
}

// Total returns the number of artifact outcomes.
func (r Result) Total() int {
	return r.Produced + r.Skipped + r.Failed
}

// HasFailures reports whether any artifact failed.
func (r Result) HasFailures() bool {
	return r.Failed > 0
}

// RunFile reads URLs from path and runs them.
func (r *Runner) RunFile(ctx context.Context, path string, w io.Writer) (Result, error) {
	urls, err := ReadURLs(path)
	if err != nil {
		return Result{}, err
	}
	return r.run(ctx, path, urls, w)
}

// Run processes urls, printing per-artifact status lines and a summary to w.
// Per-URL failures are counted in the Result; the error reports only
// problems that prevent the batch from starting.
func (r *Runner) Run(ctx context.Context, urls []string, w io.Writer) (Result, error) {
	return r.run(ctx, "", urls, w)
}

func (r *Runner) run(ctx context.Context, input string, urls []string, w io.Writer) (Result, error) {
	if r.EPUBDir == "" && r.PDFDir == "" {
		return Result{}, fmt.Errorf("no output directory configured")
	}
	for _, dir := range []string{r.EPUBDir, r.PDFDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}

	result := Result{RunID: uuid.New(), Input: input, StartedAt: time.Now()}
	if r.Recorder != nil {
		if err := r.Recorder.StartRun(ctx, result.RunID, input); err != nil {
			fmt.Fprintf(w, "  warning: %v\n", err)
		}
	}

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(len(urls),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionSetDescription("Processing papers"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	perURL := make([][]types.ArtifactOutcome, len(urls))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, u := range urls {
		g.Go(func() error {
			var buf bytes.Buffer
			outcomes := r.processURL(ctx, u, &buf)
			r.record(ctx, result.RunID, outcomes, &buf)

			mu.Lock()
			defer mu.Unlock()
			perURL[i] = outcomes
			w.Write(buf.Bytes())
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	if bar != nil {
		bar.Finish()
	}

	for _, outcomes := range perURL {
		for _, o := range outcomes {
			switch o.Status {
			case types.StatusProduced:
				result.Produced++
			case types.StatusSkipped:
				result.Skipped++
			case types.StatusFailed:
				result.Failed++
			}
			result.Outcomes = append(result.Outcomes, o)
		}
	}
	result.FinishedAt = time.Now()

	if r.Recorder != nil {
		if err := r.Recorder.FinishRun(ctx, result.RunID, result.Produced, result.Skipped, result.Failed); err != nil {
			fmt.Fprintf(w, "  warning: %v\n", err)
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d produced, %d skipped, %d failed (total: %d)\n",
		result.Produced, result.Skipped, result.Failed, result.Total())
	return result, nil
}

func (r *Runner) record(ctx context.Context, runID uuid.UUID, outcomes []types.ArtifactOutcome, w io.Writer) {
	if r.Recorder == nil {
		return
	}
	for _, o := range outcomes {
		if err := r.Recorder.RecordOutcome(ctx, runID, o); err != nil {
			fmt.Fprintf(w, "  warning: %v\n", err)
		}
	}
}

// requested returns the artifact kinds this runner produces.
func (r *Runner) requested() []types.ArtifactKind {
	var kinds []types.ArtifactKind
	if r.EPUBDir != "" {
		kinds = append(kinds, types.ArtifactEPUB)
	}
	if r.PDFDir != "" {
		kinds = append(kinds, types.ArtifactPDF)
	}
	return kinds
}

// processURL runs one URL to completion and returns an outcome for every
// requested artifact.
func (r *Runner) processURL(ctx context.Context, rawURL string, w io.Writer) []types.ArtifactOutcome {
	kinds := r.requested()
	outcomes := make([]types.ArtifactOutcome, len(kinds))
	for i, k := range kinds {
		outcomes[i] = types.ArtifactOutcome{URL: rawURL, Kind: k}
	}
	failAll := func(err error) []types.ArtifactOutcome {
		fmt.Fprintf(w, "failed:  %s (%v)\n", rawURL, err)
		now := time.Now()
		for i := range outcomes {
			outcomes[i].Failed(err)
			outcomes[i].FinishedAt = now
		}
		return outcomes
	}

	fmt.Fprintf(w, "processing: %s\n", rawURL)

	id, err := acquire.ParseIdentifier(rawURL)
	if err != nil {
		return failAll(err)
	}
	for i := range outcomes {
		outcomes[i].Identifier = id
	}

	unlock := r.lock(id)
	defer unlock()

	meta, err := r.Resolver.Resolve(ctx, id)
	if err != nil {
		return failAll(fmt.Errorf("resolving metadata for %s: %w", id, err))
	}

	for i := range outcomes {
		o := &outcomes[i]
		switch o.Kind {
		case types.ArtifactEPUB:
			o.Path = acquire.OutputPath(r.EPUBDir, *meta, types.ArtifactEPUB)
			r.artifact(o, w, "generated", func() error {
				return r.generateEPUB(ctx, id, meta, o.Path, w)
			})
		case types.ArtifactPDF:
			o.Path = acquire.OutputPath(r.PDFDir, *meta, types.ArtifactPDF)
			r.artifact(o, w, "downloaded", func() error {
				return r.PDF.Fetch(ctx, id, o.Path)
			})
		}
	}
	return outcomes
}

// artifact skips o when its output exists, otherwise runs produce and sets
// the terminal status.
func (r *Runner) artifact(o *types.ArtifactOutcome, w io.Writer, verb string, produce func() error) {
	defer func() { o.FinishedAt = time.Now() }()

	if _, err := os.Stat(o.Path); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", o.Path)
		o.Status = types.StatusSkipped
		return
	}
	if err := produce(); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", o.URL, err)
		o.Failed(err)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", verb, o.Path)
	o.Status = types.StatusProduced
}

// generateEPUB localizes the paper's HTML and converts it. The image
// directory is removed whatever the outcome.
func (r *Runner) generateEPUB(ctx context.Context, id types.Identifier, meta *types.PaperMetadata, path string, w io.Writer) error {
	imageDir := localize.ImageDir(r.EPUBDir, id)
	defer func() {
		if err := os.RemoveAll(imageDir); err != nil {
			fmt.Fprintf(w, "  warning: removing %s: %v\n", imageDir, err)
		}
	}()

	doc, err := r.Localizer.Localize(ctx, id, imageDir, w)
	if err != nil {
		return err
	}
	if doc.Failed > 0 {
		fmt.Fprintf(w, "  warning: %d of %d images left remote\n", doc.Failed, doc.Failed+doc.Localized)
	}

	err = r.Converter.Convert(ctx, convert.Request{
		HTML:        doc.HTML,
		OutputPath:  path,
		ResourceDir: doc.ImageDir,
		Metadata:    *meta,
	})
	if err != nil {
		return fmt.Errorf("generating EPUB for %s: %w", id, err)
	}
	return nil
}

// lock serializes work on one identifier across workers, since two URLs
// may name the same paper and share its image directory and outputs.
func (r *Runner) lock(id types.Identifier) func() {
	v, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

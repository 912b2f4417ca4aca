// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/internal/catalog"
	"github.com/pdiddy/arxiv-epub/internal/convert"
	"github.com/pdiddy/arxiv-epub/internal/localize"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/%s</id>
    <title>%s</title>
    <published>2023-01-01T00:00:00Z</published>
    <author><name>%s</name></author>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

const paperHTML = `<html><body>
<h1>Paper</h1>
<img src="data:image/png;base64,iVBORw0KGgo=">
<img src="/img/fig1.png">
<math><mi>x</mi></math>
</body></html>`

const fakePDF = "%PDF-1.4..."

var papers = map[string][2]string{
	"2301.00001": {"A Study", "John Smith"},
	"2301.00002": {"Second Paper", "Ada Lovelace"},
}

// fakeArxiv serves the metadata API, the HTML mirror, images and PDFs,
// counting every request.
type fakeArxiv struct {
	*httptest.Server
	hits atomic.Int64
}

func newFakeArxiv(t *testing.T) *fakeArxiv {
	t.Helper()
	f := &fakeArxiv{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch {
		case r.URL.Path == "/api/query":
			id := r.URL.Query().Get("id_list")
			p, ok := papers[id]
			if !ok {
				fmt.Fprint(w, emptyFeed)
				return
			}
			fmt.Fprintf(w, feedTemplate, id, p[0], p[1])
		case strings.HasPrefix(r.URL.Path, "/html/"):
			if _, ok := papers[strings.TrimPrefix(r.URL.Path, "/html/")]; !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, paperHTML)
		case r.URL.Path == "/img/fig1.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("\x89PNG fake"))
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/pdf/"), ".pdf")
			if _, ok := papers[id]; !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, fakePDF)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// fakeConverter writes a stub EPUB after checking the localized images exist.
type fakeConverter struct {
	mu    sync.Mutex
	reqs  []convert.Request
	fail  error
	check func(req convert.Request) error
}

func (c *fakeConverter) Convert(_ context.Context, req convert.Request) error {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if c.check != nil {
		if err := c.check(req); err != nil {
			return err
		}
	}
	if c.fail != nil {
		return c.fail
	}
	return os.WriteFile(req.OutputPath, []byte("epub"), 0o644)
}

func (c *fakeConverter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []uuid.UUID
	outcomes []types.ArtifactOutcome
	finished [3]int
}

func (r *fakeRecorder) StartRun(_ context.Context, id uuid.UUID, _ string) error {
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, _ uuid.UUID, o types.ArtifactOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, _ uuid.UUID, produced, skipped, failed int) error {
	r.finished = [3]int{produced, skipped, failed}
	return nil
}

func newRunner(srv *fakeArxiv, conv convert.Converter, resolver acquire.Resolver) *Runner {
	client := srv.Client()
	httpCfg := types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "arxiv-epub-test/1.0"}
	if resolver == nil {
		resolver = acquire.NewArxivResolver(client, httpCfg, types.SourceConfig{APIBase: srv.URL + "/api/query"})
	}
	return &Runner{
		Resolver:  resolver,
		Localizer: localize.New(client, httpCfg, srv.URL+"/html/", 2),
		Converter: conv,
		PDF:       acquire.NewPDFFetcher(client, httpCfg, srv.URL+"/pdf/"),
		Workers:   1,
	}
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestRunFileEndToEnd(t *testing.T) {
	srv := newFakeArxiv(t)
	epubDir := filepath.Join(t.TempDir(), "epubs")
	conv := &fakeConverter{check: func(req convert.Request) error {
		img := filepath.Join(req.ResourceDir, "fig1.png")
		if _, err := os.Stat(img); err != nil {
			return fmt.Errorf("image not localized: %w", err)
		}
		if !strings.Contains(req.HTML, img) {
			return fmt.Errorf("html does not reference %s", img)
		}
		return nil
	}}
	r := newRunner(srv, conv, nil)
	r.EPUBDir = epubDir

	var out bytes.Buffer
	result, err := r.RunFile(context.Background(), writeInput(t, "https://arxiv.org/abs/2301.00001"), &out)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Produced)
	assert.False(t, result.HasFailures())
	assert.FileExists(t, filepath.Join(epubDir, "Smith 2023 - A Study.epub"))
	assert.NoDirExists(t, filepath.Join(epubDir, "2301.00001_images"))

	require.Len(t, conv.reqs, 1)
	assert.Equal(t, "A Study", conv.reqs[0].Metadata.Title)
	assert.Contains(t, conv.reqs[0].HTML, "data:image/png;base64,iVBORw0KGgo=")

	assert.Contains(t, out.String(), "processing: https://arxiv.org/abs/2301.00001")
	assert.Contains(t, out.String(), "generated: ")
	assert.Contains(t, out.String(), "Batch summary: 1 produced, 0 skipped, 0 failed (total: 1)")
	assert.NotEqual(t, uuid.Nil, result.RunID)
}

func TestRunIdempotentSecondRunMakesNoRequests(t *testing.T) {
	srv := newFakeArxiv(t)
	dir := t.TempDir()

	store, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer store.Close()

	client := srv.Client()
	httpCfg := types.HTTPConfig{Timeout: 5 * time.Second}
	resolver := catalog.NewCachedResolver(store,
		acquire.NewArxivResolver(client, httpCfg, types.SourceConfig{APIBase: srv.URL + "/api/query"}), nil)

	conv := &fakeConverter{}
	r := newRunner(srv, conv, resolver)
	r.EPUBDir = filepath.Join(dir, "epubs")
	r.PDFDir = filepath.Join(dir, "pdfs")
	r.Recorder = store

	input := writeInput(t, "https://arxiv.org/abs/2301.00001")

	first, err := r.RunFile(context.Background(), input, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Produced)
	require.Positive(t, srv.hits.Load())

	srv.hits.Store(0)
	var out bytes.Buffer
	second, err := r.RunFile(context.Background(), input, &out)
	require.NoError(t, err)

	assert.Equal(t, int64(0), srv.hits.Load(), "second run must not touch the network")
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Produced)
	assert.Equal(t, 1, conv.calls())
	assert.Contains(t, out.String(), "(already exists)")

	runs, err := store.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunIsolatesFailures(t *testing.T) {
	srv := newFakeArxiv(t)
	epubDir := filepath.Join(t.TempDir(), "epubs")
	r := newRunner(srv, &fakeConverter{}, nil)
	r.EPUBDir = epubDir

	var out bytes.Buffer
	result, err := r.Run(context.Background(), []string{
		"https://arxiv.org/abs/2301.99999",
		"https://arxiv.org/abs/2301.00002",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Produced)
	assert.True(t, result.HasFailures())
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "metadata_not_found", result.Outcomes[0].ErrorKind)
	assert.Equal(t, types.StatusProduced, result.Outcomes[1].Status)
	assert.FileExists(t, filepath.Join(epubDir, "Lovelace 2023 - Second Paper.epub"))
	assert.Contains(t, out.String(), "failed:  https://arxiv.org/abs/2301.99999")
}

func TestRunMalformedURL(t *testing.T) {
	srv := newFakeArxiv(t)
	r := newRunner(srv, &fakeConverter{}, nil)
	r.EPUBDir = filepath.Join(t.TempDir(), "epubs")
	r.PDFDir = filepath.Join(t.TempDir(), "pdfs")

	result, err := r.Run(context.Background(), []string{"https://example.com/not-a-paper"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	for _, o := range result.Outcomes {
		assert.Equal(t, "malformed_identifier", o.ErrorKind)
		assert.Empty(t, o.Path)
	}
	assert.Equal(t, int64(0), srv.hits.Load())
}

func TestRunPDFOnly(t *testing.T) {
	srv := newFakeArxiv(t)
	pdfDir := filepath.Join(t.TempDir(), "pdfs")
	conv := &fakeConverter{}
	r := newRunner(srv, conv, nil)
	r.PDFDir = pdfDir

	var out bytes.Buffer
	result, err := r.Run(context.Background(), []string{"arXiv:2301.00001"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Produced)
	assert.Equal(t, 0, conv.calls())
	data, err := os.ReadFile(filepath.Join(pdfDir, "Smith 2023 - A Study.pdf"))
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(data))
	assert.Contains(t, out.String(), "downloaded: ")
}

func TestRunConversionFailureRemovesImages(t *testing.T) {
	srv := newFakeArxiv(t)
	epubDir := filepath.Join(t.TempDir(), "epubs")
	conv := &fakeConverter{fail: fmt.Errorf("%w: pandoc exited 64", types.ErrConversion)}
	r := newRunner(srv, conv, nil)
	r.EPUBDir = epubDir

	result, err := r.Run(context.Background(), []string{"https://arxiv.org/abs/2301.00001"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "conversion", result.Outcomes[0].ErrorKind)
	assert.NoFileExists(t, filepath.Join(epubDir, "Smith 2023 - A Study.epub"))
	assert.NoDirExists(t, filepath.Join(epubDir, "2301.00001_images"))
}

func TestRunWorkersSerializeSameIdentifier(t *testing.T) {
	srv := newFakeArxiv(t)
	conv := &fakeConverter{}
	r := newRunner(srv, conv, nil)
	r.EPUBDir = filepath.Join(t.TempDir(), "epubs")
	r.Workers = 3

	urls := []string{
		"https://arxiv.org/abs/2301.00001",
		"https://arxiv.org/pdf/2301.00001.pdf",
		"https://arxiv.org/abs/2301.00002",
	}
	result, err := r.Run(context.Background(), urls, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Produced)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, conv.calls())
	require.Len(t, result.Outcomes, 3)
	for i, u := range urls {
		assert.Equal(t, u, result.Outcomes[i].URL)
	}
}

func TestRunRecordsOutcomes(t *testing.T) {
	srv := newFakeArxiv(t)
	rec := &fakeRecorder{}
	r := newRunner(srv, &fakeConverter{}, nil)
	r.EPUBDir = filepath.Join(t.TempDir(), "epubs")
	r.Recorder = rec

	result, err := r.Run(context.Background(), []string{
		"https://arxiv.org/abs/2301.00001",
		"https://arxiv.org/abs/2301.99999",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	assert.Equal(t, result.RunID, rec.started[0])
	assert.Len(t, rec.outcomes, 2)
	assert.Equal(t, [3]int{1, 0, 1}, rec.finished)
}

func TestRunProgressBarDrawsBeforeFirstPaper(t *testing.T) {
	srv := newFakeArxiv(t)
	var bar bytes.Buffer
	r := newRunner(srv, &fakeConverter{}, nil)
	r.PDFDir = filepath.Join(t.TempDir(), "pdfs")
	r.Progress = &bar

	_, err := r.Run(context.Background(), []string{"2301.00001", "2301.00002"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, bar.String(), "Processing papers")
}

func TestRunRequiresOutputDir(t *testing.T) {
	r := &Runner{}
	_, err := r.Run(context.Background(), []string{"2301.00001"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestReadURLs(t *testing.T) {
	path := writeInput(t,
		"# reading list",
		"https://arxiv.org/abs/2301.00001",
		"",
		"   ",
		"  https://arxiv.org/abs/2301.00002  ",
	)
	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://arxiv.org/abs/2301.00001",
		"https://arxiv.org/abs/2301.00002",
	}, urls)

	_, err = ReadURLs(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	result := Result{
		RunID:    uuid.New(),
		Input:    "urls.txt",
		Produced: 1,
		Failed:   1,
		Outcomes: []types.ArtifactOutcome{
			{URL: "a", Kind: types.ArtifactEPUB, Status: types.StatusProduced, Path: "epubs/a.epub"},
			{URL: "b", Kind: types.ArtifactEPUB, Status: types.StatusFailed, ErrorKind: "network", Error: "boom"},
		},
	}
	path := filepath.Join(t.TempDir(), "reports", "run.yaml")
	require.NoError(t, WriteReport(path, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, result.RunID.String(), got.RunID)
	assert.Equal(t, ReportSummary{Produced: 1, Failed: 1, Total: 2}, got.Summary)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, "boom", got.Outcomes[1].Error)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package localize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

const dataURL = "data:image/png;base64,iVBORw0KGgo="

const pngBytes = "\x89PNG\r\n\x1a\nfake"

func testHTTPConfig() types.HTTPConfig {
	return types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "arxiv-epub-test/0.1"}
}

// newMirror serves one paper page at /html/2301.00001 plus its images.
func newMirror(t *testing.T, page string) (*httptest.Server, *int32) {
	t.Helper()
	var imageHits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html/2301.00001":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page)
		case "/html/2301.00001/assets/x1.png", "/static/x1.png", "/html/2301.00001/assets/plot.svg":
			atomic.AddInt32(&imageHits, 1)
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, pngBytes)
		default:
			atomic.AddInt32(&imageHits, 1)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &imageHits
}

func srcs(t *testing.T, html string) []string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	var out []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("src")
		out = append(out, v)
	})
	return out
}

func TestLocalizeRewritesHTTPImagesAndKeepsDataURLs(t *testing.T) {
	page := `<html><body>
<img src="` + dataURL + `">
<img src="/html/2301.00001/assets/x1.png" alt="fig 1">
</body></html>`
	ts, _ := newMirror(t, page)

	l := New(ts.Client(), testHTTPConfig(), ts.URL+"/html/", 2)
	dir := ImageDir(t.TempDir(), "2301.00001")
	var log bytes.Buffer

	doc, err := l.Localize(context.Background(), "2301.00001", dir, &log)
	require.NoError(t, err)

	got := srcs(t, doc.HTML)
	require.Len(t, got, 2)
	assert.Equal(t, dataURL, got[0])

	absDir, err := filepath.Abs(dir)
	require.NoError(t, err)
	want := filepath.Join(absDir, "x1.png")
	assert.Equal(t, want, got[1])
	assert.True(t, filepath.IsAbs(got[1]))

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, string(data))

	assert.Equal(t, 1, doc.Localized)
	assert.Equal(t, 0, doc.Failed)
	assert.Equal(t, absDir, doc.ImageDir)
	assert.Empty(t, log.String())
}

func TestLocalizeToleratesImageFailures(t *testing.T) {
	page := `<html><body>
<p>Intro</p>
<img src="assets/missing.png">
<img src="/static/x1.png">
</body></html>`
	ts, _ := newMirror(t, page)

	l := New(ts.Client(), testHTTPConfig(), ts.URL+"/html/", 2)
	dir := ImageDir(t.TempDir(), "2301.00001")
	var log bytes.Buffer

	doc, err := l.Localize(context.Background(), "2301.00001", dir, &log)
	require.NoError(t, err)

	got := srcs(t, doc.HTML)
	require.Len(t, got, 2)
	assert.Equal(t, "assets/missing.png", got[0], "failed image keeps its original src")
	assert.True(t, filepath.IsAbs(got[1]))

	assert.Contains(t, doc.HTML, "<p>Intro</p>")
	assert.Equal(t, 1, doc.Failed)
	assert.Equal(t, 1, doc.Localized)
	assert.Contains(t, log.String(), "warning: image")
	assert.Contains(t, log.String(), "missing.png")
	assert.NoFileExists(t, filepath.Join(dir, "missing.png"))
}

func TestLocalizeDownloadsSharedImageOnce(t *testing.T) {
	page := `<html><body>
<img src="/html/2301.00001/assets/x1.png">
<img src="/html/2301.00001/assets/x1.png#again">
<img src="/static/x1.png">
</body></html>`
	ts, hits := newMirror(t, page)

	l := New(ts.Client(), testHTTPConfig(), ts.URL+"/html/", 4)
	dir := ImageDir(t.TempDir(), "2301.00001")

	doc, err := l.Localize(context.Background(), "2301.00001", dir, &bytes.Buffer{})
	require.NoError(t, err)

	got := srcs(t, doc.HTML)
	require.Len(t, got, 3)
	assert.Equal(t, got[0], got[1])
	assert.NotEqual(t, got[0], got[2], "same basename from different URLs must not collide")
	assert.Equal(t, "x1.png", filepath.Base(got[0]))
	assert.Equal(t, "x1-2.png", filepath.Base(got[2]))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestLocalizeIsIdempotentOnExistingDir(t *testing.T) {
	ts, _ := newMirror(t, `<html><body><img src="/static/x1.png"></body></html>`)
	l := New(ts.Client(), testHTTPConfig(), ts.URL+"/html/", 1)
	dir := ImageDir(t.TempDir(), "2301.00001")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := l.Localize(context.Background(), "2301.00001", dir, &bytes.Buffer{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "x1.png"))
}

func TestLocalizeHTMLFetchFailure(t *testing.T) {
	ts, _ := newMirror(t, "")
	l := New(ts.Client(), testHTTPConfig(), ts.URL+"/html/", 1)
	dir := ImageDir(t.TempDir(), "2301.09999")

	_, err := l.Localize(context.Background(), "2301.09999", dir, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransientNetwork))
	assert.NoDirExists(t, dir, "image directory is only created after the HTML arrives")
}

func TestImageDir(t *testing.T) {
	assert.Equal(t, filepath.Join("epubs", "2301.00001_images"), ImageDir("epubs", "2301.00001"))
	assert.Equal(t, filepath.Join("epubs", "hep-th_9901001_images"), ImageDir("epubs", "hep-th/9901001"))
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a.png", uniqueName("a.png", used))
	assert.Equal(t, "a-2.png", uniqueName("a.png", used))
	assert.Equal(t, "a-3.png", uniqueName("a.png", used))
	assert.Equal(t, "b", uniqueName("b", used))
	assert.Equal(t, "b-2", uniqueName("b", used))
}

func TestIsDataURL(t *testing.T) {
	assert.True(t, isDataURL(dataURL))
	assert.True(t, isDataURL("DATA:image/gif;base64,R0lG"))
	assert.False(t, isDataURL("/assets/data.png"))
	assert.False(t, isDataURL("data"))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package localize fetches the HTML rendering of a paper and rewrites its
// images to point at local copies, so the converter never touches the
// network.
package localize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/internal/httputil"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

const defaultWorkers = 4

// Document is a rendered paper whose downloadable images now reference
// files under ImageDir.
type Document struct {
	// HTML is the serialized document tree.
	HTML string

	// SourceURL is the final URL the HTML was served from, after redirects.
	SourceURL string

	// ImageDir is the absolute path of the per-paper image directory.
	ImageDir string

	// Localized counts img elements rewritten to a local file.
	Localized int

	// Failed counts img elements left pointing at their remote source.
	Failed int
}

// Localizer fetches HTML from the rendering mirror and downloads its images.
type Localizer struct {
	client  *http.Client
	http    types.HTTPConfig
	base    string
	workers int
}

// New creates a Localizer for the mirror at htmlBase (or ar5iv when empty).
// workers bounds concurrent image downloads within one document.
func New(client *http.Client, httpCfg types.HTTPConfig, htmlBase string, workers int) *Localizer {
	if htmlBase == "" {
		htmlBase = acquire.DefaultHTMLBase
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Localizer{client: client, http: httpCfg, base: htmlBase, workers: workers}
}

// ImageDir returns the per-paper image directory "{dir}/{id}_images".
func ImageDir(dir string, id types.Identifier) string {
	return filepath.Join(dir, id.Slug()+"_images")
}

// image is one distinct remote image referenced by the document.
type image struct {
	url       string
	localPath string
	err       error
}

// Localize fetches {base}/{id}, downloads every non-data-URL image into
// imageDir and rewrites each successfully downloaded img src to the file's
// absolute path. Image failures are reported on w and leave src unchanged;
// only failures to fetch or parse the HTML itself are returned.
func (l *Localizer) Localize(ctx context.Context, id types.Identifier, imageDir string, w io.Writer) (*Document, error) {
	pageURL := acquire.HTMLURL(l.base, id)
	resp, err := httputil.Get(ctx, l.client, pageURL, httputil.OptionsFrom(l.http, "text/html"))
	if err != nil {
		return nil, fmt.Errorf("fetching HTML for %s: %w", id, err)
	}
	defer resp.Body.Close()

	docURL := resp.Request.URL
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &httputil.FetchError{URL: pageURL, Cause: fmt.Errorf("parsing HTML: %w", err)}
	}

	absDir, err := filepath.Abs(imageDir)
	if err != nil {
		return nil, fmt.Errorf("resolving image directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory %s: %w", absDir, err)
	}

	images, refs := planImages(doc, docURL, absDir, w)
	l.download(ctx, images)

	result := &Document{SourceURL: docURL.String(), ImageDir: absDir}
	for _, ref := range refs {
		img := images[ref.key]
		if img.err != nil {
			fmt.Fprintf(w, "  warning: image %s: %v\n", img.url, img.err)
			result.Failed++
			continue
		}
		ref.sel.SetAttr("src", img.localPath)
		result.Localized++
	}

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serializing HTML for %s: %w", id, err)
	}
	result.HTML = html
	return result, nil
}

// imageRef ties an img element to the distinct image it references.
type imageRef struct {
	sel *goquery.Selection
	key string
}

// planImages resolves every img src against base and assigns each distinct
// URL a unique file name in dir. Data URLs are skipped; unparsable sources
// are reported and skipped.
func planImages(doc *goquery.Document, base *url.URL, dir string, w io.Writer) (map[string]*image, []imageRef) {
	images := make(map[string]*image)
	used := make(map[string]bool)
	var refs []imageRef

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || isDataURL(src) {
			return
		}

		ref, err := url.Parse(src)
		if err != nil {
			fmt.Fprintf(w, "  warning: image %q: %v\n", src, err)
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		key := abs.String()

		if _, ok := images[key]; !ok {
			name := uniqueName(imageName(abs, len(images)+1), used)
			images[key] = &image{url: key, localPath: filepath.Join(dir, name)}
		}
		refs = append(refs, imageRef{sel: s, key: key})
	})
	return images, refs
}

// download fetches every planned image with bounded concurrency. Failures
// are recorded on the image and never cancel the other downloads. Each
// goroutine writes only its own image.
func (l *Localizer) download(ctx context.Context, images map[string]*image) {
	var g errgroup.Group
	g.SetLimit(l.workers)

	opts := httputil.OptionsFrom(l.http, "image/*")
	for _, img := range images {
		g.Go(func() error {
			var err error
			if u, _ := url.Parse(img.url); u == nil || (u.Scheme != "http" && u.Scheme != "https") {
				err = fmt.Errorf("unsupported scheme")
			} else {
				err = httputil.Download(ctx, l.client, img.url, img.localPath, opts)
			}
			img.err = err
			return nil
		})
	}
	g.Wait()
}

func isDataURL(src string) bool {
	return len(src) >= 5 && strings.EqualFold(src[:5], "data:")
}

// imageName derives a file name from the URL path basename, falling back to
// "image-N" when the path has no usable basename.
func imageName(u *url.URL, n int) string {
	name := path.Base(u.Path)
	switch name {
	case "", ".", "..", "/":
		return fmt.Sprintf("image-%d", n)
	}
	return name
}

// uniqueName returns name, or name with a numeric suffix before the
// extension when another image already took it.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}

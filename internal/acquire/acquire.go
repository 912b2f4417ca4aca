// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire turns user-supplied arXiv URLs into identifiers, resolves
// their catalog metadata, names output files, and downloads original PDFs.
package acquire

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/arxiv-epub/internal/httputil"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// PDFFetcher downloads original PDFs from the arXiv PDF endpoint.
type PDFFetcher struct {
	client *http.Client
	http   types.HTTPConfig
	base   string
}

// NewPDFFetcher creates a fetcher for PDFs under base (or the public
// endpoint when empty).
func NewPDFFetcher(client *http.Client, httpCfg types.HTTPConfig, base string) *PDFFetcher {
	if base == "" {
		base = DefaultPDFBase
	}
	return &PDFFetcher{client: client, http: httpCfg, base: base}
}

// Fetch downloads {base}/{id}.pdf to destPath. The bytes are written verbatim
// and only on HTTP 200; any other outcome leaves destPath untouched.
func (f *PDFFetcher) Fetch(ctx context.Context, id types.Identifier, destPath string) error {
	pdfURL := PDFURL(f.base, id)
	if err := httputil.Download(ctx, f.client, pdfURL, destPath, httputil.OptionsFrom(f.http, "application/pdf")); err != nil {
		return fmt.Errorf("downloading PDF for %s: %w", id, err)
	}
	return nil
}

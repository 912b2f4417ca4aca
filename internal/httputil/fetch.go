// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// FetchError describes a failed GET: either a transport error (Cause set) or
// an unexpected HTTP status (StatusCode set).
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Is reports FetchError as a network failure.
func (e *FetchError) Is(target error) bool {
	return target == types.ErrTransientNetwork
}

// NotFound reports whether the server answered 404 or 410.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Options configures a single GET.
type Options struct {
	UserAgent  string
	Accept     string
	MaxRetries int
}

// OptionsFrom derives request options from the shared HTTP settings.
func OptionsFrom(cfg types.HTTPConfig, accept string) Options {
	return Options{UserAgent: cfg.UserAgent, Accept: accept, MaxRetries: cfg.MaxRetries}
}

// Get performs a GET with retries. Any 2xx response is returned open; the
// caller closes the body. Other statuses and transport errors come back as
// *FetchError.
func Get(ctx context.Context, client *http.Client, url string, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}

	resp, err := DoWithRetry(ctx, client, req, opts.MaxRetries)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Download fetches url to destPath. Only HTTP 200 counts as success. The
// body is written to a temporary file in the destination directory and
// renamed into place, so a failed download never leaves a file at destPath.
func Download(ctx context.Context, client *http.Client, url, destPath string, opts Options) error {
	resp, err := Get(ctx, client, url, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return &FetchError{URL: url, Cause: fmt.Errorf("reading body: %w", copyErr)}
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

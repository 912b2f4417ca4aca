// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns localized HTML into an EPUB through pandoc, run either
// as a local binary or from a container image.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// DefaultStylesheet sizes MathML to the surrounding text.
const DefaultStylesheet = `.math {
    font-size: 1em;
}
`

// Request describes one conversion.
type Request struct {
	// HTML is the localized document.
	HTML string

	// OutputPath is where the EPUB is written.
	OutputPath string

	// ResourceDir holds the images the HTML references.
	ResourceDir string

	// Metadata is embedded as EPUB title, creators, date and identifier.
	Metadata types.PaperMetadata
}

// Converter transforms HTML into a packaged EPUB. Implementations block until
// the file is complete; on failure they return an error wrapping
// types.ErrConversion and leave nothing at OutputPath.
type Converter interface {
	Convert(ctx context.Context, req Request) error
}

// runFunc executes pandoc with args. mounts lists host directories pandoc
// must be able to read.
type runFunc func(ctx context.Context, args []string, mounts []string, stdin io.Reader, stdout, stderr io.Writer) error

// Pandoc converts with pandoc's HTML reader and EPUB3 writer, rendering
// TeX math as MathML.
type Pandoc struct {
	run        runFunc
	stylesheet string
}

// epubMetadata is the pandoc --metadata-file document.
type epubMetadata struct {
	Title       string   `yaml:"title"`
	Author      []string `yaml:"author,omitempty"`
	Date        string   `yaml:"date,omitempty"`
	Identifier  string   `yaml:"identifier,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Lang        string   `yaml:"lang"`
}

// Convert writes req.HTML as an EPUB at req.OutputPath. The stylesheet and
// metadata go into a scratch directory beside the output; pandoc streams the
// EPUB to a temporary file that is renamed into place only on success.
func (p *Pandoc) Convert(ctx context.Context, req Request) error {
	outDir := filepath.Dir(req.OutputPath)
	work, err := os.MkdirTemp(outDir, ".convert-*")
	if err != nil {
		return fmt.Errorf("%w: creating work directory: %v", types.ErrConversion, err)
	}
	defer os.RemoveAll(work)
	if work, err = filepath.Abs(work); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConversion, err)
	}

	metaPath := filepath.Join(work, "metadata.yaml")
	if err := writeMetadata(metaPath, req.Metadata); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConversion, err)
	}

	args := []string{
		"--from=html",
		"--to=epub3",
		"--mathml",
		"--output=-",
		"--metadata-file=" + metaPath,
	}
	if p.stylesheet != "" {
		cssPath := filepath.Join(work, "style.css")
		if err := os.WriteFile(cssPath, []byte(p.stylesheet), 0o644); err != nil {
			return fmt.Errorf("%w: writing stylesheet: %v", types.ErrConversion, err)
		}
		args = append(args, "--css="+cssPath)
	}
	mounts := []string{work}
	if req.ResourceDir != "" {
		resDir, err := filepath.Abs(req.ResourceDir)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrConversion, err)
		}
		args = append(args, "--resource-path="+resDir)
		mounts = append(mounts, resDir)
	}

	tmpPath := filepath.Join(work, "out.epub")
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: creating output: %v", types.ErrConversion, err)
	}
	var stderr bytes.Buffer
	runErr := p.run(ctx, args, mounts, strings.NewReader(req.HTML), out, &stderr)
	closeErr := out.Close()
	if runErr != nil {
		return fmt.Errorf("%w: pandoc: %v%s", types.ErrConversion, runErr, stderrTail(stderr.String()))
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing output: %v", types.ErrConversion, closeErr)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: pandoc produced empty output for %s", types.ErrConversion, req.Metadata.ID)
	}
	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		return fmt.Errorf("%w: moving output into place: %v", types.ErrConversion, err)
	}
	return nil
}

func writeMetadata(path string, meta types.PaperMetadata) error {
	m := epubMetadata{
		Title:       meta.Title,
		Author:      meta.Authors,
		Description: meta.Abstract,
		Lang:        "en",
	}
	if !meta.Published.IsZero() {
		m.Date = meta.Published.Format("2006-01-02")
	} else if meta.Year != "" {
		m.Date = meta.Year
	}
	if meta.ID != "" {
		m.Identifier = acquire.AbsURL(meta.ID)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// stderrTail returns the last line pandoc printed, prefixed for inclusion
// in an error message.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return ": " + s
}

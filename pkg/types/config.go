// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds every outbound request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "arxiv-epub/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries is the number of extra attempts for a GET that fails with a
	// retryable status or a transport error. Zero disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`
}

// SourceConfig names the remote endpoints a paper is fetched from.
type SourceConfig struct {
	// HTMLBase is the rendering mirror; the HTML lives at HTMLBase + id.
	HTMLBase string `json:"html_base" yaml:"html_base" validate:"omitempty,url"`

	// PDFBase is the PDF endpoint; the PDF lives at PDFBase + id + ".pdf".
	PDFBase string `json:"pdf_base" yaml:"pdf_base" validate:"omitempty,url"`

	// APIBase is the arXiv Atom query endpoint used for metadata.
	APIBase string `json:"api_base" yaml:"api_base" validate:"omitempty,url"`

	// APIDelay is the minimum spacing between metadata queries.
	APIDelay time.Duration `json:"api_delay" yaml:"api_delay" validate:"gte=0"`
}

// ConverterBackend selects how pandoc is invoked.
type ConverterBackend string

const (
	BackendPandoc    ConverterBackend = "pandoc"
	BackendContainer ConverterBackend = "container"
)

// ConverterConfig holds settings for HTML-to-EPUB conversion.
type ConverterConfig struct {
	// Backend selects a local pandoc binary or a pandoc container image.
	Backend ConverterBackend `json:"backend" yaml:"backend" validate:"omitempty,oneof=pandoc container"`

	// PandocPath is the pandoc binary for the pandoc backend.
	PandocPath string `json:"pandoc_path" yaml:"pandoc_path"`

	// Image is the container image for the container backend.
	Image string `json:"image" yaml:"image"`

	// Stylesheet is CSS embedded into every generated EPUB.
	Stylesheet string `json:"stylesheet" yaml:"stylesheet"`
}

// BatchConfig is the full configuration of one batch run.
type BatchConfig struct {
	HTTPConfig   `yaml:",inline"`
	SourceConfig `yaml:",inline"`

	// Input is the file listing one arXiv URL per line.
	Input string `json:"input" yaml:"input" validate:"required"`

	// EPUBOutput is the EPUB output directory; empty skips EPUB generation.
	EPUBOutput string `json:"epub_output" yaml:"epub_output" validate:"required_without=PDFOutput"`

	// PDFOutput is the PDF output directory; empty skips PDF downloads.
	PDFOutput string `json:"pdf_output" yaml:"pdf_output" validate:"required_without=EPUBOutput"`

	// Workers is the number of URLs processed concurrently (default 1).
	Workers int `json:"workers" yaml:"workers" validate:"gte=1"`

	// ImageWorkers bounds concurrent image downloads within one paper.
	ImageWorkers int `json:"image_workers" yaml:"image_workers" validate:"gte=1"`

	// Catalog is the SQLite metadata cache path; empty disables the cache.
	Catalog string `json:"catalog" yaml:"catalog"`

	// Report is an optional YAML report path written after the run.
	Report string `json:"report" yaml:"report"`

	Converter ConverterConfig `json:"converter" yaml:"converter"`
}

// Validate checks required fields and ranges.
func (c *BatchConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

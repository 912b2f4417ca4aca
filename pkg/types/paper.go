// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Identifier is a validated arXiv identifier such as "2301.00001",
// "2301.00001v2", or the legacy "hep-th/9901001".
type Identifier string

// String returns the identifier as the catalog expects it.
func (id Identifier) String() string { return string(id) }

// Slug returns a filesystem-safe form of the identifier. Legacy identifiers
// contain a slash, which is replaced by an underscore.
func (id Identifier) Slug() string {
	return strings.ReplaceAll(string(id), "/", "_")
}

// PaperMetadata holds the catalog record for one identifier. Surname and
// Year drive the output filename; the remaining fields feed EPUB metadata.
type PaperMetadata struct {
	// ID is the identifier the record was resolved for.
	ID Identifier `json:"id" yaml:"id"`

	// Title is the paper title with whitespace runs collapsed.
	Title string `json:"title" yaml:"title"`

	// Surname is the last name token of the lead author, empty when the
	// record lists no authors.
	Surname string `json:"surname" yaml:"surname"`

	// Year is the four-digit publication year.
	Year string `json:"year" yaml:"year"`

	// Authors lists all author names in catalog order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Published is the first-version submission time.
	Published time.Time `json:"published" yaml:"published"`

	// Abstract is the paper summary.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}

// ArtifactKind names an output format.
type ArtifactKind string

const (
	ArtifactEPUB ArtifactKind = "epub"
	ArtifactPDF  ArtifactKind = "pdf"
)

// Ext returns the file extension, including the dot.
func (k ArtifactKind) Ext() string { return "." + string(k) }

// ArtifactStatus is the terminal state of one requested artifact.
type ArtifactStatus string

const (
	StatusProduced ArtifactStatus = "produced"
	StatusSkipped  ArtifactStatus = "skipped"
	StatusFailed   ArtifactStatus = "failed"
)

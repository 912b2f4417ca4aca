// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// Default endpoints. The HTML mirror is ar5iv, which renders LaTeX sources
// to HTML with MathML.
const (
	DefaultHTMLBase = "https://ar5iv.labs.arxiv.org/html/"
	DefaultPDFBase  = "https://arxiv.org/pdf/"
	DefaultAPIBase  = "https://export.arxiv.org/api/query"
	absBase         = "https://arxiv.org/abs/"
)

// identifierPattern matches new-style ("2301.00001", "2301.00001v2") and
// legacy ("hep-th/9901001", "math.GT/0309136v1") arXiv identifiers.
var identifierPattern = regexp.MustCompile(
	`^(?:\d{4}\.\d{4,5}|[a-z]+(?:-[a-z]+)*(?:\.[A-Z]{2})?/\d{7})(?:v\d+)?$`,
)

// pathPrefixes are the arXiv URL routes whose remainder is the identifier.
var pathPrefixes = []string{"abs/", "pdf/", "html/", "format/"}

// ParseIdentifier extracts and validates an arXiv identifier from a URL such
// as "https://arxiv.org/abs/2301.00001", a PDF or HTML mirror URL, or a bare
// identifier with an optional "arXiv:" prefix.
func ParseIdentifier(raw string) (types.Identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty input", types.ErrMalformedIdentifier)
	}

	candidate := s
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		candidate = identifierFromPath(u.Path)
	} else {
		candidate = strings.TrimPrefix(candidate, "arXiv:")
		// Scheme-less links such as "arxiv.org/abs/ID".
		if !identifierPattern.MatchString(strings.TrimSuffix(candidate, ".pdf")) && strings.Contains(candidate, "/") {
			if u, err := url.Parse(candidate); err == nil {
				candidate = identifierFromPath(u.Path)
			}
		}
	}
	candidate = strings.TrimSuffix(candidate, ".pdf")

	if !identifierPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: %q", types.ErrMalformedIdentifier, raw)
	}
	return types.Identifier(candidate), nil
}

// identifierFromPath returns the path remainder after a known route, which
// keeps both segments of legacy identifiers, or the last path segment.
func identifierFromPath(p string) string {
	p = strings.Trim(p, "/")
	for _, prefix := range pathPrefixes {
		if i := strings.Index(p, prefix); i == 0 || (i > 0 && p[i-1] == '/') {
			return p[i+len(prefix):]
		}
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// HTMLURL returns the rendering-mirror URL for id.
func HTMLURL(base string, id types.Identifier) string {
	return withSlash(base) + id.String()
}

// PDFURL returns the direct PDF URL for id.
func PDFURL(base string, id types.Identifier) string {
	return withSlash(base) + id.String() + ".pdf"
}

// AbsURL returns the canonical arXiv abstract page for id.
func AbsURL(id types.Identifier) string {
	return absBase + id.String()
}

func withSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}

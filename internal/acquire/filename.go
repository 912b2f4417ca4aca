// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// maxFilenameLen keeps "<name>.epub" under common 255-byte filesystem limits.
const maxFilenameLen = 200

// Filename builds the output base name "{surname} {year} - {title}" and keeps
// only ASCII letters, digits, spaces, hyphens and underscores. Trailing
// spaces are trimmed. Names longer than 200 bytes are cut and trimmed again.
// The result depends only on meta, so repeated runs compute the same output
// paths.
func Filename(meta types.PaperMetadata) string {
	raw := fmt.Sprintf("%s %s - %s", meta.Surname, meta.Year, meta.Title)

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if keepRune(r) {
			b.WriteRune(r)
		}
	}

	name := strings.TrimRight(b.String(), " ")
	if len(name) > maxFilenameLen {
		name = strings.TrimRight(name[:maxFilenameLen], " ")
	}
	return name
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '_':
		return true
	}
	return false
}

// OutputPath returns {dir}/{Filename(meta)}{ext}.
func OutputPath(dir string, meta types.PaperMetadata, kind types.ArtifactKind) string {
	return filepath.Join(dir, Filename(meta)+kind.Ext())
}

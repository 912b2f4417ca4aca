// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Error kinds shared by every stage. Stages wrap these with context; callers
// classify with errors.Is.
var (
	ErrMalformedIdentifier = errors.New("malformed arXiv identifier")
	ErrMetadataNotFound    = errors.New("metadata not found")
	ErrTransientNetwork    = errors.New("network failure")
	ErrConversion          = errors.New("conversion failed")
)

// ErrorKind returns a short label for err: "malformed_identifier",
// "metadata_not_found", "network", "conversion", or "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedIdentifier):
		return "malformed_identifier"
	case errors.Is(err, ErrMetadataNotFound):
		return "metadata_not_found"
	case errors.Is(err, ErrTransientNetwork):
		return "network"
	case errors.Is(err, ErrConversion):
		return "conversion"
	default:
		return "other"
	}
}

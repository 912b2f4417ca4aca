// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ArtifactOutcome records what happened to one requested artifact of one URL.
type ArtifactOutcome struct {
	URL        string         `json:"url" yaml:"url"`
	Identifier Identifier     `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Kind       ArtifactKind   `json:"kind" yaml:"kind"`
	Status     ArtifactStatus `json:"status" yaml:"status"`
	Path       string         `json:"path,omitempty" yaml:"path,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
}

// Failed sets the outcome to StatusFailed and records err.
func (o *ArtifactOutcome) Failed(err error) {
	o.Status = StatusFailed
	o.ErrorKind = ErrorKind(err)
	o.Error = err.Error()
}

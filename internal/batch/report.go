// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// Report is the YAML document written by WriteReport.
type Report struct {
	RunID      string                  `yaml:"run_id"`
	Input      string                  `yaml:"input,omitempty"`
	StartedAt  time.Time               `yaml:"started_at"`
	FinishedAt time.Time               `yaml:"finished_at"`
	Summary    ReportSummary           `yaml:"summary"`
	Outcomes   []types.ArtifactOutcome `yaml:"outcomes"`
}

// ReportSummary holds the run's counts.
type ReportSummary struct {
	Produced int `yaml:"produced"`
	Skipped  int `yaml:"skipped"`
	Failed   int `yaml:"failed"`
	Total    int `yaml:"total"`
}

// WriteReport writes result as YAML to path, creating parent directories.
func WriteReport(path string, result Result) error {
	report := Report{
		RunID:      result.RunID.String(),
		Input:      result.Input,
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
		Summary: ReportSummary{
			Produced: result.Produced,
			Skipped:  result.Skipped,
			Failed:   result.Failed,
			Total:    result.Total(),
		},
		Outcomes: result.Outcomes,
	}
	if report.Outcomes == nil {
		report.Outcomes = []types.ArtifactOutcome{}
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

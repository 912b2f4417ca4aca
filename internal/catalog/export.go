// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one cached paper together with the artifacts last produced for it.
type ExportEntry struct {
	ID        string   `json:"id" yaml:"id"`
	Title     string   `json:"title" yaml:"title"`
	Authors   []string `json:"authors" yaml:"authors"`
	Year      string   `json:"year" yaml:"year"`
	Abstract  string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Artifacts []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// ExportYAML writes the catalog to dir/catalog.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context, dir string) (string, error) {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return writeExport(dir, "catalog.yaml", data)
}

// ExportJSON writes the catalog to dir/catalog.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context, dir string) (string, error) {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return writeExport(dir, "catalog.json", data)
}

func writeExport(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) exportEntries(ctx context.Context) ([]ExportEntry, error) {
	papers, err := s.Papers(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	artifacts, err := s.producedArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ExportEntry, len(papers))
	for i, p := range papers {
		entries[i] = ExportEntry{
			ID:        p.ID.String(),
			Title:     p.Title,
			Authors:   p.Authors,
			Year:      p.Year,
			Abstract:  p.Abstract,
			Artifacts: artifacts[p.ID.String()],
		}
		if entries[i].Authors == nil {
			entries[i].Authors = []string{}
		}
	}
	return entries, nil
}

// producedArtifacts maps identifiers to the distinct paths ever produced for them.
func (s *Store) producedArtifacts(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT identifier, path FROM outcomes
		 WHERE status = 'produced' AND path != '' ORDER BY identifier, path`)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out[id] = append(out[id], path)
	}
	return out, rows.Err()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog persists resolved paper metadata and per-run outcomes in a
// local SQLite database. The metadata cache lets repeated runs compute
// output filenames without querying arXiv again.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// DefaultPath is the catalog location used when none is configured.
const DefaultPath = ".arxiv-epub/catalog.db"

// ErrNotCached is returned by Paper when the identifier has no record.
var ErrNotCached = errors.New("paper not in catalog")

// Store manages the catalog SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog database at path, creating its parent
// directory and the schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Workers share one connection so writes never contend for the lock.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			surname TEXT NOT NULL,
			year TEXT NOT NULL,
			authors TEXT,
			published TEXT,
			abstract TEXT,
			resolved_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			input TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			produced INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			url TEXT NOT NULL,
			identifier TEXT,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			path TEXT,
			error_kind TEXT,
			error TEXT,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_identifier ON outcomes(identifier)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Paper returns the cached metadata for id, or ErrNotCached.
func (s *Store) Paper(ctx context.Context, id types.Identifier) (*types.PaperMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, surname, year, authors, published, abstract
		 FROM papers WHERE id = ?`, id.String())
	meta, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached paper %s: %w", id, err)
	}
	return meta, nil
}

// PutPaper inserts or replaces the cached metadata for meta.ID.
func (s *Store) PutPaper(ctx context.Context, meta types.PaperMetadata) error {
	authorsJSON, _ := json.Marshal(meta.Authors)
	published := ""
	if !meta.Published.IsZero() {
		published = meta.Published.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id, title, surname, year, authors, published, abstract, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, surname=excluded.surname, year=excluded.year,
			authors=excluded.authors, published=excluded.published,
			abstract=excluded.abstract, resolved_at=excluded.resolved_at`,
		meta.ID.String(), meta.Title, meta.Surname, meta.Year,
		string(authorsJSON), published, meta.Abstract,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("caching paper %s: %w", meta.ID, err)
	}
	return nil
}

// Papers lists every cached paper ordered by identifier.
func (s *Store) Papers(ctx context.Context) ([]types.PaperMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, surname, year, authors, published, abstract
		 FROM papers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var papers []types.PaperMetadata
	for rows.Next() {
		meta, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, *meta)
	}
	return papers, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (*types.PaperMetadata, error) {
	var (
		id, title, surname, year string
		authors, published       sql.NullString
		abstract                 sql.NullString
	)
	if err := row.Scan(&id, &title, &surname, &year, &authors, &published, &abstract); err != nil {
		return nil, err
	}
	meta := &types.PaperMetadata{
		ID:       types.Identifier(id),
		Title:    title,
		Surname:  surname,
		Year:     year,
		Abstract: abstract.String,
	}
	if authors.String != "" {
		_ = json.Unmarshal([]byte(authors.String), &meta.Authors)
	}
	if t, err := time.Parse(time.RFC3339, published.String); err == nil {
		meta.Published = t
	}
	return meta, nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	Input      string    `json:"input" yaml:"input"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Produced   int       `json:"produced" yaml:"produced"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Failed     int       `json:"failed" yaml:"failed"`
}

// StartRun registers a new run.
func (s *Store) StartRun(ctx context.Context, id uuid.UUID, input string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, started_at) VALUES (?, ?, ?)`,
		id.String(), input, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// RecordOutcome appends one artifact outcome to a run.
func (s *Store) RecordOutcome(ctx context.Context, runID uuid.UUID, o types.ArtifactOutcome) error {
	finished := o.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, url, identifier, kind, status, path, error_kind, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), o.URL, o.Identifier.String(), string(o.Kind), string(o.Status),
		o.Path, o.ErrorKind, o.Error, finished.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", o.URL, err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, produced, skipped, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, produced = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), produced, skipped, failed, id.String(),
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, started_at, finished_at, produced, skipped, failed
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r        RunSummary
			id       string
			input    sql.NullString
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&id, &input, &started, &finished, &r.Produced, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.Input = input.String
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the outcomes recorded for a run in insertion order.
func (s *Store) Outcomes(ctx context.Context, runID uuid.UUID) ([]types.ArtifactOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, identifier, kind, status, path, error_kind, error, finished_at
		 FROM outcomes WHERE run_id = ? ORDER BY seq`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	defer rows.Close()

	var out []types.ArtifactOutcome
	for rows.Next() {
		var (
			o                                  types.ArtifactOutcome
			identifier, kind, status, finished string
			path, errKind, errMsg              sql.NullString
		)
		if err := rows.Scan(&o.URL, &identifier, &kind, &status, &path, &errKind, &errMsg, &finished); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Identifier = types.Identifier(identifier)
		o.Kind = types.ArtifactKind(kind)
		o.Status = types.ArtifactStatus(status)
		o.Path = path.String
		o.ErrorKind = errKind.String
		o.Error = errMsg.String
		o.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, o)
	}
	return out, rows.Err()
}

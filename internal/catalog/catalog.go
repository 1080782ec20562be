// Package catalog keeps the local ingestion ledger: one row per source
// document and one per completed run, in a SQLite file under the user data
// directory. The ledger is what `emmcingest toc` and repeat ingests consult
// to know what has already been processed.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound reports a lookup for a document or run the ledger has never
// seen.
var ErrNotFound = errors.New("catalog: not found")

// Catalog is an open ledger handle. Safe for concurrent use; writes are
// serialized on a single connection because SQLite allows one writer.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path, creating parent directories as
// needed. The schema is applied idempotently on every open.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	c := &Catalog{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := c.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return c, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the ledger file location.
func (c *Catalog) Path() string {
	return c.path
}

func (c *Catalog) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		source TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		pages INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		first_ingested TEXT NOT NULL,
		last_ingested TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		started TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		pages_parsed INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		glossary_terms INTEGER NOT NULL,
		by_type TEXT NOT NULL,
		page_gaps TEXT,
		output TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	`
	_, err := c.db.ExecContext(context.Background(), schema)
	return err
}

// Document is one ledger row per source file, keyed by base filename.
type Document struct {
	Source        string
	Version       string
	Pages         int
	SHA256        string
	FirstIngested time.Time
	LastIngested  time.Time
}

// RunRecord is the stored summary of one ingestion run.
type RunRecord struct {
	RunID         string
	Source        string
	Started       time.Time
	Duration      time.Duration
	PagesParsed   int
	Chunks        int
	Dropped       int
	GlossaryTerms int
	ByType        map[string]int
	PageGaps      []int
	Output        string
}

// Timestamps are stored as fixed-width UTC text so string order matches
// time order for the started index.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// RecordDocument inserts the document or, on a repeat ingest of the same
// source, refreshes its version, page count, and content hash. The first
// ingestion time survives updates.
func (c *Catalog) RecordDocument(ctx context.Context, doc Document) error {
	now := time.Now().UTC().Format(timeFormat)
	query := `
	INSERT INTO documents (source, version, pages, sha256, first_ingested, last_ingested)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(source) DO UPDATE SET
		version = excluded.version,
		pages = excluded.pages,
		sha256 = excluded.sha256,
		last_ingested = excluded.last_ingested
	`
	_, err := c.db.ExecContext(ctx, query,
		doc.Source, doc.Version, doc.Pages, doc.SHA256, now, now)
	if err != nil {
		return fmt.Errorf("record document %s: %w", doc.Source, err)
	}
	return nil
}

// GetDocument looks a document up by source filename.
func (c *Catalog) GetDocument(ctx context.Context, source string) (*Document, error) {
	query := `
	SELECT source, version, pages, sha256, first_ingested, last_ingested
	FROM documents WHERE source = ?
	`
	var doc Document
	var first, last string
	err := c.db.QueryRowContext(ctx, query, source).Scan(
		&doc.Source, &doc.Version, &doc.Pages, &doc.SHA256, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", source, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", source, err)
	}
	doc.FirstIngested = parseTimestamp(first)
	doc.LastIngested = parseTimestamp(last)
	return &doc, nil
}

// RecordRun appends one run summary to the ledger.
func (c *Catalog) RecordRun(ctx context.Context, rec RunRecord) error {
	byType, err := json.Marshal(rec.ByType)
	if err != nil {
		return fmt.Errorf("serialize type counts: %w", err)
	}
	var gaps []byte
	if len(rec.PageGaps) > 0 {
		if gaps, err = json.Marshal(rec.PageGaps); err != nil {
			return fmt.Errorf("serialize page gaps: %w", err)
		}
	}
	query := `
	INSERT INTO runs (run_id, source, started, duration_ms, pages_parsed,
		chunks, dropped, glossary_terms, by_type, page_gaps, output)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Source,
		rec.Started.UTC().Format(timeFormat),
		rec.Duration.Milliseconds(),
		rec.PagesParsed,
		rec.Chunks,
		rec.Dropped,
		rec.GlossaryTerms,
		string(byType),
		nullableString(gaps),
		nullableText(rec.Output),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// LastRun returns the most recent run recorded for the source.
func (c *Catalog) LastRun(ctx context.Context, source string) (*RunRecord, error) {
	recs, err := c.Runs(ctx, source, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("runs for %s: %w", source, ErrNotFound)
	}
	return &recs[0], nil
}

// Runs returns the source's run history, newest first. A limit of 0 means
// no limit.
func (c *Catalog) Runs(ctx context.Context, source string, limit int) ([]RunRecord, error) {
	query := `
	SELECT run_id, source, started, duration_ms, pages_parsed,
		chunks, dropped, glossary_terms, by_type, page_gaps, output
	FROM runs WHERE source = ?
	ORDER BY started DESC
	`
	args := []any{source}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", source, err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var durationMS int64
		var byType string
		var gaps, output sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Source, &started, &durationMS,
			&rec.PagesParsed, &rec.Chunks, &rec.Dropped, &rec.GlossaryTerms,
			&byType, &gaps, &output); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Started = parseTimestamp(started)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(byType), &rec.ByType); err != nil {
			return nil, fmt.Errorf("parse type counts: %w", err)
		}
		if gaps.Valid && gaps.String != "" {
			if err := json.Unmarshal([]byte(gaps.String), &rec.PageGaps); err != nil {
				return nil, fmt.Errorf("parse page gaps: %w", err)
			}
		}
		rec.Output = output.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timestampFormats covers what this package writes plus the bare SQLite
// default, in case a row was touched outside the tool.
var timestampFormats = []string{
	timeFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// HashFile returns the hex SHA-256 of the file's content, streamed so large
// documents never load whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

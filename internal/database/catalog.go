package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Extraction statuses stored in the catalog
const (
	StatusExtracted   = "extracted"
	StatusSkipped     = "skipped"
	StatusNoSoundWave = "no_sound_wave"
	StatusFailed      = "failed"
)

const catalogDDL = `CREATE TABLE IF NOT EXISTS extractions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    export TEXT,
    status TEXT NOT NULL,
    format TEXT,
    size INTEGER,
    digest TEXT,
    output TEXT,
    error TEXT,
    extracted_at TIMESTAMP NOT NULL
)`

var catalogIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_extractions_source ON extractions (source)`,
	`CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions (status)`,
}

// Entry is one row of the extractions table
type Entry struct {
	ID          int64
	Source      string
	Export      string
	Status      string
	Format      string
	Size        int64
	Digest      string
	Output      string
	Error       string
	ExtractedAt time.Time
}

// FormatCount is the number of extracted payloads per format tag
type FormatCount struct {
	Format string
	Count  int
	Bytes  int64
}

// Catalog records extraction outcomes
type Catalog struct {
	db        *Database
	batchSize int
}

// NewCatalog creates a catalog on an open database
func NewCatalog(db *Database) *Catalog {
	return &Catalog{
		db:        db,
		batchSize: 500,
	}
}

// EnsureSchema creates the extractions table and its indexes
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	statements := append([]string{catalogDDL}, catalogIndexes...)
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating catalog schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("Catalog schema ready", "database", c.db.Path())
	return nil
}

const insertEntrySQL = `INSERT INTO extractions
    (source, export, status, format, size, digest, output, error, extracted_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record stores a single entry
func (c *Catalog) Record(ctx context.Context, entry Entry) error {
	return c.RecordBatch(ctx, []Entry{entry})
}

// RecordBatch stores entries in transactions of at most batchSize rows
func (c *Catalog) RecordBatch(ctx context.Context, entries []Entry) error {
	for i := 0; i < len(entries); i += c.batchSize {
		end := min(i+c.batchSize, len(entries))
		if err := c.insertBatch(ctx, entries[i:end]); err != nil {
			return fmt.Errorf("inserting batch %d-%d: %w", i, end-1, err)
		}
	}
	return nil
}

func (c *Catalog) insertBatch(ctx context.Context, batch []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		extractedAt := e.ExtractedAt
		if extractedAt.IsZero() {
			extractedAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			e.Source,
			nullString(e.Export),
			e.Status,
			nullString(e.Format),
			e.Size,
			nullString(e.Digest),
			nullString(e.Output),
			nullString(e.Error),
			extractedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting entry for %s: %w", e.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const selectEntrySQL = `SELECT id, source, export, status, format, size, digest, output, error, extracted_at
    FROM extractions`

// Recent returns the n most recent entries, newest first
func (c *Catalog) Recent(ctx context.Context, n int) ([]Entry, error) {
	return c.entries(ctx, selectEntrySQL+` ORDER BY id DESC LIMIT ?`, n)
}

// Failures returns every failed entry, newest first
func (c *Catalog) Failures(ctx context.Context) ([]Entry, error) {
	return c.entries(ctx, selectEntrySQL+` WHERE status = ? ORDER BY id DESC`, StatusFailed)
}

// FormatCounts summarizes extracted payloads by format tag
func (c *Catalog) FormatCounts(ctx context.Context) ([]FormatCount, error) {
	rows, err := c.db.Query(ctx, `SELECT format, COUNT(*), COALESCE(SUM(size), 0)
		FROM extractions
		WHERE status IN (?, ?)
		GROUP BY format
		ORDER BY COUNT(*) DESC, format`, StatusExtracted, StatusSkipped)
	if err != nil {
		return nil, fmt.Errorf("counting formats: %w", err)
	}
	defer rows.Close()

	var counts []FormatCount
	for rows.Next() {
		var fc FormatCount
		var format sql.NullString
		if err := rows.Scan(&format, &fc.Count, &fc.Bytes); err != nil {
			return nil, fmt.Errorf("scanning format count: %w", err)
		}
		fc.Format = format.String
		counts = append(counts, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating format counts: %w", err)
	}

	return counts, nil
}

func (c *Catalog) entries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var export, format, digest, output, errText sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Source, &export, &e.Status, &format, &size, &digest, &output, &errText, &e.ExtractedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Export = export.String
		e.Format = format.String
		e.Size = size.Int64
		e.Digest = digest.String
		e.Output = output.String
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

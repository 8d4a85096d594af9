package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed catalog database
var ErrClosed = errors.New("catalog database is closed")

// Database is the SQLite file holding the extraction catalog. Extract runs
// write to it in batches while query reads it, possibly at the same time.
type Database struct {
	db   *sql.DB
	path string
}

// DatabaseOptions configures how the catalog file is opened
type DatabaseOptions struct {
	// Path to the SQLite database file
	Path string

	// WALMode lets query read while an extract run is writing
	WALMode bool

	// BusyTimeout bounds how long a writer waits on a locked catalog
	BusyTimeout time.Duration
}

// DefaultDatabaseOptions returns the options extract and query open the catalog with
func DefaultDatabaseOptions(path string) *DatabaseOptions {
	return &DatabaseOptions{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 30 * time.Second,
	}
}

// NewDatabase opens the catalog file, creating it and its directory on first use
func NewDatabase(options *DatabaseOptions) (*Database, error) {
	if options == nil {
		return nil, fmt.Errorf("database options cannot be nil")
	}
	if options.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if dir := filepath.Dir(options.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", options.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to catalog %s: %w", options.Path, err)
	}

	return &Database{db: db, path: options.Path}, nil
}

// Close closes the catalog. Closing twice is a no-op.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	return nil
}

// BeginTx starts the transaction a catalog batch or schema change runs in
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d.db == nil {
		return nil, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// Query runs a read against the catalog: the built-in reports, schema
// inspection and raw SQL from the query command all go through here.
func (d *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if d.db == nil {
		return nil, ErrClosed
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Path returns the catalog file path
func (d *Database) Path() string {
	return d.path
}

// Tables lists the catalog's tables, skipping SQLite internals
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table names: %w", err)
	}

	return tables, nil
}

func buildConnectionString(options *DatabaseOptions) string {
	pragmas := []string{"_synchronous=NORMAL"}
	if options.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}
	if options.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", options.BusyTimeout.Milliseconds()))
	}
	return options.Path + "?" + strings.Join(pragmas, "&")
}

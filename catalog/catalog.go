// Package catalog keeps a SQLite index of published pipeline runs so
// lineage survives across output roots. The latest.json pointer files
// stay authoritative for stage-to-stage handoff.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded pipeline run.
type Run struct {
	Dataset   string         `json:"dataset"`
	RunID     string         `json:"run_id"`
	RunDir    string         `json:"run_dir"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// Catalog wraps the SQLite database holding run lineage.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at the given path and
// initialises the schema.
func Open(dbPath string) (*Catalog, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := &Catalog{db: db}

	if err := c.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running catalog migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordRun inserts or updates the lineage row for a run. Re-recording
// the same dataset and run_id replaces run_dir and meta.
func (c *Catalog) RecordRun(ctx context.Context, r Run) error {
	if r.Dataset == "" || r.RunID == "" {
		return fmt.Errorf("catalog: dataset and run_id are required")
	}

	var meta any
	if r.Meta != nil {
		data, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("encoding run meta: %w", err)
		}
		meta = string(data)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (dataset, run_id, run_dir, meta)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dataset, run_id) DO UPDATE SET
			run_dir = excluded.run_dir,
			meta = excluded.meta
	`, r.Dataset, r.RunID, r.RunDir, meta)
	return err
}

// Latest returns the most recently recorded run for a dataset.
// Returns sql.ErrNoRows when the dataset has no recorded runs.
func (c *Catalog) Latest(ctx context.Context, dataset string) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT dataset, run_id, run_dir, meta, created_at
		FROM runs WHERE dataset = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`, dataset)

	r := &Run{}
	var meta sql.NullString
	if err := row.Scan(&r.Dataset, &r.RunID, &r.RunDir, &meta, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeMeta(meta, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns recorded runs, newest first. An empty dataset lists
// runs across all datasets. A non-positive limit defaults to 50.
func (c *Catalog) List(ctx context.Context, dataset string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT dataset, run_id, run_dir, meta, created_at
		FROM runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`
	args := []any{limit}
	if dataset != "" {
		query = `
		SELECT dataset, run_id, run_dir, meta, created_at
		FROM runs WHERE dataset = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT ?`
		args = []any{dataset, limit}
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var meta sql.NullString
		if err := rows.Scan(&r.Dataset, &r.RunID, &r.RunDir, &meta, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeMeta(meta, &r); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func decodeMeta(meta sql.NullString, r *Run) error {
	if !meta.Valid || meta.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(meta.String), &r.Meta); err != nil {
		return fmt.Errorf("decoding meta for %s/%s: %w", r.Dataset, r.RunID, err)
	}
	return nil
}

// Package ledger records completed conversion units in SQLite so that an
// interrupted batch can be resumed.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Entry is one completed unit.
type Entry struct {
	SlideID        string
	Unit           string
	SeriesUID      string
	SOPInstanceUID string
	Path           string
	Annotations    int
	CompletedAt    time.Time
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS units (
		slide_id TEXT NOT NULL,
		unit TEXT NOT NULL,
		series_uid TEXT NOT NULL,
		sop_instance_uid TEXT NOT NULL,
		path TEXT NOT NULL,
		annotations INTEGER NOT NULL,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (slide_id, unit)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create units table: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Path returns the database file.
func (l *Ledger) Path() string { return l.path }

// Done reports whether the unit of the slide completed in an earlier run.
func (l *Ledger) Done(ctx context.Context, slideID, unit string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM units WHERE slide_id = ? AND unit = ?`, slideID, unit).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return n > 0, nil
}

// Record stores a completed unit, replacing an earlier record of it.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `INSERT OR REPLACE INTO units
		(slide_id, unit, series_uid, sop_instance_uid, path, annotations, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SlideID, e.Unit, e.SeriesUID, e.SOPInstanceUID, e.Path, e.Annotations,
		e.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", e.SlideID, e.Unit, err)
	}
	return nil
}

// Entries lists the completed units of a slide ordered by unit name. An
// empty slide id lists every slide.
func (l *Ledger) Entries(ctx context.Context, slideID string) ([]Entry, error) {
	query := `SELECT slide_id, unit, series_uid, sop_instance_uid, path, annotations, completed_at FROM units`
	var args []any
	if slideID != "" {
		query += ` WHERE slide_id = ?`
		args = append(args, slideID)
	}
	query += ` ORDER BY slide_id, unit`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completed string
		if err := rows.Scan(&e.SlideID, &e.Unit, &e.SeriesUID, &e.SOPInstanceUID, &e.Path, &e.Annotations, &completed); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("parse completion time %q: %w", completed, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

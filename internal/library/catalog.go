package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CatalogFile is the catalog database name inside the library directory.
const CatalogFile = ".catalog.sqlite"

// Record is what the catalog remembers about a saved archive.
type Record struct {
	Name          string
	Sheets        int
	StrokeCounter uint64
	SavedAt       time.Time
}

// Catalog indexes saved archives so the library can be listed without
// unpacking them. It is a cache: a missing or stale row only hides details.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(ctx context.Context, path string) (*Catalog, error) {
	// modernc.org/sqlite registers as "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("catalog pragma: %w", err)
		}
	}

	c := &Catalog{db: db}

	if err := c.migrate(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return c, nil
}

func (c *Catalog) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archives (
			name TEXT PRIMARY KEY,
			sheets INTEGER NOT NULL,
			stroke_counter INTEGER NOT NULL,
			saved_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archives_saved ON archives(saved_at_unixms);`,
	}

	for _, st := range stmts {
		if _, err := c.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
	}

	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Put inserts or replaces the record for r.Name.
func (c *Catalog) Put(ctx context.Context, r Record) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO archives(name, sheets, stroke_counter, saved_at_unixms) VALUES(?, ?, ?, ?)`,
		r.Name, r.Sheets, int64(r.StrokeCounter), r.SavedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("catalog put %q: %w", r.Name, err)
	}

	return nil
}

// Get returns the record for name, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, name string) (Record, error) {
	var (
		r       Record
		counter int64
		savedAt int64
	)

	err := c.db.QueryRowContext(ctx,
		`SELECT name, sheets, stroke_counter, saved_at_unixms FROM archives WHERE name = ?`, name,
	).Scan(&r.Name, &r.Sheets, &counter, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err != nil {
		return Record{}, fmt.Errorf("catalog get %q: %w", name, err)
	}

	r.StrokeCounter = uint64(counter)
	r.SavedAt = time.UnixMilli(savedAt)

	return r, nil
}

// All returns every record keyed by name.
func (c *Catalog) All(ctx context.Context) (map[string]Record, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, sheets, stroke_counter, saved_at_unixms FROM archives`)
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)

	for rows.Next() {
		var (
			r       Record
			counter int64
			savedAt int64
		)

		if err := rows.Scan(&r.Name, &r.Sheets, &counter, &savedAt); err != nil {
			return nil, fmt.Errorf("catalog scan: %w", err)
		}

		r.StrokeCounter = uint64(counter)
		r.SavedAt = time.UnixMilli(savedAt)
		out[r.Name] = r
	}

	return out, rows.Err()
}

// Rename moves a record to a new name. Missing records are ignored.
func (c *Catalog) Rename(ctx context.Context, from, to string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE name = ?`, to); err != nil {
		return fmt.Errorf("catalog rename: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE archives SET name = ? WHERE name = ?`, to, from); err != nil {
		return fmt.Errorf("catalog rename: %w", err)
	}

	return tx.Commit()
}

// Delete removes the record for name.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM archives WHERE name = ?`, name); err != nil {
		return fmt.Errorf("catalog delete %q: %w", name, err)
	}

	return nil
}

package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/fieldscope/fieldscope/internal/model"
)

const createSeriesTable = `CREATE TABLE IF NOT EXISTS series_samples (
	series VARCHAR NOT NULL,
	idx INTEGER NOT NULL,
	t_s DOUBLE NOT NULL,
	metric VARCHAR NOT NULL,
	value DOUBLE
)`

// Archiver appends saved series to a DuckDB file in long format, one row per
// (series, sample, metric). An empty path opens an in-memory database.
type Archiver struct {
	db *sql.DB
}

// NewArchiver opens or creates the archive database.
func NewArchiver(dbPath string) (*Archiver, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("export: create archive dir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("export: open archive: %w", err)
	}
	if _, err := db.Exec(createSeriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: create table: %w", err)
	}
	return &Archiver{db: db}, nil
}

// Close closes the archive database.
func (a *Archiver) Close() error {
	return a.db.Close()
}

// Archive inserts all snapshots in a single transaction. Absent values are
// stored as NULL so the forward-filled grid survives the round trip.
func (a *Archiver) Archive(ctx context.Context, snapshots []model.SeriesSnapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO series_samples (series, idx, t_s, metric, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("export: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		for _, id := range snap.MetricIDs {
			vals := snap.Values[id]
			for i, t := range snap.Times {
				var v any
				if i < len(vals) && vals[i] != nil {
					v = *vals[i]
				}
				if _, err := stmt.ExecContext(ctx, snap.Name, i, t, id, v); err != nil {
					return fmt.Errorf("export: insert %s: %w", snap.Name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}
	committed = true
	return nil
}

// Count reports the number of archived rows, mainly for diagnostics.
func (a *Archiver) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT count(*) FROM series_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("export: count: %w", err)
	}
	return n, nil
}

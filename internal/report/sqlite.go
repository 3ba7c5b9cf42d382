package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ch00k/geoping/internal/stats"
)

// TableNameCountryRTT is the table holding the per-country statistics of the latest run
const TableNameCountryRTT = "country_rtt"

const (
	ColumnRunID     = "run_id"
	ColumnCountry   = "country"
	ColumnMinMs     = "min_ms"
	ColumnMedianMs  = "median_ms"
	ColumnAverageMs = "average_ms"
	ColumnMaxMs     = "max_ms"
	ColumnEndpoints = "endpoints"
	// unix timestamp in seconds when the run finished
	ColumnCreatedAt = "created_at"
)

// SQLiteStore keeps the statistics of the latest run in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and its table
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand database path %q: %w", path, err)
	}

	db, err := sql.Open("sqlite3", expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := CreateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreateTable creates the statistics table if it does not exist
func CreateTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s REAL NOT NULL,
	%s REAL NOT NULL,
	%s REAL NOT NULL,
	%s REAL NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL
);`, TableNameCountryRTT,
		ColumnRunID,
		ColumnCountry,
		ColumnMinMs,
		ColumnMedianMs,
		ColumnAverageMs,
		ColumnMaxMs,
		ColumnEndpoints,
		ColumnCreatedAt,
	))
	return err
}

// Write replaces the stored rows with rows of a new run and returns its id
func (s *SQLiteStore) Write(ctx context.Context, rows []stats.CountryStats, createdAt time.Time) (string, error) {
	runID := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", TableNameCountryRTT)); err != nil {
		return "", fmt.Errorf("failed to delete previous run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
		TableNameCountryRTT,
		ColumnRunID,
		ColumnCountry,
		ColumnMinMs,
		ColumnMedianMs,
		ColumnAverageMs,
		ColumnMaxMs,
		ColumnEndpoints,
		ColumnCreatedAt,
	))
	if err != nil {
		return "", fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			runID,
			r.Country,
			r.Min,
			r.Median,
			r.Average,
			r.Max,
			r.Count,
			createdAt.Unix(),
		); err != nil {
			return "", fmt.Errorf("failed to insert %s: %w", r.Country, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return runID, nil
}

// Read returns the stored rows ordered by min RTT
func (s *SQLiteStore) Read(ctx context.Context) ([]stats.CountryStats, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC, rowid ASC;
`,
		ColumnCountry,
		ColumnMinMs,
		ColumnMedianMs,
		ColumnAverageMs,
		ColumnMaxMs,
		ColumnEndpoints,
		TableNameCountryRTT,
		ColumnMinMs,
	))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []stats.CountryStats
	for rows.Next() {
		var s stats.CountryStats
		if err := rows.Scan(&s.Country, &s.Min, &s.Median, &s.Average, &s.Max, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

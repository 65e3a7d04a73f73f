package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nfe-extract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id           TEXT PRIMARY KEY,
	file_name    TEXT NOT NULL,
	extension    TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	completeness REAL NOT NULL DEFAULT 0,
	response     TEXT,
	error        TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extraction_runs_method ON extraction_runs(method);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_created_at ON extraction_runs(created_at);
`

const sqliteRunColumns = `id, file_name, extension, method, completeness, response, error, duration_ms, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.ExtractionRun) error {
	resp, err := prepareRun(run)
	if err != nil {
		return err
	}
	var respText sql.NullString
	if resp != nil {
		respText = sql.NullString{String: string(resp), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (`+sqliteRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FileName, run.Extension, run.Method, run.Completeness,
		respText, run.Error, run.DurationMS, run.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.ExtractionRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM extraction_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ExtractionRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM extraction_runs WHERE 1=1`
	var args []any

	if filter.Method != "" {
		query += ` AND method = ?`
		args = append(args, filter.Method)
	}
	if filter.Failed != nil {
		if *filter.Failed {
			query += ` AND response IS NULL`
		} else {
			query += ` AND response IS NOT NULL`
		}
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.ExtractionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{ByMethod: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN response IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(CASE WHEN response IS NOT NULL THEN completeness END), 0)
		FROM extraction_runs`).Scan(&stats.Total, &stats.Failed, &stats.MeanCompleteness)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT method, COUNT(*) FROM extraction_runs WHERE response IS NOT NULL GROUP BY method`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by method")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan method count")
		}
		stats.ByMethod[method] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.ExtractionRun, error) {
	var r model.ExtractionRun
	var resp sql.NullString

	err := row.Scan(&r.ID, &r.FileName, &r.Extension, &r.Method, &r.Completeness,
		&resp, &r.Error, &r.DurationMS, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if resp.Valid {
		if err := decodeResponse(&r, []byte(resp.String)); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nfe-extract/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// itemColumns are the extraction_items columns filled with COPY.
var itemColumns = []string{"run_id", "position", "description", "quantity", "unit_amount", "line_total"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name    TEXT NOT NULL,
	extension    TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	completeness DOUBLE PRECISION NOT NULL DEFAULT 0,
	response     JSONB,
	error        TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_items (
	run_id      TEXT NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	description TEXT NOT NULL,
	quantity    DOUBLE PRECISION,
	unit_amount DOUBLE PRECISION,
	line_total  DOUBLE PRECISION,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_extraction_runs_method ON extraction_runs(method);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_created_at ON extraction_runs(created_at DESC);
`

const postgresRunColumns = `id, file_name, extension, method, completeness, response, error, duration_ms, created_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts the run and copies its line items in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.ExtractionRun) error {
	resp, err := prepareRun(run)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO extraction_runs (`+postgresRunColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.FileName, run.Extension, run.Method, run.Completeness,
		resp, run.Error, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if rows := itemRows(run); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"extraction_items"}, itemColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: copy items for run %s", run.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func itemRows(run *model.ExtractionRun) [][]any {
	if run.Response == nil {
		return nil
	}
	rows := make([][]any, 0, len(run.Response.Items))
	for i, it := range run.Response.Items {
		rows = append(rows, []any{run.ID, i + 1, it.Description, it.Quantity, it.UnitAmount, it.LineTotal})
	}
	return rows
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.ExtractionRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM extraction_runs WHERE id = $1`, id)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ExtractionRun, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM extraction_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Method != "" {
		query += fmt.Sprintf(` AND method = $%d`, argIdx)
		args = append(args, filter.Method)
		argIdx++
	}
	if filter.Failed != nil {
		if *filter.Failed {
			query += ` AND response IS NULL`
		} else {
			query += ` AND response IS NOT NULL`
		}
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ExtractionRun
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{ByMethod: make(map[string]int)}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE response IS NULL),
		       COALESCE(AVG(completeness) FILTER (WHERE response IS NOT NULL), 0)
		FROM extraction_runs`).Scan(&stats.Total, &stats.Failed, &stats.MeanCompleteness)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT method, COUNT(*) FROM extraction_runs WHERE response IS NOT NULL GROUP BY method`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by method")
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan method count")
		}
		stats.ByMethod[method] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

func scanPostgresRun(row pgx.Row) (*model.ExtractionRun, error) {
	var r model.ExtractionRun
	var resp []byte
	if err := row.Scan(&r.ID, &r.FileName, &r.Extension, &r.Method, &r.Completeness,
		&resp, &r.Error, &r.DurationMS, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeResponse(&r, resp); err != nil {
		return nil, err
	}
	return &r, nil
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore is a Store on a PostgreSQL connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres dsn")
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema implements Store.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Postgres.Schema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "executing %s", strings.SplitN(stmt, "\n", 2)[0])
		}
	}
	return nil
}

func pgInsert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
		pgx.Identifier{table}.Sanitize(), strings.Join(cols, ", "), placeholders(len(cols), 1, true))
}

// BulkInsert implements Store. All rows are queued in a pgx.Batch and sent
// inside one transaction.
func (s *PostgresStore) BulkInsert(ctx context.Context, table string, cols []string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	sql := pgInsert(table, cols)
	batch := &pgx.Batch{}
	for _, row := range rows {
		if err := checkRow(table, cols, row); err != nil {
			return err
		}
		batch.Queue(sql, row...)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return errors.Wrapf(tx.SendBatch(ctx, batch).Close(), "inserting into %s", table)
	})
}

// InsertRow implements Store.
func (s *PostgresStore) InsertRow(ctx context.Context, table string, cols []string, row Row) error {
	if err := checkRow(table, cols, row); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, pgInsert(table, cols), row...)
	return errors.Wrapf(err, "inserting into %s", table)
}

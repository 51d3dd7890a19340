package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqliteMaxVars bounds the bound parameters of one statement.
const sqliteMaxVars = 32766

// SQLiteStore is a Store on an embedded SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	// one writer at a time; WAL lets readers proceed
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "executing %s", pragma)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema implements Store.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SQLite.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "executing %s", strings.SplitN(stmt, "\n", 2)[0])
		}
	}
	return nil
}

func insertPrefix(table string, cols []string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))
}

// BulkInsert implements Store. Rows are written in one transaction with
// multi-row statements.
func (s *SQLiteStore) BulkInsert(ctx context.Context, table string, cols []string, rows []Row) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	per := sqliteMaxVars / len(cols)
	if per > 500 {
		per = 500
	}
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		var sb strings.Builder
		sb.WriteString(insertPrefix(table, cols))
		args := make([]interface{}, 0, len(chunk)*len(cols))
		for i, row := range chunk {
			if err := checkRow(table, cols, row); err != nil {
				return err
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholders(len(cols), 1, false))
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return errors.Wrapf(err, "inserting into %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "committing")
}

// InsertRow implements Store.
func (s *SQLiteStore) InsertRow(ctx context.Context, table string, cols []string, row Row) error {
	if err := checkRow(table, cols, row); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, insertPrefix(table, cols)+placeholders(len(cols), 1, false), row...)
	return errors.Wrapf(err, "inserting into %s", table)
}

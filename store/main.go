package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// SchemaMain creates every table, or prints the DDL when no database is
// given.
type SchemaMain struct {
	SQLitePath  string `help:"SQLite database to create the tables in."`
	PostgresDSN string `help:"Postgres connection string to create the tables in."`
	Dialect     string `help:"Dialect of the printed DDL (sqlite or postgres)."`

	Stdout io.Writer `flag:"-"`
}

// NewSchemaMain returns a new SchemaMain with the default configuration.
func NewSchemaMain() *SchemaMain {
	return &SchemaMain{
		Dialect: SQLite.Name,
		Stdout:  os.Stdout,
	}
}

// Run creates or prints the tables.
func (m *SchemaMain) Run() (err error) {
	ctx := context.Background()
	var s Store
	switch {
	case m.PostgresDSN != "":
		s, err = NewPostgresStore(ctx, m.PostgresDSN, 1)
	case m.SQLitePath != "":
		s, err = NewSQLiteStore(m.SQLitePath)
	default:
		return m.print()
	}
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing store")
		}
	}()
	return errors.Wrap(s.EnsureSchema(ctx), "creating tables")
}

func (m *SchemaMain) print() error {
	var d Dialect
	switch m.Dialect {
	case SQLite.Name:
		d = SQLite
	case Postgres.Name:
		d = Postgres
	default:
		return errors.Errorf("unknown dialect %q", m.Dialect)
	}
	out := m.Stdout
	if out == nil {
		out = os.Stdout
	}
	for _, stmt := range d.Schema() {
		if _, err := fmt.Fprintf(out, "%s;\n\n", stmt); err != nil {
			return errors.Wrap(err, "writing schema")
		}
	}
	return nil
}

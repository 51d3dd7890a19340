// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package store persists change rows into SQL tables, batching them per
// entity class.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Store is a SQL destination for rows. Inserting a row whose primary key is
// already present is not an error and leaves the existing row untouched, so
// a rerun over the same input is idempotent.
type Store interface {
	// EnsureSchema creates every table for every class.
	EnsureSchema(ctx context.Context) error
	// BulkInsert inserts rows into table atomically.
	BulkInsert(ctx context.Context, table string, cols []string, rows []Row) error
	// InsertRow inserts a single row.
	InsertRow(ctx context.Context, table string, cols []string, row Row) error
	Close() error
}

// PersistenceError is returned when rows can't be written. Offending holds
// the primary keys of the rows that failed on their own.
type PersistenceError struct {
	Table     string
	Rows      int
	Offending []string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %d rows to %s (offending keys: %s): %v",
		e.Rows, e.Table, strings.Join(e.Offending, "; "), e.Err)
}

// Cause returns the underlying error.
func (e *PersistenceError) Cause() error { return e.Err }

func placeholders(n, start int, numbered bool) string {
	ph := make([]string, n)
	for i := range ph {
		if numbered {
			ph[i] = fmt.Sprintf("$%d", start+i)
		} else {
			ph[i] = "?"
		}
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

func checkRow(table string, cols []string, row Row) error {
	if len(row) != len(cols) {
		return errors.Errorf("row for %s has %d values, expected %d", table, len(row), len(cols))
	}
	return nil
}

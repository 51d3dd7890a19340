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

// Package checkpoint records which dump files have been processed, so that
// an interrupted run can be resumed without re-reading them.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilosa/wdhistory/dump"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Store keeps file summaries in two leveldbs: one for files read cleanly to
// the end and one for files abandoned because of corruption.
type Store struct {
	done   *leveldb.DB
	failed *leveldb.DB
}

type errorList []error

func (errs errorList) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// Open opens (creating if needed) the checkpoint store in dirname.
func Open(dirname string) (*Store, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	s := &Store{}
	s.done, err = leveldb.OpenFile(filepath.Join(dirname, "done"), &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", filepath.Join(dirname, "done"))
	}
	s.failed, err = leveldb.OpenFile(filepath.Join(dirname, "failed"), &opt.Options{})
	if err != nil {
		s.done.Close()
		return nil, errors.Wrapf(err, "opening leveldb at %v", filepath.Join(dirname, "failed"))
	}
	return s, nil
}

// Close closes both leveldbs.
func (s *Store) Close() error {
	errs := make(errorList, 0)
	err := s.done.Close()
	if err != nil {
		errs = append(errs, errors.Wrap(err, "closing done"))
	}
	err = s.failed.Close()
	if err != nil {
		errs = append(errs, errors.Wrap(err, "closing failed"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Done reports whether name was read cleanly to the end.
func (s *Store) Done(name string) (bool, error) {
	ok, err := s.done.Has([]byte(name), nil)
	return ok, errors.Wrap(err, "reading done map")
}

// Mark records the summary of a file that was read to the end. Files whose
// summary carries an error are recorded as failed and are read again by
// the next run.
func (s *Store) Mark(name string, sum dump.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return errors.Wrap(err, "marshaling summary")
	}
	if sum.Err != nil {
		return errors.Wrap(s.failed.Put([]byte(name), data, &opt.WriteOptions{Sync: true}), "putting into failed map")
	}
	err = s.done.Put([]byte(name), data, &opt.WriteOptions{Sync: true})
	if err != nil {
		return errors.Wrap(err, "putting into done map")
	}
	return errors.Wrap(s.failed.Delete([]byte(name), nil), "deleting from failed map")
}

// Summary returns the recorded summary of a file that is done.
func (s *Store) Summary(name string) (sum dump.Summary, ok bool, err error) {
	data, err := s.done.Get([]byte(name), nil)
	if err == leveldb.ErrNotFound {
		return sum, false, nil
	}
	if err != nil {
		return sum, false, errors.Wrap(err, "reading done map")
	}
	return sum, true, errors.Wrap(json.Unmarshal(data, &sum), "unmarshaling summary")
}

// Failed returns the summaries of the files abandoned because of
// corruption, keyed by name.
func (s *Store) Failed() (map[string]dump.Summary, error) {
	out := make(map[string]dump.Summary)
	iter := s.failed.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		var sum dump.Summary
		if err := json.Unmarshal(iter.Value(), &sum); err != nil {
			return nil, errors.Wrapf(err, "unmarshaling summary of %s", iter.Key())
		}
		out[string(iter.Key())] = sum
	}
	return out, errors.Wrap(iter.Error(), "iterating failed map")
}

package checkpoint

import (
	"testing"

	"github.com/pilosa/wdhistory/dump"
	"github.com/pilosa/wdhistory/test"
	"github.com/pkg/errors"
)

func TestStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	done, err := s.Done("a.xml.bz2")
	test.ErrNil(t, err, "Done")
	test.MustBe(t, false, done)

	test.ErrNil(t, s.Mark("a.xml.bz2", dump.Summary{File: "a.xml.bz2", Pages: 3, Revisions: 9}), "Mark")
	pe := &dump.PositionError{File: "b.xml.bz2", Offset: 120, Line: 4, Err: errors.New("unexpected EOF")}
	test.ErrNil(t, s.Mark("b.xml.bz2", dump.Summary{File: "b.xml.bz2", Pages: 1, Err: pe, Error: pe.Error()}), "Mark failed")
	test.ErrNil(t, s.Close(), "Close")

	// survives reopening
	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	done, _ = s.Done("a.xml.bz2")
	test.MustBe(t, true, done)
	done, _ = s.Done("b.xml.bz2")
	test.MustBe(t, false, done)

	sum, ok, err := s.Summary("a.xml.bz2")
	test.ErrNil(t, err, "Summary")
	test.MustBe(t, true, ok)
	test.MustBe(t, int64(9), sum.Revisions)
	_, ok, _ = s.Summary("b.xml.bz2")
	test.MustBe(t, false, ok)

	failed, err := s.Failed()
	test.ErrNil(t, err, "Failed")
	if len(failed) != 1 || failed["b.xml.bz2"].Error != pe.Error() {
		t.Fatalf("unexpected failed files: %+v", failed)
	}

	// a clean rerun clears the failure
	test.ErrNil(t, s.Mark("b.xml.bz2", dump.Summary{File: "b.xml.bz2", Pages: 2}), "Mark again")
	failed, _ = s.Failed()
	test.MustBe(t, 0, len(failed))
	done, _ = s.Done("b.xml.bz2")
	test.MustBe(t, true, done)
}

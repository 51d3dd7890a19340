package lookup

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

func tsvReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

func eachRecord(r io.Reader, min int, fn func(rec []string)) error {
	cr := tsvReader(r)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tsv")
		}
		if len(rec) < min {
			line, _ := cr.FieldPos(0)
			return errors.Errorf("line %d: expected at least %d fields, got %d", line, min, len(rec))
		}
		fn(rec)
	}
}

// ReadProperties reads "pid<TAB>label" lines into s.
func (s *Static) ReadProperties(r io.Reader) error {
	return eachRecord(r, 2, func(rec []string) {
		s.Properties[rec[0]] = rec[1]
	})
}

// ReadEntities reads "id<TAB>label<TAB>description<TAB>type,type..." lines
// into s. Trailing fields may be omitted.
func (s *Static) ReadEntities(r io.Reader) error {
	return eachRecord(r, 2, func(rec []string) {
		info := EntityInfo{Label: rec[1]}
		if len(rec) > 2 {
			info.Description = rec[2]
		}
		if len(rec) > 3 && rec[3] != "" {
			info.Types = strings.Split(rec[3], ",")
		}
		s.Infos[rec[0]] = info
	})
}

// ReadEdges reads "child<TAB>parent" lines of relation into s.
func (s *Static) ReadEdges(relation string, r io.Reader) error {
	return eachRecord(r, 2, func(rec []string) {
		s.AddEdge(relation, rec[0], rec[1])
	})
}

// Package dump reads pages out of MediaWiki XML history dumps.
package dump

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pkg/errors"
)

// Namespace is the XML namespace of the export format the reader expects by
// default.
const Namespace = "http://www.mediawiki.org/xml/export-0.11/"

// PositionError reports malformed input along with where it was found. The
// rest of the file is abandoned.
type PositionError struct {
	File   string
	Offset int64
	Line   int
	Err    error
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("%s: corrupt dump at byte %d (line %d): %v", e.File, e.Offset, e.Line, e.Err)
}

// Cause returns the underlying error.
func (e *PositionError) Cause() error { return e.Err }

// Summary counts what a Reader has seen so far. Changes is not counted by
// the Reader; whoever processes the pages fills it in.
type Summary struct {
	File      string         `json:"file"`
	Pages     int64          `json:"pages"`
	Skipped   int64          `json:"skipped"`
	Revisions int64          `json:"revisions"`
	Changes   int64          `json:"changes"`
	Err       *PositionError `json:"-"`
	Error     string         `json:"error,omitempty"`
}

// Option is a functional option for Reader.
type Option func(r *Reader)

// OptNamespace sets the XML namespace of page elements. An empty namespace
// matches any.
func OptNamespace(ns string) Option {
	return func(r *Reader) {
		r.namespace = ns
	}
}

// OptPrefix sets the title prefix of the pages to keep.
func OptPrefix(prefix string) Option {
	return func(r *Reader) {
		r.prefix = prefix
	}
}

// OptName sets the file name used in errors and the summary.
func OptName(name string) Option {
	return func(r *Reader) {
		r.name = name
	}
}

// Reader yields the pages of a dump one at a time. It holds at most one page
// in memory.
type Reader struct {
	dec       *xml.Decoder
	namespace string
	prefix    string
	name      string
	summary   Summary
	failed    error
}

// NewReader returns a Reader on the decompressed XML stream r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		dec:       xml.NewDecoder(r),
		namespace: Namespace,
		prefix:    "Q",
	}
	for _, opt := range opts {
		opt(rd)
	}
	rd.summary.File = rd.name
	return rd
}

// Summary returns the counters accumulated so far.
func (r *Reader) Summary() Summary { return r.summary }

type xmlRevision struct {
	ID          int64  `xml:"id"`
	ParentID    int64  `xml:"parentid"`
	Timestamp   string `xml:"timestamp"`
	Contributor struct {
		Username string `xml:"username"`
		ID       int64  `xml:"id"`
		IP       string `xml:"ip"`
	} `xml:"contributor"`
	Comment string `xml:"comment"`
	Model   string `xml:"model"`
	Format  string `xml:"format"`
	Text    string `xml:"text"`
}

// Next returns the next page whose title has the configured prefix. It
// returns io.EOF at the clean end of the stream and a *PositionError if the
// stream is malformed, after which every call returns that same error.
func (r *Reader) Next() (*wdhistory.Page, error) {
	if r.failed != nil {
		return nil, r.failed
	}
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, r.fail(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "page" || !r.inNamespace(se.Name) {
			continue
		}
		page, err := r.readPage()
		if err != nil {
			return nil, err
		}
		if page == nil {
			r.summary.Skipped++
			continue
		}
		r.summary.Pages++
		r.summary.Revisions += int64(len(page.Revisions))
		return page, nil
	}
}

func (r *Reader) inNamespace(name xml.Name) bool {
	return r.namespace == "" || name.Space == r.namespace
}

// readPage consumes a page element whose start tag was just read. It returns
// nil for pages of other namespaces, which are skipped without decoding
// their revisions.
func (r *Reader) readPage() (*wdhistory.Page, error) {
	page := &wdhistory.Page{File: r.name}
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, r.fail(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title":
				if err := r.dec.DecodeElement(&page.Title, &t); err != nil {
					return nil, r.fail(errors.Wrap(err, "decoding title"))
				}
				if !strings.HasPrefix(page.Title, r.prefix) {
					if err := r.dec.Skip(); err != nil {
						return nil, r.fail(errors.Wrap(err, "skipping page"))
					}
					return nil, nil
				}
				page.EntityID = page.Title
			case "revision":
				var xr xmlRevision
				if err := r.dec.DecodeElement(&xr, &t); err != nil {
					return nil, r.fail(errors.Wrap(err, "decoding revision"))
				}
				rev, err := convert(&xr)
				if err != nil {
					return nil, r.fail(err)
				}
				page.Revisions = append(page.Revisions, rev)
			default:
				if err := r.dec.Skip(); err != nil {
					return nil, r.fail(errors.Wrapf(err, "skipping %s", t.Name.Local))
				}
			}
		case xml.EndElement:
			if t.Name.Local == "page" {
				if page.EntityID == "" {
					return nil, r.fail(errors.New("page without title"))
				}
				return page, nil
			}
		}
	}
}

func convert(xr *xmlRevision) (wdhistory.RawRevision, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(xr.Timestamp))
	if err != nil {
		return wdhistory.RawRevision{}, errors.Wrapf(err, "parsing timestamp of revision %d", xr.ID)
	}
	return wdhistory.RawRevision{
		ID:        xr.ID,
		ParentID:  xr.ParentID,
		Timestamp: ts,
		Comment:   xr.Comment,
		Contributor: wdhistory.Contributor{
			ID:       xr.Contributor.ID,
			Username: xr.Contributor.Username,
			IP:       xr.Contributor.IP,
		},
		Model:  xr.Model,
		Format: xr.Format,
		Text:   []byte(xr.Text),
	}, nil
}

func (r *Reader) fail(err error) error {
	line, _ := r.dec.InputPos()
	if se, ok := errors.Cause(err).(*xml.SyntaxError); ok {
		line = se.Line
	}
	pe := &PositionError{
		File:   r.name,
		Offset: r.dec.InputOffset(),
		Line:   line,
		Err:    err,
	}
	r.failed = pe
	r.summary.Err = pe
	r.summary.Error = pe.Error()
	return pe
}

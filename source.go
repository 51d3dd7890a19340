package wdhistory

import "io"

// NamedReadCloser is an io.ReadCloser which also knows the name of what it is
// reading, e.g. a file or an S3 object key.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource hands out the archives of a dump one at a time. NextReader
// returns io.EOF once every archive has been handed out. It is safe for
// concurrent use.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

package dump

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Extensions are the archive extensions Open knows how to read.
var Extensions = []string{".bz2", ".xz", ".gz", ".xml"}

// IsArchive reports whether name has one of Extensions.
func IsArchive(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Open wraps r with the decompressor matching the extension of name. Names
// without a known compression extension are read as plain XML.
func Open(name string, r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".bz2":
		zr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "opening bzip2 stream %s", name)
		}
		return zr, nil
	case ".xz":
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, errors.Wrapf(err, "opening xz stream %s", name)
		}
		return xr, nil
	case ".gz":
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrapf(err, "opening gzip stream %s", name)
		}
		return gr, nil
	default:
		return br, nil
	}
}

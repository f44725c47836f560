// Package datasource opens the byte streams behind dataset locations. A
// location is either a local path or an http(s) URL; ".gz" locations are
// decompressed on the fly and a leading UTF-8 BOM is dropped, so parsers
// always see plain UTF-8 text.
package datasource

import (
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tsvload/internal/datasource/file"
	"tsvload/internal/datasource/httpds"
	"tsvload/internal/errors"
)

// Source is anything that can be opened for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// HTTPConfig is used for http(s) locations. The zero value performs a single
// attempt with a 30s timeout.
var HTTPConfig = httpds.Config{}

// For returns the Source behind location.
func For(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return httpds.NewSource(httpds.NewClient(HTTPConfig), location)
	}
	return file.NewLocal(location)
}

// Open opens location and returns a reader of its decoded text. Failures
// are input errors.
func Open(ctx context.Context, location string) (io.ReadCloser, error) {
	rc, err := For(location).Open(ctx)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrInput, "open "+location)
	}
	return Decode(rc, location)
}

// Decode wraps rc with gzip decompression when name ends in ".gz" and with a
// BOM-stripping UTF-8 decoder. Closing the result closes rc.
func Decode(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	var r io.Reader = rc
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, errors.WithCode(err, errors.ErrInput, "gunzip "+name)
		}
		r = zr
	}
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	return &readCloser{Reader: r, Closer: rc}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

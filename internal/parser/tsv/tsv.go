// Package tsv reads and writes tab-separated dataset files.
//
// The format is the plain one used by the IMDb dumps: one record per line,
// fields split on the delimiter with no quoting rules, header on the first
// line. Empty lines carry no record and are skipped. Each row keeps its
// 1-based line number so later stages can report where bad data came from.
package tsv

import (
	"bufio"
	"context"
	"io"
	"strings"

	"tsvload/internal/config"
	"tsvload/internal/datasource"
	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// Options configures the reader and writer.
type Options struct {
	// Comma is the field delimiter; '\t' when zero.
	Comma rune
}

// OptionsFrom reads the parser options bag ("comma").
func OptionsFrom(o config.Options) Options {
	return Options{Comma: o.Rune("comma", '\t')}
}

func (o Options) sep() string {
	if o.Comma == 0 {
		return "\t"
	}
	return string(o.Comma)
}

// Reader streams rows from r. It is not safe for concurrent use.
type Reader struct {
	br   *bufio.Reader
	sep  string
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opt Options) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 1<<16), sep: opt.sep()}
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Next returns the next row, or io.EOF once the input is drained. A blank
// line is a row with one empty field. The newline ending the last line does
// not start another row, and a final line without one is still returned.
func (r *Reader) Next() (records.Row, error) {
	s, err := r.br.ReadString('\n')
	if err != nil && err != io.EOF {
		return records.Row{}, errors.WithCode(err, errors.ErrInput, "read")
	}
	if s == "" && err == io.EOF {
		return records.Row{}, io.EOF
	}
	r.line++
	s = strings.TrimRight(s, "\r\n")
	return records.Row{Line: r.line, Fields: strings.Split(s, r.sep)}, nil
}

// ReadHeader returns the fields of the first line. An input with no lines,
// or a blank first line, is an input error.
func (r *Reader) ReadHeader() ([]string, error) {
	row, err := r.Next()
	if err == io.EOF {
		return nil, errors.New(errors.ErrInput, "missing header line")
	}
	if err != nil {
		return nil, err
	}
	if len(row.Fields) == 1 && row.Fields[0] == "" {
		return nil, errors.New(errors.ErrInput, "blank header line")
	}
	return row.Fields, nil
}

// ReadAll reads the header and all data rows from r.
func ReadAll(r io.Reader, opt Options) ([]string, []records.Row, error) {
	rd := NewReader(r, opt)
	header, err := rd.ReadHeader()
	if err != nil {
		return nil, nil, err
	}
	var rows []records.Row
	for {
		row, err := rd.Next()
		if err == io.EOF {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
}

// File is an open dataset: its header has been consumed and Next yields the
// data rows.
type File struct {
	*Reader
	Header []string
	Path   string
	rc     io.Closer
}

// Open opens location through the datasource layer and reads its header.
func Open(ctx context.Context, location string, opt Options) (*File, error) {
	rc, err := datasource.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	rd := NewReader(rc, opt)
	header, err := rd.ReadHeader()
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "%s", location)
	}
	return &File{Reader: rd, Header: header, Path: location, rc: rc}, nil
}

// Close releases the underlying stream.
func (f *File) Close() error { return f.rc.Close() }

// Column returns the index of name in the header, or -1.
func (f *File) Column(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Load opens location and reads every data row into memory.
func Load(ctx context.Context, location string, opt Options) ([]string, []records.Row, error) {
	f, err := Open(ctx, location, opt)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	var rows []records.Row
	for {
		row, err := f.Next()
		if err == io.EOF {
			return f.Header, rows, nil
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "%s", location)
		}
		rows = append(rows, row)
	}
}

// Writer writes rows joined by the delimiter, one per line.
type Writer struct {
	bw  *bufio.Writer
	sep string
}

// NewWriter returns a buffered Writer; call Flush when done.
func NewWriter(w io.Writer, opt Options) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 1<<16), sep: opt.sep()}
}

// Write writes one line.
func (w *Writer) Write(fields []string) error {
	if _, err := w.bw.WriteString(strings.Join(fields, w.sep)); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Flush flushes buffered output.
func (w *Writer) Flush() error { return w.bw.Flush() }

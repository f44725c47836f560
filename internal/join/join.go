// Package join enriches primary rows with columns from a second dataset.
//
// Both inputs must already be sorted ascending by the numeric key of their
// identifier column (see package sorter). The join walks both with one cursor
// each, so memory use does not depend on the size of either input. It is a
// left outer join: every primary row is emitted exactly once, in input order,
// with the enrichment columns copied from the matching row or filled with
// default tokens when there is none. Unsorted input is not detected; it
// yields missed matches, not errors.
package join

import (
	"context"
	"io"

	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// RowIterator yields rows in order and io.EOF once exhausted.
type RowIterator interface {
	Next() (records.Row, error)
}

// SliceIterator iterates over an in-memory slice.
type SliceIterator struct {
	rows []records.Row
	pos  int
}

// NewSliceIterator returns an iterator over rows.
func NewSliceIterator(rows []records.Row) *SliceIterator {
	return &SliceIterator{rows: rows}
}

// Next implements RowIterator.
func (it *SliceIterator) Next() (records.Row, error) {
	if it.pos >= len(it.rows) {
		return records.Row{}, io.EOF
	}
	r := it.rows[it.pos]
	it.pos++
	return r, nil
}

// Spec describes one enrichment.
type Spec struct {
	// LeftKey and RightKey are the identifier columns of each side.
	LeftKey, RightKey int

	// RightColumns are the right-side columns appended to each left row.
	RightColumns []int

	// Defaults holds one raw token per entry of RightColumns, used when the
	// left row has no match.
	Defaults []string
}

func (s Spec) validate() error {
	if len(s.Defaults) != len(s.RightColumns) {
		return errors.Newf(errors.ErrConfig, "join: %d defaults for %d columns", len(s.Defaults), len(s.RightColumns))
	}
	if s.LeftKey < 0 || s.RightKey < 0 {
		return errors.New(errors.ErrConfig, "join: negative key column")
	}
	return nil
}

// ctxCheckEvery bounds how many rows are joined between context checks.
const ctxCheckEvery = 4096

// cursor is one side of the join with its current row and key. A stale
// cursor has consumed its row and reads the next one on demand.
type cursor struct {
	it    RowIterator
	col   int
	row   records.Row
	key   int64
	done  bool
	stale bool
}

func (c *cursor) advance() error {
	c.stale = false
	row, err := c.it.Next()
	if err == io.EOF {
		c.done = true
		return nil
	}
	if err != nil {
		return err
	}
	if c.col >= len(row.Fields) {
		return errors.Newf(errors.ErrParse, "line %d: no key column %d", row.Line, c.col)
	}
	key, err := records.NumericKey(row.Fields[c.col])
	if err != nil {
		return errors.Wrapf(err, "line %d", row.Line)
	}
	c.row, c.key = row, key
	return nil
}

// MergeJoin performs the left outer join of left and right, calling emit
// once per left row in left order. Equal keys combine both rows and advance
// both cursors; a smaller left key is emitted with defaults; a smaller right
// key is dropped. Rows still on the right once the left is exhausted are
// never read. The first error from an iterator, a key, or emit stops the join.
func MergeJoin(ctx context.Context, left, right RowIterator, spec Spec, emit func(records.Row) error) error {
	if err := spec.validate(); err != nil {
		return err
	}
	l := &cursor{it: left, col: spec.LeftKey}
	r := &cursor{it: right, col: spec.RightKey, stale: true}
	if err := l.advance(); err != nil {
		return errors.Wrap(err, "join: left")
	}

	for n := 0; !l.done; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if r.stale {
			if err := r.advance(); err != nil {
				return errors.Wrap(err, "join: right")
			}
		}
		if !r.done && r.key < l.key {
			if err := r.advance(); err != nil {
				return errors.Wrap(err, "join: right")
			}
			continue
		}

		var out records.Row
		if !r.done && r.key == l.key {
			row, err := combine(l.row, r.row, spec)
			if err != nil {
				return err
			}
			out = row
			r.stale = true
		} else {
			out = withDefaults(l.row, spec)
		}
		if err := emit(out); err != nil {
			return err
		}
		if err := l.advance(); err != nil {
			return errors.Wrap(err, "join: left")
		}
	}
	return nil
}

func combine(left, right records.Row, spec Spec) (records.Row, error) {
	fields := make(records.RawRow, 0, len(left.Fields)+len(spec.RightColumns))
	fields = append(fields, left.Fields...)
	for _, c := range spec.RightColumns {
		if c >= len(right.Fields) {
			return records.Row{}, errors.Newf(errors.ErrParse, "join: right line %d: %d fields, need column %d", right.Line, len(right.Fields), c)
		}
		fields = append(fields, right.Fields[c])
	}
	return records.Row{Line: left.Line, Fields: fields}, nil
}

func withDefaults(left records.Row, spec Spec) records.Row {
	fields := make(records.RawRow, 0, len(left.Fields)+len(spec.Defaults))
	fields = append(fields, left.Fields...)
	fields = append(fields, spec.Defaults...)
	return records.Row{Line: left.Line, Fields: fields}
}

// Rows joins two in-memory slices.
func Rows(ctx context.Context, left, right []records.Row, spec Spec) ([]records.JoinedRow, error) {
	out := make([]records.JoinedRow, 0, len(left))
	err := MergeJoin(ctx, NewSliceIterator(left), NewSliceIterator(right), spec, func(r records.Row) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

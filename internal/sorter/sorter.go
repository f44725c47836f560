// Package sorter orders dataset rows by the numeric part of their identifier,
// which is the order the merge-join expects on both of its inputs.
package sorter

import (
	"cmp"
	"context"
	"log"
	"os"
	"slices"
	"time"

	"tsvload/internal/errors"
	"tsvload/internal/parser/tsv"
	"tsvload/pkg/records"
)

type keyed struct {
	key int64
	row records.Row
}

func keys(rows []records.Row, keyColumn int) ([]keyed, error) {
	ks := make([]keyed, len(rows))
	for i, r := range rows {
		if keyColumn < 0 || keyColumn >= len(r.Fields) {
			return nil, errors.Newf(errors.ErrParse, "line %d: no key column %d", r.Line, keyColumn)
		}
		k, err := records.NumericKey(r.Fields[keyColumn])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", r.Line)
		}
		ks[i] = keyed{key: k, row: r}
	}
	return ks, nil
}

// Sort returns rows ordered ascending by the numeric key of the identifier
// in keyColumn. Rows with equal keys keep their input order. The input slice
// is not modified.
func Sort(rows []records.Row, keyColumn int) ([]records.Row, error) {
	ks, err := keys(rows, keyColumn)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(ks, func(a, b keyed) int { return cmp.Compare(a.key, b.key) })
	out := make([]records.Row, len(ks))
	for i, k := range ks {
		out[i] = k.row
	}
	return out, nil
}

// IsSorted reports whether rows are already in ascending key order.
func IsSorted(rows []records.Row, keyColumn int) (bool, error) {
	ks, err := keys(rows, keyColumn)
	if err != nil {
		return false, err
	}
	return slices.IsSortedFunc(ks, func(a, b keyed) int { return cmp.Compare(a.key, b.key) }), nil
}

// FileOptions configures SortFile.
type FileOptions struct {
	// KeyColumn names the identifier column; the first column when empty.
	KeyColumn string
	TSV       tsv.Options
}

func keyColumn(in string, header []string, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	col := slices.Index(header, name)
	if col < 0 {
		return 0, errors.Newf(errors.ErrConfig, "%s: no column %q", in, name)
	}
	return col, nil
}

// CheckFile reports whether the data rows of the dataset at in are already
// in ascending key order. Nothing is written.
func CheckFile(ctx context.Context, in string, opt FileOptions) (bool, error) {
	header, rows, err := tsv.Load(ctx, in, opt.TSV)
	if err != nil {
		return false, err
	}
	col, err := keyColumn(in, header, opt.KeyColumn)
	if err != nil {
		return false, err
	}
	ok, err := IsSorted(rows, col)
	if err != nil {
		return false, errors.Wrapf(err, "%s", in)
	}
	log.Printf("sort: check in=%s rows=%d sorted=%t", in, len(rows), ok)
	return ok, nil
}

// SortFile reads the dataset at in, sorts its data rows and writes the header
// followed by the sorted rows to out. It returns the number of data rows.
func SortFile(ctx context.Context, in, out string, opt FileOptions) (int, error) {
	start := time.Now()
	header, rows, err := tsv.Load(ctx, in, opt.TSV)
	if err != nil {
		return 0, err
	}
	col, err := keyColumn(in, header, opt.KeyColumn)
	if err != nil {
		return 0, err
	}
	sorted, err := Sort(rows, col)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", in)
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, errors.WithCode(err, errors.ErrInput, "create "+out)
	}
	w := tsv.NewWriter(f, opt.TSV)
	werr := w.Write(header)
	for _, r := range sorted {
		if werr != nil {
			break
		}
		werr = w.Write(r.Fields)
	}
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return 0, errors.WithCode(werr, errors.ErrInput, "write "+out)
	}
	log.Printf("sort: in=%s out=%s rows=%d elapsed=%s", in, out, len(sorted), time.Since(start).Truncate(time.Millisecond))
	return len(sorted), nil
}

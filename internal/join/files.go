package join

import (
	"context"
	"log"
	"os"
	"time"

	"tsvload/internal/errors"
	"tsvload/internal/parser/tsv"
	"tsvload/internal/transformer"
	"tsvload/pkg/records"
)

// FileOptions configures MergeFiles.
type FileOptions struct {
	Enrichment
	Kinds map[string]transformer.Kind
	TSV   tsv.Options
}

// MergeFiles streams the join of two sorted dataset files into out: the
// joined header, then one line per left row. It returns the number of rows
// written.
func MergeFiles(ctx context.Context, left, right, out string, opt FileOptions) (int, error) {
	start := time.Now()
	lf, err := tsv.Open(ctx, left, opt.TSV)
	if err != nil {
		return 0, err
	}
	defer lf.Close()
	rf, err := tsv.Open(ctx, right, opt.TSV)
	if err != nil {
		return 0, err
	}
	defer rf.Close()

	spec, header, err := Plan(lf.Header, rf.Header, opt.Enrichment, opt.Kinds)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, errors.WithCode(err, errors.ErrInput, "create "+out)
	}
	defer f.Close()
	w := tsv.NewWriter(f, opt.TSV)
	if err := w.Write(header); err != nil {
		return 0, errors.WithCode(err, errors.ErrInput, "write "+out)
	}

	n := 0
	err = MergeJoin(ctx, lf, rf, spec, func(r records.Row) error {
		n++
		return w.Write(r.Fields)
	})
	if err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, errors.WithCode(err, errors.ErrInput, "write "+out)
	}
	if err := f.Close(); err != nil {
		return 0, errors.WithCode(err, errors.ErrInput, "close "+out)
	}
	log.Printf("merge: left=%s right=%s out=%s rows=%d elapsed=%s", left, right, out, n, time.Since(start).Truncate(time.Millisecond))
	return n, nil
}

package storage

import (
	"context"
	"io"
	"log"
	"time"

	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// DocIterator yields documents in order and io.EOF once exhausted.
type DocIterator interface {
	Next() (records.Document, error)
}

// WriteFn submits one batch.
type WriteFn func(ctx context.Context, docs []records.Document) error

// LoadResult summarizes a LoadBatches call.
type LoadResult struct {
	Docs    int64
	Batches int
}

// LoadBatches drains in, groups documents into batches of at most batchSize,
// and calls write once per batch in input order. Each batch is a fresh
// slice. The first error from in or write stops the load; documents not yet
// written are abandoned. label prefixes the per-batch progress log line.
func LoadBatches(ctx context.Context, label string, in DocIterator, batchSize int, write WriteFn) (LoadResult, error) {
	var res LoadResult
	if batchSize <= 0 {
		return res, errors.Newf(errors.ErrConfig, "batch size must be > 0, got %d", batchSize)
	}
	if write == nil {
		return res, errors.New(errors.ErrConfig, "write must not be nil")
	}

	var (
		batch     = make([]records.Document, 0, batchSize)
		start     = time.Now()
		lastFlush = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n := len(batch)
		if err := write(ctx, batch); err != nil {
			log.Printf("loader: %s batch=%d size=%d failed after total=%d err=%v", label, res.Batches+1, n, res.Docs, err)
			return err
		}
		res.Batches++
		res.Docs += int64(n)

		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		log.Printf("loader: %s batch=%d size=%d total=%d rps=%.0f elapsed=%s",
			label, res.Batches, n, res.Docs, rps, now.Sub(start).Truncate(time.Millisecond))
		lastFlush = now
		batch = make([]records.Document, 0, batchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc, err := in.Next()
		if err == io.EOF {
			return res, flush()
		}
		if err != nil {
			return res, err
		}
		batch = append(batch, doc)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
}

// SliceDocs iterates over an in-memory slice of documents.
type SliceDocs struct {
	docs []records.Document
	pos  int
}

// NewSliceDocs returns an iterator over docs.
func NewSliceDocs(docs []records.Document) *SliceDocs { return &SliceDocs{docs: docs} }

// Next implements DocIterator.
func (s *SliceDocs) Next() (records.Document, error) {
	if s.pos >= len(s.docs) {
		return records.Document{}, io.EOF
	}
	d := s.docs[s.pos]
	s.pos++
	return d, nil
}

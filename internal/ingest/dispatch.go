package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"tsvload/internal/errors"
	"tsvload/internal/metrics"
	"tsvload/internal/storage"
	"tsvload/internal/transformer"
	"tsvload/pkg/records"
)

// DispatchConfig controls one Dispatch call.
type DispatchConfig struct {
	Job        string
	Collection string
	BatchSize  int
	Workers    int
}

// WorkerResult reports what one worker submitted. Docs counts only
// documents in acknowledged batches.
type WorkerResult struct {
	Partition
	Docs    int64
	Batches int
	Elapsed time.Duration
	Err     error
}

// Failed reports whether the worker stopped before finishing its range.
func (r WorkerResult) Failed() bool { return r.Err != nil }

// rowDocs assembles rows lazily, one document per Next call.
type rowDocs struct {
	rows []records.Row
	asm  *transformer.Assembler
	pos  int
}

func (it *rowDocs) Next() (records.Document, error) {
	if it.pos >= len(it.rows) {
		return records.Document{}, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return it.asm.Assemble(row)
}

// Dispatch splits rows into cfg.Workers static partitions and runs one
// worker per partition. Each worker assembles its rows in order, groups them
// into batches of cfg.BatchSize and writes every batch to its own store
// session, waiting for each write before the next. A worker that hits a
// parse or store error stops; the others keep going. Dispatch returns once
// every worker is done, with one result per worker and the joined errors.
func Dispatch(ctx context.Context, rows []records.Row, asm *transformer.Assembler, store storage.DocumentStore, cfg DispatchConfig) ([]WorkerResult, error) {
	if asm == nil || store == nil {
		return nil, errors.New(errors.ErrConfig, "dispatch: assembler and store are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.Newf(errors.ErrConfig, "dispatch: batch size must be > 0, got %d", cfg.BatchSize)
	}
	parts, err := Partitions(len(rows), cfg.Workers)
	if err != nil {
		return nil, err
	}

	results := make([]WorkerResult, len(parts))
	var g errgroup.Group
	for _, p := range parts {
		p := p
		g.Go(func() error {
			results[p.Worker] = runWorker(ctx, rows[p.Start:p.End], p, asm, store, cfg)
			return results[p.Worker].Err
		})
	}
	// Every worker error is in results; Wait only blocks.
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func runWorker(ctx context.Context, rows []records.Row, p Partition, asm *transformer.Assembler, store storage.DocumentStore, cfg DispatchConfig) WorkerResult {
	res := WorkerResult{Partition: p}
	start := time.Now()

	if len(rows) == 0 {
		log.Printf("worker: worker=%d rows=0 skipped", p.Worker)
		return res
	}
	log.Printf("worker: worker=%d start=%d end=%d", p.Worker, p.Start, p.End)

	sess, err := storage.SessionFor(ctx, store)
	if err != nil {
		res.Err = errors.Wrapf(err, "worker %d", p.Worker)
		return finish(res, cfg, start)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Printf("worker: worker=%d close session: %v", p.Worker, cerr)
		}
	}()

	label := fmt.Sprintf("worker=%d", p.Worker)
	write := func(ctx context.Context, docs []records.Document) error {
		if err := sess.BulkWrite(ctx, cfg.Collection, docs); err != nil {
			return errors.WithCode(err, errors.ErrStore, fmt.Sprintf("bulk write of %d documents", len(docs)))
		}
		metrics.RecordBatches(cfg.Job, p.Worker, 1)
		return nil
	}
	lr, err := storage.LoadBatches(ctx, label, &rowDocs{rows: rows, asm: asm}, cfg.BatchSize, write)
	res.Docs, res.Batches = lr.Docs, lr.Batches
	if err != nil {
		res.Err = errors.Wrapf(err, "worker %d", p.Worker)
	}
	return finish(res, cfg, start)
}

func finish(res WorkerResult, cfg DispatchConfig, start time.Time) WorkerResult {
	res.Elapsed = time.Since(start)
	metrics.RecordRow(cfg.Job, "indexed", res.Docs)
	if res.Err != nil {
		metrics.RecordRow(cfg.Job, "failed", int64(res.Len())-res.Docs)
		log.Printf("worker: worker=%d failed docs=%d batches=%d err=%v", res.Worker, res.Docs, res.Batches, res.Err)
		return res
	}
	log.Printf("worker: worker=%d done docs=%d batches=%d elapsed=%s",
		res.Worker, res.Docs, res.Batches, res.Elapsed.Truncate(time.Millisecond))
	return res
}

// Package ingest runs one dataset ingestion: read the primary dataset, sort
// and join enrichments onto it, then dispatch the joined rows to the
// document store through a fixed pool of workers.
package ingest

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"tsvload/internal/errors"
	"tsvload/internal/join"
	"tsvload/internal/metrics"
	"tsvload/internal/parser/tsv"
	"tsvload/internal/sorter"
	"tsvload/internal/storage"
	"tsvload/internal/transformer"
	"tsvload/pkg/records"
)

// Source is one input dataset. Location is a local path (optionally .gz) or
// an http(s) URL. IDColumn defaults to the first header column.
type Source struct {
	Location string
	IDColumn string

	// Enrichment only: columns to copy and their defaults for unmatched rows.
	Columns  []string
	Defaults map[string]string
}

// Job is one ingestion invocation. A Job is a plain value; Run never
// modifies it.
type Job struct {
	Name        string
	Primary     Source
	Enrichments []Source
	BatchSize   int
	Workers     int
	Collection  string

	// Sort orders every dataset by identifier before joining. Without it
	// the inputs must already be sorted.
	Sort bool

	// Types maps column names to type names (see transformer.ParseKind).
	// Empty means transformer.DefaultTypes.
	Types map[string]string

	TSV tsv.Options
}

// Report summarizes a finished run.
type Report struct {
	RunID   string
	Job     string
	State   State
	Header  []string
	Rows    int
	Docs    int64
	Batches int
	Workers []WorkerResult
	Elapsed time.Duration
}

// Runner executes jobs against one store. OnState, when set, is called on
// every state transition from the calling goroutine.
type Runner struct {
	Store   storage.DocumentStore
	OnState func(runID string, s State)
}

func (j Job) validate() error {
	switch {
	case j.Primary.Location == "":
		return errors.New(errors.ErrConfig, "job: primary source is required")
	case j.BatchSize <= 0:
		return errors.Newf(errors.ErrConfig, "job: batch size must be > 0, got %d", j.BatchSize)
	case j.Workers <= 0:
		return errors.Newf(errors.ErrConfig, "job: workers must be > 0, got %d", j.Workers)
	case j.Collection == "":
		return errors.New(errors.ErrConfig, "job: collection is required")
	}
	for i, e := range j.Enrichments {
		if e.Location == "" {
			return errors.Newf(errors.ErrConfig, "job: enrichment %d has no location", i)
		}
	}
	return nil
}

func (j Job) kinds() (map[string]transformer.Kind, error) {
	if len(j.Types) == 0 {
		return transformer.DefaultTypes, nil
	}
	return transformer.ParseKinds(j.Types)
}

// Run executes job and returns its report. Input, sort and join errors stop
// the run before anything is written. Dispatch errors are per worker: the
// report still lists every worker and the returned error joins the failures.
func (r Runner) Run(ctx context.Context, job Job) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Job: job.Name, State: NotStarted}
	start := time.Now()
	r.transition(rep, NotStarted)

	err := r.run(ctx, job, rep)
	rep.Elapsed = time.Since(start)
	if err != nil {
		r.transition(rep, Failed)
	} else {
		r.transition(rep, Completed)
	}
	log.Printf("summary: run=%s job=%s state=%s rows=%d docs=%d batches=%d workers=%d failed_workers=%d elapsed=%s",
		rep.RunID, rep.Job, rep.State, rep.Rows, rep.Docs, rep.Batches, len(rep.Workers), failedWorkers(rep.Workers),
		rep.Elapsed.Truncate(time.Millisecond))
	return rep, err
}

func (r Runner) run(ctx context.Context, job Job, rep *Report) error {
	if r.Store == nil {
		return errors.New(errors.ErrConfig, "runner: store is required")
	}
	if err := job.validate(); err != nil {
		return err
	}
	kinds, err := job.kinds()
	if err != nil {
		return err
	}
	log.Printf("ingest: run=%s job=%s primary=%s enrichments=%d workers=%d batch_size=%d collection=%s",
		rep.RunID, job.Name, job.Primary.Location, len(job.Enrichments), job.Workers, job.BatchSize, job.Collection)

	r.transition(rep, Reading)
	primary, err := step(job.Name, "read", func() (dataset, error) { return load(ctx, job.Primary, job.TSV) })
	if err != nil {
		return err
	}
	enrichments := make([]dataset, len(job.Enrichments))
	for i, src := range job.Enrichments {
		d, err := step(job.Name, "read", func() (dataset, error) { return load(ctx, src, job.TSV) })
		if err != nil {
			return err
		}
		enrichments[i] = d
	}
	metrics.RecordRow(job.Name, "read", int64(len(primary.rows)))

	if job.Sort {
		r.transition(rep, Sorting)
		primary, err = step(job.Name, "sort", func() (dataset, error) { return primary.sorted() })
		if err != nil {
			return err
		}
		for i := range enrichments {
			enrichments[i], err = step(job.Name, "sort", func() (dataset, error) { return enrichments[i].sorted() })
			if err != nil {
				return err
			}
		}
	}

	r.transition(rep, Joining)
	joined := primary
	for i, e := range enrichments {
		src := job.Enrichments[i]
		joined, err = step(job.Name, "join", func() (dataset, error) { return joined.join(ctx, e, src, kinds) })
		if err != nil {
			return err
		}
	}
	if len(enrichments) > 0 {
		metrics.RecordRow(job.Name, "joined", int64(len(joined.rows)))
	}
	rep.Header = joined.header
	rep.Rows = len(joined.rows)

	asm, err := transformer.NewAssembler(joined.header, kinds, joined.idColumn)
	if err != nil {
		return err
	}
	if err := storage.EnsureCollection(ctx, r.Store, job.Collection); err != nil {
		return err
	}

	r.transition(rep, Dispatching)
	dstart := time.Now()
	results, err := Dispatch(ctx, joined.rows, asm, r.Store, DispatchConfig{
		Job:        job.Name,
		Collection: job.Collection,
		BatchSize:  job.BatchSize,
		Workers:    job.Workers,
	})
	metrics.RecordStep(job.Name, "dispatch", err, time.Since(dstart))
	rep.Workers = results
	for _, res := range results {
		rep.Docs += res.Docs
		rep.Batches += res.Batches
	}
	return err
}

func (r Runner) transition(rep *Report, s State) {
	rep.State = s
	if r.OnState != nil {
		r.OnState(rep.RunID, s)
	}
}

// step runs fn and records it as one metrics step.
func step(job, name string, fn func() (dataset, error)) (dataset, error) {
	start := time.Now()
	d, err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return d, err
}

func failedWorkers(rs []WorkerResult) int {
	n := 0
	for _, r := range rs {
		if r.Failed() {
			n++
		}
	}
	return n
}

// dataset is a fully read TSV file.
type dataset struct {
	location string
	header   []string
	rows     []records.Row
	idColumn int
}

func load(ctx context.Context, src Source, opt tsv.Options) (dataset, error) {
	header, rows, err := tsv.Load(ctx, src.Location, opt)
	if err != nil {
		return dataset{}, err
	}
	d := dataset{location: src.Location, header: header, rows: rows}
	if src.IDColumn != "" {
		d.idColumn = slices.Index(header, src.IDColumn)
		if d.idColumn < 0 {
			return dataset{}, errors.Newf(errors.ErrConfig, "%s: header has no id column %q", src.Location, src.IDColumn)
		}
	}
	log.Printf("read: location=%s columns=%d rows=%d", src.Location, len(header), len(rows))
	return d, nil
}

func (d dataset) sorted() (dataset, error) {
	rows, err := sorter.Sort(d.rows, d.idColumn)
	if err != nil {
		return dataset{}, errors.Wrapf(err, "sort %s", d.location)
	}
	d.rows = rows
	return d, nil
}

// join left-outer joins right onto d. The result keeps d's id column.
func (d dataset) join(ctx context.Context, right dataset, src Source, kinds map[string]transformer.Kind) (dataset, error) {
	spec, header, err := join.Plan(d.header, right.header, join.Enrichment{
		LeftKey:  d.header[d.idColumn],
		RightKey: right.header[right.idColumn],
		Columns:  src.Columns,
		Defaults: src.Defaults,
	}, kinds)
	if err != nil {
		return dataset{}, err
	}
	rows, err := join.Rows(ctx, d.rows, right.rows, spec)
	if err != nil {
		return dataset{}, errors.Wrapf(err, "join %s", right.location)
	}
	log.Printf("join: left=%s right=%s rows=%d columns=%d", d.location, right.location, len(rows), len(header))
	return dataset{location: d.location, header: header, rows: rows, idColumn: d.idColumn}, nil
}

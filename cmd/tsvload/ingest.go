package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tsvload/internal/config"
	"tsvload/internal/datasource"
	"tsvload/internal/errors"
	"tsvload/internal/ingest"
	"tsvload/internal/metrics"
	"tsvload/internal/metrics/datadog"
	"tsvload/internal/metrics/prompush"
	"tsvload/internal/parser/tsv"
	"tsvload/internal/storage"
)

// ingestFlags override the pipeline file. Zero values leave it alone.
type ingestFlags struct {
	workers        int
	batchSize      int
	sort           bool
	storageKind    string
	dsn            string
	addrs          []string
	collection     string
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
	httpTimeout    time.Duration
	httpRetries    int
}

func newIngestCommand(stdout io.Writer) *cobra.Command {
	var fl ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the pipeline described by --config.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(cmd)
			if err != nil {
				return err
			}
			fl.apply(&p)
			if err := checkIssues(stdout, p); err != nil {
				return err
			}
			return runIngest(cmd.Context(), stdout, p, fl)
		},
	}
	f := cmd.Flags()
	f.IntVar(&fl.workers, "workers", 0, "Worker count (default: runtime.workers, then 4).")
	f.IntVar(&fl.batchSize, "batch-size", 0, "Documents per bulk write (default: runtime.batch_size, then 25000).")
	f.BoolVar(&fl.sort, "sort", false, "Sort every dataset by identifier before joining.")
	f.StringVar(&fl.storageKind, "storage-kind", "", "Document store kind, see 'tsvload kinds'.")
	f.StringVar(&fl.dsn, "dsn", "", "Document store DSN or URL.")
	f.StringSliceVar(&fl.addrs, "addrs", nil, "Document store addresses (elasticsearch, kafka).")
	f.StringVar(&fl.collection, "collection", "", "Destination collection, table, index or topic.")
	f.StringVar(&fl.metricsBackend, "metrics-backend", "", "Metrics backend: none, pushgateway or datadog.")
	f.StringVar(&fl.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL.")
	f.StringVar(&fl.datadogAddr, "datadog-addr", "", "DogStatsD address.")
	f.DurationVar(&fl.httpTimeout, "http-timeout", 30*time.Second, "Timeout for http(s) dataset downloads.")
	f.IntVar(&fl.httpRetries, "http-retries", 0, "Retries for failed http(s) dataset downloads.")
	return cmd
}

func (fl ingestFlags) apply(p *config.Pipeline) {
	if fl.workers > 0 {
		p.Runtime.Workers = fl.workers
	}
	if fl.batchSize > 0 {
		p.Runtime.BatchSize = fl.batchSize
	}
	p.Runtime.Sort = p.Runtime.Sort || fl.sort
	if fl.storageKind != "" {
		p.Storage.Kind = fl.storageKind
	}
	if fl.dsn != "" {
		p.Storage.DSN = fl.dsn
	}
	if len(fl.addrs) > 0 {
		p.Storage.Addrs = fl.addrs
	}
	if fl.collection != "" {
		p.Storage.Collection = fl.collection
	}
	if fl.metricsBackend != "" {
		p.Metrics.Backend = fl.metricsBackend
	}
	if fl.pushgatewayURL != "" {
		p.Metrics.PushgatewayURL = fl.pushgatewayURL
	}
	if fl.datadogAddr != "" {
		p.Metrics.DatadogAddr = fl.datadogAddr
	}
	p.Runtime = config.ResolveRuntime(p.Runtime)
}

func loadPipeline(cmd *cobra.Command) (config.Pipeline, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Pipeline{}, err
	}
	if path == "" {
		return config.Pipeline{}, errors.New(errors.ErrConfig, "--config is required")
	}
	return config.Load(path)
}

// checkIssues prints every issue and fails when any of them is an error.
func checkIssues(w io.Writer, p config.Pipeline) error {
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errors.Newf(errors.ErrConfig, "configuration is invalid (%d issues)", len(issues))
	}
	return nil
}

func runIngest(ctx context.Context, stdout io.Writer, p config.Pipeline, fl ingestFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	datasource.HTTPConfig.Timeout = fl.httpTimeout
	datasource.HTTPConfig.MaxRetries = fl.httpRetries

	flush := setupMetrics(p)
	defer flush()

	store, err := storage.New(ctx, storage.Config{
		Kind:       p.Storage.Kind,
		DSN:        p.Storage.DSN,
		Addrs:      p.Storage.Addrs,
		Collection: p.Collection(),
		AutoCreate: p.Storage.AutoCreate,
		Topic:      p.Storage.Topic,
		Queue:      p.Storage.Queue,
		Encoding:   p.Storage.Encoding,
		Username:   p.Storage.Username,
		Password:   p.Storage.Password,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("storage: close: %v", err)
		}
	}()

	rep, err := ingest.Runner{
		Store: store,
		OnState: func(runID string, s ingest.State) {
			log.Printf("state: run=%s state=%s", runID, s)
		},
	}.Run(ctx, jobFromPipeline(p))
	if rep != nil {
		printReport(stdout, rep)
	}
	return err
}

func jobFromPipeline(p config.Pipeline) ingest.Job {
	src := func(s config.Source) ingest.Source {
		return ingest.Source{Location: s.Path, IDColumn: s.IDColumn, Columns: s.Columns, Defaults: s.Defaults}
	}
	job := ingest.Job{
		Name:       p.Job,
		Primary:    src(p.Sources.Primary),
		BatchSize:  p.Runtime.BatchSize,
		Workers:    p.Runtime.Workers,
		Collection: p.Collection(),
		Sort:       p.Runtime.Sort,
		Types:      p.Types(),
		TSV:        tsv.OptionsFrom(p.Parser.Options),
	}
	for _, e := range p.Sources.Enrichments {
		job.Enrichments = append(job.Enrichments, src(e))
	}
	return job
}

func printReport(w io.Writer, rep *ingest.Report) {
	fmt.Fprintf(w, "run=%s job=%s state=%s rows=%d docs=%d batches=%d elapsed=%s\n",
		rep.RunID, rep.Job, rep.State, rep.Rows, rep.Docs, rep.Batches, rep.Elapsed.Truncate(time.Millisecond))
	for _, r := range rep.Workers {
		status := "ok"
		if r.Failed() {
			status = "failed: " + r.Err.Error()
		}
		fmt.Fprintf(w, "  worker=%d rows=[%d,%d) docs=%d batches=%d %s\n", r.Worker, r.Start, r.End, r.Docs, r.Batches, status)
	}
}

// setupMetrics installs the configured backend and returns its flush func.
// A backend that cannot start is logged and metrics stay disabled.
func setupMetrics(p config.Pipeline) func() {
	job := p.Job
	if job == "" {
		job = "tsvload"
	}
	var b metrics.Backend
	switch p.Metrics.Backend {
	case "pushgateway":
		gwURL := p.Metrics.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		pb, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=pushgateway, job_name=%v", gwURL, job)
		b = pb
	case "datadog":
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.DatadogAddr,
			Namespace:  "tsvload.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=datadog", p.Metrics.DatadogAddr)
		metrics.SetBackend(db)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
			_ = db.Close()
		}
	default:
		return func() {}
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}

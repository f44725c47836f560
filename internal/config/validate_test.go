package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validPipeline() Pipeline {
	return Pipeline{
		Job: "films",
		Sources: Sources{
			Primary:     Source{Path: "title.basics.tsv", IDColumn: "tconst"},
			Enrichments: []Source{{Path: "title.ratings.tsv"}},
		},
		Transform: []Transform{{Kind: "coerce", Options: Options{"types": map[string]any{"startYear": "int"}}}},
		Storage:   Storage{Kind: "elasticsearch", Addrs: []string{"http://localhost:9200"}, Collection: "films"},
		Runtime:   RuntimeConfig{Sort: true},
	}
}

func TestValidatePipeline_Valid(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidatePipeline_Issues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Pipeline)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"missing_job", func(p *Pipeline) { p.Job = " " }, SeverityError, "job", "must not be empty"},
		{"missing_primary", func(p *Pipeline) { p.Sources.Primary.Path = "" }, SeverityError, "sources.primary.path", "non-empty path"},
		{"primary_columns", func(p *Pipeline) { p.Sources.Primary.Columns = []string{"x"} }, SeverityWarning, "sources.primary", "only apply to enrichments"},
		{"missing_enrichment_path", func(p *Pipeline) { p.Sources.Enrichments[0].Path = "" }, SeverityError, "sources.enrichments[0].path", "non-empty path"},
		{"default_not_copied", func(p *Pipeline) {
			p.Sources.Enrichments[0].Columns = []string{"averageRating"}
			p.Sources.Enrichments[0].Defaults = map[string]string{"numVotes": "0"}
		}, SeverityWarning, "sources.enrichments[0].defaults.numVotes", "not copied"},
		{"wide_comma", func(p *Pipeline) { p.Parser.Options = Options{"comma": "||"} }, SeverityError, "parser.options.comma", "single character"},
		{"unknown_transform", func(p *Pipeline) { p.Transform = []Transform{{Kind: "normalize"}} }, SeverityError, "transform[0].kind", "only coerce"},
		{"unknown_type", func(p *Pipeline) {
			p.Transform[0].Options = Options{"types": map[string]any{"startYear": "date"}}
		}, SeverityError, "transform[0].options.types.startYear", `unknown type "date"`},
		{"missing_storage_kind", func(p *Pipeline) { p.Storage.Kind = "" }, SeverityError, "storage.kind", "must not be empty"},
		{"unsupported_storage_kind", func(p *Pipeline) { p.Storage.Kind = "mongodb" }, SeverityError, "storage.kind", "unsupported"},
		{"sql_without_dsn", func(p *Pipeline) { p.Storage = Storage{Kind: "postgres", Collection: "films"} }, SeverityError, "storage.dsn", "requires a dsn"},
		{"amqp_without_dsn", func(p *Pipeline) { p.Storage = Storage{Kind: "amqp", Collection: "films"} }, SeverityError, "storage.dsn", "requires a dsn"},
		{"kafka_without_addrs", func(p *Pipeline) { p.Storage = Storage{Kind: "kafka", Collection: "films"} }, SeverityError, "storage.addrs", "at least one address"},
		{"auto_create_ignored", func(p *Pipeline) { p.Storage.AutoCreate = true }, SeverityWarning, "storage.auto_create", "no effect"},
		{"bad_encoding", func(p *Pipeline) { p.Storage.Encoding = "avro" }, SeverityError, "storage.encoding", "unknown encoding"},
		{"encoding_ignored", func(p *Pipeline) { p.Storage.Encoding = "msgpack" }, SeverityWarning, "storage.encoding", "no effect"},
		{"default_collection", func(p *Pipeline) { p.Storage.Collection = "" }, SeverityWarning, "storage.collection", `using "films"`},
		{"negative_workers", func(p *Pipeline) { p.Runtime.Workers = -1 }, SeverityError, "runtime.workers", ">= 0"},
		{"negative_batch", func(p *Pipeline) { p.Runtime.BatchSize = -5 }, SeverityError, "runtime.batch_size", ">= 0"},
		{"unsorted_join", func(p *Pipeline) { p.Runtime.Sort = false }, SeverityWarning, "runtime.sort", "already be sorted"},
		{"datadog_without_addr", func(p *Pipeline) { p.Metrics.Backend = "datadog" }, SeverityError, "metrics.datadog_addr", "requires datadog_addr"},
		{"unknown_metrics", func(p *Pipeline) { p.Metrics.Backend = "statsd" }, SeverityWarning, "metrics.backend", "metrics disabled"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			c.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, c.sev, c.path, c.msg) {
				t.Fatalf("want %s at %s containing %q; got %+v", c.sev, c.path, c.msg, issues)
			}
		})
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatalf("warnings only: want false")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Fatalf("with error: want true")
	}
}

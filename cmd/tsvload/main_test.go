package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tsvload/internal/config"
	"tsvload/internal/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const basics = "tconst\tprimaryTitle\tstartYear\n" +
	"tt0000003\tPauvre Pierrot\t1892\n" +
	"tt0000001\tCarmencita\t1894\n" +
	"tt0000002\tLe clown\t\\N\n"

const ratings = "tconst\taverageRating\tnumVotes\n" +
	"tt0000001\t5.7\t1966\n" +
	"tt0000004\t5.6\t180\n"

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	want := "amqp\nelasticsearch\nkafka\nmemory\nmssql\nmysql\npostgres\nsqlite\n"
	if out != want {
		t.Fatalf("kinds output = %q, want %q", out, want)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{
	  "job": "films",
	  "sources": { "primary": { "path": "basics.tsv" } },
	  "storage": { "kind": "memory", "collection": "films" }
	}`)
	bad := writeFile(t, dir, "bad.yaml", "job: films\nstorage:\n  kind: postgres\n")

	out, err := execute(t, "validate", "--config", good)
	if err != nil || !strings.Contains(out, "configuration is valid") {
		t.Fatalf("validate good: out=%q err=%v", out, err)
	}

	out, err = execute(t, "validate", "-c", bad)
	if !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("validate bad: err = %v, want ErrConfig", err)
	}
	for _, path := range []string{"sources.primary.path", "storage.dsn"} {
		if !strings.Contains(out, path) {
			t.Fatalf("validate bad: output %q lacks %s", out, path)
		}
	}

	if _, err := execute(t, "validate"); !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("validate without --config: err = %v", err)
	}
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "basics.tsv", basics)
	enrich := writeFile(t, dir, "ratings.tsv", ratings)
	cfg := writeFile(t, dir, "films.yaml", "job: films\n"+
		"sources:\n"+
		"  primary: {path: "+primary+"}\n"+
		"  enrichments:\n"+
		"    - {path: "+enrich+"}\n"+
		"storage: {kind: memory, collection: films}\n"+
		"runtime: {workers: 3, batch_size: 100}\n")

	out, err := execute(t, "ingest", "-c", cfg, "--sort", "--batch-size", "1")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	for _, want := range []string{"state=completed", "rows=3", "docs=3", "batches=3", "worker=2 rows=[2,3)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("ingest output lacks %q:\n%s", want, out)
		}
	}
}

func TestIngestShortLineFailsParse(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "basics.tsv", basics+"tt0000009\tshort line\n")
	cfg := writeFile(t, dir, "films.json", `{
	  "job": "films",
	  "sources": { "primary": { "path": "`+primary+`" } },
	  "storage": { "kind": "memory" },
	  "runtime": { "workers": 1, "batch_size": 2 }
	}`)

	out, err := execute(t, "ingest", "-c", cfg)
	if !errors.Is(err, errors.ErrParse) {
		t.Fatalf("ingest err = %v, want ErrParse\n%s", err, out)
	}
	if !strings.Contains(out, "state=failed") || !strings.Contains(out, "docs=2") {
		t.Fatalf("ingest output:\n%s", out)
	}
}

func TestSortAndMerge(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "basics.tsv", basics)
	right := writeFile(t, dir, "ratings.tsv", ratings)
	sorted := filepath.Join(dir, "basics.sorted.tsv")
	merged := filepath.Join(dir, "merged.tsv")

	out, err := execute(t, "sort", in, sorted)
	if err != nil || !strings.Contains(out, "sorted 3 rows") {
		t.Fatalf("sort: out=%q err=%v", out, err)
	}
	out, err = execute(t, "merge", sorted, right, merged, "--types", "numVotes=int,averageRating=double", "--default", "numVotes=-1")
	if err != nil || !strings.Contains(out, "merged 3 rows") {
		t.Fatalf("merge: out=%q err=%v", out, err)
	}

	b, err := os.ReadFile(merged)
	if err != nil {
		t.Fatal(err)
	}
	want := "tconst\tprimaryTitle\tstartYear\taverageRating\tnumVotes\n" +
		"tt0000001\tCarmencita\t1894\t5.7\t1966\n" +
		"tt0000002\tLe clown\t\\N\t0.0\t-1\n" +
		"tt0000003\tPauvre Pierrot\t1892\t0.0\t-1\n"
	if string(b) != want {
		t.Fatalf("merged file = %q, want %q", b, want)
	}
}

func TestSortCheck(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "basics.tsv", basics)
	sorted := filepath.Join(dir, "basics.sorted.tsv")

	if _, err := execute(t, "sort", "--check", in); !errors.Is(err, errors.ErrInput) {
		t.Fatalf("check unsorted: err = %v, want ErrInput", err)
	}
	if _, err := execute(t, "sort", in, sorted); err != nil {
		t.Fatalf("sort: %v", err)
	}
	out, err := execute(t, "sort", "--check", sorted)
	if err != nil || !strings.Contains(out, "is sorted") {
		t.Fatalf("check sorted: out=%q err=%v", out, err)
	}
	if _, err := execute(t, "sort", "--check", in, sorted); err == nil {
		t.Fatal("check with OUT: want an argument error")
	}
}

func TestSortRejectsWideComma(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "basics.tsv", basics)
	if _, err := execute(t, "sort", in, filepath.Join(dir, "out.tsv"), "--comma", "::"); !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestIngestFlagsOverridePipeline(t *testing.T) {
	t.Setenv("TSVLOAD_WORKERS", "")
	t.Setenv("TSVLOAD_BATCH_SIZE", "")

	p := config.Pipeline{Runtime: config.RuntimeConfig{Workers: 2}, Storage: config.Storage{Kind: "postgres"}}
	ingestFlags{workers: 5, storageKind: "memory", sort: true}.apply(&p)
	if p.Runtime.Workers != 5 || p.Runtime.BatchSize != config.DefaultBatchSize || !p.Runtime.Sort || p.Storage.Kind != "memory" {
		t.Fatalf("pipeline after flags = %+v", p)
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "title.basics.tsv", basics)

	out, err := execute(t, "probe", in, "--backend", "sqlite")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	// The draft must load back as a pipeline file.
	cfg := writeFile(t, dir, "draft.json", out)
	p, err := config.Load(cfg)
	if err != nil {
		t.Fatalf("Load(draft): %v\n%s", err, out)
	}
	if p.Storage.Kind != "sqlite" || p.Types()["startYear"] != "int" || p.Sources.Primary.IDColumn != "tconst" {
		t.Fatalf("draft = %+v", p)
	}
}

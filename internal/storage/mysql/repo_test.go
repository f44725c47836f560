package mysql

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{cfg: cfg}, func() {}, nil
	}

	dsn := "imdb:secret@tcp(localhost:3306)/imdb"
	s, err := storage.New(context.Background(), storage.Config{Kind: "mysql", DSN: dsn, AutoCreate: true})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer s.Close()
	if gotCfg.DSN != dsn || !gotCfg.AutoCreate {
		t.Fatalf("cfg = %+v", gotCfg)
	}
}

func TestNewRepositoryRejectsBadDSN(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{DSN: "no-slash-here"}); err == nil || !strings.Contains(err.Error(), "mysql dsn") {
		t.Fatalf("err = %v", err)
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	got := insertSQL("films", 2)
	want := "INSERT INTO `films` (id, doc, doc_hash) VALUES (?, ?, ?), (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE doc = IF(doc_hash <> VALUES(doc_hash), VALUES(doc), doc), doc_hash = VALUES(doc_hash)"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	args, err := insertArgs([]records.Document{{ID: "tt1"}, {ID: "tt2"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 6 || args[0] != "tt1" || args[1] != "{}" || args[3] != "tt2" {
		t.Fatalf("args = %v", args)
	}
}

func TestChunkSizes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int
		want []int
	}{
		{n: 0, want: nil},
		{n: 1, want: []int{1}},
		{n: maxRowsPerInsert, want: []int{maxRowsPerInsert}},
		{n: 25000, want: []int{21845, 3155}},
		{n: 2*maxRowsPerInsert + 1, want: []int{maxRowsPerInsert, maxRowsPerInsert, 1}},
	}
	for _, c := range cases {
		got := chunkSizes(c.n, maxRowsPerInsert)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("chunkSizes(%d) mismatch (-want +got):\n%s", c.n, diff)
		}
		for _, k := range got {
			if 3*k > 65535 {
				t.Errorf("chunkSizes(%d): chunk of %d rows needs %d placeholders", c.n, k, 3*k)
			}
		}
	}
}

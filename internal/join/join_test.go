package join

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	tserrors "tsvload/internal/errors"
	"tsvload/internal/transformer"
	"tsvload/pkg/records"
)

// ratings copies averageRating and numVotes from a (tconst, averageRating,
// numVotes) enrichment onto a (tconst, title) primary.
var ratings = Spec{LeftKey: 0, RightKey: 0, RightColumns: []int{1, 2}, Defaults: []string{"0.0", "0"}}

func row(line int, fields ...string) records.Row {
	return records.Row{Line: line, Fields: fields}
}

func TestMergeJoin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		left  []records.Row
		right []records.Row
		want  []records.Row
	}{
		{
			name: "no_enrichment_rows_gets_defaults",
			left: []records.Row{row(2, "tt0000001", "A")},
			want: []records.Row{row(2, "tt0000001", "A", "0.0", "0")},
		},
		{
			name:  "unmatched_right_row_dropped",
			left:  []records.Row{row(2, "tt0000001", "A"), row(3, "tt0000003", "C")},
			right: []records.Row{row(2, "tt0000002", "7.0", "100")},
			want: []records.Row{
				row(2, "tt0000001", "A", "0.0", "0"),
				row(3, "tt0000003", "C", "0.0", "0"),
			},
		},
		{
			name:  "match_copies_columns",
			left:  []records.Row{row(2, "tt0000002", "B")},
			right: []records.Row{row(2, "tt0000002", "8.5", "200")},
			want:  []records.Row{row(2, "tt0000002", "B", "8.5", "200")},
		},
		{
			name: "interleaved",
			left: []records.Row{
				row(2, "tt0000001", "A"), row(3, "tt0000004", "D"), row(4, "tt0000005", "E"), row(5, "tt0000009", "I"),
			},
			right: []records.Row{
				row(2, "tt0000002", "1.0", "1"), row(3, "tt0000004", "4.0", "4"), row(4, "tt0000005", "5.0", "5"),
				row(5, "tt0000006", "6.0", "6"), row(6, "tt0000010", "10.0", "10"),
			},
			want: []records.Row{
				row(2, "tt0000001", "A", "0.0", "0"),
				row(3, "tt0000004", "D", "4.0", "4"),
				row(4, "tt0000005", "E", "5.0", "5"),
				row(5, "tt0000009", "I", "0.0", "0"),
			},
		},
		{
			name:  "numeric_order_across_widths",
			left:  []records.Row{row(2, "tt9", "A"), row(3, "tt10", "B")},
			right: []records.Row{row(2, "tt0000010", "9.9", "99")},
			want: []records.Row{
				row(2, "tt9", "A", "0.0", "0"),
				row(3, "tt10", "B", "9.9", "99"),
			},
		},
		{
			name:  "empty_left",
			right: []records.Row{row(2, "tt0000001", "1.0", "1")},
			want:  []records.Row{},
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got, err := Rows(context.Background(), c.left, c.right, ratings)
			if err != nil {
				t.Fatalf("Rows: %v", err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
			if len(got) != len(c.left) {
				t.Fatalf("len(join) = %d, len(left) = %d", len(got), len(c.left))
			}
		})
	}
}

// stopIterator fails the test if read past its rows.
type stopIterator struct {
	t    *testing.T
	rows []records.Row
	read int
}

func (s *stopIterator) Next() (records.Row, error) {
	if s.read >= len(s.rows) {
		s.t.Fatalf("right side read past its end")
	}
	s.read++
	return s.rows[s.read-1], nil
}

func TestMergeJoinStopsWhenLeftExhausted(t *testing.T) {
	t.Parallel()
	right := &stopIterator{t: t, rows: []records.Row{
		row(2, "tt0000001", "1.0", "1"),
		row(3, "tt0000002", "2.0", "2"),
		row(4, "tt0000003", "3.0", "3"),
	}}
	var n int
	err := MergeJoin(context.Background(), NewSliceIterator([]records.Row{row(2, "tt0000001", "A")}), right, ratings, func(records.Row) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("MergeJoin: %v", err)
	}
	if n != 1 || right.read != 1 {
		t.Fatalf("emitted %d, right read %d", n, right.read)
	}
}

func TestMergeJoinIgnoresTrailingRightRows(t *testing.T) {
	t.Parallel()

	left := []records.Row{row(2, "tt0000001", "A")}
	right := []records.Row{
		row(2, "tt0000001", "8.5", "200"),
		row(3, "garbage-id", "1", "1"),
	}
	got, err := Rows(context.Background(), left, right, ratings)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	want := []records.JoinedRow{row(2, "tt0000001", "A", "8.5", "200")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Rows mismatch (-want +got):\n%s", diff)
	}

	// An empty left side never reads the right.
	got, err = Rows(context.Background(), nil, []records.Row{row(2, "garbage-id")}, ratings)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty left: rows=%d err=%v", len(got), err)
	}
}

func TestMergeJoinErrors(t *testing.T) {
	t.Parallel()

	if _, err := Rows(context.Background(), []records.Row{row(2, "bad", "A")}, nil, ratings); !tserrors.Is(err, tserrors.ErrParse) {
		t.Fatalf("bad left key: err = %v", err)
	}
	if _, err := Rows(context.Background(), []records.Row{row(2, "tt1", "A")}, []records.Row{row(2, "tt1")}, ratings); !tserrors.Is(err, tserrors.ErrParse) {
		t.Fatalf("short right row: err = %v", err)
	}
	bad := Spec{RightColumns: []int{1}, Defaults: nil}
	if _, err := Rows(context.Background(), nil, nil, bad); !tserrors.Is(err, tserrors.ErrConfig) {
		t.Fatalf("defaults mismatch: err = %v", err)
	}

	boom := errors.New("boom")
	err := MergeJoin(context.Background(), NewSliceIterator([]records.Row{row(2, "tt1", "A")}), NewSliceIterator(nil), ratings, func(records.Row) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("emit error: err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Rows(ctx, []records.Row{row(2, "tt1", "A")}, nil, ratings); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: err = %v", err)
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	left := []string{"tconst", "primaryTitle", "startYear"}
	right := []string{"tconst", "averageRating", "numVotes"}
	kinds := map[string]transformer.Kind{"averageRating": transformer.KindDouble, "numVotes": transformer.KindInt}

	spec, header, err := Plan(left, right, Enrichment{LeftKey: "tconst", RightKey: "tconst"}, kinds)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := Spec{LeftKey: 0, RightKey: 0, RightColumns: []int{1, 2}, Defaults: []string{"0.0", "0"}}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Fatalf("spec (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"tconst", "primaryTitle", "startYear", "averageRating", "numVotes"}, header); diff != "" {
		t.Fatalf("header (-want +got):\n%s", diff)
	}

	spec, _, err = Plan(left, right, Enrichment{LeftKey: "tconst", RightKey: "tconst", Columns: []string{"numVotes"}, Defaults: map[string]string{"numVotes": "-1"}}, kinds)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if diff := cmp.Diff(Spec{RightColumns: []int{2}, Defaults: []string{"-1"}}, spec); diff != "" {
		t.Fatalf("spec (-want +got):\n%s", diff)
	}

	for _, e := range []Enrichment{
		{LeftKey: "nope", RightKey: "tconst"},
		{LeftKey: "tconst", RightKey: "nope"},
		{LeftKey: "tconst", RightKey: "tconst", Columns: []string{"nope"}},
		{LeftKey: "tconst", RightKey: "tconst", Columns: []string{"tconst"}},
	} {
		if _, _, err := Plan(left, right, e, kinds); !tserrors.Is(err, tserrors.ErrConfig) {
			t.Fatalf("Plan(%+v): err = %v, want config error", e, err)
		}
	}
}

func TestMergeFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	basics := filepath.Join(dir, "title.basics.tsv")
	ratingsFile := filepath.Join(dir, "title.ratings.tsv")
	out := filepath.Join(dir, "merged.tsv")
	write := func(p, s string) {
		if err := os.WriteFile(p, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(basics, "tconst\tprimaryTitle\ntt0000001\tCarmencita\ntt0000003\tPauvre Pierrot\n")
	write(ratingsFile, "tconst\taverageRating\tnumVotes\ntt0000002\t5.6\t272\ntt0000003\t6.5\t1900\n")

	n, err := MergeFiles(context.Background(), basics, ratingsFile, out, FileOptions{
		Enrichment: Enrichment{LeftKey: "tconst", RightKey: "tconst"},
		Kinds:      transformer.DefaultTypes,
	})
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d", n)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "tconst\tprimaryTitle\taverageRating\tnumVotes\n" +
		"tt0000001\tCarmencita\t0.0\t0\n" +
		"tt0000003\tPauvre Pierrot\t6.5\t1900\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

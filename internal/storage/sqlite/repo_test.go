package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

func film(id string, rating float64) records.Document {
	return records.Document{ID: id, Fields: []records.Field{
		{Name: "tconst", Value: id},
		{Name: "averageRating", Value: rating},
	}}
}

func newStore(t *testing.T) storage.DocumentStore {
	t.Helper()
	s, err := storage.New(context.Background(), storage.Config{
		Kind:       "sqlite",
		DSN:        filepath.Join(t.TempDir(), "films.db"),
		AutoCreate: true,
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := storage.EnsureCollection(context.Background(), s, "films"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	return s
}

func TestBulkWriteUpserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	repo := s.(*wrappedRepo).Repository

	if err := s.BulkWrite(ctx, "films", []records.Document{film("tt0000001", 5.7), film("tt0000002", 6.1)}); err != nil {
		t.Fatalf("BulkWrite: %v", err)
	}
	if err := s.BulkWrite(ctx, "films", []records.Document{film("tt0000002", 6.3)}); err != nil {
		t.Fatalf("BulkWrite again: %v", err)
	}

	var n int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM films`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	var doc string
	if err := repo.db.QueryRowContext(ctx, `SELECT doc FROM films WHERE id = ?`, "tt0000002").Scan(&doc); err != nil {
		t.Fatal(err)
	}
	if want := `{"tconst":"tt0000002","averageRating":6.3}`; doc != want {
		t.Fatalf("doc = %s, want %s", doc, want)
	}
}

func TestBulkWriteMissingTable(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.BulkWrite(context.Background(), "nope", []records.Document{film("tt1", 1)}); err == nil {
		t.Fatalf("expected error for missing table")
	}
	if err := s.BulkWrite(context.Background(), "nope", nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestEnsureCollectionDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, closeFn, err := NewRepository(ctx, Config{DSN: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if err := r.EnsureCollection(ctx, "films"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'films'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("table created with AutoCreate off")
	}
}

func TestNewRepositoryEmptyDSN(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

// TestRegistrationUsesHook verifies the "sqlite" factory goes through the
// newRepository hook and Close calls its cleanup.
func TestRegistrationUsesHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	s, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: "films.db", AutoCreate: true})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if gotCfg.DSN != "films.db" || !gotCfg.AutoCreate {
		t.Fatalf("cfg = %+v", gotCfg)
	}
	_ = s.Close()
	if !closed {
		t.Fatalf("close function not called")
	}
}

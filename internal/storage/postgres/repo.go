// Package postgres implements a Postgres document store using pgx v5. Each
// batch is COPYed into a temporary table and then upserted into the
// collection table in the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tsvload/internal/ddl"
	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds Postgres store configuration.
type Config struct {
	DSN        string // connection string for pgxpool
	AutoCreate bool
}

// Repository is a Postgres-backed storage.DocumentStore.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

const stagingTable = "tsvload_staging"

var stagingColumns = []string{"ord", ddl.ColID, ddl.ColDoc, ddl.ColDocHash}

func createStagingSQL() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (ord integer, id text, doc jsonb, doc_hash bigint) ON COMMIT DROP",
		ddl.Postgres.Ident(stagingTable))
}

// upsertSQL moves the staged rows into the collection. When an id occurs
// twice in one batch the later row wins.
func upsertSQL(collection string) string {
	return fmt.Sprintf(
		"INSERT INTO %s AS t (id, doc, doc_hash)\n"+
			"SELECT DISTINCT ON (id) id, doc, doc_hash FROM %s ORDER BY id, ord DESC\n"+
			"ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, doc_hash = EXCLUDED.doc_hash\n"+
			"WHERE t.doc_hash IS DISTINCT FROM EXCLUDED.doc_hash",
		ddl.Postgres.Table(collection), ddl.Postgres.Ident(stagingTable))
}

// stagingRows encodes docs into COPY rows.
func stagingRows(docs []records.Document) ([][]any, error) {
	rows := make([][]any, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", d.ID, err)
		}
		rows[i] = []any{i, d.ID, string(b), storage.Fingerprint(b)}
	}
	return rows, nil
}

// BulkWrite stages docs with COPY and upserts them in one transaction.
func (r *Repository) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows, err := stagingRows(docs)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createStagingSQL()); err != nil {
		return fmt.Errorf("postgres: create staging: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, stagingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: copy: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("postgres: copy: %d of %d rows", n, len(rows))
	}
	if _, err := tx.Exec(ctx, upsertSQL(collection)); err != nil {
		return fmt.Errorf("postgres: upsert %s: %w", collection, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection table when AutoCreate is set.
func (r *Repository) EnsureCollection(ctx context.Context, collection string) error {
	if !r.cfg.AutoCreate {
		return nil
	}
	stmt, err := ddl.BuildCreateTableSQL(ddl.DocumentTable(collection, ddl.Postgres), ddl.Postgres)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create %s: %w", collection, err)
	}
	return nil
}

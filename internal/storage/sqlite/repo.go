package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tsvload/internal/ddl"
	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Repository stores one document per row of a collection table. SQLite has
// a single writer, so the pool is limited to one connection and concurrent
// workers queue on it.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database and returns a Repository plus a close
// function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

func upsertSQL(collection string) string {
	t := ddl.SQLite.Table(collection)
	return fmt.Sprintf(
		`INSERT INTO %s (id, doc, doc_hash) VALUES (?, ?, ?) `+
			`ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, doc_hash = excluded.doc_hash `+
			`WHERE doc_hash <> excluded.doc_hash`, t)
}

// BulkWrite upserts docs in one transaction. Rows whose fingerprint did not
// change are left untouched.
func (r *Repository) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(collection))
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("sqlite: encode %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, string(b), storage.Fingerprint(b)); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection table when AutoCreate is set.
func (r *Repository) EnsureCollection(ctx context.Context, collection string) error {
	if !r.cfg.AutoCreate {
		return nil
	}
	stmt, err := ddl.BuildCreateTableSQL(ddl.DocumentTable(collection, ddl.SQLite), ddl.SQLite)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", collection, err)
	}
	return nil
}

// Package mssql implements a Microsoft SQL Server document store using the
// go-mssqldb bulk copy API. Each batch is bulk-copied into a session temp
// table and MERGEd into the collection table in one transaction.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"tsvload/internal/ddl"
	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds MSSQL store configuration.
type Config struct {
	DSN        string
	AutoCreate bool
}

// Repository is an MSSQL-backed storage.DocumentStore.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository validates the DSN, connects, and returns a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

const stagingTable = "#tsvload_staging"

var stagingColumns = []string{"ord", ddl.ColID, ddl.ColDoc, ddl.ColDocHash}

func createStagingSQL() string {
	return fmt.Sprintf(
		"IF OBJECT_ID('tempdb..%[1]s') IS NOT NULL DROP TABLE %[1]s;\n"+
			"CREATE TABLE %[1]s (ord INT, id NVARCHAR(64), doc NVARCHAR(MAX), doc_hash BIGINT);",
		stagingTable)
}

// mergeSQL upserts the staged rows; for a repeated id the later row wins.
func mergeSQL(collection string) string {
	return fmt.Sprintf(
		"MERGE INTO %s WITH (HOLDLOCK) AS t\n"+
			"USING (SELECT id, doc, doc_hash FROM (\n"+
			"  SELECT id, doc, doc_hash, ROW_NUMBER() OVER (PARTITION BY id ORDER BY ord DESC) AS rn FROM %s\n"+
			") AS d WHERE rn = 1) AS s\n"+
			"ON t.id = s.id\n"+
			"WHEN MATCHED AND t.doc_hash <> s.doc_hash THEN UPDATE SET doc = s.doc, doc_hash = s.doc_hash\n"+
			"WHEN NOT MATCHED THEN INSERT (id, doc, doc_hash) VALUES (s.id, s.doc, s.doc_hash);",
		ddl.MSSQL.Table(collection), stagingTable)
}

// BulkWrite stages docs with a bulk copy and merges them in one transaction.
func (r *Repository) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createStagingSQL()); err != nil {
		return fmt.Errorf("mssql: create staging: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(stagingTable, mssql.BulkOptions{}, stagingColumns...))
	if err != nil {
		return fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("mssql: encode %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, d.ID, string(b), storage.Fingerprint(b)); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	_, err = stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("mssql: bulk finalize: %w", err)
	}

	if _, err := tx.ExecContext(ctx, mergeSQL(collection)); err != nil {
		return fmt.Errorf("mssql: merge %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection table when AutoCreate is set.
func (r *Repository) EnsureCollection(ctx context.Context, collection string) error {
	if !r.cfg.AutoCreate {
		return nil
	}
	stmt, err := ddl.BuildCreateTableSQL(ddl.DocumentTable(collection, ddl.MSSQL), ddl.MSSQL)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql: create %s: %w", collection, err)
	}
	return nil
}

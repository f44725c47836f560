// Package mysql implements a MySQL document store. Each batch is written in
// one transaction as multi-row INSERT ... ON DUPLICATE KEY UPDATE statements
// that stay under the server's placeholder limit.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"tsvload/internal/ddl"
	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds MySQL store configuration.
type Config struct {
	DSN        string
	AutoCreate bool
}

// Repository is a MySQL-backed storage.DocumentStore.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository parses the DSN, connects, and returns a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

// insertSQL renders the upsert for n rows. doc_hash is assigned last so the
// doc comparison still sees the old fingerprint.
func insertSQL(collection string, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (id, doc, doc_hash) VALUES ", ddl.MySQL.Table(collection))
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
	}
	sb.WriteString(" ON DUPLICATE KEY UPDATE doc = IF(doc_hash <> VALUES(doc_hash), VALUES(doc), doc), doc_hash = VALUES(doc_hash)")
	return sb.String()
}

func insertArgs(docs []records.Document) ([]any, error) {
	args := make([]any, 0, 3*len(docs))
	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", d.ID, err)
		}
		args = append(args, d.ID, string(b), storage.Fingerprint(b))
	}
	return args, nil
}

// maxRowsPerInsert keeps each statement within MySQL's 65535 placeholders
// at three per row.
const maxRowsPerInsert = 65535 / 3

// chunkSizes splits n rows into statement sizes of at most limit rows.
func chunkSizes(n, limit int) []int {
	var out []int
	for n > 0 {
		k := min(n, limit)
		out = append(out, k)
		n -= k
	}
	return out
}

// BulkWrite upserts docs in one transaction, maxRowsPerInsert rows per
// statement.
func (r *Repository) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range chunkSizes(len(docs), maxRowsPerInsert) {
		chunk := docs[:n]
		docs = docs[n:]
		args, err := insertArgs(chunk)
		if err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertSQL(collection, n), args...); err != nil {
			return fmt.Errorf("mysql: upsert %s: %w", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection table when AutoCreate is set.
func (r *Repository) EnsureCollection(ctx context.Context, collection string) error {
	if !r.cfg.AutoCreate {
		return nil
	}
	stmt, err := ddl.BuildCreateTableSQL(ddl.DocumentTable(collection, ddl.MySQL), ddl.MySQL)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql: create %s: %w", collection, err)
	}
	return nil
}

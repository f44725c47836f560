package ddl

import "strings"

// Dialect captures the few places where SQL backends differ for the
// document table.
type Dialect struct {
	Name    string
	IDType  string
	DocType string

	// Open and Close delimit a quoted identifier.
	Open, Close string

	// IfNotExists is false for dialects without CREATE TABLE IF NOT EXISTS.
	IfNotExists bool
}

var (
	Postgres = Dialect{Name: "postgres", IDType: "TEXT", DocType: "JSONB", Open: `"`, Close: `"`, IfNotExists: true}
	SQLite   = Dialect{Name: "sqlite", IDType: "TEXT", DocType: "TEXT", Open: `"`, Close: `"`, IfNotExists: true}
	MySQL    = Dialect{Name: "mysql", IDType: "VARCHAR(64)", DocType: "JSON", Open: "`", Close: "`", IfNotExists: true}
	MSSQL    = Dialect{Name: "mssql", IDType: "NVARCHAR(64)", DocType: "NVARCHAR(MAX)", Open: "[", Close: "]"}
)

// Ident quotes a single identifier, doubling any embedded closing delimiter.
func (d Dialect) Ident(name string) string {
	return d.Open + strings.ReplaceAll(name, d.Close, d.Close+d.Close) + d.Close
}

// Table quotes each part of a dotted table name.
func (d Dialect) Table(fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = d.Ident(strings.TrimSpace(p))
	}
	return strings.Join(parts, ".")
}

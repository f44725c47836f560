package ddl

// ColumnDef describes a single column of a table definition.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, JSONB)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name in dotted form (e.g., "public.films") and
// an ordered list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Document table column names shared by every SQL backend.
const (
	ColID      = "id"
	ColDoc     = "doc"
	ColDocHash = "doc_hash"
)

// DocumentTable returns the table that stores one document per row: the
// identifier as primary key, the encoded document, and its fingerprint.
func DocumentTable(fqn string, d Dialect) TableDef {
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: ColID, SQLType: d.IDType, PrimaryKey: true},
			{Name: ColDoc, SQLType: d.DocType},
			{Name: ColDocHash, SQLType: "BIGINT"},
		},
	}
}

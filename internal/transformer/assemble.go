package transformer

import (
	"fmt"

	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// Assembler builds one Document per row from a positional header. The
// per-column coercion is compiled once in NewAssembler so the hot path does
// no map lookups. An Assembler is read-only after construction and safe for
// concurrent use by several workers.
type Assembler struct {
	header   []string
	kinds    []Kind
	idColumn int
}

// NewAssembler compiles a plan for header. types assigns a Kind to column
// names; columns not present are strings. idColumn is the index of the
// identifier column used as the document ID.
func NewAssembler(header []string, types map[string]Kind, idColumn int) (*Assembler, error) {
	if len(header) == 0 {
		return nil, errors.New(errors.ErrConfig, "assembler: empty header")
	}
	if idColumn < 0 || idColumn >= len(header) {
		return nil, errors.Newf(errors.ErrConfig, "assembler: id column %d outside header of %d columns", idColumn, len(header))
	}
	kinds := make([]Kind, len(header))
	for i, name := range header {
		kinds[i] = types[name]
	}
	h := make([]string, len(header))
	copy(h, header)
	return &Assembler{header: h, kinds: kinds, idColumn: idColumn}, nil
}

// Header returns the column names in positional order.
func (a *Assembler) Header() []string { return a.header }

// Kinds returns the compiled column kinds in positional order.
func (a *Assembler) Kinds() []Kind { return a.kinds }

// Assemble converts row into a Document. The row must have exactly one field
// per header column; any other width is a parse error.
func (a *Assembler) Assemble(row records.Row) (records.Document, error) {
	if len(row.Fields) != len(a.header) {
		return records.Document{}, errors.Newf(errors.ErrParse,
			"line %d: %d fields, header has %d", row.Line, len(row.Fields), len(a.header))
	}
	fields := make([]records.Field, len(a.header))
	for i, tok := range row.Fields {
		v, err := Coerce(a.kinds[i], tok)
		if err != nil {
			return records.Document{}, errors.Wrap(err, fmt.Sprintf("line %d column %q", row.Line, a.header[i]))
		}
		fields[i] = records.Field{Name: a.header[i], Value: v}
	}
	return records.Document{ID: row.Fields[a.idColumn], Fields: fields}, nil
}

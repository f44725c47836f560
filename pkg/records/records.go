// Package records holds the row and document types that flow through the
// ingestion pipeline: raw TSV rows in, structured documents out.
package records

import (
	"bytes"
	"encoding/json"
)

// RawRow is the ordered list of fields produced by splitting one input line
// on the delimiter. Rows are never mutated after creation; joins build new
// rows instead of appending in place.
type RawRow []string

// Row is a RawRow plus the 1-based line it was read from. Line is 0 for rows
// that were synthesized (e.g. in tests).
type Row struct {
	Line   int
	Fields RawRow
}

// JoinedRow is a primary Row extended with enrichment fields, either copied
// from a matching enrichment row or filled with defaults.
type JoinedRow = Row

// Field is one named, coerced value in a Document. Value holds one of
// string, bool, int64, float64 or []string.
type Field struct {
	Name  string
	Value any
}

// Document is the structured record submitted to the document store. ID is
// the original identifier string from the source row.
type Document struct {
	ID     string
	Fields []Field
}

// Get returns the value stored under name.
func (d Document) Get(name string) (any, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the fields as a map. Field order is lost; use MarshalJSON when
// order matters.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON encodes the fields as a JSON object in header order. The ID is
// not added separately; it is part of Fields whenever the header names the
// identifier column.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Batch is an ordered group of documents submitted in one bulk write.
// Worker and Seq identify where it came from (Seq is 1-based per worker).
type Batch struct {
	Worker int
	Seq    int
	Docs   []Document
}

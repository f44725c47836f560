// Package transformer turns raw TSV fields into typed document values. It
// holds the pure per-token coercions and the Assembler that applies them
// positionally, one compiled plan per header.
package transformer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"tsvload/internal/errors"
)

// NullToken marks an unknown numeric value in the source datasets.
const NullToken = `\N`

// ListSeparator splits multi-valued cells.
const ListSeparator = ","

// Kind is the target type of a column.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindDouble
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindList:
		return "list"
	default:
		return "string"
	}
}

// ParseKind maps a configured type name onto a Kind. Names are
// case-insensitive and accept the usual SQL-ish aliases.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "string", "text", "keyword":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer", "int4", "int8", "bigint", "long":
		return KindInt, nil
	case "double", "float", "float8", "real", "decimal":
		return KindDouble, nil
	case "list", "array", "multi", "strings":
		return KindList, nil
	default:
		return KindString, errors.Newf(errors.ErrConfig, "unknown column type %q", name)
	}
}

// ParseKinds converts a column->type-name map. The first unknown type name
// is reported.
func ParseKinds(types map[string]string) (map[string]Kind, error) {
	out := make(map[string]Kind, len(types))
	for col, name := range types {
		k, err := ParseKind(name)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", col)
		}
		out[col] = k
	}
	return out, nil
}

// DefaultTypes are the column roles of the IMDb title.basics and
// title.ratings datasets. Columns not listed are strings.
var DefaultTypes = map[string]Kind{
	"isAdult":        KindBool,
	"startYear":      KindInt,
	"endYear":        KindInt,
	"runtimeMinutes": KindInt,
	"genres":         KindList,
	"averageRating":  KindDouble,
	"numVotes":       KindInt,
}

// CoerceBool maps the token "0" to true and every other token to false.
//
// Note the polarity: an isAdult value of "0" becomes true. Kept as is, see
// TestCoerceBoolPolarity.
func CoerceBool(tok string) bool {
	return tok == "0"
}

// CoerceInt parses tok as a base-10 integer. NullToken yields 0.
func CoerceInt(tok string) (int64, error) {
	if tok == NullToken {
		return 0, nil
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrParse, "not an integer: %q", tok)
	}
	return v, nil
}

// CoerceDouble parses tok as a finite decimal float. NullToken yields 0.0.
// NaN, infinities and hex or underscore forms are parse errors.
func CoerceDouble(tok string) (float64, error) {
	if tok == NullToken {
		return 0, nil
	}
	if !isDecimal(tok) {
		return 0, errors.Newf(errors.ErrParse, "not a number: %q", tok)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Newf(errors.ErrParse, "not a number: %q", tok)
	}
	return v, nil
}

// isDecimal reports whether tok only uses plain decimal float syntax.
func isDecimal(tok string) bool {
	digits := false
	for i := 0; i < len(tok); i++ {
		switch c := tok[i]; {
		case c >= '0' && c <= '9':
			digits = true
		case c == '+', c == '-', c == '.', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return digits
}

// CoerceList splits tok on ListSeparator. A token without a separator is
// returned as a plain string, not a one-element list.
func CoerceList(tok string) any {
	if !strings.Contains(tok, ListSeparator) {
		return tok
	}
	return strings.Split(tok, ListSeparator)
}

// Coerce converts tok according to k.
func Coerce(k Kind, tok string) (any, error) {
	switch k {
	case KindBool:
		return CoerceBool(tok), nil
	case KindInt:
		return CoerceInt(tok)
	case KindDouble:
		return CoerceDouble(tok)
	case KindList:
		return CoerceList(tok), nil
	case KindString:
		return tok, nil
	default:
		return nil, fmt.Errorf("unsupported kind %d", k)
	}
}

// DefaultToken is the raw token used for a missing enrichment value of kind k.
// It coerces to the zero value of the kind.
func DefaultToken(k Kind) string {
	switch k {
	case KindInt:
		return "0"
	case KindDouble:
		return "0.0"
	default:
		return ""
	}
}

// Package probe samples the head of a TSV dataset and drafts a pipeline
// config for it: the identifier column, a coerce step with inferred column
// types, and storage and runtime defaults.
package probe

import (
	"context"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tsvload/internal/config"
	"tsvload/internal/errors"
	"tsvload/internal/parser/tsv"
	"tsvload/internal/transformer"
)

// DefaultMaxRows is the sample size used when Options.MaxRows is zero.
const DefaultMaxRows = 1000

// Options control sampling and the drafted config.
type Options struct {
	// Location is a local path or http(s) URL.
	Location string
	// MaxRows caps the sampled data rows.
	MaxRows int
	// Name seeds the job and collection names; defaults to the file name.
	Name string
	// Backend is the storage kind written into the draft, "memory" if empty.
	Backend string
	TSV     tsv.Options
}

// Column is the inferred type of one header column.
type Column struct {
	Name string
	Kind transformer.Kind
}

// Result is the outcome of a Probe call.
type Result struct {
	Columns  []Column
	Rows     int
	Pipeline config.Pipeline
}

// Probe reads up to opt.MaxRows rows of opt.Location and infers a kind per
// column. Rows whose width differs from the header are skipped.
func Probe(ctx context.Context, opt Options) (Result, error) {
	if opt.MaxRows <= 0 {
		opt.MaxRows = DefaultMaxRows
	}
	f, err := tsv.Open(ctx, opt.Location, opt.TSV)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	cols := make([][]string, len(f.Header))
	n := 0
	for n < opt.MaxRows {
		row, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, errors.Wrapf(err, "probe %s", opt.Location)
		}
		if len(row.Fields) != len(f.Header) {
			continue
		}
		for i, v := range row.Fields {
			cols[i] = append(cols[i], v)
		}
		n++
	}

	res := Result{Rows: n, Columns: make([]Column, len(f.Header))}
	for i, h := range f.Header {
		res.Columns[i] = Column{Name: h, Kind: inferKind(cols[i])}
	}
	res.Pipeline = draft(opt, f.Header, res.Columns)
	return res, nil
}

func draft(opt Options, header []string, cols []Column) config.Pipeline {
	name := opt.Name
	if name == "" {
		name = baseName(opt.Location)
	}
	name = normalizeName(name)
	backend := opt.Backend
	if backend == "" {
		backend = "memory"
	}

	types := map[string]any{}
	for _, c := range cols {
		if c.Kind != transformer.KindString {
			types[c.Name] = c.Kind.String()
		}
	}
	p := config.Pipeline{
		Job: name,
		Sources: config.Sources{
			Primary: config.Source{Path: opt.Location, IDColumn: header[0]},
		},
		Storage: config.Storage{Kind: backend, Collection: name},
		Runtime: config.RuntimeConfig{
			Workers:   config.DefaultWorkers,
			BatchSize: config.DefaultBatchSize,
			Sort:      true,
		},
	}
	if opt.TSV.Comma != 0 && opt.TSV.Comma != '\t' {
		p.Parser.Options = config.Options{"comma": string(opt.TSV.Comma)}
	}
	if len(types) > 0 {
		p.Transform = []config.Transform{{Kind: "coerce", Options: config.Options{"types": types}}}
	}
	return p
}

// inferKind picks the narrowest kind every sampled value satisfies. The null
// token matches every numeric kind. Booleans are never inferred: 0/1 columns
// come out as int.
func inferKind(values []string) transformer.Kind {
	seen := 0
	allInt, allDouble, anyList := true, true, false
	for _, v := range values {
		if v == transformer.NullToken {
			continue
		}
		seen++
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allDouble = false
		}
		if strings.Contains(v, transformer.ListSeparator) {
			if strings.Contains(v, " ") {
				// Free text with commas, not a list.
				return transformer.KindString
			}
			anyList = true
		}
	}
	switch {
	case seen == 0:
		return transformer.KindString
	case allInt:
		return transformer.KindInt
	case allDouble:
		return transformer.KindDouble
	case anyList:
		return transformer.KindList
	default:
		return transformer.KindString
	}
}

func baseName(location string) string {
	if i := strings.LastIndexAny(location, "/\\"); i >= 0 {
		location = location[i+1:]
	}
	if i := strings.Index(location, "."); i > 0 {
		location = location[:i]
	}
	return location
}

// normalizeName lowercases s, strips accents, maps space, dash and dot to
// underscore and drops anything else outside [a-z0-9_]. Empty results become
// "dataset".
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "dataset"
	}
	return name
}

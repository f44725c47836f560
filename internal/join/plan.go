package join

import (
	"slices"

	"tsvload/internal/errors"
	"tsvload/internal/transformer"
)

// Enrichment names the columns of one enrichment by header.
type Enrichment struct {
	LeftKey  string
	RightKey string

	// Columns to copy; every right column except RightKey when empty.
	Columns []string

	// Defaults overrides the per-kind default token of a column.
	Defaults map[string]string
}

// Plan resolves e against both headers. It returns the join Spec and the
// header of the joined rows. Missing defaults come from the column kind in
// kinds: int "0", double "0.0", anything else "".
func Plan(leftHeader, rightHeader []string, e Enrichment, kinds map[string]transformer.Kind) (Spec, []string, error) {
	var spec Spec
	spec.LeftKey = slices.Index(leftHeader, e.LeftKey)
	if spec.LeftKey < 0 {
		return Spec{}, nil, errors.Newf(errors.ErrConfig, "join: left header has no column %q", e.LeftKey)
	}
	spec.RightKey = slices.Index(rightHeader, e.RightKey)
	if spec.RightKey < 0 {
		return Spec{}, nil, errors.Newf(errors.ErrConfig, "join: right header has no column %q", e.RightKey)
	}

	cols := e.Columns
	if len(cols) == 0 {
		for i, h := range rightHeader {
			if i != spec.RightKey {
				cols = append(cols, h)
			}
		}
	}

	header := slices.Clone(leftHeader)
	for _, name := range cols {
		i := slices.Index(rightHeader, name)
		if i < 0 {
			return Spec{}, nil, errors.Newf(errors.ErrConfig, "join: right header has no column %q", name)
		}
		if slices.Contains(header, name) {
			return Spec{}, nil, errors.Newf(errors.ErrConfig, "join: column %q already present", name)
		}
		tok, ok := e.Defaults[name]
		if !ok {
			tok = transformer.DefaultToken(kinds[name])
		}
		spec.RightColumns = append(spec.RightColumns, i)
		spec.Defaults = append(spec.Defaults, tok)
		header = append(header, name)
	}
	return spec, header, nil
}

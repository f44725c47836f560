package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tsvload/internal/transformer"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "sources.enrichments[1].path").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	sqlKinds     = map[string]bool{"postgres": true, "sqlite": true, "mssql": true, "mysql": true}
	addrKinds    = map[string]bool{"elasticsearch": true, "kafka": true}
	encodedKinds = map[string]bool{"kafka": true, "amqp": true}
)

// ValidatePipeline performs static checks over p. It does not touch the
// filesystem or the network.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}

	if strings.TrimSpace(p.Sources.Primary.Path) == "" {
		add(SeverityError, "sources.primary.path", "primary source requires a non-empty path")
	}
	if len(p.Sources.Primary.Columns) > 0 || len(p.Sources.Primary.Defaults) > 0 {
		add(SeverityWarning, "sources.primary", "columns and defaults only apply to enrichments")
	}
	for i, e := range p.Sources.Enrichments {
		path := fmt.Sprintf("sources.enrichments[%d]", i)
		if strings.TrimSpace(e.Path) == "" {
			add(SeverityError, path+".path", "enrichment requires a non-empty path")
		}
		for col := range e.Defaults {
			if len(e.Columns) > 0 && !contains(e.Columns, col) {
				add(SeverityWarning, path+".defaults."+col, "default for a column that is not copied")
			}
		}
	}

	if c := p.Parser.Options.String("comma", "\t"); utf8.RuneCountInString(c) != 1 {
		add(SeverityError, "parser.options.comma", "comma must be a single character, got %q", c)
	}

	for i, t := range p.Transform {
		path := fmt.Sprintf("transform[%d]", i)
		if t.Kind != "coerce" {
			add(SeverityError, path+".kind", "unknown transform kind %q; only coerce is supported", t.Kind)
			continue
		}
		for col, typ := range t.Options.StringMap("types") {
			if _, err := transformer.ParseKind(typ); err != nil {
				add(SeverityError, path+".options.types."+col, "unknown type %q", typ)
			}
		}
	}

	issues = append(issues, validateStorage(p.Storage)...)

	if p.Runtime.Workers < 0 {
		add(SeverityError, "runtime.workers", "workers must be >= 0, got %d", p.Runtime.Workers)
	}
	if p.Runtime.BatchSize < 0 {
		add(SeverityError, "runtime.batch_size", "batch_size must be >= 0, got %d", p.Runtime.BatchSize)
	}
	if !p.Runtime.Sort && len(p.Sources.Enrichments) > 0 {
		add(SeverityWarning, "runtime.sort", "sort is off; every source must already be sorted by identifier")
	}

	switch p.Metrics.Backend {
	case "", "none", "pushgateway":
	case "datadog":
		if p.Metrics.DatadogAddr == "" {
			add(SeverityError, "metrics.datadog_addr", "datadog backend requires datadog_addr")
		}
	default:
		add(SeverityWarning, "metrics.backend", "unknown metrics backend %q; metrics disabled", p.Metrics.Backend)
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case strings.TrimSpace(s.Kind) == "":
		add(SeverityError, "storage.kind", "storage.kind must not be empty")
		return issues
	case sqlKinds[s.Kind] || s.Kind == "amqp":
		if s.DSN == "" {
			add(SeverityError, "storage.dsn", "%s storage requires a dsn", s.Kind)
		}
	case addrKinds[s.Kind]:
		if len(s.Addrs) == 0 {
			add(SeverityError, "storage.addrs", "%s storage requires at least one address", s.Kind)
		}
	case s.Kind == "memory":
	default:
		add(SeverityError, "storage.kind", "unsupported storage kind %q", s.Kind)
	}

	if s.AutoCreate && !sqlKinds[s.Kind] {
		add(SeverityWarning, "storage.auto_create", "auto_create has no effect for %s", s.Kind)
	}
	switch s.Encoding {
	case "", "json", "msgpack":
		if s.Encoding != "" && !encodedKinds[s.Kind] {
			add(SeverityWarning, "storage.encoding", "encoding has no effect for %s", s.Kind)
		}
	default:
		add(SeverityError, "storage.encoding", "unknown encoding %q; use json or msgpack", s.Encoding)
	}
	if s.Collection == "" {
		add(SeverityWarning, "storage.collection", "collection not set; using %q", DefaultCollection)
	}
	return issues
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

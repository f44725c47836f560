// Package config defines the pipeline file model for tsvload: which
// datasets to read, how to join them, how to type their columns and where to
// write the resulting documents. Pipeline files are JSON, or YAML when the
// file name ends in .yaml or .yml.
//
// Example (trimmed):
//
//	{
//	  "job": "films",
//	  "sources": {
//	    "primary": { "path": "title.basics.tsv.gz", "id_column": "tconst" },
//	    "enrichments": [
//	      { "path": "title.ratings.tsv.gz", "columns": ["averageRating", "numVotes"] }
//	    ]
//	  },
//	  "transform": [ { "kind": "coerce", "options": { "types": { "startYear": "int" } } } ],
//	  "storage": { "kind": "elasticsearch", "addrs": ["http://localhost:9200"], "collection": "films" },
//	  "runtime": { "workers": 4, "batch_size": 25000, "sort": true }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tsvload/internal/errors"
)

// Defaults applied by ResolveRuntime and Collection.
const (
	DefaultBatchSize  = 25000
	DefaultWorkers    = 4
	DefaultCollection = "films"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" yaml:"job"`

	Sources Sources `json:"sources" yaml:"sources"`
	Parser  Parser  `json:"parser" yaml:"parser"`

	// Transform lists column transforms. The only kind is "coerce", whose
	// "types" option maps column names to type names.
	Transform []Transform `json:"transform" yaml:"transform"`

	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
}

// Sources lists the primary dataset and the enrichments joined onto it, in
// the order they are applied.
type Sources struct {
	Primary     Source   `json:"primary" yaml:"primary"`
	Enrichments []Source `json:"enrichments" yaml:"enrichments"`
}

// Source is one TSV dataset.
type Source struct {
	// Path is a local path (".gz" is decompressed) or an http(s) URL.
	Path string `json:"path" yaml:"path"`

	// IDColumn names the identifier column; the first column when empty.
	IDColumn string `json:"id_column" yaml:"id_column"`

	// Columns and Defaults apply to enrichments only.
	Columns  []string          `json:"columns" yaml:"columns"`
	Defaults map[string]string `json:"defaults" yaml:"defaults"`
}

// Parser carries TSV reader options, e.g. "comma".
type Parser struct {
	Options Options `json:"options" yaml:"options"`
}

// Transform is one transform step.
type Transform struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Storage selects and configures the document store.
type Storage struct {
	Kind       string   `json:"kind" yaml:"kind"`
	DSN        string   `json:"dsn" yaml:"dsn"`
	Addrs      []string `json:"addrs" yaml:"addrs"`
	Collection string   `json:"collection" yaml:"collection"`
	AutoCreate bool     `json:"auto_create" yaml:"auto_create"`
	Topic      string   `json:"topic" yaml:"topic"`
	Queue      string   `json:"queue" yaml:"queue"`
	Encoding   string   `json:"encoding" yaml:"encoding"`
	Username   string   `json:"username" yaml:"username"`
	Password   string   `json:"password" yaml:"password"`
}

// RuntimeConfig controls batching and the worker pool. Zero values are
// resolved by ResolveRuntime.
type RuntimeConfig struct {
	Workers   int  `json:"workers" yaml:"workers"`
	BatchSize int  `json:"batch_size" yaml:"batch_size"`
	Sort      bool `json:"sort" yaml:"sort"`
}

// Metrics selects the metrics backend: "", "none", "pushgateway" or
// "datadog".
type Metrics struct {
	Backend        string `json:"backend" yaml:"backend"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" yaml:"datadog_addr"`
}

// Load reads a pipeline file. The format follows the extension: .yaml and
// .yml are YAML, anything else is JSON. Unknown JSON fields are rejected.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, errors.WithCode(err, errors.ErrConfig, "read config "+path)
	}
	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &p)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	}
	if err != nil {
		return Pipeline{}, errors.WithCode(err, errors.ErrConfig, "decode config "+path)
	}
	return p, nil
}

// Types merges the "types" maps of every coerce transform. Later steps win.
func (p Pipeline) Types() map[string]string {
	out := map[string]string{}
	for _, t := range p.Transform {
		if t.Kind != "coerce" {
			continue
		}
		for col, typ := range t.Options.StringMap("types") {
			out[col] = typ
		}
	}
	return out
}

// Collection returns storage.collection or DefaultCollection.
func (p Pipeline) Collection() string {
	if p.Storage.Collection != "" {
		return p.Storage.Collection
	}
	return DefaultCollection
}

// ResolveRuntime fills unset runtime values from TSVLOAD_WORKERS and
// TSVLOAD_BATCH_SIZE, then from the defaults.
func ResolveRuntime(rc RuntimeConfig) RuntimeConfig {
	rc.Workers = pickInt(rc.Workers, getenvInt("TSVLOAD_WORKERS", DefaultWorkers))
	rc.BatchSize = pickInt(rc.BatchSize, getenvInt("TSVLOAD_BATCH_SIZE", DefaultBatchSize))
	return rc
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// Options is a free-form options bag with typed getters. Getters return the
// provided default when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such as
// a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key (which may itself be a nested
// map[string]any, []any, or primitive). This is useful for retrieving nested
// configuration blocks that will be unmarshaled into a typed struct by the
// caller (e.g., an inline validation contract).
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// Package elasticsearch writes documents to an Elasticsearch index through
// the _bulk API. The index must already exist or be auto-created by the
// cluster; this package never manages index settings or mappings.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds Elasticsearch store configuration.
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// Store is an Elasticsearch-backed storage.DocumentStore. The client is
// safe for concurrent use and is shared by all workers.
type Store struct {
	client *es.Client
}

// newClient is a test hook.
var newClient = func(cfg Config) (*es.Client, error) {
	return es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// New returns a Store for cfg.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch: at least one address is required")
	}
	c, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: client: %w", err)
	}
	return &Store{client: c}, nil
}

// bulkBody renders docs as an NDJSON _bulk body of index actions.
func bulkBody(collection string, docs []records.Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range docs {
		meta, err := json.Marshal(map[string]map[string]string{"index": {"_index": collection, "_id": d.ID}})
		if err != nil {
			return nil, err
		}
		src, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", d.ID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(src)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// itemErrors summarizes failed items, at most max of them.
func (r bulkResponse) itemErrors(max int) (int, string) {
	var failed int
	var msgs []string
	for _, item := range r.Items {
		for _, res := range item {
			if res.Error == nil {
				continue
			}
			failed++
			if len(msgs) < max {
				msgs = append(msgs, fmt.Sprintf("%s: %s: %s", res.ID, res.Error.Type, res.Error.Reason))
			}
		}
	}
	return failed, strings.Join(msgs, "; ")
}

// BulkWrite sends one _bulk request. An HTTP error or any failed item fails
// the whole batch.
func (s *Store) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	body, err := bulkBody(collection, docs)
	if err != nil {
		return fmt.Errorf("elasticsearch: %w", err)
	}
	res, err := s.client.Bulk(bytes.NewReader(body), s.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("elasticsearch: bulk: %s: %s", res.Status(), strings.TrimSpace(string(b)))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("elasticsearch: decode bulk response: %w", err)
	}
	if br.Errors {
		n, msg := br.itemErrors(3)
		return fmt.Errorf("elasticsearch: %d of %d documents failed: %s", n, len(docs), msg)
	}
	return nil
}

// Close is a no-op; the client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

func init() {
	storage.Register("elasticsearch", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		return New(Config{Addresses: cfg.Addrs, Username: cfg.Username, Password: cfg.Password})
	})
}

// Package memory is an in-process document store. It backs dry runs and
// tests: documents are kept per collection, and every batch is recorded.
package memory

import (
	"context"
	"sync"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Store keeps documents in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	docs    map[string]map[string]records.Document
	batches []records.Batch
	closed  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: map[string]map[string]records.Document{}}
}

// BulkWrite stores docs, replacing documents with the same identifier.
func (s *Store) BulkWrite(_ context.Context, collection string, docs []records.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.docs[collection]
	if !ok {
		c = map[string]records.Document{}
		s.docs[collection] = c
	}
	cp := make([]records.Document, len(docs))
	copy(cp, docs)
	for _, d := range cp {
		c[d.ID] = d
	}
	s.batches = append(s.batches, records.Batch{Seq: len(s.batches) + 1, Docs: cp})
	return nil
}

// Get returns the document stored under id.
func (s *Store) Get(collection, id string) (records.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection][id]
	return d, ok
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// Batches returns the batches written so far, in arrival order.
func (s *Store) Batches() []records.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Batch(nil), s.batches...)
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func init() {
	storage.Register("memory", func(context.Context, storage.Config) (storage.DocumentStore, error) {
		return New(), nil
	})
}

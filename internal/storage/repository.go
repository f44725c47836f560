// Package storage holds the document store contract, the backend registry,
// and the batched loader shared by every backend.
//
// Backends live in subpackages and register themselves in init; import
// tsvload/internal/storage/all to enable all of them.
package storage

import (
	"context"
	"sort"
	"sync"

	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// DocumentStore accepts batches of (identifier, document) pairs. BulkWrite
// either acknowledges the whole batch or returns an error; partial success
// is reported as an error.
type DocumentStore interface {
	BulkWrite(ctx context.Context, collection string, docs []records.Document) error
	Close() error
}

// Sessioner is implemented by stores whose connections must not be shared
// between goroutines. Each worker asks for its own session and closes it
// when done.
type Sessioner interface {
	Session(ctx context.Context) (DocumentStore, error)
}

// Bootstrapper is implemented by stores that can create their destination
// collection (e.g. a SQL table) before the first write.
type Bootstrapper interface {
	EnsureCollection(ctx context.Context, collection string) error
}

// Config is the backend-agnostic store configuration. Each backend reads the
// fields it understands.
type Config struct {
	Kind       string
	DSN        string
	Addrs      []string
	Collection string
	AutoCreate bool
	Topic      string
	Queue      string
	Encoding   string
	Username   string
	Password   string
}

// Factory constructs a DocumentStore from cfg.
type Factory func(ctx context.Context, cfg Config) (DocumentStore, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering a kind twice
// replaces the earlier factory.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the store registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (DocumentStore, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrConfig, "unsupported storage.kind=%s", cfg.Kind)
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrStore, "open "+cfg.Kind)
	}
	return s, nil
}

// EnsureCollection creates collection when s is a Bootstrapper and is a
// no-op otherwise.
func EnsureCollection(ctx context.Context, s DocumentStore, collection string) error {
	b, ok := s.(Bootstrapper)
	if !ok {
		return nil
	}
	if err := b.EnsureCollection(ctx, collection); err != nil {
		return errors.WithCode(err, errors.ErrStore, "ensure collection "+collection)
	}
	return nil
}

// nopCloser lets a shared store be handed out as a session without being
// closed by the session holder.
type nopCloser struct{ DocumentStore }

func (nopCloser) Close() error { return nil }

// SessionFor returns a store for one worker: a fresh session when s is a
// Sessioner, otherwise s itself wrapped so that closing it is a no-op.
func SessionFor(ctx context.Context, s DocumentStore) (DocumentStore, error) {
	if ss, ok := s.(Sessioner); ok {
		sess, err := ss.Session(ctx)
		if err != nil {
			return nil, errors.WithCode(err, errors.ErrStore, "open session")
		}
		return sess, nil
	}
	return nopCloser{s}, nil
}

package postgres

import (
	"context"

	"tsvload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace it to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo delegates to *Repository and adds Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var (
	_ storage.DocumentStore = (*wrappedRepo)(nil)
	_ storage.Bootstrapper  = (*wrappedRepo)(nil)
)

func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, AutoCreate: cfg.AutoCreate})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}

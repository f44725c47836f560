package mysql

import (
	"context"

	"tsvload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var (
	_ storage.DocumentStore = (*wrappedRepo)(nil)
	_ storage.Bootstrapper  = (*wrappedRepo)(nil)
)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, AutoCreate: cfg.AutoCreate})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() error {
	w.closeFn()
	return nil
}

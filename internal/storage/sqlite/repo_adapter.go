package sqlite

import (
	"context"

	"tsvload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

var (
	_ storage.DocumentStore = (*wrappedRepo)(nil)
	_ storage.Bootstrapper  = (*wrappedRepo)(nil)
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, AutoCreate: cfg.AutoCreate})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}

// Package sqlite implements a SQLite-backed storage.DocumentStore.
package sqlite

// Config holds SQLite store configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite file path or connection string, e.g.:
	//   "films.db"
	//   "file:films.db?_pragma=busy_timeout(5000)"
	DSN string

	// AutoCreate enables EnsureCollection.
	AutoCreate bool
}

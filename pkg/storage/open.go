package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Open connects to the named backend and applies its schema.
func Open(ctx context.Context, backend, dbURL string) (Store, error) {
	switch backend {
	case BackendPostgres:
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		return NewSQLiteStore(ctx, dbURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

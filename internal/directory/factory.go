package directory

import (
	"context"
	"fmt"

	"github.com/scimgate/scimgate/internal/config"
)

// NewStore builds the Store selected by the storage configuration.
// Supported backends are "memory", "file" and "postgres".
func NewStore(ctx context.Context) (Store, error) {
	storage := config.Storage()

	switch storage.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(storage.FilePath)
	case "postgres":
		pg := config.Postgres()
		db, err := NewPostgresDB(pg.DSN(), pg.MaxOpenConnections)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, db)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", storage.Backend)
	}
}

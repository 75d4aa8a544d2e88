package store

import (
	"context"
	"fmt"

	mydb "github.com/TimurManjosov/gotreasury/internal/db"
	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// NewStore creates a store for the given backend type.
// Supported types: "memory", "postgres".
func NewStore(ctx context.Context, storeType, dbDSN string, policy rules.IntervalPolicy) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(policy), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, dbDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := mydb.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool, policy), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

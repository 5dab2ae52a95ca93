// Package storeopen selects and opens a store backend by name.
package storeopen

import (
	"context"
	"fmt"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
	"github.com/cognicore/ifice/pkg/ifice/store/memstore"
	"github.com/cognicore/ifice/pkg/ifice/store/postgres"
	"github.com/cognicore/ifice/pkg/ifice/store/redisstore"
	"github.com/cognicore/ifice/pkg/ifice/store/sqlite"
)

// Backend names accepted by Open.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Redis    = "redis"
)

// Params names a backend and where to find it.
type Params struct {
	Kind     string
	DSN      string // sqlite path or postgres DSN
	RedisURL string
	Sequence config.Sequence
}

// Open returns the configured backend.
func Open(ctx context.Context, p Params) (store.Store, error) {
	switch p.Kind {
	case Memory:
		return memstore.New(), nil
	case SQLite, "":
		if p.DSN == "" {
			return nil, fmt.Errorf("%w: sqlite store needs a database path", internalerr.ErrInvalidConfig)
		}
		return sqlite.Open(ctx, p.DSN)
	case Postgres:
		if p.DSN == "" {
			return nil, fmt.Errorf("%w: postgres store needs a DSN", internalerr.ErrInvalidConfig)
		}
		return postgres.Open(ctx, p.DSN)
	case Redis:
		if p.RedisURL == "" {
			return nil, fmt.Errorf("%w: redis store needs a URL", internalerr.ErrInvalidConfig)
		}
		return redisstore.Open(ctx, p.RedisURL, redisstore.Options{
			MaxRetries:     p.Sequence.MaxRetries,
			InitialBackoff: p.Sequence.InitialBackoff,
			MaxBackoff:     p.Sequence.MaxBackoff,
		})
	}
	return nil, fmt.Errorf("%w: unknown store %q", internalerr.ErrInvalidConfig, p.Kind)
}

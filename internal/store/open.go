package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/resilience"
)

// Open builds the store named by cfg.Store.Driver. A fallback store whose
// remote cannot be reached at startup runs on the local store alone.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	case "sqlite", "":
		return NewSQLite(cfg.Store.SQLitePath)
	case "fallback":
		local, err := NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		remote, err := NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			zap.L().Warn("store: remote unavailable, using local store only", zap.Error(err))
			return local, nil
		}
		return NewFallback(remote, local, resilience.BreakerFromConfig(cfg.Circuit)), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is the shared connection pool handed to the repository.
type Pool = pgxpool.Pool

// PoolOptions configures the connection pool.
type PoolOptions struct {
	URL      string
	MaxConns int32
}

// ParsePoolConfig validates the connection URL and applies the pool limits.
// It does not connect.
func ParsePoolConfig(opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] invalid DATABASE_URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	return cfg, nil
}

// targetFields describe where the pool points, without credentials.
func targetFields(cfg *pgxpool.Config) []zap.Field {
	return []zap.Field{
		zap.String("host", cfg.ConnConfig.Host),
		zap.Uint16("port", cfg.ConnConfig.Port),
		zap.String("database", cfg.ConnConfig.Database),
		zap.String("user", cfg.ConnConfig.User),
		zap.Int32("max_conns", cfg.MaxConns),
	}
}

// NewPool opens the pool. On start it pings the database and applies the
// schema; on stop it closes every connection.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, opts PoolOptions) (*Pool, error) {
	cfg, err := ParsePoolConfig(opts)
	if err != nil {
		return nil, err
	}
	target := targetFields(cfg)

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				logger.Error("database unreachable", append(target, zap.Error(err))...)
				return fmt.Errorf("[DATABASE] ping %s:%d failed: %w", cfg.ConnConfig.Host, cfg.ConnConfig.Port, err)
			}
			logger.Info("database connected", target...)

			if err := Migrate(ctx, pool); err != nil {
				logger.Error("schema migration failed", zap.Error(err))
				return err
			}
			logger.Info("database schema is up to date")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database pool closed")
			return nil
		},
	})

	return pool, nil
}

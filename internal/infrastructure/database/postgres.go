package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Option adjusts the pool configuration before the pool is created.
type Option func(*pgxpool.Config)

// WithListeners reserves n extra connections for LISTEN sessions: every
// PgNotifyFeed subscription pins one connection for its lifetime.
func WithListeners(n int) Option {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConns += int32(n)
	}
}

// WithApplicationName tags the sessions in pg_stat_activity.
func WithApplicationName(name string) Option {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// Connect opens a pgx pool for dsn and pings it. DSNs written for other
// drivers ("postgresql+asyncpg://", "postgres+pgx://") are accepted.
func Connect(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, error) {
	dsn = normalizeDSN(dsn)
	if dsn == "" {
		return nil, errors.New("postgres: DB_URL is not set")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	applyPoolDefaults(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// applyPoolDefaults fills in what the DSN left unset; pool_* DSN
// parameters win.
func applyPoolDefaults(cfg *pgxpool.Config) {
	if cfg.MaxConns < 4 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}
}

// EnsureSchema creates the chat tables, the change-notification trigger and
// its function when missing. It is safe to run on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded SQL applied by EnsureSchema.
func Schema() string {
	return schemaSQL
}

var driverSchemes = strings.NewReplacer(
	"postgresql+asyncpg://", "postgresql://",
	"postgres+asyncpg://", "postgres://",
	"postgresql+pgx://", "postgresql://",
	"postgres+pgx://", "postgres://",
)

func normalizeDSN(dsn string) string {
	return driverSchemes.Replace(strings.TrimSpace(dsn))
}

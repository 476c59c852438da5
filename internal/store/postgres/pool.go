package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// applicationName tags registry sessions in pg_stat_activity.
const applicationName = "selfca"

// PoolConfig sizes the connection pool for a single CLI invocation, which
// issues a handful of statements and exits.
type PoolConfig struct {
	// ConnString is a postgres:// URL or a key=value DSN.
	ConnString string

	// MaxConns caps concurrent connections.
	// Default: 2
	MaxConns int32

	// MinConns keeps connections warm. Zero leaves the pool empty until first use.
	MinConns int32

	// ConnectTimeout bounds dialing and authentication.
	// Default: 5 seconds
	ConnectTimeout time.Duration

	// MaxConnIdleTime closes connections left unused.
	// Default: 30 seconds
	MaxConnIdleTime time.Duration
}

// Validate checks the connection string and connection limits.
func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return fmt.Errorf("connection string is required")
	}
	if c.MinConns < 0 || c.MaxConns < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 2
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Second
	}
}

// pgxConfig turns the pool settings into a pgxpool configuration.
func (c *PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	return poolConfig, nil
}

// NewPool opens the pool and pings the server so connection errors surface
// before any certificate is issued.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pool config is required")
	}

	poolConfig, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

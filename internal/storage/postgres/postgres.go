// Package postgres stores the card catalog in PostgreSQL through pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duelhub/internal/config"
)

// Connection attempts made by NewPool before giving up, and the pause between them.
const (
	ConnectAttempts = 5
	ConnectBackoff  = time.Second
)

// Pool owns the pgx connection pool shared by the repositories.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool opens a pool and pings the server, retrying while the database
// is still coming up (compose and container startups race the server).
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a Pool that answered a ping, or the last connection
// error once attempts are exhausted or ctx ends.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	var lastErr error
	for attempt := 1; attempt <= ConnectAttempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("creating connection pool: %w", err)
		}
		if err = pool.Ping(ctx); err == nil {
			return &Pool{pool: pool}, nil
		}
		pool.Close()
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pinging database: %w", ctx.Err())
		case <-time.After(ConnectBackoff * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("pinging database after %d attempts: %w", ConnectAttempts, lastErr)
}

// Health pings the database within timeout.
//
// Precondition: The pool must not be closed.
// Postcondition: Returns nil if the database responds within the timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// mutableTables are truncated between runs. Order does not matter with CASCADE.
var mutableTables = []string{
	"idempotency",
	"outbox",
	"request_events",
	"service_requests",
	"drone_listings",
	"providers",
	"users",
}

// Harness owns a migrated Postgres and its pool for integration tests.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness starts Postgres (or reuses overrideDSN) and applies the
// embedded migrations. A reused database gets an isolated schema.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	container, dsn, err := StartPostgres16(ctx, overrideDSN)
	if err != nil {
		return nil, fmt.Errorf("infra: start postgres: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, container.Shared())
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Harness{
		container: container,
		pool:      pool,
		dsn:       dsn,
		teardown:  teardown,
	}, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

// Close closes the pool, drops the isolated schema if any, and stops the container.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates every mutable table so the next test starts clean.
func (h *Harness) Reset(ctx context.Context) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("infra: reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range mutableTables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("infra: truncate %s: %w", tbl, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("infra: reset commit: %w", err)
	}
	return nil
}

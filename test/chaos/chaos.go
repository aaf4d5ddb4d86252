// Package chaos injects connection failures while actors run.
package chaos

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Monkey terminates a random backend of the current database every so often.
// Pool connections recover on their own; in-flight transactions roll back.
type Monkey struct {
	Every  time.Duration
	OneIn  int
	killed atomic.Int64
}

// Killed reports how many backends were terminated.
func (m *Monkey) Killed() int64 {
	return m.killed.Load()
}

// Run blocks until ctx ends or stop closes.
func (m *Monkey) Run(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	every, oneIn := m.Every, m.OneIn
	if every <= 0 {
		every = 2 * time.Second
	}
	if oneIn <= 0 {
		oneIn = 5
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(oneIn) != 0 {
				continue
			}
			var n int64
			err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM (
                SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                WHERE datname = current_database() AND pid <> pg_backend_pid() AND backend_type = 'client backend'
                ORDER BY random() LIMIT 1) t`).Scan(&n)
			if err == nil {
				m.killed.Add(n)
			}
		}
	}
}

// Package oracles holds SQL invariants over the request tables. Each query
// returns rows only when its invariant is broken.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_request_has_placed_event",
			SQL: `SELECT r.id FROM service_requests r
                  WHERE NOT EXISTS (
                      SELECT 1 FROM request_events e
                      WHERE e.request_id = r.id AND e.seq = 1 AND e.type = 'REQUEST_PLACED')`,
		},
		{
			Name: "O2_status_matches_latest_event",
			SQL: `WITH latest AS (
                      SELECT DISTINCT ON (request_id) request_id, type, payload->>'next_status' AS next_status
                      FROM request_events
                      ORDER BY request_id, seq DESC)
                  SELECT r.id, r.status, l.type, l.next_status
                  FROM service_requests r
                  JOIN latest l ON l.request_id = r.id
                  WHERE (l.type = 'REQUEST_PLACED' AND r.status <> 'placed')
                     OR (l.type <> 'REQUEST_PLACED' AND r.status IS DISTINCT FROM l.next_status)`,
		},
		{
			Name: "O3_seq_gapless",
			SQL: `SELECT request_id, seq, rn FROM (
                      SELECT request_id, seq,
                             ROW_NUMBER() OVER (PARTITION BY request_id ORDER BY seq) AS rn
                      FROM request_events) s
                  WHERE seq <> rn`,
		},
		{
			Name: "O4_event_chain_consistent",
			SQL: `WITH chain AS (
                      SELECT request_id, seq, payload->>'previous_status' AS previous,
                             LAG(COALESCE(payload->>'next_status', 'placed'))
                                 OVER (PARTITION BY request_id ORDER BY seq) AS prior
                      FROM request_events)
                  SELECT * FROM chain WHERE prior IS NOT NULL AND previous IS DISTINCT FROM prior`,
		},
		{
			Name: "O5_assigned_statuses_have_provider",
			SQL: `SELECT id, status FROM service_requests
                  WHERE provider_id IS NULL
                  AND status IN ('accepted', 'in_progress', 'completed', 'paid', 'rescheduled', 'out_of_service')`,
		},
		{
			Name: "O6_paid_after_completed",
			SQL: `SELECT r.id FROM service_requests r
                  WHERE r.status = 'paid'
                  AND NOT EXISTS (
                      SELECT 1 FROM request_events e
                      WHERE e.request_id = r.id AND e.payload->>'next_status' = 'completed')`,
		},
		{
			Name: "O7_paid_once",
			SQL: `SELECT request_id, COUNT(*) FROM request_events
                  WHERE payload->>'next_status' = 'paid'
                  GROUP BY request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_outbox_matches_events",
			SQL: `SELECT e.request_id, e.seq FROM request_events e
                  WHERE NOT EXISTS (
                      SELECT 1 FROM outbox o
                      WHERE o.payload->>'request_id' = e.request_id::text
                      AND (e.type = 'REQUEST_PLACED' OR o.payload->>'next' = e.payload->>'next_status'))`,
		},
	}
}

// Run executes every oracle and returns the first violated one with its
// first offending row. An empty name means all invariants hold.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}

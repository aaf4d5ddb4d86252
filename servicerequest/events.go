package servicerequest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TimelineWriter appends request events inside the caller's transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, requestID string, eventType string, actorID string, payload map[string]any) error
}

// OutboxWriter enqueues integration messages inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGTimeline writes to request_events. The request row must already be locked
// by the transaction so seq stays gapless per request.
type PGTimeline struct{}

func (PGTimeline) Append(ctx context.Context, tx pgx.Tx, requestID string, eventType string, actorID string, payload map[string]any) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO request_events (request_id, seq, type, actor_id, payload)
        SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4::jsonb
        FROM request_events
        WHERE request_id = $1
    `, requestID, eventType, actor, toJSON(payload)); err != nil {
		return fmt.Errorf("servicerequest: insert timeline: %w", err)
	}
	return nil
}

// PGOutbox writes to the outbox table.
type PGOutbox struct{}

func (PGOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, toJSON(payload)); err != nil {
		return fmt.Errorf("servicerequest: enqueue outbox: %w", err)
	}
	return nil
}

func toJSON(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return string(b)
}

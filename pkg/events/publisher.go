package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Publisher fires PostgreSQL NOTIFY messages for state-machine
// transitions. Unlike the teacher's events table (which exists because
// WebSocket clients need a durable catch-up log), there is nothing to
// persist here: the durable record of a transition is the Task/Action/
// Command/Execution/Event row itself, already committed by the caller.
// Publisher only announces the change to whatever LISTENs on the channel.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher over the shared *sql.DB connection
// pool. Publish calls use that pool directly (not a dedicated connection)
// because NOTIFY does not require LISTEN-side affinity.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishTx fires a NOTIFY from inside tx so the notification is held
// until the caller's transaction commits (pg_notify is transactional).
// The role workers do not use it: they commit their ent transaction first
// and then call Publish.
func (p *Publisher) PublishTx(ctx context.Context, tx *sql.Tx, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}

	truncated, err := truncateIfNeeded(body)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, truncated); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Publish fires a NOTIFY outside of any transaction. The role workers call
// it after committing the rows a signal announces.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}

	truncated, err := truncateIfNeeded(body)
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, truncated); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// pgNotifyByteLimit is PostgreSQL's hard limit on a NOTIFY payload
// (8000 bytes); truncation leaves headroom for the routing envelope.
const pgNotifyByteLimit = 7900

// truncateIfNeeded returns payload as-is if it fits PostgreSQL's NOTIFY
// size limit, otherwise degrades it to a minimal routing envelope —
// listeners that need the full row re-query it by id.
func truncateIfNeeded(payload []byte) (string, error) {
	if len(payload) <= pgNotifyByteLimit {
		return string(payload), nil
	}

	var routing struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &routing); err != nil {
		return "", fmt.Errorf("extract routing fields for truncation: %w", err)
	}

	truncated, err := json.Marshal(map[string]any{
		"type":      routing.Type,
		"event_id":  routing.EventID,
		"truncated": true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(truncated), nil
}

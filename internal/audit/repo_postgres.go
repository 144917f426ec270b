package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo stores transition events in the call_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO call_events (id, call_id, from_status, to_status, source, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.From, e.To, e.Source, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append call event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	const q = `
		SELECT id, call_id, from_status, to_status, source, reason, created_at
		FROM call_events
		WHERE call_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("list call events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallID, &e.From, &e.To, &e.Source, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list call events: %w", err)
	}
	return events, nil
}

package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// PostgresRepo reads the call records for aggregation. It only needs the
// columns the summary touches.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error) {
	const q = `
		SELECT call_id, status, duration_seconds, recording_s3_key, transcript_s3_key, created_at
		FROM call_records
		WHERE created_at >= $1 AND created_at < $2`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calls for report: %w", err)
	}
	defer rows.Close()

	out := []calls.CallRecord{}
	for rows.Next() {
		var c calls.CallRecord
		if err := rows.Scan(&c.CallID, &c.Status, &c.DurationSeconds, &c.RecordingS3Key, &c.TranscriptS3Key, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call for report: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list calls for report: %w", err)
	}
	return out, nil
}

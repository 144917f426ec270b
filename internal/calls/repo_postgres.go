package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/husainf4l/ravoxai/pkg/utils"
)

// PostgresRepo stores call records in the call_records table. The status CAS
// is a single preconditioned UPDATE so two concurrent transition attempts for
// the same call_id cannot both succeed.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const callColumns = `
call_id, phone_number, caller_name, agent_name, company_name, caller_id,
subject, main_prompt, status, created_at, started_at, ended_at,
duration_seconds, failure_reason, room_name, provider_call_id,
recording_url, recording_s3_key, recording_format, recording_file_size,
transcript_url, transcript_s3_key, conversation_transcript, conversation_summary`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&rec.CallID,
		&rec.PhoneNumber,
		&rec.CallerName,
		&rec.AgentName,
		&rec.CompanyName,
		&rec.CallerID,
		&rec.Subject,
		&rec.MainPrompt,
		&rec.Status,
		&rec.CreatedAt,
		&startedAt,
		&endedAt,
		&rec.DurationSeconds,
		&rec.FailureReason,
		&rec.RoomName,
		&rec.ProviderCallID,
		&rec.RecordingURL,
		&rec.RecordingS3Key,
		&rec.RecordingFormat,
		&rec.RecordingFileSize,
		&rec.TranscriptURL,
		&rec.TranscriptS3Key,
		&rec.ConversationTranscript,
		&rec.ConversationSummary,
	)
	if err != nil {
		return CallRecord{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return rec, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO call_records (
  call_id, phone_number, caller_name, agent_name, company_name, caller_id,
  subject, main_prompt, status, created_at, duration_seconds, failure_reason,
  room_name, provider_call_id, recording_url, recording_s3_key,
  recording_format, recording_file_size, transcript_url, transcript_s3_key,
  conversation_transcript, conversation_summary
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)
ON CONFLICT (call_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.PhoneNumber,
		rec.CallerName,
		rec.AgentName,
		rec.CompanyName,
		rec.CallerID,
		rec.Subject,
		rec.MainPrompt,
		rec.Status,
		rec.CreatedAt,
		rec.DurationSeconds,
		rec.FailureReason,
		rec.RoomName,
		rec.ProviderCallID,
		rec.RecordingURL,
		rec.RecordingS3Key,
		rec.RecordingFormat,
		rec.RecordingFileSize,
		rec.TranscriptURL,
		rec.TranscriptS3Key,
		rec.ConversationTranscript,
		rec.ConversationSummary,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: call_id %s already exists", ErrValidation, rec.CallID)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	q := `SELECT` + callColumns + ` FROM call_records WHERE call_id = $1`
	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) GetByRoomName(ctx context.Context, roomName string) (CallRecord, error) {
	if roomName == "" {
		return CallRecord{}, ErrNotFound
	}
	q := `SELECT` + callColumns + ` FROM call_records WHERE room_name = $1 ORDER BY created_at DESC LIMIT 1`
	rec, err := scanCall(r.db.QueryRowContext(ctx, q, roomName))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f, err := f.normalized()
	if err != nil {
		return nil, err
	}
	q := `SELECT` + callColumns + `
FROM call_records
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0, f.Limit)
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CompareAndSwapStatus(ctx context.Context, callID string, expect Status, upd StatusUpdate) (CallRecord, error) {
	q := `
UPDATE call_records SET
  status            = $3,
  started_at        = COALESCE(started_at, $4),
  ended_at          = COALESCE(ended_at, $5),
  duration_seconds  = COALESCE($6, duration_seconds),
  failure_reason    = COALESCE($7, failure_reason),
  room_name         = COALESCE($8, room_name),
  provider_call_id  = COALESCE($9, provider_call_id)
WHERE call_id = $1 AND status = $2
RETURNING` + callColumns

	rec, err := scanCall(r.db.QueryRowContext(ctx, q,
		callID,
		expect,
		upd.Status,
		nullTime(upd.StartedAt),
		nullTime(upd.EndedAt),
		nullInt(upd.DurationSeconds),
		nullString(upd.FailureReason),
		nullString(upd.RoomName),
		nullString(upd.ProviderCallID),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, r.staleOrMissing(ctx, callID)
	}
	return rec, err
}

func (r *PostgresRepo) SetRecording(ctx context.Context, callID, expectKey string, ref RecordingRef) (CallRecord, error) {
	q := `
UPDATE call_records SET
  recording_url       = $3,
  recording_s3_key    = $4,
  recording_format    = $5,
  recording_file_size = $6
WHERE call_id = $1 AND recording_s3_key = $2
RETURNING` + callColumns

	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID, expectKey, ref.URL, ref.Key, ref.Format, ref.FileSize))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, r.staleOrMissing(ctx, callID)
	}
	return rec, err
}

func (r *PostgresRepo) SetTranscript(ctx context.Context, callID, expectKey string, ref TranscriptRef) (CallRecord, error) {
	q := `
UPDATE call_records SET
  transcript_url          = $3,
  transcript_s3_key       = $4,
  conversation_transcript = CASE WHEN $5 <> '' THEN $5 ELSE conversation_transcript END
WHERE call_id = $1 AND transcript_s3_key = $2
RETURNING` + callColumns

	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID, expectKey, ref.URL, ref.Key, ref.Text))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, r.staleOrMissing(ctx, callID)
	}
	return rec, err
}

func (r *PostgresRepo) UpdateConversation(ctx context.Context, callID string, transcript, summary *string) (CallRecord, error) {
	q := `
UPDATE call_records SET
  conversation_transcript = COALESCE($2, conversation_transcript),
  conversation_summary    = COALESCE($3, conversation_summary)
WHERE call_id = $1
RETURNING` + callColumns

	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID, nullString(transcript), nullString(summary)))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) ListStuck(ctx context.Context, status Status, olderThan time.Time, limit int) ([]CallRecord, error) {
	if !ValidStatus(status) {
		return nil, ErrValidation
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := `SELECT` + callColumns + `
FROM call_records
WHERE status = $1 AND COALESCE(started_at, created_at) < $2
ORDER BY created_at ASC
LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, status, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteTerminalBefore(ctx context.Context, status Status, cutoff time.Time) (int64, []string, error) {
	if !Terminal(status) {
		return 0, nil, fmt.Errorf("%w: cleanup is limited to terminal statuses, got %q", ErrValidation, status)
	}

	var (
		removed int64
		keys    []string
	)
	// Collect the media keys and delete the rows in one transaction so a
	// concurrent writer cannot slip a new artifact onto a row we are about
	// to drop.
	err := utils.WithTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT recording_s3_key, transcript_s3_key FROM call_records
WHERE status = $1 AND created_at < $2 FOR UPDATE`, status, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var recording, transcript string
			if err := rows.Scan(&recording, &transcript); err != nil {
				return err
			}
			if recording != "" {
				keys = append(keys, recording)
			}
			if transcript != "" {
				keys = append(keys, transcript)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM call_records WHERE status = $1 AND created_at < $2`, status, cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return removed, keys, nil
}

// staleOrMissing distinguishes a failed precondition from an unknown call_id.
func (r *PostgresRepo) staleOrMissing(ctx context.Context, callID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM call_records WHERE call_id = $1`, callID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStale
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

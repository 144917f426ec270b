package calls

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrValidation marks malformed or missing caller input. Surfaced, not retried.
	ErrValidation = errors.New("calls: validation failed")
	// ErrNotFound marks an unknown call_id.
	ErrNotFound = errors.New("calls: call not found")
	// ErrInvalidTransition marks a status move that violates the lifecycle
	// ordering. The record is left untouched.
	ErrInvalidTransition = errors.New("calls: invalid status transition")
	// ErrUpstream marks a voice-platform or storage failure.
	ErrUpstream = errors.New("calls: upstream failure")

	// ErrStale is returned by compare-and-swap writes whose precondition no
	// longer holds. The service re-reads and retries; it never escapes the API.
	ErrStale = errors.New("calls: record changed concurrently")
)

// StatusUpdate is the write applied by a compare-and-swap transition.
// Pointer fields are left untouched when nil; StartedAt/EndedAt only ever
// fill a previously empty column.
type StatusUpdate struct {
	Status          Status
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	FailureReason   *string
	RoomName        *string
	ProviderCallID  *string
}

// RecordingRef points at a stored recording artifact.
type RecordingRef struct {
	URL      string
	Key      string
	Format   string
	FileSize int64
}

// TranscriptRef points at a stored transcript artifact. Text additionally
// lands in conversation_transcript when non-empty.
type TranscriptRef struct {
	URL  string
	Key  string
	Text string
}

// ListFilter bounds a paginated scan. Status empty means all statuses.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Repository is the durable call store. Lifecycle invariants are enforced at
// the write boundary: Insert rejects duplicate call_ids and every mutation is
// preconditioned so concurrent writers for the same call_id cannot race into
// an inconsistent state.
type Repository interface {
	Insert(ctx context.Context, rec CallRecord) error
	Get(ctx context.Context, callID string) (CallRecord, error)
	GetByRoomName(ctx context.Context, roomName string) (CallRecord, error)

	// List returns records ordered by created_at descending.
	List(ctx context.Context, f ListFilter) ([]CallRecord, error)

	// CompareAndSwapStatus applies upd only while the record still holds
	// expect. Returns ErrStale when the precondition fails, ErrNotFound when
	// the call_id is unknown.
	CompareAndSwapStatus(ctx context.Context, callID string, expect Status, upd StatusUpdate) (CallRecord, error)

	// SetRecording and SetTranscript replace the media reference only while
	// the stored key still equals expectKey ("" for none). ErrStale otherwise.
	SetRecording(ctx context.Context, callID, expectKey string, ref RecordingRef) (CallRecord, error)
	SetTranscript(ctx context.Context, callID, expectKey string, ref TranscriptRef) (CallRecord, error)

	UpdateConversation(ctx context.Context, callID string, transcript, summary *string) (CallRecord, error)

	// ListStuck returns up to limit records in status whose lifecycle clock
	// (started_at when set, created_at otherwise) predates olderThan.
	ListStuck(ctx context.Context, status Status, olderThan time.Time, limit int) ([]CallRecord, error)

	// DeleteTerminalBefore removes records in a terminal status created
	// before cutoff and returns the removed rows' media object keys so the
	// caller can purge the artifacts too. Non-terminal statuses are
	// rejected.
	DeleteTerminalBefore(ctx context.Context, status Status, cutoff time.Time) (int64, []string, error)
}

func (f ListFilter) normalized() (ListFilter, error) {
	out := f
	if out.Status != "" && !ValidStatus(out.Status) {
		return ListFilter{}, ErrValidation
	}
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out, nil
}

package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. It mirrors the Postgres
// implementation's precondition semantics, including ErrStale.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]CallRecord)}
}

func (r *MemoryRepo) Insert(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.CallID]; ok {
		return fmt.Errorf("%w: call_id %s already exists", ErrValidation, rec.CallID)
	}
	r.records[rec.CallID] = rec
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) GetByRoomName(ctx context.Context, roomName string) (CallRecord, error) {
	if roomName == "" {
		return CallRecord{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *CallRecord
	for _, rec := range r.records {
		if rec.RoomName != roomName {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			cp := rec
			found = &cp
		}
	}
	if found == nil {
		return CallRecord{}, ErrNotFound
	}
	return *found, nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f, err := f.normalized()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]CallRecord, 0, len(r.records))
	for _, rec := range r.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if f.Offset >= len(all) {
		return []CallRecord{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *MemoryRepo) CompareAndSwapStatus(ctx context.Context, callID string, expect Status, upd StatusUpdate) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if rec.Status != expect {
		return CallRecord{}, ErrStale
	}
	rec.Status = upd.Status
	if rec.StartedAt == nil && upd.StartedAt != nil {
		t := *upd.StartedAt
		rec.StartedAt = &t
	}
	if rec.EndedAt == nil && upd.EndedAt != nil {
		t := *upd.EndedAt
		rec.EndedAt = &t
	}
	if upd.DurationSeconds != nil {
		rec.DurationSeconds = *upd.DurationSeconds
	}
	if upd.FailureReason != nil {
		rec.FailureReason = *upd.FailureReason
	}
	if upd.RoomName != nil {
		rec.RoomName = *upd.RoomName
	}
	if upd.ProviderCallID != nil {
		rec.ProviderCallID = *upd.ProviderCallID
	}
	r.records[callID] = rec
	return rec, nil
}

func (r *MemoryRepo) SetRecording(ctx context.Context, callID, expectKey string, ref RecordingRef) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if rec.RecordingS3Key != expectKey {
		return CallRecord{}, ErrStale
	}
	rec.RecordingURL = ref.URL
	rec.RecordingS3Key = ref.Key
	rec.RecordingFormat = ref.Format
	rec.RecordingFileSize = ref.FileSize
	r.records[callID] = rec
	return rec, nil
}

func (r *MemoryRepo) SetTranscript(ctx context.Context, callID, expectKey string, ref TranscriptRef) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if rec.TranscriptS3Key != expectKey {
		return CallRecord{}, ErrStale
	}
	rec.TranscriptURL = ref.URL
	rec.TranscriptS3Key = ref.Key
	if ref.Text != "" {
		rec.ConversationTranscript = ref.Text
	}
	r.records[callID] = rec
	return rec, nil
}

func (r *MemoryRepo) UpdateConversation(ctx context.Context, callID string, transcript, summary *string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if transcript != nil {
		rec.ConversationTranscript = *transcript
	}
	if summary != nil {
		rec.ConversationSummary = *summary
	}
	r.records[callID] = rec
	return rec, nil
}

func (r *MemoryRepo) ListStuck(ctx context.Context, status Status, olderThan time.Time, limit int) ([]CallRecord, error) {
	if !ValidStatus(status) {
		return nil, ErrValidation
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallRecord
	for _, rec := range r.records {
		if rec.Status != status {
			continue
		}
		clock := rec.CreatedAt
		if rec.StartedAt != nil {
			clock = *rec.StartedAt
		}
		if clock.Before(olderThan) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) DeleteTerminalBefore(ctx context.Context, status Status, cutoff time.Time) (int64, []string, error) {
	if !Terminal(status) {
		return 0, nil, fmt.Errorf("%w: cleanup is limited to terminal statuses, got %q", ErrValidation, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		n    int64
		keys []string
	)
	for id, rec := range r.records {
		if rec.Status == status && rec.CreatedAt.Before(cutoff) {
			if rec.RecordingS3Key != "" {
				keys = append(keys, rec.RecordingS3Key)
			}
			if rec.TranscriptS3Key != "" {
				keys = append(keys, rec.TranscriptS3Key)
			}
			delete(r.records, id)
			n++
		}
	}
	return n, keys, nil
}

package media

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/storage"
)

func newTestResolver(t *testing.T) (*Resolver, *calls.MemoryRepo, *storage.MemoryStore, calls.CallRecord) {
	t.Helper()
	repo := calls.NewMemoryRepo()
	store := storage.NewMemoryStore()
	r := NewResolver(repo, store)
	r.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	rec := calls.CallRecord{
		CallID:      "call-1",
		PhoneNumber: "0796026659",
		Subject:     "s",
		Status:      calls.StatusCompleted,
		CreatedAt:   time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return r, repo, store, rec
}

func TestAttach_InlineRecordingUploadsAndLinks(t *testing.T) {
	r, _, store, rec := newTestResolver(t)

	got, err := r.Attach(context.Background(), AttachRequest{
		CallID:      rec.CallID,
		Kind:        KindRecording,
		Content:     []byte("audio-bytes"),
		Filename:    "call.mp3",
		ContentType: "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	wantKey := "call-recordings/2025/06/01/call-1-audio.mp3"
	if got.RecordingS3Key != wantKey {
		t.Fatalf("unexpected key %q", got.RecordingS3Key)
	}
	if got.RecordingURL == "" || got.RecordingFormat != "mp3" || got.RecordingFileSize != int64(len("audio-bytes")) {
		t.Fatalf("recording metadata incomplete: %+v", got)
	}
	if data, ok := store.Get(wantKey); !ok || string(data) != "audio-bytes" {
		t.Fatalf("content not uploaded under %s", wantKey)
	}
}

func TestAttach_KeyReferenceIsIdempotent(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	req := AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/2025/06/01/call-1-audio.wav"}
	first, err := r.Attach(context.Background(), req)
	if err != nil {
		t.Fatalf("first attach failed: %v", err)
	}
	second, err := r.Attach(context.Background(), req)
	if err != nil {
		t.Fatalf("re-attach of the identical reference must be a no-op: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("record state changed across idempotent attach:\n%+v\n%+v", first, second)
	}
}

func TestAttach_KeyReferenceRecordsStoredSize(t *testing.T) {
	r, _, store, rec := newTestResolver(t)

	key := "call-recordings/2025/06/01/call-1-audio.wav"
	if _, err := store.Put(context.Background(), key, strings.NewReader("wav-bytes"), "audio/wav"); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	got, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: key})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if got.RecordingFileSize != int64(len("wav-bytes")) {
		t.Fatalf("file_size = %d, want %d", got.RecordingFileSize, len("wav-bytes"))
	}
}

func TestAttach_DifferentReferenceNeedsReplace(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/a.mp3"}); err != nil {
		t.Fatalf("first attach failed: %v", err)
	}

	_, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/b.mp3"})
	if !errors.Is(err, ErrMediaExists) {
		t.Fatalf("expected ErrMediaExists, got %v", err)
	}

	got, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/b.mp3", Replace: true})
	if err != nil {
		t.Fatalf("explicit replace failed: %v", err)
	}
	if got.RecordingS3Key != "call-recordings/b.mp3" {
		t.Fatalf("replace did not take effect: %q", got.RecordingS3Key)
	}
}

func TestAttach_TranscriptStoresText(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	got, err := r.Attach(context.Background(), AttachRequest{
		CallID:  rec.CallID,
		Kind:    KindTranscript,
		Content: []byte("agent: hello\ncallee: hi"),
	})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if got.TranscriptS3Key != "call-transcripts/2025/06/01/call-1-transcript.txt" {
		t.Fatalf("unexpected transcript key %q", got.TranscriptS3Key)
	}
	if got.ConversationTranscript != "agent: hello\ncallee: hi" {
		t.Fatalf("transcript text not stored on the record")
	}
}

func TestAttach_Validation(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: "video", Key: "k"}); !errors.Is(err, calls.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}
	// neither content nor key
	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording}); !errors.Is(err, calls.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty source, got %v", err)
	}
	// both content and key
	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Content: []byte("x"), Key: "k"}); !errors.Is(err, calls.ErrValidation) {
		t.Fatalf("expected ErrValidation for ambiguous source, got %v", err)
	}
	if _, err := r.Attach(context.Background(), AttachRequest{CallID: "missing", Kind: KindRecording, Key: "k"}); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttach_UploadFailureIsUpstream(t *testing.T) {
	r, _, store, rec := newTestResolver(t)
	store.Fail = true

	_, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Content: []byte("x"), Filename: "a.mp3"})
	if !errors.Is(err, calls.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	// The record must be untouched so the caller can retry.
	got, _ := r.store.Get(context.Background(), rec.CallID)
	if got.RecordingS3Key != "" {
		t.Fatalf("record mutated despite upload failure: %q", got.RecordingS3Key)
	}
}

func TestSummary_EmptyForRecordWithoutMedia(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	sum, err := r.Summary(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.RecordingAvailable || sum.TranscriptAvailable || sum.HasAudio || sum.HasTranscript {
		t.Fatalf("expected all-false summary, got %+v", sum)
	}
	if sum.TotalFiles != 0 || len(sum.Files) != 0 || len(sum.RecordingFormats) != 0 {
		t.Fatalf("expected empty file sets, got %+v", sum)
	}
}

func TestSummary_CountsArtifactsAndFormats(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Content: []byte("a"), Filename: "a.mp3"}); err != nil {
		t.Fatalf("attach recording: %v", err)
	}
	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindTranscript, Content: []byte("text")}); err != nil {
		t.Fatalf("attach transcript: %v", err)
	}

	sum, err := r.Summary(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !sum.RecordingAvailable || !sum.TranscriptAvailable {
		t.Fatalf("availability flags not set: %+v", sum)
	}
	if sum.TotalFiles != 2 || !sum.HasAudio || !sum.HasTranscript {
		t.Fatalf("derived summary wrong: %+v", sum)
	}
	if len(sum.RecordingFormats) != 1 || sum.RecordingFormats[0] != "mp3" {
		t.Fatalf("unexpected formats %v", sum.RecordingFormats)
	}
}

func TestSummary_DegradesWhenListingUnavailable(t *testing.T) {
	r, _, store, rec := newTestResolver(t)
	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/x.mp3"}); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	store.Fail = true

	sum, err := r.Summary(context.Background(), rec.CallID)
	if err != nil {
		t.Fatalf("summary must not fail when listing is down: %v", err)
	}
	if !sum.RecordingAvailable {
		t.Fatalf("record-level flags must survive listing outages")
	}
	if sum.TotalFiles != 0 {
		t.Fatalf("file listing should be empty on outage, got %d", sum.TotalFiles)
	}
}

func TestPresignRecording(t *testing.T) {
	r, _, _, rec := newTestResolver(t)

	if _, err := r.PresignRecording(context.Background(), rec.CallID, time.Hour); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a stored recording, got %v", err)
	}

	if _, err := r.Attach(context.Background(), AttachRequest{CallID: rec.CallID, Kind: KindRecording, Key: "call-recordings/x.mp3"}); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	url, err := r.PresignRecording(context.Background(), rec.CallID, time.Hour)
	if err != nil {
		t.Fatalf("presign failed: %v", err)
	}
	if url == "" {
		t.Fatalf("expected a presigned URL")
	}
}

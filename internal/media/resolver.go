package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/storage"
)

// Kind names the two artifact types a call can carry.
type Kind string

const (
	KindRecording  Kind = "recording"
	KindTranscript Kind = "transcript"
)

// ErrMediaExists marks an attach that would overwrite a different reference
// without an explicit replace request.
var ErrMediaExists = errors.New("media: a different artifact is already attached")

// CallStore is the slice of the call repository the resolver needs.
type CallStore interface {
	Get(ctx context.Context, callID string) (calls.CallRecord, error)
	SetRecording(ctx context.Context, callID, expectKey string, ref calls.RecordingRef) (calls.CallRecord, error)
	SetTranscript(ctx context.Context, callID, expectKey string, ref calls.TranscriptRef) (calls.CallRecord, error)
}

// Resolver attaches recording/transcript artifacts to call records and
// derives the media-availability summary.
type Resolver struct {
	store  CallStore
	object storage.ObjectStore
	clock  func() time.Time
}

func NewResolver(store CallStore, object storage.ObjectStore) *Resolver {
	return &Resolver{store: store, object: object, clock: time.Now}
}

// AttachRequest carries either inline content (plus filename for the
// extension) or a reference key into object storage, never both.
type AttachRequest struct {
	CallID      string
	Kind        Kind
	Content     []byte
	Filename    string
	ContentType string
	Key         string

	// Replace permits overwriting an existing, different reference.
	Replace bool
}

// Attach resolves the source to a durable URL (uploading inline content
// first) and updates the record's media reference. Re-attaching the same
// reference is a no-op; a different reference without Replace fails with
// ErrMediaExists.
func (r *Resolver) Attach(ctx context.Context, req AttachRequest) (calls.CallRecord, error) {
	if req.Kind != KindRecording && req.Kind != KindTranscript {
		return calls.CallRecord{}, fmt.Errorf("%w: kind must be recording or transcript, got %q", calls.ErrValidation, req.Kind)
	}
	hasContent := len(req.Content) > 0
	hasKey := strings.TrimSpace(req.Key) != ""
	if hasContent == hasKey {
		return calls.CallRecord{}, fmt.Errorf("%w: exactly one of file content or storage key is required", calls.ErrValidation)
	}

	rec, err := r.store.Get(ctx, req.CallID)
	if err != nil {
		return calls.CallRecord{}, err
	}

	existingKey := rec.RecordingS3Key
	if req.Kind == KindTranscript {
		existingKey = rec.TranscriptS3Key
	}

	targetKey := req.Key
	if hasContent {
		targetKey = r.contentKey(req)
	}

	if existingKey != "" && existingKey != targetKey && !req.Replace {
		return calls.CallRecord{}, fmt.Errorf("%w: %s already at %s", ErrMediaExists, req.Kind, existingKey)
	}
	if hasKey && existingKey == targetKey {
		// Identical reference; nothing to do.
		return rec, nil
	}

	url := r.object.URL(targetKey)
	if hasContent {
		url, err = r.object.Put(ctx, targetKey, bytes.NewReader(req.Content), req.ContentType)
		if err != nil {
			return calls.CallRecord{}, fmt.Errorf("%w: %v", calls.ErrUpstream, err)
		}
	}

	switch req.Kind {
	case KindRecording:
		fileSize := int64(len(req.Content))
		if hasKey {
			// The referenced object already exists; take its real size.
			fileSize = r.objectSize(ctx, targetKey)
		}
		return r.store.SetRecording(ctx, req.CallID, existingKey, calls.RecordingRef{
			URL:      url,
			Key:      targetKey,
			Format:   storage.FormatFromKey(targetKey),
			FileSize: fileSize,
		})
	default:
		text := ""
		if hasContent {
			text = string(req.Content)
		}
		return r.store.SetTranscript(ctx, req.CallID, existingKey, calls.TranscriptRef{
			URL:  url,
			Key:  targetKey,
			Text: text,
		})
	}
}

// objectSize looks up the stored size of key. Best-effort: an unreachable or
// absent listing yields 0 rather than failing the attach.
func (r *Resolver) objectSize(ctx context.Context, key string) int64 {
	objs, err := r.object.List(ctx, key, "")
	if err != nil {
		return 0
	}
	for _, obj := range objs {
		if obj.Key == key {
			return obj.Size
		}
	}
	return 0
}

func (r *Resolver) contentKey(req AttachRequest) string {
	now := r.clock().UTC()
	if req.Kind == KindTranscript {
		return storage.TranscriptKey(now, req.CallID)
	}
	ext := path.Ext(req.Filename)
	if ext == "" {
		ext = ".mp3"
	}
	return storage.RecordingKey(now, req.CallID, ext)
}

// Summary is the derived media-availability view for one call.
type Summary struct {
	CallID string `json:"call_id"`

	RecordingAvailable bool   `json:"recording_available"`
	RecordingURL       string `json:"recording_url,omitempty"`
	RecordingS3Key     string `json:"recording_s3_key,omitempty"`
	RecordingFormat    string `json:"recording_format,omitempty"`

	TranscriptAvailable bool   `json:"transcript_available"`
	TranscriptURL       string `json:"transcript_url,omitempty"`
	TranscriptS3Key     string `json:"transcript_s3_key,omitempty"`

	CallStatus      calls.Status `json:"call_status"`
	DurationSeconds int          `json:"duration_seconds"`

	Files            []storage.Object `json:"files"`
	TotalFiles       int              `json:"total_files"`
	HasAudio         bool             `json:"has_audio"`
	HasTranscript    bool             `json:"has_transcript"`
	RecordingFormats []string         `json:"recording_formats"`
}

// Summary never fails for an existing record: when the object listing is
// unavailable the summary degrades to the record's own references.
func (r *Resolver) Summary(ctx context.Context, callID string) (Summary, error) {
	rec, err := r.store.Get(ctx, callID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		CallID:              rec.CallID,
		RecordingAvailable:  rec.RecordingURL != "",
		RecordingURL:        rec.RecordingURL,
		RecordingS3Key:      rec.RecordingS3Key,
		RecordingFormat:     rec.RecordingFormat,
		TranscriptAvailable: rec.TranscriptURL != "",
		TranscriptURL:       rec.TranscriptURL,
		TranscriptS3Key:     rec.TranscriptS3Key,
		CallStatus:          rec.Status,
		DurationSeconds:     rec.DurationSeconds,
		Files:               []storage.Object{},
		RecordingFormats:    []string{},
	}

	recordings, recErr := r.object.List(ctx, storage.RecordingPrefix(), rec.CallID)
	transcripts, trErr := r.object.List(ctx, storage.TranscriptPrefix(), rec.CallID)
	if recErr != nil || trErr != nil {
		return out, nil
	}

	seenFormats := map[string]bool{}
	for _, obj := range recordings {
		out.Files = append(out.Files, obj)
		out.HasAudio = true
		if f := storage.FormatFromKey(obj.Key); f != "" && !seenFormats[f] {
			seenFormats[f] = true
			out.RecordingFormats = append(out.RecordingFormats, f)
		}
	}
	for _, obj := range transcripts {
		out.Files = append(out.Files, obj)
		out.HasTranscript = true
	}
	out.TotalFiles = len(out.Files)
	return out, nil
}

// PresignRecording returns a time-limited GET URL for the stored recording.
func (r *Resolver) PresignRecording(ctx context.Context, callID string, ttl time.Duration) (string, error) {
	rec, err := r.store.Get(ctx, callID)
	if err != nil {
		return "", err
	}
	if rec.RecordingS3Key == "" {
		return "", fmt.Errorf("%w: no recording stored for call %s", calls.ErrNotFound, callID)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	url, err := r.object.Presign(ctx, rec.RecordingS3Key, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", calls.ErrUpstream, err)
	}
	return url, nil
}

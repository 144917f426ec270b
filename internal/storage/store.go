package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Object describes one stored media artifact.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

// ObjectStore is the narrow object-storage contract the media resolver needs:
// put bytes, resolve a key to a URL, presign, list, delete.
type ObjectStore interface {
	// Put uploads body under key and returns the durable URL.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)

	// URL resolves a key to its durable URL without touching the backend.
	URL(key string) string

	// Presign returns a time-limited GET URL for key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)

	// List returns objects under prefix whose key contains contains
	// (empty matches everything).
	List(ctx context.Context, prefix, contains string) ([]Object, error)

	Delete(ctx context.Context, key string) error

	HealthCheck(ctx context.Context) error
}

const (
	recordingPrefix  = "call-recordings/"
	transcriptPrefix = "call-transcripts/"
)

// RecordingKey builds the dated layout for recordings:
// call-recordings/YYYY/MM/DD/{call_id}-audio{ext}.
func RecordingKey(t time.Time, callID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s/%s-audio%s", recordingPrefix, t.UTC().Format("2006/01/02"), callID, ext)
}

// TranscriptKey builds the dated layout for transcripts:
// call-transcripts/YYYY/MM/DD/{call_id}-transcript.txt.
func TranscriptKey(t time.Time, callID string) string {
	return fmt.Sprintf("%s%s/%s-transcript.txt", transcriptPrefix, t.UTC().Format("2006/01/02"), callID)
}

// RecordingPrefix and TranscriptPrefix are the listing roots for per-call
// media scans.
func RecordingPrefix() string  { return recordingPrefix }
func TranscriptPrefix() string { return transcriptPrefix }

// FormatFromKey extracts the artifact format from a key's extension
// ("mp3" for ...-audio.mp3). Returns "" when there is no extension.
func FormatFromKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimPrefix(ext, ".")
}

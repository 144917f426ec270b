package calls

import (
	"strings"
	"time"
)

// CallRecord is the persisted entity for one outbound call attempt.
//
// Lifecycle invariant: status moves one-directionally through
// initiated -> connecting -> completed|failed. A call that never reaches the
// platform may go initiated -> failed directly. completed and failed are
// terminal; no transition leaves them.
//
// Timestamps: StartedAt is set exactly once on entering connecting and is
// never earlier than CreatedAt. EndedAt is set exactly once on entering a
// terminal state and is never earlier than StartedAt. DurationSeconds is
// derived when EndedAt lands (floor to whole seconds, never negative).
//
// Optional text columns use the empty string rather than NULL; JSON output
// omits them when empty.
type CallRecord struct {
	CallID string `json:"call_id" db:"call_id"`

	PhoneNumber string `json:"phone_number" db:"phone_number"`
	CallerName  string `json:"caller_name,omitempty" db:"caller_name"`
	AgentName   string `json:"agent_name,omitempty" db:"agent_name"`
	CompanyName string `json:"company_name,omitempty" db:"company_name"`
	CallerID    string `json:"caller_id,omitempty" db:"caller_id"`

	Subject    string `json:"subject,omitempty" db:"subject"`
	MainPrompt string `json:"main_prompt,omitempty" db:"main_prompt"`

	Status Status `json:"status" db:"status"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	FailureReason   string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Handle returned by the voice platform; used to correlate callbacks.
	RoomName       string `json:"room_name,omitempty" db:"room_name"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	RecordingURL      string `json:"recording_url,omitempty" db:"recording_url"`
	RecordingS3Key    string `json:"recording_s3_key,omitempty" db:"recording_s3_key"`
	RecordingFormat   string `json:"recording_format,omitempty" db:"recording_format"`
	RecordingFileSize int64  `json:"recording_file_size,omitempty" db:"recording_file_size"`
	TranscriptURL     string `json:"transcript_url,omitempty" db:"transcript_url"`
	TranscriptS3Key   string `json:"transcript_s3_key,omitempty" db:"transcript_s3_key"`

	ConversationTranscript string `json:"conversation_transcript,omitempty" db:"conversation_transcript"`
	ConversationSummary    string `json:"conversation_summary,omitempty" db:"conversation_summary"`
}

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusConnecting Status = "connecting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ValidStatus reports whether s is one of the four lifecycle statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusInitiated, StatusConnecting, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s admits no further transitions.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to respects the lifecycle ordering.
// Same-status moves are not transitions; callers treat them as no-ops.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusInitiated:
		return to == StatusConnecting || to == StatusFailed
	case StatusConnecting:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// DialablePhone applies the permissive dialable-number check: at least seven
// digits after stripping spaces, dashes and parentheses, with an optional
// leading +.
func DialablePhone(number string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(number))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if len(cleaned) < 7 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContextPrompt is the conversation context handed to the agent. MainPrompt
// wins when both fields are present; Subject doubles as the context otherwise.
func (c CallRecord) ContextPrompt() string {
	if strings.TrimSpace(c.MainPrompt) != "" {
		return c.MainPrompt
	}
	return c.Subject
}

// DurationBetween computes the derived duration in whole seconds,
// floored and clamped at zero.
func DurationBetween(started, ended time.Time) int {
	if started.IsZero() || ended.Before(started) {
		return 0
	}
	return int(ended.Sub(started) / time.Second)
}

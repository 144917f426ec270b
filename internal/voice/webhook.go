package voice

import (
	"fmt"
	"strings"
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Callback is the lifecycle event the platform posts back after placement:
// answer, completion, failure. Either the call id or the room name must be
// present so the event can be correlated with a record.
type Callback struct {
	CallID     string    `json:"call_id"`
	RoomName   string    `json:"room_name"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason"`
}

// Normalize validates the callback and returns the lifecycle status it maps
// to. Platform-side aliases for answer/hangup are translated into the closed
// status set.
func (cb Callback) Normalize() (calls.Status, error) {
	if strings.TrimSpace(cb.CallID) == "" && strings.TrimSpace(cb.RoomName) == "" {
		return "", fmt.Errorf("%w: callback needs call_id or room_name", calls.ErrValidation)
	}

	var status calls.Status
	switch strings.ToLower(strings.TrimSpace(cb.Status)) {
	case "connecting", "answered", "active":
		status = calls.StatusConnecting
	case "completed", "hangup", "ended":
		status = calls.StatusCompleted
	case "failed", "error", "busy", "no_answer", "timeout":
		status = calls.StatusFailed
	case "initiated", "dialing":
		status = calls.StatusInitiated
	default:
		return "", fmt.Errorf("%w: unknown callback status %q", calls.ErrValidation, cb.Status)
	}
	return status, nil
}

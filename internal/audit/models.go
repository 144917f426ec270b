package audit

import (
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Event is one applied lifecycle transition, kept as an append-only history
// per call. Events are never updated or deleted; retention follows the call
// record they belong to.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	From calls.Status `json:"from_status" db:"from_status"`
	To   calls.Status `json:"to_status" db:"to_status"`

	// Source names the actor that drove the transition: api, webhook,
	// placement or sweeper.
	Source string `json:"source,omitempty" db:"source"`
	Reason string `json:"reason,omitempty" db:"reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Event is one lifecycle change reported by the voice platform. Events are
// appended to a Redis Stream and consumed in arrival order, so events for the
// same call are always applied in the order the platform delivered them.
type Event struct {
	CallID     string
	RoomName   string
	Status     calls.Status
	OccurredAt time.Time
	Reason     string
}

const (
	fieldCallID     = "call_id"
	fieldRoomName   = "room_name"
	fieldStatus     = "status"
	fieldOccurredAt = "occurred_at"
	fieldReason     = "reason"
)

// Queue appends lifecycle events to the stream.
type Queue struct {
	rdb    *redis.Client
	stream string
}

func NewQueue(rdb *redis.Client, stream string) *Queue {
	return &Queue{rdb: rdb, stream: stream}
}

func (q *Queue) Publish(ctx context.Context, ev Event) error {
	if ev.CallID == "" && ev.RoomName == "" {
		return fmt.Errorf("%w: event needs call_id or room_name", calls.ErrValidation)
	}
	if !calls.ValidStatus(ev.Status) {
		return fmt.Errorf("%w: unknown status %q", calls.ErrValidation, ev.Status)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			fieldCallID:     ev.CallID,
			fieldRoomName:   ev.RoomName,
			fieldStatus:     string(ev.Status),
			fieldOccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
			fieldReason:     ev.Reason,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: enqueue lifecycle event: %v", calls.ErrUpstream, err)
	}
	return nil
}

func decodeEvent(values map[string]any) (Event, error) {
	str := func(field string) string {
		if v, ok := values[field].(string); ok {
			return v
		}
		return ""
	}

	ev := Event{
		CallID:   str(fieldCallID),
		RoomName: str(fieldRoomName),
		Status:   calls.Status(str(fieldStatus)),
		Reason:   str(fieldReason),
	}
	if ev.CallID == "" && ev.RoomName == "" {
		return Event{}, fmt.Errorf("event without call_id or room_name")
	}
	if !calls.ValidStatus(ev.Status) {
		return Event{}, fmt.Errorf("event with unknown status %q", str(fieldStatus))
	}
	if raw := str(fieldOccurredAt); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Event{}, fmt.Errorf("event with bad occurred_at %q: %w", raw, err)
		}
		ev.OccurredAt = at
	}
	return ev, nil
}

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/husainf4l/ravoxai/internal/calls"
)

type fakeApplier struct {
	byRoom      map[string]calls.CallRecord
	transitions []calls.TransitionRequest
	transIDs    []string
	err         error
}

func (f *fakeApplier) Transition(_ context.Context, callID string, req calls.TransitionRequest) (calls.CallRecord, error) {
	if f.err != nil {
		return calls.CallRecord{}, f.err
	}
	f.transIDs = append(f.transIDs, callID)
	f.transitions = append(f.transitions, req)
	return calls.CallRecord{CallID: callID, Status: req.Status}, nil
}

func (f *fakeApplier) GetByRoomName(_ context.Context, roomName string) (calls.CallRecord, error) {
	rec, ok := f.byRoom[roomName]
	if !ok {
		return calls.CallRecord{}, calls.ErrNotFound
	}
	return rec, nil
}

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	ev, err := decodeEvent(map[string]any{
		"call_id":     "call-1",
		"room_name":   "agent-call-call-1",
		"status":      "completed",
		"occurred_at": at.Format(time.RFC3339Nano),
		"reason":      "",
	})
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.CallID != "call-1" || ev.Status != calls.StatusCompleted {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at = %v, want %v", ev.OccurredAt, at)
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]any
	}{
		{"no identity", map[string]any{"status": "completed"}},
		{"unknown status", map[string]any{"call_id": "c", "status": "ringing"}},
		{"bad timestamp", map[string]any{"call_id": "c", "status": "failed", "occurred_at": "yesterday"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeEvent(tc.values); err == nil {
				t.Fatalf("decodeEvent(%v) accepted malformed event", tc.values)
			}
		})
	}
}

func TestApplyByCallID(t *testing.T) {
	app := &fakeApplier{}
	at := time.Now().UTC()

	err := Apply(context.Background(), app, Event{
		CallID:     "call-9",
		Status:     calls.StatusConnecting,
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(app.transitions) != 1 {
		t.Fatalf("got %d transitions, want 1", len(app.transitions))
	}
	if app.transIDs[0] != "call-9" {
		t.Fatalf("transitioned call %q, want call-9", app.transIDs[0])
	}
	req := app.transitions[0]
	if req.Status != calls.StatusConnecting || !req.At.Equal(at) || req.Source != calls.SourceWebhook {
		t.Fatalf("unexpected transition request: %+v", req)
	}
}

func TestApplyResolvesRoomName(t *testing.T) {
	app := &fakeApplier{byRoom: map[string]calls.CallRecord{
		"agent-call-abc12345": {CallID: "abc12345-0000", Status: calls.StatusConnecting},
	}}

	err := Apply(context.Background(), app, Event{
		RoomName: "agent-call-abc12345",
		Status:   calls.StatusCompleted,
		Reason:   "hangup",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if app.transIDs[0] != "abc12345-0000" {
		t.Fatalf("transitioned call %q, want abc12345-0000", app.transIDs[0])
	}
	if app.transitions[0].Reason != "hangup" {
		t.Fatalf("reason = %q, want hangup", app.transitions[0].Reason)
	}
}

func TestApplyUnknownRoom(t *testing.T) {
	app := &fakeApplier{byRoom: map[string]calls.CallRecord{}}

	err := Apply(context.Background(), app, Event{
		RoomName: "agent-call-missing",
		Status:   calls.StatusFailed,
	})
	if !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(app.transitions) != 0 {
		t.Fatalf("transition applied for unknown room")
	}
}

func TestApplyPropagatesTransitionError(t *testing.T) {
	app := &fakeApplier{err: calls.ErrInvalidTransition}

	err := Apply(context.Background(), app, Event{CallID: "c", Status: calls.StatusConnecting})
	if !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestHandleAcksOnlyUndeliverableFailures(t *testing.T) {
	values := map[string]any{"call_id": "c", "status": "completed"}

	cases := []struct {
		name   string
		app    *fakeApplier
		values map[string]any
		ack    bool
	}{
		{"applied", &fakeApplier{}, values, true},
		{"malformed", &fakeApplier{}, map[string]any{"status": "completed"}, true},
		{"unknown call", &fakeApplier{err: calls.ErrNotFound}, values, true},
		{"out of order", &fakeApplier{err: calls.ErrInvalidTransition}, values, true},
		{"store down", &fakeApplier{err: errors.New("connection refused")}, values, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Consumer{applier: tc.app, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
			got := c.handle(context.Background(), redis.XMessage{ID: "1-0", Values: tc.values})
			if got != tc.ack {
				t.Fatalf("handle ack = %v, want %v", got, tc.ack)
			}
		})
	}
}

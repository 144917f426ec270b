package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/husainf4l/ravoxai/internal/calls"
)

func TestAppendValidates(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{To: calls.StatusFailed}); err == nil {
		t.Fatalf("event without call_id accepted")
	}
	if err := svc.Append(context.Background(), Event{CallID: "c", To: "ringing"}); err == nil {
		t.Fatalf("event with unknown status accepted")
	}
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	err := svc.Append(context.Background(), Event{
		CallID: "call-1",
		From:   calls.StatusInitiated,
		To:     calls.StatusConnecting,
		Source: calls.SourcePlacement,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].ID == "" {
		t.Fatalf("event ID not assigned")
	}
	if !evs[0].CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", evs[0].CreatedAt, now)
	}
}

func TestListByCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	steps := []struct {
		callID   string
		from, to calls.Status
	}{
		{"call-1", calls.StatusInitiated, calls.StatusConnecting},
		{"call-2", calls.StatusInitiated, calls.StatusFailed},
		{"call-1", calls.StatusConnecting, calls.StatusCompleted},
	}
	for _, s := range steps {
		if err := svc.Append(ctx, Event{CallID: s.callID, From: s.from, To: s.to}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	evs, err := svc.ListByCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("ListByCall: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].To != calls.StatusConnecting || evs[1].To != calls.StatusCompleted {
		t.Fatalf("events out of order: %+v", evs)
	}
}

func TestRecorderAppendsTransitions(t *testing.T) {
	repo := NewMemoryRepo()
	rec := NewRecorder(NewService(repo), slog.New(slog.NewTextHandler(io.Discard, nil)))
	at := time.Now().UTC()

	rec.RecordTransition(context.Background(), calls.TransitionEvent{
		CallID: "call-1",
		From:   calls.StatusConnecting,
		To:     calls.StatusFailed,
		Source: calls.SourceWebhook,
		Reason: "busy",
		At:     at,
	})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	e := evs[0]
	if e.CallID != "call-1" || e.To != calls.StatusFailed || e.Reason != "busy" || e.Source != calls.SourceWebhook {
		t.Fatalf("unexpected event: %+v", e)
	}
	if !e.CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", e.CreatedAt, at)
	}
}

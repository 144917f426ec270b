package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Repository is the persistence contract for transition events.
// It is append-only: no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service records and serves the transition history of calls.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if !calls.ValidStatus(e.To) {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// ListByCall returns the transition history of one call, oldest first.
func (s *Service) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	if callID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByCall(ctx, callID)
}

// Recorder adapts the Service to the lifecycle controller's recorder hook.
// Recording is best-effort: a failed append is logged and never blocks the
// transition that triggered it.
type Recorder struct {
	svc *Service
	log *slog.Logger
}

func NewRecorder(svc *Service, log *slog.Logger) *Recorder {
	return &Recorder{svc: svc, log: log}
}

func (r *Recorder) RecordTransition(ctx context.Context, ev calls.TransitionEvent) {
	err := r.svc.Append(ctx, Event{
		CallID:    ev.CallID,
		From:      ev.From,
		To:        ev.To,
		Source:    ev.Source,
		Reason:    ev.Reason,
		CreatedAt: ev.At,
	})
	if err != nil {
		r.log.Warn("transition history append failed", "call_id", ev.CallID, "to", ev.To, "err", err)
	}
}

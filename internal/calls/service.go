package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/husainf4l/ravoxai/pkg/logger"
)

// Transition sources, recorded alongside each applied lifecycle change.
const (
	SourceAPI       = "api"
	SourceWebhook   = "webhook"
	SourcePlacement = "placement"
	SourceSweeper   = "sweeper"
)

// PlacementRequest is handed to the voice platform when a call is dispatched.
type PlacementRequest struct {
	CallID      string
	To          string
	AgentName   string
	CallerName  string
	CompanyName string
	CallerID    string
	Subject     string
	MainPrompt  string
}

// Placement is the platform handle for a dispatched call.
type Placement struct {
	RoomName       string
	ProviderCallID string
}

// Placer requests call placement from the external voice platform.
type Placer interface {
	PlaceCall(ctx context.Context, req PlacementRequest) (Placement, error)
}

// Slots bounds concurrent placements. Implemented by PlacementLimiter.
type Slots interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// TransitionEvent describes one applied lifecycle change.
type TransitionEvent struct {
	CallID string
	From   Status
	To     Status
	Source string
	Reason string
	At     time.Time
}

// TransitionRecorder receives applied transitions. Recording is best-effort;
// failures must not block the lifecycle.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, ev TransitionEvent)
}

// Defaults fill optional display fields when callers omit them.
type Defaults struct {
	AgentName   string
	CompanyName string
	CallerID    string
}

// ServiceOptions carries the optional collaborators of the controller.
type ServiceOptions struct {
	Placer          Placer
	Slots           Slots
	Recorder        TransitionRecorder
	Defaults        Defaults
	DispatchTimeout time.Duration
}

// Service is the call lifecycle controller: it validates create requests,
// persists records, dispatches placement to the voice platform and applies
// monotonic status transitions.
type Service struct {
	repo            Repository
	placer          Placer
	slots           Slots
	recorder        TransitionRecorder
	defaults        Defaults
	dispatchTimeout time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time

	placements sync.WaitGroup
}

func NewService(repo Repository, opts ServiceOptions) *Service {
	timeout := opts.DispatchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		repo:            repo,
		placer:          opts.Placer,
		slots:           opts.Slots,
		recorder:        opts.Recorder,
		defaults:        opts.Defaults,
		dispatchTimeout: timeout,
		clock:           time.Now,
	}
}

type CreateRequest struct {
	PhoneNumber string `json:"phone_number"`
	CallerName  string `json:"caller_name"`
	AgentName   string `json:"agent_name"`
	CompanyName string `json:"company_name"`
	CallerID    string `json:"caller_id"`
	Subject     string `json:"subject"`
	MainPrompt  string `json:"main_prompt"`
}

type TransitionRequest struct {
	Status Status
	At     time.Time
	Reason string
	Source string
}

// Create validates the request, persists a record with status initiated and
// dispatches placement on a background goroutine. It returns as soon as the
// record is durable; placement is not awaited.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CallRecord, error) {
	if !DialablePhone(req.PhoneNumber) {
		return CallRecord{}, fmt.Errorf("%w: phone_number must be a dialable number", ErrValidation)
	}
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.MainPrompt) == "" {
		return CallRecord{}, fmt.Errorf("%w: subject or main_prompt is required", ErrValidation)
	}

	now := s.clock().UTC()
	rec := CallRecord{
		CallID:      uuid.NewString(),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		CallerName:  strings.TrimSpace(req.CallerName),
		AgentName:   fallback(req.AgentName, s.defaults.AgentName),
		CompanyName: fallback(req.CompanyName, s.defaults.CompanyName),
		CallerID:    fallback(req.CallerID, s.defaults.CallerID),
		Subject:     strings.TrimSpace(req.Subject),
		MainPrompt:  req.MainPrompt,
		Status:      StatusInitiated,
		CreatedAt:   now,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return CallRecord{}, err
	}

	if s.placer != nil {
		s.placements.Add(1)
		// Detached from the request context: the create response does not
		// wait for the platform.
		go s.place(context.WithoutCancel(ctx), rec)
	}
	return rec, nil
}

// place hands the call to the voice platform. Every outcome lands on the
// record: success transitions to connecting, any failure to failed with the
// captured reason. A record is never left stuck in initiated by this path.
func (s *Service) place(ctx context.Context, rec CallRecord) {
	defer s.placements.Done()
	log := logger.From(ctx).With("call_id", rec.CallID)

	if s.slots != nil {
		ok, err := s.slots.Acquire(ctx)
		if err != nil {
			s.failPlacement(ctx, rec.CallID, fmt.Sprintf("placement slot acquire failed: %v", err))
			return
		}
		if !ok {
			s.failPlacement(ctx, rec.CallID, "placement capacity exhausted")
			return
		}
		defer func() {
			if err := s.slots.Release(ctx); err != nil {
				log.Warn("placement slot release failed", "err", err)
			}
		}()
	}

	pctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	placement, err := s.placer.PlaceCall(pctx, PlacementRequest{
		CallID:      rec.CallID,
		To:          rec.PhoneNumber,
		AgentName:   rec.AgentName,
		CallerName:  rec.CallerName,
		CompanyName: rec.CompanyName,
		CallerID:    rec.CallerID,
		Subject:     rec.Subject,
		MainPrompt:  rec.ContextPrompt(),
	})
	if err != nil {
		s.failPlacement(ctx, rec.CallID, fmt.Sprintf("placement rejected: %v", err))
		return
	}

	_, err = s.transition(ctx, rec.CallID, TransitionRequest{
		Status: StatusConnecting,
		Source: SourcePlacement,
	}, &placement.RoomName, &placement.ProviderCallID)
	if err != nil {
		// A callback may already have moved the record past connecting;
		// that is not a failure of placement.
		log.Warn("post-placement transition skipped", "err", err)
		return
	}
	log.Info("call placed", "room", placement.RoomName)
}

func (s *Service) failPlacement(ctx context.Context, callID, reason string) {
	_, err := s.transition(ctx, callID, TransitionRequest{
		Status: StatusFailed,
		Reason: reason,
		Source: SourcePlacement,
	}, nil, nil)
	if err != nil {
		logger.From(ctx).Error("failed to record placement failure", "call_id", callID, "err", err)
	}
}

// Transition applies a lifecycle change. A same-status request is a no-op
// success; an edge outside the lifecycle ordering returns ErrInvalidTransition
// without mutating state. Concurrent transitions for the same call_id are
// serialized by the store's compare-and-swap.
func (s *Service) Transition(ctx context.Context, callID string, req TransitionRequest) (CallRecord, error) {
	return s.transition(ctx, callID, req, nil, nil)
}

func (s *Service) transition(ctx context.Context, callID string, req TransitionRequest, roomName, providerCallID *string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, fmt.Errorf("%w: call_id is required", ErrValidation)
	}
	if !ValidStatus(req.Status) {
		return CallRecord{}, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}

	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		rec, err := s.repo.Get(ctx, callID)
		if err != nil {
			return CallRecord{}, err
		}
		if rec.Status == req.Status {
			return rec, nil
		}
		if !CanTransition(rec.Status, req.Status) {
			return CallRecord{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, req.Status)
		}

		upd := s.buildUpdate(rec, req)
		upd.RoomName = roomName
		upd.ProviderCallID = providerCallID

		out, err := s.repo.CompareAndSwapStatus(ctx, callID, rec.Status, upd)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return CallRecord{}, err
		}
		s.record(ctx, TransitionEvent{
			CallID: callID,
			From:   rec.Status,
			To:     out.Status,
			Source: fallback(req.Source, SourceAPI),
			Reason: req.Reason,
			At:     s.clock().UTC(),
		})
		return out, nil
	}
	return CallRecord{}, fmt.Errorf("transition for call %s lost the compare-and-swap %d times", callID, maxRetries)
}

func (s *Service) buildUpdate(rec CallRecord, req TransitionRequest) StatusUpdate {
	at := req.At
	if at.IsZero() {
		at = s.clock()
	}
	at = at.UTC()

	upd := StatusUpdate{Status: req.Status}

	if req.Status == StatusConnecting {
		started := at
		if started.Before(rec.CreatedAt) {
			started = rec.CreatedAt
		}
		upd.StartedAt = &started
	}

	if Terminal(req.Status) {
		ended := at
		floor := rec.CreatedAt
		if rec.StartedAt != nil {
			floor = *rec.StartedAt
		}
		if ended.Before(floor) {
			ended = floor
		}
		upd.EndedAt = &ended
		if rec.StartedAt != nil {
			dur := DurationBetween(*rec.StartedAt, ended)
			upd.DurationSeconds = &dur
		}
	}

	if req.Status == StatusFailed && req.Reason != "" {
		reason := req.Reason
		upd.FailureReason = &reason
	}
	return upd
}

func (s *Service) record(ctx context.Context, ev TransitionEvent) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordTransition(ctx, ev)
}

func (s *Service) Get(ctx context.Context, callID string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, fmt.Errorf("%w: call_id is required", ErrValidation)
	}
	return s.repo.Get(ctx, callID)
}

func (s *Service) GetByRoomName(ctx context.Context, roomName string) (CallRecord, error) {
	return s.repo.GetByRoomName(ctx, roomName)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	return s.repo.List(ctx, f)
}

// RecordConversation stores post-call transcript and summary text delivered
// asynchronously after completion.
func (s *Service) RecordConversation(ctx context.Context, callID string, transcript, summary *string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, fmt.Errorf("%w: call_id is required", ErrValidation)
	}
	if transcript == nil && summary == nil {
		return CallRecord{}, fmt.Errorf("%w: transcript or summary is required", ErrValidation)
	}
	return s.repo.UpdateConversation(ctx, callID, transcript, summary)
}

// WaitPlacements blocks until in-flight placement goroutines finish.
// Called during shutdown.
func (s *Service) WaitPlacements() {
	s.placements.Wait()
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/config"
	"github.com/husainf4l/ravoxai/internal/storage"
	"github.com/husainf4l/ravoxai/internal/voice"
	"github.com/husainf4l/ravoxai/pkg/utils"
)

const sweepBatch = 100

// Transitioner drives lifecycle transitions for stuck calls. Implemented by
// calls.Service so sweeps go through the same state machine as every other
// caller.
type Transitioner interface {
	Transition(ctx context.Context, callID string, req calls.TransitionRequest) (calls.CallRecord, error)
}

// RunResult records the outcome of the latest run of a task.
type RunResult struct {
	At       time.Time `json:"at"`
	Affected int       `json:"affected"`
	Error    string    `json:"error,omitempty"`
}

// Health reports the reachability of each backing service.
type Health struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
	Storage  string `json:"storage"`
	Voice    string `json:"voice"`
}

func (h Health) OK() bool {
	return h.Database == "ok" && h.Redis == "ok" && h.Storage == "ok" && h.Voice == "ok"
}

// Service runs the background sweeps: failing calls stuck mid-lifecycle,
// purging old terminal records and probing backing services.
type Service struct {
	repo  calls.Repository
	trans Transitioner
	db    *sql.DB
	rdb   *redis.Client
	store storage.ObjectStore
	voice voice.Provider
	cfg   config.MaintenanceConfig
	log   *slog.Logger
	clock func() time.Time

	cron *cron.Cron

	mu       sync.Mutex
	lastRuns map[string]RunResult
}

func NewService(repo calls.Repository, trans Transitioner, db *sql.DB, rdb *redis.Client, store storage.ObjectStore, provider voice.Provider, cfg config.MaintenanceConfig, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		trans:    trans,
		db:       db,
		rdb:      rdb,
		store:    store,
		voice:    provider,
		cfg:      cfg,
		log:      log,
		clock:    time.Now,
		lastRuns: make(map[string]RunResult),
	}
}

// SweepStale fails calls that never left initiated or connecting within their
// timeout. Each record goes through the normal transition path, so started/
// ended timestamps and lifecycle events stay consistent. Returns how many
// records were failed.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	now := s.clock()
	swept := 0
	var firstErr error

	for _, probe := range []struct {
		status calls.Status
		maxAge time.Duration
	}{
		{calls.StatusConnecting, s.cfg.ConnectingTimeout},
		{calls.StatusInitiated, s.cfg.InitiatedTimeout},
	} {
		stuck, err := s.repo.ListStuck(ctx, probe.status, now.Add(-probe.maxAge), sweepBatch)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("list stuck %s calls: %w", probe.status, err)
			}
			continue
		}
		for _, rec := range stuck {
			_, err := s.trans.Transition(ctx, rec.CallID, calls.TransitionRequest{
				Status: calls.StatusFailed,
				At:     now,
				Reason: "timeout",
				Source: calls.SourceSweeper,
			})
			if err != nil {
				// Another writer may have moved the call on; that is fine.
				s.log.Warn("stale sweep transition failed", "call_id", rec.CallID, "status", rec.Status, "err", err)
				continue
			}
			s.log.Info("failed stale call", "call_id", rec.CallID, "was", rec.Status)
			swept++
		}
	}

	s.note("sweep_stale", swept, firstErr)
	return swept, firstErr
}

// Cleanup deletes old terminal records past their retention window, along
// with their recording and transcript objects. Returns how many records were
// removed.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := s.clock()
	removed := int64(0)
	var firstErr error

	for _, purge := range []struct {
		status    calls.Status
		retention time.Duration
	}{
		{calls.StatusFailed, s.cfg.FailedRetention},
		{calls.StatusCompleted, s.cfg.CompletedRetention},
	} {
		n, keys, err := s.repo.DeleteTerminalBefore(ctx, purge.status, now.Add(-purge.retention))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("purge %s calls: %w", purge.status, err)
			}
			continue
		}
		for _, key := range keys {
			// The record is already gone; a leaked object only costs
			// storage, so log and move on.
			if err := s.store.Delete(ctx, key); err != nil {
				s.log.Warn("purge media object failed", "key", key, "err", err)
			}
		}
		if n > 0 {
			s.log.Info("purged terminal calls", "status", purge.status, "count", n, "objects", len(keys))
		}
		removed += n
	}

	s.note("cleanup", int(removed), firstErr)
	return removed, firstErr
}

// HealthCheck probes the database, Redis, object storage and the voice
// platform.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{Database: "ok", Redis: "ok", Storage: "ok", Voice: "ok"}

	if err := utils.PingDB(ctx, s.db, 3*time.Second); err != nil {
		h.Database = err.Error()
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		h.Redis = err.Error()
	}
	if err := s.store.HealthCheck(ctx); err != nil {
		h.Storage = err.Error()
	}
	if err := s.voice.HealthCheck(ctx); err != nil {
		h.Voice = err.Error()
	}

	if !h.OK() {
		s.log.Warn("health check degraded",
			"database", h.Database, "redis", h.Redis, "storage", h.Storage, "voice", h.Voice)
	}
	s.note("health_check", 0, nil)
	return h
}

// Status returns the latest result per task.
func (s *Service) Status() map[string]RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RunResult, len(s.lastRuns))
	for k, v := range s.lastRuns {
		out[k] = v
	}
	return out
}

// Start schedules the periodic tasks. Stop must be called on shutdown.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New()

	jobs := []struct {
		every time.Duration
		run   func()
	}{
		{s.cfg.SweepEvery, func() { s.SweepStale(ctx) }},
		{s.cfg.CleanupEvery, func() { s.Cleanup(ctx) }},
		{s.cfg.HealthEvery, func() { s.HealthCheck(ctx) }},
	}
	for _, job := range jobs {
		if job.every <= 0 {
			continue
		}
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", job.every), job.run); err != nil {
			return fmt.Errorf("schedule maintenance job: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.log.Info("maintenance scheduler started",
		"sweep_every", s.cfg.SweepEvery, "cleanup_every", s.cfg.CleanupEvery, "health_every", s.cfg.HealthEvery)
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Service) note(task string, affected int, err error) {
	res := RunResult{At: s.clock(), Affected: affected}
	if err != nil {
		res.Error = err.Error()
	}
	s.mu.Lock()
	s.lastRuns[task] = res
	s.mu.Unlock()
}

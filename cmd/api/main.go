package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/husainf4l/ravoxai/internal/audit"
	"github.com/husainf4l/ravoxai/internal/auth"
	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/config"
	"github.com/husainf4l/ravoxai/internal/events"
	"github.com/husainf4l/ravoxai/internal/httpapi"
	"github.com/husainf4l/ravoxai/internal/maintenance"
	"github.com/husainf4l/ravoxai/internal/media"
	"github.com/husainf4l/ravoxai/internal/migration"
	"github.com/husainf4l/ravoxai/internal/reporting"
	"github.com/husainf4l/ravoxai/internal/storage"
	"github.com/husainf4l/ravoxai/internal/voice"
	"github.com/husainf4l/ravoxai/pkg/logger"
	"github.com/husainf4l/ravoxai/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PoolSettings{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migration.Up(db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisSettings{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := storage.NewS3Store(rootCtx, cfg.Storage)
	if err != nil {
		log.Error("object storage init failed", "err", err)
		os.Exit(1)
	}

	provider, err := voice.NewLiveKitProvider(cfg.Voice)
	if err != nil {
		log.Error("voice platform init failed", "err", err)
		os.Exit(1)
	}

	callRepo := calls.NewPostgresRepo(db)
	historyRepo := audit.NewPostgresRepo(db)
	history := audit.NewService(historyRepo)

	callService := calls.NewService(callRepo, calls.ServiceOptions{
		Placer:   provider,
		Slots:    calls.NewPlacementLimiter(rdb, cfg.Placement.MaxActive, cfg.Placement.SlotTTL),
		Recorder: audit.NewRecorder(history, log),
		Defaults: calls.Defaults{
			AgentName:   cfg.Defaults.AgentName,
			CompanyName: cfg.Defaults.CompanyName,
			CallerID:    cfg.Defaults.CallerID,
		},
		DispatchTimeout: cfg.Voice.DispatchTimeout,
	})

	resolver := media.NewResolver(callRepo, store)
	reports := reporting.NewService(reporting.NewPostgresRepo(db))
	sweeper := maintenance.NewService(callRepo, callService, db, rdb, store, provider, cfg.Maintenance, log)

	consumer := events.NewConsumer(rdb, cfg.Events.Stream, cfg.Events.Group, cfg.Events.Consumer, callService, log)
	consumerCtx, stopConsumer := context.WithCancel(rootCtx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("lifecycle consumer stopped", "err", err)
		}
	}()

	if err := sweeper.Start(rootCtx); err != nil {
		log.Error("maintenance scheduler init failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Calls:           callService,
		Media:           resolver,
		Reports:         reports,
		History:         history,
		Maintenance:     sweeper,
		Events:          events.NewQueue(rdb, cfg.Events.Stream),
		Auth:            authManager,
		BootstrapSecret: cfg.Auth.BootstrapSecret,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("lifecycle consumer did not stop in time")
	}

	sweeper.Stop()

	// In-flight placements already run on detached contexts; wait for their
	// outcomes to land on the records before closing the pools.
	callService.WaitPlacements()

	log.Info("shutdown complete")
}

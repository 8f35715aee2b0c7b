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

	"calltrack/internal/audit"
	"calltrack/internal/auth"
	"calltrack/internal/calllog"
	"calltrack/internal/calls"
	"calltrack/internal/config"
	"calltrack/internal/leads"
	"calltrack/internal/metrics"
	"calltrack/internal/recompute"
	"calltrack/internal/reporting"
	"calltrack/internal/store"
	"calltrack/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "api")
	slog.SetDefault(log)
	for _, w := range cfg.Warnings() {
		log.Warn("degraded configuration", "warning", w)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(rootCtx, store.OptionsFrom(cfg))
	if err != nil {
		log.Error("store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	pm := metrics.New(nil)
	journal := audit.NewService(st)
	stats := reporting.NewService(st)

	settings := settingsFrom(cfg.Recompute)
	var dispatcher recompute.Dispatcher
	if redisOpts := store.RedisOptions(cfg); redisOpts.Addr != "" {
		client := asynq.NewClient(redisOpts.AsynqOpt())
		defer client.Close()
		dispatcher = recompute.NewAsynqDispatcher(client, cfg.Recompute.MaxRetry)
	}
	if reason := settings.DisabledReason(); reason != "" {
		log.Warn("recompute scheduling disabled", "reason", reason)
	}
	scheduler := recompute.NewScheduler(st, dispatcher, settings, journal, pm, log)
	callLog := calllog.NewService(st, scheduler, cfg.Leads.PhoneRegion, log)

	worker := recompute.NewWorker(stats, cfg.Recompute.WorkerSecret, journal, pm, log)
	if cfg.Recompute.ServiceAccount != "" && cfg.Recompute.WorkerURL != "" {
		audience := cfg.Recompute.WorkerURL
		worker.WithBearerVerifier(func(token string) error {
			_, err := authManager.VerifyServiceToken(token, audience, time.Now())
			return err
		})
	}

	resolver := leads.NewResolver(log)
	go func() {
		load := func(ctx context.Context) ([]calls.Call, error) {
			cs, err := st.ListAllCalls(ctx)
			if err == nil {
				pm.IncResolverRebuild()
			}
			return cs, err
		}
		if err := resolver.Watch(rootCtx, st, load); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("leads resolver stopped", "err", err)
		}
	}()

	// Gin router
	r := gin.New()
	r.Use(logger.Middleware(log), logger.Recovery())

	registerRoutes(r, routeDeps{
		cfg:     cfg,
		auth:    authManager,
		store:   st,
		calls:   callLog,
		leads:   resolver,
		journal: journal,
		worker:  worker,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A worker batch recomputes tenants sequentially.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Driver)
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
}

func settingsFrom(c config.RecomputeConfig) recompute.Settings {
	return recompute.Settings{
		Project:        c.Project,
		Location:       c.Location,
		Queue:          c.Queue,
		WorkerURL:      c.WorkerURL,
		ServiceAccount: c.ServiceAccount,
		Secret:         c.WorkerSecret,
		Delay:          c.Delay,
		MaxRetry:       c.MaxRetry,
	}
}

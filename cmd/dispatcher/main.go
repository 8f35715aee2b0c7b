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

	"calltrack/internal/auth"
	"calltrack/internal/config"
	"calltrack/internal/metrics"
	"calltrack/internal/recompute"
	"calltrack/internal/store"
	"calltrack/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dispatcher delivers scheduled recompute requests to the worker endpoint.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "dispatcher")
	slog.SetDefault(log)

	redisOpts := store.RedisOptions(cfg)
	if redisOpts.Addr == "" {
		log.Error("REDIS_HOST is required for the dispatch queue")
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pm := metrics.New(nil)
	deliverer := recompute.NewDeliverer(nil, authManager, pm, log)
	queue := recompute.QueuePath(cfg.Recompute.Project, cfg.Recompute.Location, cfg.Recompute.Queue)
	server := recompute.NewServer(redisOpts.AsynqOpt(), queue, cfg.Recompute.Concurrency, deliverer, log)

	r := gin.New()
	r.Use(logger.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: cfg.HTTPAddr(), Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()

	log.Info("dispatcher running", "queue", queue, "concurrency", cfg.Recompute.Concurrency)
	if err := server.Run(rootCtx); err != nil {
		log.Error("dispatcher failed", "err", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("dispatcher stopped")
}

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"calltrack/internal/audit"
	"calltrack/internal/config"
	"calltrack/internal/metrics"
	"calltrack/internal/recompute"
	"calltrack/internal/reporting"
	"calltrack/internal/store"
	"calltrack/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// App is what every command runs against.
type App struct {
	Store   store.Store
	Journal *audit.Service
	Log     *slog.Logger
	Out     io.Writer
	Metrics *metrics.Pipeline
}

// Worker returns the recompute worker used by the recompute and backfill commands.
func (a *App) Worker() *recompute.Worker {
	return recompute.NewWorker(reporting.NewService(a.Store), "", a.Journal, a.Metrics, a.Log).WithSource("cli")
}

// Opener builds the App once flags are parsed.
type Opener func(ctx context.Context) (*App, error)

// OpenFromEnv loads .env and the tooling configuration, then connects the configured store.
func OpenFromEnv(ctx context.Context) (*App, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadTooling()
	if err != nil {
		return nil, err
	}
	log := logger.NewText(os.Stderr, cfg.App.Env, "calltrackctl")

	st, err := store.Open(ctx, store.OptionsFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return &App{
		Store:   st,
		Journal: audit.NewService(st),
		Log:     log,
		Out:     os.Stdout,
		// Private registry: the CLI exposes no metrics endpoint.
		Metrics: metrics.New(prometheus.NewRegistry()),
	}, nil
}

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FMPull/pkg/config"
	xhttp "FMPull/pkg/http"
	"FMPull/pkg/logger"
)

// Runner is a background component with an explicit lifecycle, such as a
// queue consumer.
type Runner interface {
	Start() error
	Stop(ctx context.Context) error
}

// App is the long-lived worker process: queue consumers executing fetch
// jobs plus the HTTP API that triggers pipeline runs.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	runners    []Runner
	httpServer *xhttp.Server
}

// New creates a new App. Nil runners are skipped.
func New(cfg *config.Config, lgr *logger.Logger, httpServer *xhttp.Server, runners ...Runner) *App {
	a := &App{cfg: cfg, logger: lgr, httpServer: httpServer}
	for _, r := range runners {
		if r != nil {
			a.runners = append(a.runners, r)
		}
	}
	return a
}

// Run starts every component and blocks until ctx is done or a SIGINT or
// SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := 0
	for _, r := range a.runners {
		if err := r.Start(); err != nil {
			a.shutdown(a.runners[:started])
			return fmt.Errorf("start runner: %w", err)
		}
		started++
	}
	a.logger.Info("queue consumers started", logger.Int("count", started))

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.shutdown(a.runners)
			return fmt.Errorf("start http server: %w", err)
		}
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown(a.runners)
	return nil
}

func (a *App) shutdown(runners []Runner) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", logger.Error(err))
		}
	}

	for i := len(runners) - 1; i >= 0; i-- {
		if err := runners[i].Stop(ctx); err != nil {
			a.logger.Warn("runner stop error", logger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

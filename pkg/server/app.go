package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeReview/pkg/config"
	"TradeReview/pkg/cron"
	xhttp "TradeReview/pkg/http"
	pkgkafka "TradeReview/pkg/kafka"
	applogger "TradeReview/pkg/logger"
	"TradeReview/pkg/queue"
)

// Job is a periodic task run by the scheduler.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Components are the long-running parts the App starts and stops. Consumer may be nil.
type Components struct {
	Handler  xhttp.Handler
	Checks   map[string]xhttp.HealthCheck
	Queue    queue.Queue
	Consumer *pkgkafka.Consumer
	Handlers []pkgkafka.MessageHandler
	Jobs     []Job
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	c          Components
	httpServer *xhttp.Server
	cron       *cron.Runner
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, lgr *applogger.Logger, c Components) *App {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
	}
	for name, check := range c.Checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	return &App{
		cfg:        cfg,
		log:        lgr,
		c:          c,
		httpServer: xhttp.NewServer(c.Handler, lgr, opts...),
		cron:       cron.New(lgr),
	}
}

// Server exposes the HTTP server, mainly for tests.
func (a *App) Server() *xhttp.Server { return a.httpServer }

// Start launches every component without blocking.
func (a *App) Start() error {
	if err := a.c.Queue.Start(); err != nil {
		return err
	}
	a.log.Info("dispatch queue started", applogger.Int("workers", a.cfg.Queue.Workers))

	if a.c.Consumer != nil && len(a.c.Handlers) > 0 {
		for _, h := range a.c.Handlers {
			a.c.Consumer.RegisterHandler(h)
		}
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.Int("topics", len(a.c.Handlers)))
	}

	for _, j := range a.c.Jobs {
		if _, err := a.cron.Add(j.Name, j.Spec, j.Run); err != nil {
			return err
		}
	}
	a.cron.Start()

	return a.httpServer.Start()
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		a.log.Error("start failed", applogger.Error(err))
		a.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	a.Shutdown(context.Background())
	return nil
}

// Shutdown stops intake first, then the workers. Stores are closed by the DI cleanup.
func (a *App) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout())
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.cron.Stop()

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.c.Queue.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("queue stop error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

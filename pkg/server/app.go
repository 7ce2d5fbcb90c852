package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/services/session"
	"SignalBoard/internal/usecase"
	"SignalBoard/pkg/config"
	xhttp "SignalBoard/pkg/http"
	applogger "SignalBoard/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	prefetcher *usecase.Prefetcher
	sessions   *session.Manager
	limiter    *ratelimit.Limiter
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	prefetcher *usecase.Prefetcher,
	sessions *session.Manager,
	limiter *ratelimit.Limiter,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		httpServer: httpServer,
		prefetcher: prefetcher,
		sessions:   sessions,
		limiter:    limiter,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the HTTP server and background jobs and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Warm the caches without holding up request handling.
	go a.prefetcher.Warm(bg)

	go a.sessions.Run(bg, a.cfg.Session.SweepInterval)
	go a.pruneLimiter(bg)

	a.l.Info("signalboard started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("upstream", a.cfg.Upstream.BaseURL),
		applogger.Bool("api_source", a.cfg.Sources.API.Enabled),
		applogger.Bool("redis", a.cfg.Cache.Redis.Enabled),
		applogger.Bool("events", a.cfg.Events.Enabled))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) pruneLimiter(ctx context.Context) {
	interval := a.cfg.Session.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Prune(a.cfg.Session.MaxIdle)
		}
	}
}

// shutdown gracefully stops the HTTP server. Infrastructure clients are closed
// by the DI cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}

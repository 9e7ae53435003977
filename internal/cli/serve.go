package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"eventscout/internal/aggregate"
	"eventscout/internal/cache"
	appLog "eventscout/internal/log"
	"eventscout/internal/web"
)

const shutdownTimeout = 10 * time.Second

// disabledSpec switches a scheduled job off.
const disabledSpec = "-"

// ServeCommand runs the HTTP API with its background jobs.
type ServeCommand struct {
	Listen string `long:"listen" description:"HTTP listen address (overrides config if set)"`

	globals *GlobalFlags
	version string
}

func (c *ServeCommand) Execute(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.globals, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Listen != "" {
		a.cfg.Listen = c.Listen
	}

	sched, err := newScheduler(ctx, a.caches, a.svc, a.cfg.Cache.Sweep, a.cfg.Search.FeaturedRefresh)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if a.cfg.Search.FeaturedRefresh != disabledSpec {
		go a.svc.WarmFeatured(ctx)
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           web.NewServer(a.cfg, a.svc, a.metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+a.cfg.Listen, "version", c.version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
		return err
	}
	appLog.Info("eventscout exiting")
	return nil
}

// newScheduler registers the cache sweep and the featured warmer. Either
// spec may be "-" to skip that job.
func newScheduler(ctx context.Context, caches *cache.Manager, svc *aggregate.Service, sweepSpec, featuredSpec string) (*cron.Cron, error) {
	logger := cronLogger{l: appLog.Named("cron")}
	sched := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if sweepSpec != disabledSpec {
		if _, err := sched.AddFunc(sweepSpec, func() { caches.Sweep() }); err != nil {
			return nil, fmt.Errorf("cache sweep schedule %q: %w", sweepSpec, err)
		}
	}
	if featuredSpec != disabledSpec {
		if _, err := sched.AddFunc(featuredSpec, func() { svc.WarmFeatured(ctx) }); err != nil {
			return nil, fmt.Errorf("featured refresh schedule %q: %w", featuredSpec, err)
		}
	}
	return sched, nil
}

// cronLogger routes cron's own logging into zap. Routine scheduling chatter
// goes to debug.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debugw(msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Errorw(msg, append([]any{"err", err}, kv...)...)
}

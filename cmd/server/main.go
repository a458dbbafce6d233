package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfoliotracker/internal/app"
	"portfoliotracker/internal/config"
	cronrunner "portfoliotracker/internal/cron"
	"portfoliotracker/internal/handler"
	"portfoliotracker/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	a, err := app.New(cfg, app.WithLogger(zl))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			zl.Warn("closing database", zap.Error(err))
		}
	}()

	runner, err := schedule(ctx, a)
	if err != nil {
		return err
	}
	if runner != nil {
		runner.Start()
		defer runner.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("ops server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	zl.Info("shutting down")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// schedule registers the periodic jobs. It returns nil when cron is off.
func schedule(ctx context.Context, a *app.App) (*cronrunner.Runner, error) {
	if !a.Config.Cron.Enabled {
		a.Logger.Info("cron disabled")
		return nil, nil
	}
	runner := cronrunner.New(a.Logger.Named("cron"), ctx)
	if _, err := runner.Add("snapshot.daily", a.Config.Cron.DailySnapshot, func(ctx context.Context) error {
		_, err := a.Snapshots.RecordAllUserSnapshots(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if _, err := runner.Add("history.refresh", a.Config.Cron.HistoryRefresh, a.RefreshHeldHistory); err != nil {
		return nil, err
	}
	return runner, nil
}

func newRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h := &handler.HealthHandler{Store: a.Repo, Timeout: 2 * time.Second}
	h.Register(r)
	return r
}

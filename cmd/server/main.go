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

	"github.com/kdimtricp/ecosort/internal/api"
	"github.com/kdimtricp/ecosort/internal/backend"
	"github.com/kdimtricp/ecosort/internal/cache"
	"github.com/kdimtricp/ecosort/internal/config"
	"github.com/kdimtricp/ecosort/internal/controller"
	"github.com/kdimtricp/ecosort/internal/database"
	"github.com/kdimtricp/ecosort/internal/logging"
	"github.com/kdimtricp/ecosort/internal/storage"
)

func main() {
	logger := logging.Configure()

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	images, err := storage.NewLocalStorage(cfg.ImageCacheDir)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("running database migrations", "path", cfg.MigrationsPath)
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		return err
	}
	runs := database.NewRunRepository(db)

	var responseCache cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cache.RedisOptions{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "ecosort:",
		})
		if err := rc.Ping(context.Background()); err != nil {
			logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
			rc.Close()
		} else {
			responseCache = rc
		}
	}
	defer responseCache.Close()

	client := backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithEvaluateRetries(cfg.EvaluateRetries, cfg.RetryBase),
	)

	ctrl := controller.New(client, runs, controller.Config{
		Interval:    cfg.PollInterval,
		Threshold:   cfg.ConfidenceThreshold,
		ResumeDelay: cfg.ResumeDelay,
		BannerTTL:   cfg.BannerTTL,
		Logger:      logger,
	})

	app := &api.App{
		Controller: ctrl,
		Backend:    client,
		Runs:       runs,
		Images:     images,
		Cache:      responseCache,
		MetricsTTL: cfg.MetricsCacheTTL,
		BannerTTL:  cfg.BannerTTL,
		Logger:     logger.With("component", "api"),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		"port", cfg.Port,
		"backend", client.BaseURL(),
		"db_type", cfg.Database.Type,
		"poll_interval", cfg.PollInterval,
		"threshold", cfg.ConfidenceThreshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn("stopping classification run failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/NamanBalaji/wsdl/internal/api"
	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/config"
	"github.com/NamanBalaji/wsdl/internal/engine"
	"github.com/NamanBalaji/wsdl/internal/library"
	"github.com/NamanBalaji/wsdl/internal/logger"
	"github.com/NamanBalaji/wsdl/internal/metrics"
	"github.com/NamanBalaji/wsdl/internal/notify"
	"github.com/NamanBalaji/wsdl/internal/repository"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

const (
	loginTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.GetConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	err = logger.InitLogging(cfg.Server.Debug, cfg.Server.LogFile)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	if err := run(cfg); err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger.Infof("Movies path: %s", cfg.Storage.MoviesDir)
	logger.Infof("Series path: %s", cfg.Storage.SeriesDir)
	logger.Infof("Plex URL: %s", cfg.Plex.URL)

	for _, dir := range []string{cfg.Storage.MoviesDir, cfg.Storage.SeriesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warnf("Could not create %s: %v", dir, err)
		}
	}

	repo, err := repository.NewBoltDBRepository(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("error creating repository: %w", err)
	}
	defer repo.Close()

	clientCfg := webshare.DefaultConfig()
	clientCfg.BaseURL = cfg.Webshare.BaseURL
	clientCfg.Username = cfg.Webshare.Username
	clientCfg.Password = cfg.Webshare.Password
	clientCfg.MaxRetries = cfg.Webshare.MaxRetries
	clientCfg.RetryDelay = cfg.Webshare.RetryDelay
	clientCfg.SearchCacheSize = cfg.Webshare.SearchCacheSize
	clientCfg.SearchCacheTTL = cfg.Webshare.SearchCacheTTL

	client, err := webshare.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("error creating webshare client: %w", err)
	}
	defer client.Cleanup()

	if client.CredentialsConfigured() {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		if err := client.Login(ctx); err != nil {
			logger.Errorf("Login at startup failed: %v", err)
		}
		cancel()
	} else {
		logger.Warnf("No Webshare credentials configured")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("error registering metrics: %w", err)
	}

	engCfg := engine.DefaultConfig()
	engCfg.MoviesDir = cfg.Storage.MoviesDir
	engCfg.SeriesDir = cfg.Storage.SeriesDir
	engCfg.MaxConcurrentDownloads = cfg.Engine.MaxConcurrentDownloads
	engCfg.GracePeriod = cfg.Engine.GracePeriod
	engCfg.FailedRetention = cfg.Engine.FailedRetention
	engCfg.ChunkSize = cfg.Storage.ChunkSize
	engCfg.RateLimit = cfg.Storage.RateLimit
	engCfg.HistoryRetention = cfg.History.Retention
	engCfg.PruneSchedule = cfg.History.PruneSchedule

	notifier := notify.New(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Timeout)

	eng, err := engine.New(engCfg, client, notifier, repo, m)
	if err != nil {
		return fmt.Errorf("error creating engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("error starting engine: %w", err)
	}

	srv := api.NewServer(api.Options{
		Engine:  eng,
		Remote:  client,
		History: repo,
		Library: []library.Dir{
			{Path: cfg.Storage.MoviesDir, Type: common.ContentMovie},
			{Path: cfg.Storage.SeriesDir, Type: common.ContentSeries},
		},
		Metrics: m.Handler(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Infof("Received interrupt signal, shutting down...")
	case err := <-serveErr:
		if err != nil {
			logger.Errorf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during HTTP shutdown: %v", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during engine shutdown: %v", err)
	}

	logger.Infof("Shutdown complete.")
	return nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/internal/cache"
	"github.com/pulseboard/tsengine/internal/observability/metrics"
	"github.com/pulseboard/tsengine/internal/server"
	"github.com/pulseboard/tsengine/internal/storage"
)

// Build information, injected at link time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var cfgFile string
	flag.StringVar(&cfgFile, "config", "", "path to config file")
	flag.Parse()

	config, err := server.LoadConfig(cfgFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := config.BuildLogger()
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}).Info("starting time-series analytics engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := storage.NewSource(ctx, config.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize storage backend")
	}
	defer source.Close()

	memoizer, err := buildMemoizer(ctx, config, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize cache")
	}

	m := metrics.New(metrics.Config{})
	engine := analytics.NewEngine(source, memoizer, m, logger)
	srv := server.New(config, engine, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildMemoizer(ctx context.Context, config *server.Config, logger *logrus.Logger) (*cache.Memoizer, error) {
	if config.Cache.Backend == "redis" {
		return cache.NewRedisMemoizer(ctx, config.Cache.Redis, nil, logger)
	}
	return cache.NewMemoryMemoizer(config.Cache.MaxEntries, nil, logger), nil
}

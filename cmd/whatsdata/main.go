package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsdata/internal/cache"
	"whatsdata/internal/config"
	"whatsdata/internal/constants"
	"whatsdata/internal/features"
	"whatsdata/internal/middleware"
	"whatsdata/internal/models"
	"whatsdata/internal/retry"
	"whatsdata/internal/service"
	"whatsdata/internal/store"
	"whatsdata/internal/tracing"
	"whatsdata/internal/versioning"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes unmasked WhatsApp ids)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("whatsdata %s (API %s)\nBuild Time: %s\nGit Commit: %s\n",
			Version, versioning.CurrentVersion, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

// applyLogLevel sets the level from config; -verbose forces debug
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

func rateWindow(cfg *models.Config) time.Duration {
	sec := cfg.Server.RateLimitWindowSec
	if sec <= 0 {
		sec = constants.DefaultRateLimitWindowSec
	}
	return time.Duration(sec) * time.Second
}

func newFileStore(cfg *models.Config, logger *logrus.Logger) (*store.FileStore, error) {
	return store.NewFileStore(store.Options{
		BaseDir: cfg.Storage.BaseDir,
		Dirs: map[string]string{
			store.DirInput:      cfg.Storage.InputDir,
			store.DirOutput:     cfg.Storage.OutputDir,
			store.DirChatID:     cfg.Storage.ChatIDDir,
			store.DirMessagesID: cfg.Storage.MessagesIDDir,
		},
		MaxFileSize:  int64(cfg.Storage.MaxFileSizeMB) * constants.BytesPerMegabyte,
		BackupSuffix: cfg.Storage.BackupSuffix,
		Logger:       logger,
	})
}

func supervisorHook(logger *logrus.Logger) suture.EventHook {
	return func(e suture.Event) {
		logger.WithFields(logrus.Fields(e.Map())).Warn(e.String())
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadDotEnv(); err != nil {
		logger.Warnf("Failed to load .env file: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting whatsdata")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - WhatsApp ids will be logged unmasked")
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	fileStore, err := newFileStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	// the data directories may live on a volume that mounts late
	backoff := retry.NewBackoff(retry.DefaultBackoffConfig())
	err = backoff.Retry(ctx, func() error {
		if err := fileStore.EnsureDirs(ctx); err != nil {
			logger.Warnf("Failed to prepare storage directories: %v", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prepare storage directories after retries: %w", err)
	}

	flags := features.NewManager()
	if unknown := flags.Apply(cfg.Features, features.SourceConfig); len(unknown) > 0 {
		logger.WithField("flags", unknown).Warn("Ignoring unknown feature flags")
	}
	flags.LoadFromEnvironment()

	var statsCache *cache.Cache
	if flags.IsEnabled(features.FlagStatsCache) && cfg.Stats.CacheTTLSec > 0 {
		statsCache = cache.New(time.Duration(cfg.Stats.CacheTTLSec) * time.Second)
	}
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, rateWindow(cfg))

	opts := service.Options{
		Store:   fileStore,
		Storage: cfg.Storage,
		Query:   cfg.Query,
		Stats:   cfg.Stats,
		Logger:  logger,
	}

	hub := NewWatchHub(cfg.Server.WatchBufferSize, logger)
	fileStore.Subscribe(hub.Publish)

	server := NewServer(cfg, ServerDeps{
		Store:    fileStore,
		Contacts: service.NewContactService(opts),
		Messages: service.NewMessageService(opts),
		Files:    service.NewFileService(opts),
		Stats:    service.NewStatsService(opts, statsCache),
		Flags:    flags,
		Limiter:  limiter,
		Hub:      hub,
		Build:    versioning.NewBuildInfo(Version, GitCommit, BuildTime),
		Verbose:  *verbose,
	}, logger)

	sup := suture.New("whatsdata", suture.Spec{
		EventHook: supervisorHook(logger),
		Timeout:   config.ShutdownTimeout(cfg),
	})
	sup.Add(server)
	sup.Add(hub)

	janitorInterval := time.Duration(cfg.Server.JanitorIntervalSec) * time.Second
	if statsCache != nil {
		sup.Add(service.NewJanitor(statsCache, limiter, janitorInterval, logger))
	} else {
		sup.Add(service.NewJanitor(nil, limiter, janitorInterval, logger))
	}

	fetcher, err := newChatFetcher(cfg, fileStore, flags, logger)
	if err != nil {
		return err
	}
	if fetcher != nil {
		sup.Add(fetcher)
	}

	if cfg.Server.ConfigReloadSec > 0 {
		watcher := config.NewConfigWatcher(*configPath, cfg,
			time.Duration(cfg.Server.ConfigReloadSec)*time.Second, logger)
		watcher.OnConfigChange(func(next *models.Config) {
			applyLogLevel(logger, next.LogLevel, *verbose)
			limiter.SetLimit(next.Server.RateLimitPerMinute, rateWindow(next))
			if unknown := flags.Apply(next.Features, features.SourceConfig); len(unknown) > 0 {
				logger.WithField("flags", unknown).Warn("Ignoring unknown feature flags")
			}
			flags.LoadFromEnvironment()
		})
		sup.Add(watcher)
	}

	logger.WithFields(logrus.Fields{
		"port":     cfg.Server.Port,
		"base_dir": cfg.Storage.BaseDir,
		"flags":    flags.Snapshot(),
	}).Info("Services configured")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

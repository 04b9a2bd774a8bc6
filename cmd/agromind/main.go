package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agromind/internal/config"
	"agromind/internal/constants"
	"agromind/internal/database"
	"agromind/internal/detection"
	"agromind/internal/fanout"
	"agromind/internal/models"
	"agromind/internal/retry"
	"agromind/internal/service"
	"agromind/internal/tracing"
	"agromind/internal/uploads"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes request bodies with sensitive fields masked)")
	configPath = flag.String("config", "", "Path to configuration file (JSON, or YAML with .yaml/.yml extension)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("AgroMind %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting AgroMind")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - request details will be logged")
	}

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = Version
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

	app, err := newApp(ctx, cfg, logger, *verbose)
	if err != nil {
		return err
	}
	defer app.Close()

	go app.scheduler.Start(ctx)
	defer app.scheduler.Stop()

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(next *models.Config) {
			applyLogLevel(logger, next.LogLevel, *verbose)
			app.scheduler.SetRetentionDays(next.RetentionDays)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := app.server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// app holds the wired server components
type app struct {
	server    *Server
	hub       *fanout.Hub
	db        *database.Database
	scheduler *service.Scheduler
	relay     *fanout.RedisRelay
	logger    *logrus.Logger
}

func newApp(ctx context.Context, cfg *models.Config, logger *logrus.Logger, verbose bool) (*app, error) {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := uploads.NewStore(cfg.Uploads, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize uploads: %w", err)
	}

	hub := fanout.NewHub(logger, cfg.Fanout.SendBuffer)

	var relay *fanout.RedisRelay
	if cfg.Fanout.Redis.Enabled {
		relay, err = fanout.NewRedisRelay(ctx, cfg.Fanout.Redis, hub, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect fanout relay: %w", err)
		}
		hub.SetRelay(relay)
		relay.Start(ctx)
		logger.WithField("channel", cfg.Fanout.Redis.Channel).Info("Redis fanout relay enabled")
	}

	deps := Dependencies{
		DB:       db,
		Messages: service.NewMessageService(db, hub, logger),
		Groups:   service.NewGroupService(db, cfg.Server.PublicBaseURL, logger),
		Auth:     service.NewAuthService(db, cfg.Auth.OTPCode, logger),
		Uploads:  store,
		Detector: detection.NewClient(cfg.Detection, nil, logger),
		Realtime: fanout.NewHandler(hub, logger, fanout.HandlerOptions{OriginPatterns: cfg.Server.AllowedOrigins}),
	}
	if cfg.Detection.APIKey == "" {
		logger.Warn("CROP_HEALTH_API_KEY is not set; disease detection requests will be rejected")
	}

	scheduler := service.NewScheduler(db, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger).
		WithFileCleaner(store)

	return &app{
		server:    NewServer(cfg, deps, logger, verbose),
		hub:       hub,
		db:        db,
		scheduler: scheduler,
		relay:     relay,
		logger:    logger,
	}, nil
}

func (a *app) Close() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close fanout relay")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// openDatabase retries with exponential backoff
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.FromSettings(cfg.Retry)).
		WithNotify(func(err error, attempt int, delay time.Duration) {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("Failed to initialize database, retrying")
		})

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// applyLogLevel sets the configured level. Debug output is reserved for
// -verbose.
func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

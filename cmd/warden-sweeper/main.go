package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/session"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	appLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	db, err := connectDatabase(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store, err := session.NewSQLStore(db)
	if err != nil {
		logger.Fatalf("Failed to initialize session store: %v", err)
	}
	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		logger.Fatalf("Failed to initialize audit recorder: %v", err)
	}

	var sink notify.Sink
	if cfg.Notifications.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notifications.WebhookURL, cfg.Notifications.WebhookSecret, nil)
	}

	emitter := audit.NewEmitter(recorder, sink, appLogger, metrics)
	manager := session.NewManager(store, emitter, appLogger, metrics)
	sweeper := session.NewSweeper(store, manager, emitter, appLogger, metrics, session.SweeperConfig{
		InactivityWindow: cfg.Session.InactivityWindow,
		RetentionWindow:  cfg.Session.RetentionWindow,
		BatchSize:        cfg.Session.SweepBatchSize,
	})

	if *runOnce {
		if err := sweep(sweeper, logger); err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Session.SweepSchedule, func() {
		if err := sweep(sweeper, logger); err != nil {
			logger.Errorf("Sweep failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule sweep: %v", err)
	}

	c.Start()
	logger.Infof("Warden session sweeper started, schedule: %s", cfg.Session.SweepSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Sweeper stopped")
}

func sweep(sweeper *session.Sweeper, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := sweeper.Run(ctx)
	logger.Infof("Sweep finished: %d expired, %d inactive, %d deleted",
		result.Expired, result.Inactive, result.Deleted)
	return err
}

func setupLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	parsed, err := logrus.ParseLevel(strings.ToLower(level.String()))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func connectDatabase(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

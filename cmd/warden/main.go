package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/auth"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("Starting Warden admin backend")

	appLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	db, err := connectDatabase(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		logger.Infof("Session cache enabled via redis at %s", cfg.Redis.Addr)
	}

	// Session store, with the redis read-through cache when configured
	sqlStore, err := session.NewSQLStore(db)
	if err != nil {
		logger.Fatalf("Failed to initialize session store: %v", err)
	}
	var store session.Store = sqlStore
	if redisClient != nil {
		store = session.NewCachedStore(sqlStore, redisClient, cfg.Redis.CacheTTL, metrics)
	}

	// Audit trail and notification sinks
	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		logger.Fatalf("Failed to initialize audit recorder: %v", err)
	}
	sink := buildSink(cfg, redisClient)
	emitter := audit.NewEmitter(recorder, sink, appLogger, metrics)

	manager := session.NewManager(store, emitter, appLogger, metrics)

	// Role catalog, optionally extended from a watched overrides file.
	// The watcher performs the initial load itself.
	catalog := rbac.NewCatalog()
	if path := cfg.Catalog.OverridesPath; path != "" {
		watcher, err := rbac.NewWatcher(catalog, path, emitter, appLogger)
		if err != nil {
			logger.Fatalf("Failed to load role overrides: %v", err)
		}
		defer watcher.Close()
	}

	roleLookup, err := auth.NewSQLRoleLookup(db)
	if err != nil {
		logger.Fatalf("Failed to initialize role lookup: %v", err)
	}

	engine := rbac.NewEngine(emitter, appLogger, metrics)
	resolver := auth.NewResolver(manager, catalog, roleLookup.Lookup, emitter, appLogger)

	server := api.NewServer(api.Deps{
		Store:             store,
		Manager:           manager,
		Catalog:           catalog,
		Recorder:          recorder,
		Authn:             middleware.NewAuthenticate(resolver, appLogger),
		Authz:             middleware.NewAuthorize(engine),
		Logger:            appLogger,
		DefaultSessionTTL: cfg.Session.TTL,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.HealthAddr(),
		Handler: healthMux(cfg, db, redisClient, metrics),
	}

	go func() {
		logger.Infof("Health endpoints listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Health server failed: %v", err)
		}
	}()
	go func() {
		logger.Infof("API listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("API server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Errorf("API server shutdown: %v", err)
	}
	if err := healthServer.Shutdown(ctx); err != nil {
		logger.Errorf("Health server shutdown: %v", err)
	}
	if sink != nil {
		sink.Close()
	}
	logger.Info("Warden stopped")
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

func buildSink(cfg *config.Config, redisClient *redis.Client) notify.Sink {
	var sinks []notify.Sink
	if redisClient != nil {
		sinks = append(sinks, notify.NewRedisSink(redisClient))
	}
	if cfg.Notifications.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notifications.WebhookURL, cfg.Notifications.WebhookSecret, nil))
	}
	switch len(sinks) {
	case 0:
		return notify.NewNoopSink()
	case 1:
		return sinks[0]
	default:
		return notify.NewMultiSink(sinks...)
	}
}

func healthMux(cfg *config.Config, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics) http.Handler {
	checker := observability.NewHealthChecker(db, redisClient)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

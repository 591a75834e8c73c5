package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/iisa/api"
	dbfs "github.com/garnizeh/iisa/db"
	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/db"
	"github.com/garnizeh/iisa/internal/geo"
	"github.com/garnizeh/iisa/internal/persist"
	"github.com/garnizeh/iisa/internal/repository/sqlite"
	"github.com/garnizeh/iisa/internal/session"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)

	logger.Info("starting IISA server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx := context.Background()

	// Open database connection
	db, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := dbMigrate(ctx, db); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
	}

	repo := sqlite.New(db, logger)

	lookup, err := geo.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load city list: %v", err)
	}

	// One adapter for both so gate writes count as this process's own.
	adapter := persist.New(repo, logger)

	store, err := candidates.New(ctx, adapter, candidates.Options{
		EditWindow:   cfg.Store.EditWindow,
		SyncInterval: cfg.Store.SyncInterval,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to open candidate store: %v", err)
	}

	gate, err := session.NewGate(ctx, adapter, session.Credentials{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create session gate: %v", err)
	}
	followStore(ctx, store, gate)
	store.Watch(ctx)

	tokens := session.NewTokens(cfg.SessionSecret, cfg.TokenDuration)

	handler := api.SetupRoutes(cfg, version, buildTime, store, gate, lookup, tokens)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}

	// Stop the watcher and let pending writes land before closing the DB
	store.Stop()

	if err := db.Close(); err != nil {
		logger.Error("error closing DB", slog.Any("err", err))
	}

	logger.Info("server exited")
}

func dbMigrate(ctx context.Context, d *db.DB) error {
	return db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles)
}

// followStore reloads the gate whenever the store picks up writes from
// another process, since the login keys share the same storage.
func followStore(ctx context.Context, store *candidates.Store, gate *session.Gate) func() {
	return store.Subscribe(func(c candidates.Change) {
		if c.Kind == candidates.ChangeReload {
			gate.Reload(ctx)
		}
	})
}

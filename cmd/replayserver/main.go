package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/database"
	"github.com/racedqn/autopilot/internal/handlers"
	"github.com/racedqn/autopilot/internal/logging"
	"github.com/racedqn/autopilot/internal/storage"
	gormstorage "github.com/racedqn/autopilot/internal/storage/gorm"
	"github.com/racedqn/autopilot/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const AppName = "replayserver"

var (
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
)

func main() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	configDir := os.Getenv("RACESIM_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	SlogManager.Setup(nil, viper.GetString("logLevel"), nil, logging.WithScope(AppName))
	Logger = SlogManager.Logger()

	if err := run(); err != nil {
		Logger.Error("Replay server failed", "error", err)
		os.Exit(1)
	}
}

// openBackend connects the store named by server.storage. The returned
// closer releases the connection after the backend is closed. dbLog takes
// connection events and logger the backend's.
func openBackend(cfg config.ServerConfig, dbLog zerolog.Logger, logger *slog.Logger) (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	if cfg.Storage == "memory" {
		return memory.New(config.MemoryConfig{}), noop, nil
	}

	dbm := database.NewManager(dbLog)
	dbm.SqliteFilePath = cfg.SqlitePath
	if dbm.SqliteFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(dbm.SqliteFilePath), 0755); err != nil {
			return nil, noop, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var err error
	switch cfg.Storage {
	case "postgres":
		err = dbm.Connect(config.GetDBConfig())
	case "sqlite":
		err = dbm.ConnectSqlite(dbm.SqliteFilePath)
	default:
		return nil, noop, fmt.Errorf("unknown server storage %q", cfg.Storage)
	}
	if err != nil {
		return nil, noop, err
	}
	if err := dbm.Setup(); err != nil {
		dbm.Close()
		return nil, noop, err
	}
	logger.Info("Replay store ready", "storage", cfg.Storage, "local", dbm.Local())
	return gormstorage.New(gormstorage.Dependencies{DB: dbm.DB, Logger: logger}), dbm.Close, nil
}

func run() error {
	cfg, err := config.GetServerConfig()
	if err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	dbLog := zerolog.New(os.Stderr).With().Timestamp().Str("app", AppName).Logger()
	backend, closeDB, err := openBackend(cfg, dbLog, Logger)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := backend.Init(); err != nil {
		return err
	}
	defer backend.Close()

	gin.SetMode(gin.ReleaseMode)
	svc := handlers.NewService(handlers.Dependencies{
		Backend: backend,
		Logger:  Logger,
		APIKey:  cfg.APIKey,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Replay server starting", "listen", cfg.Listen, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	Logger.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	Logger.Info("Stopped")
	return nil
}

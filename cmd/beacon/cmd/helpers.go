package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/logging"
	"github.com/bluetali/beacon/internal/search"
	"github.com/bluetali/beacon/internal/store"
	"github.com/bluetali/beacon/internal/telemetry"
)

// engine bundles everything a command needs to serve queries.
type engine struct {
	cfg     *config.Config
	store   store.EntityStore
	metrics *telemetry.Metrics
	coord   *search.Coordinator

	telemetryDB *sql.DB
}

// cliLogger sets up quiet file logging for CLI commands. Falls back to
// a discard-less stderr logger when the log directory is unusable.
func cliLogger() (*slog.Logger, func()) {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return slog.Default(), func() {}
	}
	return logger, cleanup
}

// openEngine builds the full stack: config, store, telemetry, coordinator.
// The returned cleanup closes components in reverse order.
func openEngine(logger *slog.Logger) (*engine, func(), error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, nil, err
	}

	dataDir := config.DefaultDataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}

	metrics, telemetryDB := openTelemetry(dataDir, logger)

	coord, err := search.New(*cfg, st, logger, search.WithRecorder(metrics))
	if err != nil {
		_ = metrics.Close()
		if telemetryDB != nil {
			_ = telemetryDB.Close()
		}
		_ = st.Close()
		return nil, nil, err
	}

	eng := &engine{
		cfg:         cfg,
		store:       st,
		metrics:     metrics,
		coord:       coord,
		telemetryDB: telemetryDB,
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(closeCtx)
		_ = metrics.Close()
		if telemetryDB != nil {
			_ = telemetryDB.Close()
		}
		_ = st.Close()
	}

	return eng, cleanup, nil
}

// openTelemetry opens the telemetry database next to the entity store.
// Telemetry is best-effort: failures degrade to in-memory metrics only.
func openTelemetry(dataDir string, logger *slog.Logger) (*telemetry.Metrics, *sql.DB) {
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "telemetry.db"))
	if err != nil {
		logger.Warn("telemetry database unavailable", slog.String("error", err.Error()))
		return telemetry.New(nil), nil
	}

	sink, err := telemetry.NewSQLiteSink(db)
	if err != nil {
		logger.Warn("telemetry schema init failed", slog.String("error", err.Error()))
		_ = db.Close()
		return telemetry.New(nil), nil
	}

	return telemetry.New(sink), db
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

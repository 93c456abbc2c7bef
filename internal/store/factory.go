package store

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendFTS5  = "fts5"
	BackendLike  = "like"
	BackendBleve = "bleve"
)

// Open creates the entity store selected by the config. The three backends
// expose identical behavior through EntityStore; they differ only in how
// matches are found and ranked.
func Open(cfg config.StoreConfig, logger *slog.Logger) (EntityStore, error) {
	path := cfg.StorePath()

	switch strings.ToLower(cfg.Backend) {
	case BackendFTS5, "":
		return NewSQLiteStore(path, true, logger)
	case BackendLike:
		return NewSQLiteStore(path, false, logger)
	case BackendBleve:
		return NewBleveStore(path, logger)
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown store backend %q (want fts5, like, or bleve)", cfg.Backend), nil)
	}
}

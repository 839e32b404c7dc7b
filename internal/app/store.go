// Package app provides application-level orchestration for wordchain.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Zerofisher/wordchain/internal/config"
	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/pkg/store/sqlite"
)

// StoreConfig maps database settings onto the SQLite store.
func StoreConfig(cfg *config.Config, readOnly bool) sqlite.Config {
	return sqlite.Config{
		Path:        cfg.Database.Name,
		ReadOnly:    readOnly,
		BusyTimeout: cfg.LockWaitTimeout(),
		User:        cfg.Database.User,
		Pass:        cfg.Database.Pass,
	}
}

// OpenStore opens the writable store described by cfg.
func OpenStore(cfg *config.Config, logger *zap.Logger) (*sqlite.SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database.Host != "" || cfg.Database.Port != 0 {
		// The embedded store has no network endpoint.
		logger.Info("database host settings ignored by sqlite backend",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port))
	}

	st, err := sqlite.New(StoreConfig(cfg, false))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	logger.Debug("database opened", zap.String("path", st.Path()))
	return st, nil
}

// OpenEngine opens the database described by cfg read-only for queries.
func OpenEngine(cfg *config.Config) (*query.SQLiteEngine, error) {
	st, err := sqlite.New(StoreConfig(cfg, true))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return query.NewSQLiteEngine(st), nil
}

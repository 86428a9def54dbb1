package database

import (
	"fmt"
	"log/slog"
	"sync"

	"tribune/internal/config"
	"tribune/internal/middleware"

	"gorm.io/gorm"
)

var (
	readMu sync.RWMutex
	readDB *gorm.DB
)

// GetReadDB returns the read replica connection, or nil when none is configured.
func GetReadDB() *gorm.DB {
	readMu.RLock()
	defer readMu.RUnlock()
	return readDB
}

// SetReadDB installs db as the read replica; nil disables replica reads.
func SetReadDB(db *gorm.DB) {
	readMu.Lock()
	readDB = db
	readMu.Unlock()
}

// ConnectReadReplica opens DB_READ_HOST when set. The replica shares the
// primary's credentials and database name. A failed replica is logged and
// reads stay on the primary.
func ConnectReadReplica(cfg *config.Config) *gorm.DB {
	if cfg.DBReadHost == "" || cfg.DBDriver == "sqlite" {
		return nil
	}
	replica := *cfg
	replica.DBHost = cfg.DBReadHost
	if cfg.DBReadPort != "" {
		replica.DBPort = cfg.DBReadPort
	}

	db, err := openPostgres(&replica)
	if err != nil {
		middleware.Logger.Warn("read replica unavailable, using primary for reads",
			slog.String("host", cfg.DBReadHost), slog.String("error", err.Error()))
		return nil
	}
	SetReadDB(db)
	middleware.Logger.Info("Read replica connected", slog.String("host", cfg.DBReadHost))
	return db
}

func openPostgres(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to read replica: %w", err)
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

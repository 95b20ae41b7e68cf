/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/marquee/internal/config"
)

// Connect establishes a gorm DB connection for the configured backend.
func Connect(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	return open(cfg.DBBackend, cfg.DBDSN, "catalogue", log)
}

// ConnectPlaybackLog opens the database holding the playback log. It
// returns catalogue itself when no separate DSN is configured.
func ConnectPlaybackLog(cfg *config.Config, catalogue *gorm.DB, log zerolog.Logger) (*gorm.DB, error) {
	if cfg.PlaybackLogDSN == "" || cfg.PlaybackLogDSN == cfg.DBDSN {
		return catalogue, nil
	}
	return open(cfg.DBBackend, cfg.PlaybackLogDSN, "playback log", log)
}

func open(backend config.DatabaseBackend, dsn, name string, log zerolog.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(backend, dsn)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", backend, name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if backend == config.DatabaseSQLite {
		// The catalogue file is shared with the management UI process.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			log.Warn().Err(err).Msg("set sqlite busy timeout")
		}
	} else {
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(5)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := RegisterCallbacks(db); err != nil {
		return nil, fmt.Errorf("register db callbacks: %w", err)
	}

	log.Info().Str("backend", string(backend)).Str("database", name).Msg("database connected")
	return db, nil
}

// Dialector selects the gorm driver for a backend.
func Dialector(backend config.DatabaseBackend, dsn string) (gorm.Dialector, error) {
	switch backend {
	case config.DatabasePostgres:
		return postgres.Open(dsn), nil
	case config.DatabaseMySQL:
		return mysql.Open(dsn), nil
	case config.DatabaseSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown database backend: %s", backend)
	}
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

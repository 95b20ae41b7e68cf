/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/marquee/internal/catalog"
	"github.com/friendsincode/marquee/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the catalogue schema",
	RunE:  runMigrate,
}

var importCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Load assets and schedule slots from a YAML seed file",
	Long:  "Upsert the assets and schedule slots described in a YAML seed file. Existing records with the same ID are replaced.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
}

// initDatabase connects and migrates the catalogue (used by catalogue commands)
func initDatabase() (*gorm.DB, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	database, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("migrate catalogue: %w", err)
	}
	return database, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	viewlog, err := db.ConnectPlaybackLog(cfg, database, logger)
	if err != nil {
		return err
	}
	if viewlog != database {
		defer db.Close(viewlog)
		if err := db.MigratePlaybackLog(viewlog); err != nil {
			return err
		}
	}
	logger.Info().Str("backend", string(cfg.DBBackend)).Msg("catalogue schema up to date")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	seed, err := catalog.LoadSeed(args[0])
	if err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	store := catalog.NewStore(database, logger)
	if err := store.Import(cmd.Context(), seed); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	logger.Info().
		Int("assets", len(seed.Assets)).
		Int("slots", len(seed.Slots)).
		Msg("seed imported")
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/marquee/internal/app"
	"github.com/friendsincode/marquee/internal/config"
	"github.com/friendsincode/marquee/internal/logbuffer"
	"github.com/friendsincode/marquee/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logs   *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "marquee",
	Short: "Marquee - digital signage player",
	Long:  "Marquee plays a scheduled rotation of images, web pages, videos and streams on an attached display and keeps the TV under HDMI-CEC control.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player",
	Long:  "Run the playback loop, the TV controller, the command transports and the local status API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs = logbuffer.New(2000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logs, nil))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player, err := app.New(ctx, cfg, logs, logger)
	if err != nil {
		return fmt.Errorf("initialize player: %w", err)
	}
	defer func() {
		if err := player.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	if err := player.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/friendsincode/marquee/internal/tv"
)

var tvCmd = &cobra.Command{
	Use:   "tv",
	Short: "Control the attached TV over HDMI-CEC",
}

var tvWakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Switch the TV on",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newTVController(cmd)
		if err != nil {
			return err
		}
		c.Wake(cmd.Context())
		return printTVStatus(cmd, c)
	},
}

var tvStandbyCmd = &cobra.Command{
	Use:   "standby",
	Short: "Put the TV into standby",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newTVController(cmd)
		if err != nil {
			return err
		}
		c.Standby(cmd.Context())
		return printTVStatus(cmd, c)
	},
}

var tvStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Detect the CEC adapter and IR transmitter",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newTVController(cmd)
		if err != nil {
			return err
		}
		return printTVStatus(cmd, c)
	},
}

var tvVolumeCmd = &cobra.Command{
	Use:   "volume <0-100>",
	Short: "Set the TV volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil || level < 0 || level > 100 {
			return fmt.Errorf("volume must be an integer between 0 and 100, got %q", args[0])
		}
		c, err := newTVController(cmd)
		if err != nil {
			return err
		}
		c.SetVolume(cmd.Context(), level)
		return printTVStatus(cmd, c)
	},
}

func init() {
	rootCmd.AddCommand(tvCmd)
	tvCmd.AddCommand(tvWakeCmd, tvStandbyCmd, tvStatusCmd, tvVolumeCmd)
}

// newTVController builds a one-shot controller. The first call detects the
// adapter, so no Start is needed.
func newTVController(cmd *cobra.Command) (*tv.Controller, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	runner := tv.ExecRunner{}
	ir := tv.NewIRController(runner, logger)
	ir.Detect(cmd.Context(), cfg.IRBinary)

	tvCfg := tv.DefaultConfig()
	tvCfg.Binary = cfg.CECBinary
	tvCfg.Devices = cfg.CECDevices
	tvCfg.IRProtocol = cfg.IRProtocol
	tvCfg.IRScancode = cfg.IRScancode
	return tv.New(tvCfg, runner, ir, nil, logger), nil
}

func printTVStatus(cmd *cobra.Command, c *tv.Controller) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Status(cmd.Context()))
}

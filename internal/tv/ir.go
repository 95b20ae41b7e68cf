/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// IRController sends infrared scancodes through a TX-capable LIRC device
// (gpio-ir-tx overlay) using ir-ctl.
type IRController struct {
	runner  Runner
	timeout time.Duration
	logger  zerolog.Logger

	mu        sync.Mutex
	binary    string
	device    string
	available bool
}

// NewIRController creates an IR controller. Detect must run before sending.
func NewIRController(runner Runner, logger zerolog.Logger) *IRController {
	return &IRController{
		runner:  runner,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "ir").Logger(),
	}
}

// Detect finds the first /dev/lirc* device whose features include sending.
func (ir *IRController) Detect(ctx context.Context, binary string) {
	path, err := ir.runner.LookPath(binary)
	if err != nil {
		ir.logger.Info().Str("binary", binary).Msg("ir-ctl not found, ir control disabled")
		return
	}

	devices, err := ir.runner.Glob("/dev/lirc*")
	if err != nil {
		ir.logger.Debug().Err(err).Msg("list lirc devices")
		return
	}
	sort.Strings(devices)

	for _, dev := range devices {
		res, err := ir.runner.Run(ctx, ir.timeout, path, "-d", dev, "--features")
		if err != nil {
			ir.logger.Debug().Err(err).Str("device", dev).Msg("ir detection failed")
			continue
		}
		if res.ExitCode == 0 && strings.Contains(strings.ToLower(res.Stdout), "send") {
			ir.mu.Lock()
			ir.binary = path
			ir.device = dev
			ir.available = true
			ir.mu.Unlock()
			ir.logger.Info().Str("device", dev).Msg("ir transmitter found")
			return
		}
	}
	ir.logger.Info().Msg("no tx-capable ir device found")
}

// Status reports availability and the selected device.
func (ir *IRController) Status() (bool, string) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	return ir.available, ir.device
}

// SendPower transmits a power scancode, e.g. protocol "nec", scancode "0x0707E01F".
func (ir *IRController) SendPower(ctx context.Context, protocol, scancode string) error {
	ir.mu.Lock()
	available, binary, device := ir.available, ir.binary, ir.device
	ir.mu.Unlock()

	if !available {
		return ErrUnavailable
	}
	if protocol == "" || scancode == "" {
		return fmt.Errorf("ir power code incomplete: protocol %q scancode %q", protocol, scancode)
	}

	res, err := ir.runner.Run(ctx, ir.timeout, binary, "-d", device, "-S", protocol+":"+scancode)
	if err != nil {
		return fmt.Errorf("send ir power: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("ir-ctl exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	ir.logger.Info().Str("protocol", protocol).Str("scancode", scancode).Str("device", device).Msg("ir power sent")
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tv

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/telemetry"
)

// State is the detection state of the CEC adapter.
type State string

const (
	StateUnknown     State = "unknown"
	StateProbing     State = "probing"
	StateAvailable   State = "available"
	StateUnavailable State = "unavailable"
)

// unknownVolume marks a believed level that must be recalibrated.
const unknownVolume = -1

// Config tunes CEC detection and control.
type Config struct {
	Binary             string
	Devices            []string
	CallTimeout        time.Duration
	StartupRetries     int
	StartupDelay       time.Duration
	RedetectInterval   time.Duration
	CalibrationPresses int
	PressDelay         time.Duration

	// IR power code sent once at startup when CEC never comes up.
	IRProtocol string
	IRScancode string
}

// DefaultConfig returns the stock cec-ctl configuration.
func DefaultConfig() Config {
	return Config{
		Binary:             "cec-ctl",
		Devices:            []string{"/dev/cec0", "/dev/cec1"},
		CallTimeout:        5 * time.Second,
		StartupRetries:     5,
		StartupDelay:       3 * time.Second,
		RedetectInterval:   60 * time.Second,
		CalibrationPresses: 100,
		PressDelay:         150 * time.Millisecond,
	}
}

// Status is the externally visible TV control state.
type Status struct {
	CECAvailable bool   `json:"cec_available"`
	CECDevice    string `json:"cec_device,omitempty"`
	TVOn         bool   `json:"tv_on"`
	Volume       *int   `json:"volume"`
	Muted        bool   `json:"muted"`
	IRAvailable  bool   `json:"ir_available"`
	IRDevice     string `json:"ir_device,omitempty"`
}

// Controller drives TV power, volume and mute over HDMI-CEC. Every call is a
// silent no-op while no adapter is present; detection is retried at most
// once per RedetectInterval.
type Controller struct {
	cfg    Config
	runner Runner
	ir     *IRController
	bus    *events.Bus
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	// opMu serializes command sequences; mu guards the fields below.
	opMu sync.Mutex

	mu            sync.Mutex
	state         State
	device        string
	binaryMissing bool
	lastDetect    time.Time
	tvOn          bool
	volume        int
	muted         bool
}

// New creates a controller. ir may be nil.
func New(cfg Config, runner Runner, ir *IRController, bus *events.Bus, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		runner: runner,
		ir:     ir,
		bus:    bus,
		logger: logger.With().Str("component", "cec").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
		state:  StateUnknown,
		tvOn:   true,
		volume: unknownVolume,
	}
}

// Start looks for an adapter with bounded retries. The bus may need a few
// seconds to negotiate after boot; a TV that lost power stays invisible
// until someone switches it on, which the periodic re-detection picks up.
func (c *Controller) Start(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	for attempt := 1; attempt <= c.cfg.StartupRetries; attempt++ {
		c.detect(ctx)
		if c.available() || c.missing() {
			return
		}
		if attempt < c.cfg.StartupRetries {
			c.logger.Info().Int("attempt", attempt).Int("of", c.cfg.StartupRetries).Dur("retry_in", c.cfg.StartupDelay).Msg("cec device not ready")
			if err := c.sleep(ctx, c.cfg.StartupDelay); err != nil {
				return
			}
		}
	}
	c.logger.Warn().
		Int("attempts", c.cfg.StartupRetries).
		Dur("redetect_every", c.cfg.RedetectInterval).
		Msg("no cec device found, tv may need manual power-on after power loss")

	if c.ir != nil && c.cfg.IRProtocol != "" && c.cfg.IRScancode != "" {
		if err := c.ir.SendPower(ctx, c.cfg.IRProtocol, c.cfg.IRScancode); err != nil {
			c.logger.Debug().Err(err).Msg("ir power fallback not sent")
		}
	}
}

// Status reports availability and the believed TV state.
func (c *Controller) Status(ctx context.Context) Status {
	if c.opMu.TryLock() {
		c.ensureAvailable(ctx)
		c.opMu.Unlock()
	}

	c.mu.Lock()
	st := Status{
		CECAvailable: c.state == StateAvailable,
		CECDevice:    c.device,
		TVOn:         c.tvOn,
		Muted:        c.muted,
	}
	if c.volume != unknownVolume {
		v := c.volume
		st.Volume = &v
	}
	c.mu.Unlock()

	if c.ir != nil {
		st.IRAvailable, st.IRDevice = c.ir.Status()
	}
	return st
}

// Standby puts the TV into standby.
func (c *Controller) Standby(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureAvailable(ctx) {
		return
	}
	if err := c.send(ctx, "standby", "--to", "0", "--standby"); err != nil {
		c.logger.Warn().Err(err).Msg("standby failed")
		return
	}
	c.setPower(false)
}

// Wake switches the TV on.
func (c *Controller) Wake(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureAvailable(ctx) {
		return
	}
	if err := c.send(ctx, "wake", "--to", "0", "--image-view-on"); err != nil {
		c.logger.Warn().Err(err).Msg("wake failed")
		return
	}
	c.setPower(true)
}

// ApplyAudio applies an item's volume (when set) and mute state.
func (c *Controller) ApplyAudio(ctx context.Context, volume *int, mute bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureAvailable(ctx) {
		return
	}
	if volume != nil {
		c.setVolume(ctx, *volume)
	}
	c.setMute(ctx, mute)
}

// SetVolume moves the TV to level (0-100) by blind step presses.
func (c *Controller) SetVolume(ctx context.Context, level int) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureAvailable(ctx) {
		return
	}
	c.setVolume(ctx, level)
}

// SetMute toggles mute when the tracked state differs from mute.
func (c *Controller) SetMute(ctx context.Context, mute bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.ensureAvailable(ctx) {
		return
	}
	c.setMute(ctx, mute)
}

func (c *Controller) setVolume(ctx context.Context, level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}

	c.mu.Lock()
	believed := c.volume
	c.mu.Unlock()

	if believed == unknownVolume {
		c.logger.Info().Int("presses", c.cfg.CalibrationPresses).Msg("calibrating volume")
		if err := c.press(ctx, "volume-down", c.cfg.CalibrationPresses); err != nil {
			c.failVolume(err)
			return
		}
		believed = 0
		c.storeVolume(0)
	}

	delta := level - believed
	if delta == 0 {
		return
	}
	cmd := "volume-up"
	if delta < 0 {
		cmd = "volume-down"
		delta = -delta
	}
	if err := c.press(ctx, cmd, delta); err != nil {
		c.failVolume(err)
		return
	}
	c.storeVolume(level)
	c.logger.Debug().Int("volume", level).Msg("volume set")
}

func (c *Controller) setMute(ctx context.Context, mute bool) {
	c.mu.Lock()
	current := c.muted
	c.mu.Unlock()
	if current == mute {
		return
	}
	if err := c.press(ctx, "mute", 1); err != nil {
		c.logger.Warn().Err(err).Msg("mute toggle failed")
		return
	}
	c.mu.Lock()
	c.muted = mute
	c.mu.Unlock()
}

// press issues count user-control presses of uiCmd with PressDelay between them.
func (c *Controller) press(ctx context.Context, uiCmd string, count int) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.PressDelay); err != nil {
				return err
			}
		}
		if err := c.send(ctx, uiCmd,
			"--to", "0",
			"--user-control-pressed", "ui-cmd="+uiCmd,
			"--user-control-released"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) send(ctx context.Context, label string, args ...string) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	full := append([]string{"-d", device}, args...)
	res, err := c.runner.Run(ctx, c.cfg.CallTimeout, c.cfg.Binary, full...)
	if err == nil && res.ExitCode != 0 {
		err = errors.New(strings.TrimSpace("exit status non-zero: " + res.Stderr))
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.TVCommandsTotal.WithLabelValues(label, result).Inc()
	return err
}

func (c *Controller) failVolume(err error) {
	c.logger.Warn().Err(err).Msg("volume command failed, believed level reset")
	c.storeVolume(unknownVolume)
}

func (c *Controller) storeVolume(v int) {
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
}

func (c *Controller) setPower(on bool) {
	c.mu.Lock()
	c.tvOn = on
	c.mu.Unlock()
	c.bus.Publish(events.EventTVPower, events.Payload{"tv_on": on})
	c.logger.Info().Bool("tv_on", on).Msg("tv power command sent")
}

// ensureAvailable re-detects when unavailable and the cooldown has passed.
// Callers hold opMu.
func (c *Controller) ensureAvailable(ctx context.Context) bool {
	c.mu.Lock()
	state, missing, last := c.state, c.binaryMissing, c.lastDetect
	c.mu.Unlock()

	if state == StateAvailable {
		return true
	}
	if missing {
		return false
	}
	if state != StateUnknown && c.now().Sub(last) < c.cfg.RedetectInterval {
		return false
	}
	c.logger.Info().Msg("re-checking cec device availability")
	c.detect(ctx)
	if c.available() {
		c.logger.Info().Msg("cec device now available")
	}
	return c.available()
}

// detect tries each candidate device. Callers hold opMu.
func (c *Controller) detect(ctx context.Context) {
	c.mu.Lock()
	c.state = StateProbing
	c.lastDetect = c.now()
	c.mu.Unlock()

	for _, dev := range c.cfg.Devices {
		res, err := c.runner.Run(ctx, c.cfg.CallTimeout, c.cfg.Binary, "-d", dev, "--playback")
		if errors.Is(err, ErrBinaryMissing) {
			c.logger.Warn().Str("binary", c.cfg.Binary).Msg("cec control binary not installed, tv control disabled")
			c.mu.Lock()
			c.binaryMissing = true
			c.state = StateUnavailable
			c.mu.Unlock()
			telemetry.TVAvailable.Set(0)
			return
		}
		if err != nil {
			c.logger.Debug().Err(err).Str("device", dev).Msg("cec detection failed")
			continue
		}
		// f.f.f.f means the adapter has no physical address: no TV on the bus.
		if res.ExitCode == 0 && !strings.Contains(res.Stdout, "f.f.f.f") {
			c.mu.Lock()
			c.device = dev
			c.state = StateAvailable
			// The TV may have been power-cycled; its volume is unknown again.
			c.volume = unknownVolume
			c.mu.Unlock()
			telemetry.TVAvailable.Set(1)
			c.logger.Info().Str("device", dev).Msg("using cec device")
			return
		}
	}

	c.mu.Lock()
	c.state = StateUnavailable
	c.mu.Unlock()
	telemetry.TVAvailable.Set(0)
	c.logger.Warn().Msg("no working cec device found, tv control disabled")
}

func (c *Controller) available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAvailable
}

func (c *Controller) missing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binaryMissing
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

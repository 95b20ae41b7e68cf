/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// MediaPlayer is an external video/stream player process.
type MediaPlayer interface {
	Play(ctx context.Context, uri string) error
	Stop() error
	IsPlaying() bool
}

// PlayerConfig describes how to launch the player binary.
type PlayerConfig struct {
	Binary string
	Args   []string
	Env    []string
	// AudioDevice returns the ALSA device for the next launch; nil leaves
	// AUDIODEV unset.
	AudioDevice func() string
}

// ProcessPlayer runs one player process at a time (ffplay by default).
type ProcessPlayer struct {
	cfg    PlayerConfig
	name   string
	logger zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{} // closed when the process has exited
}

// NewProcessPlayer constructs a player.
func NewProcessPlayer(cfg PlayerConfig, name string, logger zerolog.Logger) *ProcessPlayer {
	return &ProcessPlayer{cfg: cfg, name: name, logger: logger}
}

// Play launches the player for uri. The process is not tied to ctx; Stop
// ends it.
func (p *ProcessPlayer) Play(ctx context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		select {
		case <-p.done:
		default:
			return fmt.Errorf("%s player already running", p.name)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string(nil), p.cfg.Args...), uri)
	cmd := exec.Command(p.cfg.Binary, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	if p.cfg.AudioDevice != nil {
		if dev := p.cfg.AudioDevice(); dev != "" {
			cmd.Env = append(cmd.Env, "AUDIODEV="+dev)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Binary, err)
	}

	p.cmd = cmd
	p.done = make(chan struct{})

	go func(done chan struct{}, c *exec.Cmd) {
		err := c.Wait()
		close(done)
		if err != nil {
			p.logger.Debug().Err(err).Str("player", p.name).Msg("player exited")
		} else {
			p.logger.Debug().Str("player", p.name).Msg("player finished")
		}
	}(p.done, cmd)

	p.logger.Info().Str("player", p.name).Str("uri", uri).Msg("player started")
	return nil
}

// IsPlaying reports whether the process is still running.
func (p *ProcessPlayer) IsPlaying() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop terminates the process, killing it if it ignores SIGTERM for 5s.
func (p *ProcessPlayer) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	case <-done:
	}
	return nil
}

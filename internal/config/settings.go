/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Settings are the player options an operator can change at runtime.
type Settings struct {
	PlayerName      string `yaml:"player_name"`
	ShufflePlaylist bool   `yaml:"shuffle_playlist"`
	DebugLogging    bool   `yaml:"debug_logging"`
	ShowSplash      bool   `yaml:"show_splash"`
	DefaultDuration int    `yaml:"default_duration"`
	// AudioOutput is "hdmi" or "local" (headphone jack).
	AudioOutput string `yaml:"audio_output"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		ShowSplash:      true,
		DefaultDuration: 10,
		AudioOutput:     "hdmi",
	}
}

// Validate checks field values.
func (s Settings) Validate() error {
	if s.DefaultDuration < 0 {
		return fmt.Errorf("default_duration must not be negative")
	}
	if s.AudioOutput != "hdmi" && s.AudioOutput != "local" {
		return fmt.Errorf("audio_output must be hdmi or local, got %q", s.AudioOutput)
	}
	return nil
}

// LoadSettings reads path over the defaults. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// WriteSettings stores s at path.
func WriteSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SettingsHolder gives thread-safe access to the settings and reloads them
// from disk on request or when the file changes.
type SettingsHolder struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	current Settings

	listenMu  sync.RWMutex
	listeners []func(Settings)
}

// NewSettingsHolder loads path. A malformed file is reported and the
// defaults are used.
func NewSettingsHolder(path string, logger zerolog.Logger) (*SettingsHolder, error) {
	s, err := LoadSettings(path)
	h := &SettingsHolder{
		path:    path,
		logger:  logger.With().Str("component", "settings").Logger(),
		current: s,
	}
	return h, err
}

// Get returns the current settings.
func (h *SettingsHolder) Get() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// ShufflePlaylist reports whether playlists are shuffled.
func (h *SettingsHolder) ShufflePlaylist() bool {
	return h.Get().ShufflePlaylist
}

// OnChange registers fn to run after every successful reload.
func (h *SettingsHolder) OnChange(fn func(Settings)) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload re-reads the file. On error the previous settings stay in effect.
func (h *SettingsHolder) Reload(_ context.Context) error {
	s, err := LoadSettings(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("settings reload failed, keeping previous settings")
		return err
	}

	h.mu.Lock()
	old := h.current
	h.current = s
	h.mu.Unlock()

	if old != s {
		h.logger.Info().
			Bool("shuffle_playlist", s.ShufflePlaylist).
			Bool("debug_logging", s.DebugLogging).
			Str("audio_output", s.AudioOutput).
			Msg("settings reloaded")
	}

	h.listenMu.RLock()
	listeners := append([]func(Settings){}, h.listeners...)
	h.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// Watch reloads the settings whenever the file is written, until ctx ends.
// The directory is watched so editors that replace the file are seen.
func (h *SettingsHolder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	h.logger.Info().Str("path", h.path).Msg("watching settings file for changes")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(h.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(300*time.Millisecond, func() {
					_ = h.Reload(ctx)
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Msg("settings watcher error")
		}
	}
}

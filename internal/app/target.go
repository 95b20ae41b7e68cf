/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

type navigator interface {
	Skip(back bool)
	Navigate(assetID string)
	CurrentAssetID() string
}

type presenter interface {
	Stop()
	Play()
	ShowSplash()
	ShowHotspot(params map[string]string)
}

type reloader interface {
	Reload(ctx context.Context) error
}

type bumper interface {
	Bump()
}

type interrupter interface {
	Set()
}

// target adapts the scheduler and playout loop to command.Target.
type target struct {
	nav      navigator
	screen   presenter
	settings reloader
	catalog  bumper
	signal   interrupter
	logger   zerolog.Logger
}

func (t *target) Next()                  { t.nav.Skip(false) }
func (t *target) Previous()              { t.nav.Skip(true) }
func (t *target) JumpTo(assetID string)  { t.nav.Navigate(assetID) }
func (t *target) CurrentAssetID() string { return t.nav.CurrentAssetID() }
func (t *target) Stop()                  { t.screen.Stop() }
func (t *target) Play()                  { t.screen.Play() }

// Reload re-reads the settings file, forces a playlist recompute and cuts
// the current item short so the new settings apply at once.
func (t *target) Reload(ctx context.Context) error {
	if err := t.settings.Reload(ctx); err != nil {
		return err
	}
	t.catalog.Bump()
	t.signal.Set()
	return nil
}

// SetupWifi shows the hotspot page. The payload is a JSON object of
// query parameters; anything else shows the page without them.
func (t *target) SetupWifi(payload string) {
	params := map[string]string{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &params); err != nil {
			t.logger.Warn().Err(err).Msg("setup_wifi payload is not an object of strings")
			params = nil
		}
	}
	t.screen.ShowHotspot(params)
}

func (t *target) ShowSplash(string) { t.screen.ShowSplash() }

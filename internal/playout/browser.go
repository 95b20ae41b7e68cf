/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Renderer presents images and web pages on screen.
type Renderer interface {
	ShowImage(ctx context.Context, uri string) error
	ShowWeb(ctx context.Context, uri string) error
	Blank(ctx context.Context) error
}

const blankPage = "data:text/html,<html><body style=\"margin:0;background:%23000\"></body></html>"

// BrowserConfig configures the kiosk browser.
type BrowserConfig struct {
	Bin        string
	ControlURL string // connect to an existing browser instead of launching one
	Headless   bool
	NavTimeout time.Duration
}

// RodRenderer drives a kiosk Chromium over the DevTools protocol.
type RodRenderer struct {
	cfg    BrowserConfig
	logger zerolog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	current  string
}

// NewRodRenderer creates a renderer; the browser starts on first use.
func NewRodRenderer(cfg BrowserConfig, logger zerolog.Logger) *RodRenderer {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	return &RodRenderer{cfg: cfg, logger: logger.With().Str("component", "browser").Logger()}
}

// ShowImage displays uri scaled to fit on a black background.
func (r *RodRenderer) ShowImage(ctx context.Context, uri string) error {
	return r.load(ctx, imagePage(uri), uri)
}

// ShowWeb loads a web page.
func (r *RodRenderer) ShowWeb(ctx context.Context, uri string) error {
	return r.load(ctx, uri, uri)
}

// Blank clears the screen while a media player owns the display.
func (r *RodRenderer) Blank(ctx context.Context) error {
	return r.load(ctx, blankPage, "")
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher.Cleanup()
	}
	r.browser, r.page, r.launcher, r.current = nil, nil, nil, ""
	return err
}

func (r *RodRenderer) load(ctx context.Context, target, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == target && r.page != nil {
		return nil
	}
	if err := r.ensureLocked(); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()
	if err := r.page.Context(navCtx).Navigate(target); err != nil {
		// A dead browser is relaunched on the next call.
		r.resetLocked()
		return fmt.Errorf("navigate: %w", err)
	}
	r.current = target
	if label != "" {
		r.logger.Info().Str("url", label).Msg("current url")
	}
	return nil
}

func (r *RodRenderer) ensureLocked() error {
	if r.page != nil {
		return nil
	}

	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(r.cfg.Headless).
			Set("kiosk").
			Set("noerrdialogs").
			Set("disable-infobars").
			Set("autoplay-policy", "no-user-gesture-required")
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		r.launcher = l
		controlURL = u
		r.logger.Info().Msg("browser launched")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open page: %w", err)
	}
	r.browser = browser
	r.page = page
	return nil
}

func (r *RodRenderer) resetLocked() {
	if r.browser != nil {
		_ = r.browser.Close()
	}
	if r.launcher != nil {
		r.launcher.Kill()
	}
	r.browser, r.page, r.launcher, r.current = nil, nil, nil, ""
}

func imagePage(uri string) string {
	src := uri
	if strings.HasPrefix(uri, "/") {
		src = "file://" + uri
	}
	doc := `<html><body style="margin:0;background:#000;display:flex;align-items:center;justify-content:center;height:100vh">` +
		`<img src="` + html.EscapeString(src) + `" style="max-width:100vw;max-height:100vh;object-fit:contain"></body></html>`
	return "data:text/html," + url.PathEscape(doc)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries the build version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/marquee/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// ReleasesURL is the GitHub API endpoint for the latest release.
const ReleasesURL = "https://api.github.com/repos/friendsincode/marquee/releases/latest"

// UpdateInfo describes the newest known release.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

// Checker polls the release feed. Players are often on metered links, so
// the period is long and failures are only logged at debug.
type Checker struct {
	url    string
	period time.Duration
	client *http.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	info UpdateInfo
}

// NewChecker creates a checker against url (ReleasesURL when empty).
func NewChecker(url string, logger zerolog.Logger) *Checker {
	if url == "" {
		url = ReleasesURL
	}
	return &Checker{
		url:    url,
		period: 12 * time.Hour,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "update-checker").Logger(),
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Run checks immediately and then every period until ctx ends.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if err := c.Check(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("release check failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Info returns the last check result.
func (c *Checker) Info() UpdateInfo {
	if c == nil {
		return UpdateInfo{CurrentVersion: Version}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Check fetches the latest release once.
func (c *Checker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "marquee/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release feed returned %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("decode release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: Compare(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().Str("current", Version).Str("latest", latest).Msg("new version available")
	}
	return nil
}

// Compare orders two semver strings: -1, 0 or 1.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	v, _, _ = strings.Cut(strings.TrimPrefix(v, "v"), "-")
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		fmt.Sscanf(part, "%d", &out[i])
	}
	return out
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrCameraUnavailable is returned when the fleet server refuses or fails to
// start a camera stream.
var ErrCameraUnavailable = errors.New("camera stream unavailable")

const cameraPathMarker = "/cctv/"

// IsCameraURL reports whether uri is a camera feed page served by the fleet
// server, e.g. http://fleet:9000/cctv/<config-id>/.
func IsCameraURL(uri string) bool {
	return strings.Contains(uri, cameraPathMarker)
}

// ParseCameraURL splits a camera feed URL into the server base URL and the
// camera config id.
func ParseCameraURL(uri string) (base, configID string, ok bool) {
	parts := strings.Split(strings.TrimRight(uri, "/"), cameraPathMarker)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimRight(parts[1], "/"), true
}

// CameraFeed talks to the fleet server that transcodes camera feeds to HLS.
type CameraFeed struct {
	client            *http.Client
	logger            zerolog.Logger
	RequestTimeout    time.Duration
	ReadyAttempts     int
	ReadyInterval     time.Duration
	KeepaliveInterval time.Duration
}

// NewCameraFeed creates a client with the stock timings.
func NewCameraFeed(client *http.Client, logger zerolog.Logger) *CameraFeed {
	if client == nil {
		client = &http.Client{}
	}
	return &CameraFeed{
		client:            client,
		logger:            logger.With().Str("component", "camera").Logger(),
		RequestTimeout:    10 * time.Second,
		ReadyAttempts:     15,
		ReadyInterval:     time.Second,
		KeepaliveInterval: 60 * time.Second,
	}
}

// HLSURL returns the playlist URL the server publishes for uri.
func HLSURL(uri string) (string, bool) {
	base, id, ok := ParseCameraURL(uri)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/media/cctv/%s/stream.m3u8", base, id), true
}

func startURL(uri string) (string, bool) {
	base, id, ok := ParseCameraURL(uri)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/api/cctv/%s/request-start/", base, id), true
}

// RequestStart asks the server to start the stream and waits for its HLS
// playlist. A playlist that never appears is not an error; playback proceeds
// and the player retries on its own.
func (f *CameraFeed) RequestStart(ctx context.Context, uri string) (string, error) {
	api, ok := startURL(uri)
	if !ok {
		return "", fmt.Errorf("malformed camera url %q: %w", uri, ErrCameraUnavailable)
	}
	hls, _ := HLSURL(uri)

	status, err := f.post(ctx, api, f.RequestTimeout)
	if err != nil {
		return "", fmt.Errorf("request-start: %v: %w", err, ErrCameraUnavailable)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("request-start returned %d: %w", status, ErrCameraUnavailable)
	}

	for i := 0; i < f.ReadyAttempts; i++ {
		if err := sleepContext(ctx, f.ReadyInterval); err != nil {
			return "", err
		}
		if f.ready(ctx, hls) {
			f.logger.Info().Str("stream", hls).Msg("camera stream ready")
			return hls, nil
		}
	}
	f.logger.Warn().Str("stream", hls).Int("attempts", f.ReadyAttempts).Msg("camera stream not ready, proceeding anyway")
	return hls, nil
}

// Keepalive re-posts request-start every KeepaliveInterval until ctx ends.
// Failures are logged only.
func (f *CameraFeed) Keepalive(ctx context.Context, uri string) {
	api, ok := startURL(uri)
	if !ok {
		return
	}
	ticker := time.NewTicker(f.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.post(ctx, api, 5*time.Second); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn().Err(err).Str("uri", uri).Msg("camera keepalive failed")
				continue
			}
			f.logger.Debug().Str("uri", uri).Msg("camera keepalive sent")
		}
	}
}

func (f *CameraFeed) post(ctx context.Context, target string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (f *CameraFeed) ready(ctx context.Context, hls string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, hls, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
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

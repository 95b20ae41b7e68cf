/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/storage"
)

// ErrAssetUnavailable is returned when an asset cannot be reached.
var ErrAssetUnavailable = errors.New("asset unavailable")

const checkTimeout = 5 * time.Second

// ReachabilityChecker checks whether an asset URI can be shown right now.
type ReachabilityChecker struct {
	client  *http.Client
	objects storage.ObjectStore
	dialer  *net.Dialer
	logger  zerolog.Logger
}

// NewReachabilityChecker creates a checker. objects may be nil when no
// object storage is configured; s3:// assets are then unavailable.
func NewReachabilityChecker(client *http.Client, objects storage.ObjectStore, logger zerolog.Logger) *ReachabilityChecker {
	if client == nil {
		client = &http.Client{Timeout: checkTimeout}
	}
	return &ReachabilityChecker{
		client:  client,
		objects: objects,
		dialer:  &net.Dialer{Timeout: checkTimeout},
		logger:  logger,
	}
}

// Reachable reports whether uri is a local file or a live remote resource.
func (r *ReachabilityChecker) Reachable(ctx context.Context, uri string) bool {
	err := r.Check(ctx, uri)
	if err != nil {
		r.logger.Debug().Err(err).Str("uri", uri).Msg("asset reachability check failed")
	}
	return err == nil
}

// Check returns ErrAssetUnavailable (wrapped) when uri cannot be reached.
func (r *ReachabilityChecker) Check(ctx context.Context, uri string) error {
	if info, err := os.Stat(uri); err == nil && info.Mode().IsRegular() {
		return nil
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%s: %w", uri, ErrAssetUnavailable)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		info, err := os.Stat(u.Path)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%s: %w", uri, ErrAssetUnavailable)
		}
		return nil
	case "http", "https":
		return r.checkHTTP(ctx, uri)
	case "s3":
		return r.checkObject(ctx, uri)
	case "rtsp", "rtmp", "rtmps":
		return r.checkDial(ctx, u)
	case "udp", "srt":
		// Connectionless sources cannot be checked without joining them.
		return nil
	default:
		return fmt.Errorf("%s: unsupported scheme: %w", uri, ErrAssetUnavailable)
	}
}

func (r *ReachabilityChecker) checkHTTP(ctx context.Context, uri string) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status, err := r.request(ctx, http.MethodHead, uri)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = r.request(ctx, http.MethodGet, uri)
	}
	if err != nil {
		return fmt.Errorf("%s: %v: %w", uri, err, ErrAssetUnavailable)
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("%s: status %d: %w", uri, status, ErrAssetUnavailable)
	}
	return nil
}

func (r *ReachabilityChecker) request(ctx context.Context, method, uri string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *ReachabilityChecker) checkObject(ctx context.Context, uri string) error {
	if r.objects == nil {
		return fmt.Errorf("%s: no object store configured: %w", uri, ErrAssetUnavailable)
	}
	bucket, key, err := storage.ParseURI(uri)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrAssetUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := r.objects.Stat(ctx, bucket, key); err != nil {
		return fmt.Errorf("%v: %w", err, ErrAssetUnavailable)
	}
	return nil
}

// checkDial opens a TCP connection to a streaming server.
func (r *ReachabilityChecker) checkDial(ctx context.Context, u *url.URL) error {
	host := u.Host
	if u.Port() == "" {
		port := map[string]string{"rtsp": "554", "rtmp": "1935", "rtmps": "443"}[strings.ToLower(u.Scheme)]
		host = net.JoinHostPort(u.Hostname(), port)
	}
	conn, err := r.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", u.Redacted(), err, ErrAssetUnavailable)
	}
	conn.Close()
	return nil
}

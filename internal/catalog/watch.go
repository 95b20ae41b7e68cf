/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lib/pq"
)

// debounce collapses write bursts (a single UI save touches the db, wal and
// shm files several times) into one change.
const debounce = 250 * time.Millisecond

// WatchFile bumps the change marker when the sqlite file or its journal
// changes. It returns when ctx ends.
func (s *Store) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	base := filepath.Base(path)
	logger := s.logger.With().Str("path", path).Logger()
	logger.Info().Msg("watching catalogue file for changes")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
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
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				logger.Debug().Msg("catalogue file changed")
				s.Bump()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("catalogue watcher error")
		}
	}
}

// ListenPostgres bumps the change marker on every NOTIFY on channel. The
// management UI issues the notification from its save handlers.
func (s *Store) ListenPostgres(ctx context.Context, dsn, channel string) error {
	logger := s.logger.With().Str("channel", channel).Logger()

	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn().Err(err).Msg("catalogue listener connection lost")
		case pq.ListenerEventReconnected:
			// Notifications sent while disconnected are lost.
			logger.Info().Msg("catalogue listener reconnected")
			s.Bump()
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	logger.Info().Msg("listening for catalogue notifications")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect.
			if n != nil {
				logger.Debug().Str("payload", n.Extra).Msg("catalogue change notified")
			}
			s.Bump()
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				logger.Warn().Err(err).Msg("catalogue listener ping failed")
			}
		}
	}
}

// Poll compares the catalogue fingerprint every interval and bumps the
// marker when it differs. Used for backends without change notification.
func (s *Store) Poll(ctx context.Context, interval time.Duration) error {
	last, err := s.Fingerprint(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("initial catalogue fingerprint")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fp, err := s.Fingerprint(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("catalogue fingerprint")
				continue
			}
			if fp != last {
				last = fp
				s.Bump()
			}
		}
	}
}

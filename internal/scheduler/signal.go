/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"sync"
	"time"
)

// Signal is a level-triggered interruption flag shared by the playback loop
// and asynchronous inputs (commands, the deadline timer). Set never blocks.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while set
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set raises the signal and wakes every waiter.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.ch)
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return
	}
	s.set = false
	s.ch = make(chan struct{})
}

// IsSet reports the current level.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until the signal is set, the timeout elapses or ctx ends.
// It reports whether the signal was set. A non-positive timeout polls.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	if s.set {
		s.mu.Unlock()
		return true
	}
	ch := s.ch
	s.mu.Unlock()

	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state keeps the in-memory history of what the screen has shown.
package state

import (
	"sync"
	"time"
)

// Play is one presented item and how its presentation ended.
type Play struct {
	AssetID   string    `json:"asset_id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimetype"`
	StartedAt time.Time `json:"started_at"`
	Outcome   string    `json:"outcome,omitempty"`
}

// Store is a bounded history, oldest entries dropped first.
type Store struct {
	mu     sync.RWMutex
	recent []Play
	limit  int
}

// NewStore creates a history holding at most limit plays.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 128
	}
	return &Store{recent: make([]Play, 0, limit), limit: limit}
}

// Add registers a play.
func (s *Store) Add(play Play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == s.limit {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, play)
}

// Finish records the outcome of the most recent play of assetID.
func (s *Store) Finish(assetID, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].AssetID == assetID {
			s.recent[i].Outcome = outcome
			return
		}
	}
}

// Recent returns up to n plays, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Play {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]Play, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Prune removes entries started before cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.recent[:0]
	for _, p := range s.recent {
		if p.StartedAt.After(cutoff) {
			filtered = append(filtered, p)
		}
	}
	s.recent = filtered
}

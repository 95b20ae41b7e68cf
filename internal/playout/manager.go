/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/models"
)

// Manager owns the media players, one per content kind that needs an
// external process. Kinds without a dedicated player share the video one.
type Manager struct {
	logger zerolog.Logger

	mu      sync.Mutex
	players map[models.ContentKind]MediaPlayer
}

// NewManager creates a player manager with the video player as fallback.
func NewManager(video MediaPlayer, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		players: map[models.ContentKind]MediaPlayer{models.KindVideo: video},
	}
}

// Register sets the player for a content kind.
func (m *Manager) Register(kind models.ContentKind, player MediaPlayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[kind] = player
}

// Player returns the player for kind.
func (m *Manager) Player(kind models.ContentKind) MediaPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[kind]; ok {
		return p
	}
	return m.players[models.KindVideo]
}

// Shutdown stops every player.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	players := make([]MediaPlayer, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	for _, p := range players {
		if err := p.Stop(); err != nil {
			return err
		}
	}
	return nil
}

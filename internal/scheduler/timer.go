/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DeadlineTimer fires once when the current playlist expires. Arming it
// again replaces any pending deadline.
type DeadlineTimer struct {
	mu     sync.Mutex
	timer  *time.Timer
	at     time.Time
	fire   func()
	logger zerolog.Logger
}

// NewDeadlineTimer creates a timer that calls fire when a deadline passes.
func NewDeadlineTimer(fire func(), logger zerolog.Logger) *DeadlineTimer {
	return &DeadlineTimer{fire: fire, logger: logger}
}

// Arm schedules fire for deadline. Deadlines at or before now are not
// armed; the playback loop picks those up on its next schedule check.
func (d *DeadlineTimer) Arm(deadline, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()

	delay := deadline.Sub(now)
	if delay <= 0 {
		return
	}
	d.logger.Info().Dur("in", delay).Time("deadline", deadline).Msg("deadline timer armed")
	d.at = deadline
	d.timer = time.AfterFunc(delay, func() {
		d.logger.Info().Time("deadline", deadline).Msg("deadline reached, interrupting for schedule change")
		d.fire()
	})
}

// Cancel drops any pending deadline.
func (d *DeadlineTimer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Pending returns the armed deadline, if any.
func (d *DeadlineTimer) Pending() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.at, d.timer != nil
}

func (d *DeadlineTimer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.at = time.Time{}
}

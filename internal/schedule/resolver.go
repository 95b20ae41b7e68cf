/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// ErrNoPlayableSlot indicates a slot was selected for deadline purposes but
// none of the candidates has items.
var ErrNoPlayableSlot = errors.New("no playable slot")

// Resolution is the outcome of slot selection.
type Resolution struct {
	// Slot is the selected slot, or nil when nothing is active and no
	// default exists.
	Slot *models.ScheduleSlot
	// Playable is false when Slot was chosen only because no candidate has items.
	Playable bool
	// UsingDefault reports that the default slot was chosen.
	UsingDefault bool

	ActiveEvent *models.ScheduleSlot
	ActiveTime  *models.ScheduleSlot
	Default     *models.ScheduleSlot
}

// Err returns ErrNoPlayableSlot when a slot was selected without items.
func (r Resolution) Err() error {
	if r.Slot != nil && !r.Playable {
		return ErrNoPlayableSlot
	}
	return nil
}

// Resolve picks the slot that should be playing at now. Events beat time
// slots which beat the default. A candidate without items falls through to
// the next one; when none has items the best candidate is still returned.
// skipEventID excludes an event that has just played to completion.
func Resolve(now time.Time, slots []models.ScheduleSlot, skipEventID string) Resolution {
	var res Resolution
	for i := range slots {
		slot := &slots[i]
		switch {
		case slot.IsDefault:
			res.Default = slot
		case slot.IsEvent() && slot.IsCurrentlyActive(now):
			if skipEventID != "" && slot.ID == skipEventID {
				continue
			}
			if res.ActiveEvent == nil {
				res.ActiveEvent = slot
			}
		case slot.IsCurrentlyActive(now):
			if res.ActiveTime == nil {
				res.ActiveTime = slot
			}
		}
	}

	for _, candidate := range []*models.ScheduleSlot{res.ActiveEvent, res.ActiveTime, res.Default} {
		if candidate != nil && len(candidate.Items) > 0 {
			res.Slot = candidate
			res.Playable = true
			break
		}
	}
	if res.Slot == nil {
		for _, candidate := range []*models.ScheduleSlot{res.ActiveEvent, res.ActiveTime, res.Default} {
			if candidate != nil {
				res.Slot = candidate
				break
			}
		}
	}
	res.UsingDefault = res.Slot != nil && res.Slot == res.Default
	return res
}

func nonDefault(slots []models.ScheduleSlot) []models.ScheduleSlot {
	out := make([]models.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if !s.IsDefault {
			out = append(out, s)
		}
	}
	return out
}

func events(slots []models.ScheduleSlot) []models.ScheduleSlot {
	out := make([]models.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if s.IsEvent() && !s.IsDefault {
			out = append(out, s)
		}
	}
	return out
}

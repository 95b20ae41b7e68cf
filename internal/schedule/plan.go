/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// Options tune playlist generation.
type Options struct {
	Shuffle     bool
	SkipEventID string
	Shuffler    Shuffler
}

// Plan is a generated playlist together with its validity.
type Plan struct {
	Entries     []Entry
	Deadline    time.Time
	HasDeadline bool
	NoLoop      bool
	SlotID      string
	SlotName    string
	Legacy      bool
}

// Generate builds the playlist for now. With no slots configured the
// asset windows drive playback instead of the schedule.
func Generate(now time.Time, slots []models.ScheduleSlot, assets []models.Asset, opts Options) Plan {
	if len(slots) == 0 {
		entries, deadline, ok := BuildLegacyPlaylist(now, assets, opts.Shuffle, opts.Shuffler)
		return Plan{Entries: entries, Deadline: deadline, HasDeadline: ok, Legacy: true}
	}

	res := Resolve(now, slots, opts.SkipEventID)
	if res.Slot == nil {
		deadline, ok := NextSlotStart(now, nonDefault(slots))
		return Plan{Deadline: deadline, HasDeadline: ok}
	}

	deadline, ok := Deadline(now, res.Slot, slots)
	return Plan{
		Entries:     BuildPlaylist(*res.Slot, opts.Shuffle, opts.Shuffler),
		Deadline:    deadline,
		HasDeadline: ok,
		NoLoop:      res.Slot.NoLoop,
		SlotID:      res.Slot.ID,
		SlotName:    res.Slot.Name,
	}
}

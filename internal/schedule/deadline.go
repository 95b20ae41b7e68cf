/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// weekSearchDays covers today plus a full week so every weekday is seen once.
const weekSearchDays = 8

// NextSlotStart returns the nearest moment after now at which any of slots
// begins. Events honour their date constraint; the search for an event that
// starts in the future begins on its start date.
func NextSlotStart(now time.Time, slots []models.ScheduleSlot) (time.Time, bool) {
	var best time.Time
	found := false
	for _, slot := range slots {
		candidate, ok := nextStart(now, slot)
		if ok && (!found || candidate.Before(best)) {
			best = candidate
			found = true
		}
	}
	return best, found
}

func nextStart(now time.Time, slot models.ScheduleSlot) (time.Time, bool) {
	days := slot.Days()
	event := slot.IsEvent()

	from := now
	if event && slot.StartDate != nil {
		if first := slot.StartDate.At(0, now.Location()); first.After(now) {
			from = first
		}
	}
	for offset := 0; offset < weekSearchDays; offset++ {
		day := from.AddDate(0, 0, offset)
		if event {
			if slot.EndDate != nil && models.DateOf(day).After(*slot.EndDate) {
				break
			}
			if !slot.MatchesDate(models.DateOf(day)) {
				continue
			}
			// Events without weekdays run on every day their dates allow.
			if len(days) > 0 && !containsDay(days, models.ISOWeekday(day)) {
				continue
			}
		} else if !containsDay(days, models.ISOWeekday(day)) {
			continue
		}
		if candidate := slot.TimeFrom.On(day); candidate.After(now) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// Deadline returns when the selection made for active stops being valid.
// A nil active slot yields the next start among non-default slots.
func Deadline(now time.Time, active *models.ScheduleSlot, slots []models.ScheduleSlot) (time.Time, bool) {
	if active == nil || active.IsDefault {
		return NextSlotStart(now, nonDefault(slots))
	}

	if active.IsEvent() {
		// Event ends already encode the elapsed content duration.
		return active.TimeTo.On(now), true
	}

	base := now
	if active.IsOvernight() && models.ClockOf(now) >= active.TimeFrom {
		base = now.AddDate(0, 0, 1)
	}
	end := active.TimeTo.On(base)

	if next, ok := NextSlotStart(now, events(slots)); ok && next.Before(end) {
		return next, true
	}
	return end, true
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

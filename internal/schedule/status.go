/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// SlotSummary is the externally visible shape of a slot.
type SlotSummary struct {
	ID         string `json:"slot_id"`
	Name       string `json:"name"`
	SlotType   string `json:"slot_type"`
	TimeFrom   string `json:"time_from"`
	TimeTo     string `json:"time_to"`
	DaysOfWeek []int  `json:"days_of_week"`
	IsDefault  bool   `json:"is_default"`
	NoLoop     bool   `json:"no_loop"`
	Items      int    `json:"items"`
}

// Summarize converts a slot for display.
func Summarize(s models.ScheduleSlot) SlotSummary {
	return SlotSummary{
		ID:         s.ID,
		Name:       s.Name,
		SlotType:   string(s.SlotType),
		TimeFrom:   s.TimeFrom.String(),
		TimeTo:     s.TimeTo.String(),
		DaysOfWeek: s.Days(),
		IsDefault:  s.IsDefault,
		NoLoop:     s.NoLoop,
		Items:      len(s.Items),
	}
}

// Status describes the schedule as seen at a moment.
type Status struct {
	Enabled      bool         `json:"schedule_enabled"`
	CurrentSlot  *SlotSummary `json:"current_slot"`
	NextChangeAt *time.Time   `json:"next_change_at"`
	TotalSlots   int          `json:"total_slots"`
	UsingDefault bool         `json:"using_default"`
}

// StatusAt reports the active slot without item fall-through: the default
// is reported, with UsingDefault set, only when no event or time slot matches.
func StatusAt(now time.Time, slots []models.ScheduleSlot) Status {
	if len(slots) == 0 {
		return Status{}
	}
	res := Resolve(now, slots, "")
	active := res.ActiveEvent
	if active == nil {
		active = res.ActiveTime
	}
	status := Status{Enabled: true, TotalSlots: len(slots)}
	if active == nil && res.Default != nil {
		active = res.Default
		status.UsingDefault = true
	}
	if active != nil {
		summary := Summarize(*active)
		status.CurrentSlot = &summary
	}
	if next, ok := Deadline(now, active, slots); ok {
		status.NextChangeAt = &next
	}
	return status
}

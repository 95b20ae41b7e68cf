/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// SlotType enumerates schedule slot kinds.
type SlotType string

const (
	SlotTypeDefault SlotType = "default"
	SlotTypeTime    SlotType = "time"
	SlotTypeEvent   SlotType = "event"
)

// AllDays is the weekday set used when none is stored or the stored one is malformed.
var AllDays = []int{1, 2, 3, 4, 5, 6, 7}

// ErrInvalidDays is returned when a stored weekday list cannot be parsed.
var ErrInvalidDays = errors.New("days_of_week must be a JSON array of integers 1-7")

// ScheduleSlot is a time-of-day or event window in the playback schedule.
// Overnight slots (TimeFrom > TimeTo) wrap past midnight; DaysOfWeek then
// refers to the day the slot starts.
type ScheduleSlot struct {
	ID         string    `gorm:"column:slot_id;type:varchar(64);primaryKey"`
	Name       string
	SlotType   SlotType  `gorm:"type:varchar(10);index"`
	TimeFrom   TimeOfDay `gorm:"type:varchar(8)"`
	TimeTo     TimeOfDay `gorm:"type:varchar(8)"`
	DaysOfWeek string    `gorm:"type:varchar(32)"` // JSON array of ISO weekdays
	IsDefault  bool      `gorm:"index"`
	StartDate  *Date     `gorm:"type:varchar(10)"`
	EndDate    *Date     `gorm:"type:varchar(10)"`
	NoLoop     bool
	SortOrder  int

	Items []ScheduleSlotItem `gorm:"foreignKey:SlotID;references:ID"`
}

// TableName keeps the catalogue compatible with existing player databases.
func (ScheduleSlot) TableName() string { return "schedule_slots" }

// ParseDays decodes DaysOfWeek. An unset value means every day; a malformed
// value also yields every day together with ErrInvalidDays.
func (s ScheduleSlot) ParseDays() ([]int, error) {
	if s.DaysOfWeek == "" {
		return AllDays, nil
	}
	var days []int
	if err := json.Unmarshal([]byte(s.DaysOfWeek), &days); err != nil {
		return AllDays, fmt.Errorf("slot %s: %w", s.ID, ErrInvalidDays)
	}
	return days, nil
}

// Days returns the weekday set, falling back to every day on parse errors.
func (s ScheduleSlot) Days() []int {
	days, _ := s.ParseDays()
	return days
}

// IsOvernight reports whether the slot wraps past midnight.
func (s ScheduleSlot) IsOvernight() bool {
	return s.TimeFrom > s.TimeTo
}

// IsEvent reports whether the slot is a one-shot or recurring event.
func (s ScheduleSlot) IsEvent() bool {
	return s.SlotType == SlotTypeEvent
}

// IsCurrentlyActive reports whether the slot covers now. The default slot is
// a fallback and never reports itself as matched.
func (s ScheduleSlot) IsCurrentlyActive(now time.Time) bool {
	if s.IsDefault {
		return false
	}
	clock := ClockOf(now)
	weekday := ISOWeekday(now)

	if s.IsEvent() {
		return s.eventActive(now, clock, weekday)
	}

	days := s.Days()
	if !s.IsOvernight() {
		return containsDay(days, weekday) && s.TimeFrom <= clock && clock < s.TimeTo
	}
	if clock >= s.TimeFrom {
		return containsDay(days, weekday)
	}
	if clock < s.TimeTo {
		yesterday := weekday - 1
		if yesterday == 0 {
			yesterday = 7
		}
		return containsDay(days, yesterday)
	}
	return false
}

func (s ScheduleSlot) eventActive(now time.Time, clock TimeOfDay, weekday int) bool {
	if !s.MatchesDate(DateOf(now)) {
		return false
	}
	days := s.Days()
	if len(days) > 0 && !containsDay(days, weekday) {
		return false
	}
	return s.TimeFrom <= clock && clock < s.TimeTo
}

// MatchesDate applies an event's date constraint: a range when both bounds
// are set, a single day when only the start is set, an upper bound when only
// the end is set.
func (s ScheduleSlot) MatchesDate(today Date) bool {
	switch {
	case s.StartDate != nil && s.EndDate != nil:
		return !today.Before(*s.StartDate) && !today.After(*s.EndDate)
	case s.StartDate != nil:
		return today == *s.StartDate
	case s.EndDate != nil:
		return !today.After(*s.EndDate)
	}
	return true
}

// SortedItems returns the slot's items ordered by sort order.
func (s ScheduleSlot) SortedItems() []ScheduleSlotItem {
	items := append([]ScheduleSlotItem(nil), s.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortOrder < items[j].SortOrder
	})
	return items
}

// ScheduleSlotItem links an asset into a slot with optional overrides.
type ScheduleSlotItem struct {
	ID               string `gorm:"column:item_id;type:varchar(64);primaryKey"`
	SlotID           string `gorm:"type:varchar(64);uniqueIndex:idx_slot_asset"`
	AssetID          string `gorm:"type:varchar(64);uniqueIndex:idx_slot_asset"`
	Asset            *Asset `gorm:"foreignKey:AssetID;references:ID"`
	SortOrder        int
	DurationOverride *int64
	Volume           *int // 0-100, nil keeps the TV's current level
	Mute             bool
}

// TableName keeps the catalogue compatible with existing player databases.
func (ScheduleSlotItem) TableName() string { return "schedule_slot_items" }

// EffectiveDuration is the override when present, else the asset's duration.
func (i ScheduleSlotItem) EffectiveDuration() int64 {
	if i.DurationOverride != nil {
		return *i.DurationOverride
	}
	if i.Asset != nil {
		return i.Asset.Duration
	}
	return 0
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

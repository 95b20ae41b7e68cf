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

var (
	// ErrInvalidSlot wraps every slot validation failure.
	ErrInvalidSlot = errors.New("invalid schedule slot")
	// ErrDefaultExists is returned when a second default slot is created.
	ErrDefaultExists = errors.New("a default slot already exists")
)

// EncodeDays validates a weekday list and returns its stored form:
// sorted, de-duplicated JSON.
func EncodeDays(days []int) (string, error) {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 7 {
			return "", fmt.Errorf("%w: invalid day %d, must be 1 (Mon) to 7 (Sun)", ErrInvalidSlot, d)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Normalize enforces the kind-derived flags: a default-kind slot is the
// default, an event is never default and never loops.
func (s *ScheduleSlot) Normalize() {
	if s.SlotType == "" {
		s.SlotType = SlotTypeTime
	}
	switch s.SlotType {
	case SlotTypeDefault:
		s.IsDefault = true
	case SlotTypeEvent:
		s.IsDefault = false
		s.NoLoop = true
	}
}

// Validate checks a slot on its own. Cross-slot rules (single default,
// overlap) are checked by ValidateAgainst.
func (s *ScheduleSlot) Validate() error {
	switch s.SlotType {
	case SlotTypeDefault, SlotTypeTime, SlotTypeEvent:
	default:
		return fmt.Errorf("%w: unknown slot type %q", ErrInvalidSlot, s.SlotType)
	}
	if s.SlotType == SlotTypeEvent && s.IsDefault {
		return fmt.Errorf("%w: event slots cannot be marked as default", ErrInvalidSlot)
	}
	if _, err := s.ParseDays(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if s.IsDefault || s.IsEvent() {
		return nil
	}
	if s.TimeFrom == s.TimeTo {
		return fmt.Errorf("%w: time_from and time_to must be different", ErrInvalidSlot)
	}
	return nil
}

// ValidateAgainst checks s against the other stored slots: at most one
// default, and no time slot overlapping another on a shared day.
func (s *ScheduleSlot) ValidateAgainst(others []ScheduleSlot) error {
	for _, other := range others {
		if other.ID == s.ID {
			continue
		}
		if s.IsDefault && other.IsDefault {
			return ErrDefaultExists
		}
		if s.IsDefault || s.IsEvent() || other.IsDefault || other.SlotType != SlotTypeTime {
			continue
		}
		if !sharesDay(s.Days(), other.Days()) {
			continue
		}
		if TimeRangesOverlap(s.TimeFrom, s.TimeTo, other.TimeFrom, other.TimeTo) {
			return fmt.Errorf("%w: time range overlaps with slot %q (%s-%s) on shared days",
				ErrInvalidSlot, other.Name, other.TimeFrom, other.TimeTo)
		}
	}
	return nil
}

// TimeRangesOverlap compares two minute ranges, splitting overnight ranges
// into an evening and a morning segment.
func TimeRangesOverlap(aFrom, aTo, bFrom, bTo TimeOfDay) bool {
	for _, a := range minuteSegments(aFrom, aTo) {
		for _, b := range minuteSegments(bFrom, bTo) {
			if a[0] < b[1] && b[0] < a[1] {
				return true
			}
		}
	}
	return false
}

func minuteSegments(from, to TimeOfDay) [][2]int {
	f, t := from.Minutes(), to.Minutes()
	if f < t {
		return [][2]int{{f, t}}
	}
	return [][2]int{{f, 24 * 60}, {0, t}}
}

// RecalculateEventEnd sets an event's end to its start plus the sum of its
// items' effective durations.
func (s *ScheduleSlot) RecalculateEventEnd() {
	if !s.IsEvent() {
		return
	}
	var total int64
	for _, item := range s.Items {
		total += item.EffectiveDuration()
	}
	s.TimeTo = s.TimeFrom.Add(time.Duration(total) * time.Second)
}

func sharesDay(a, b []int) bool {
	for _, d := range a {
		if containsDay(b, d) {
			return true
		}
	}
	return false
}

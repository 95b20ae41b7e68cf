package models

import (
	"errors"
	"testing"
	"time"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestTimeSlotActivity(t *testing.T) {
	// 2026-03-02 is a Monday.
	daytime := ScheduleSlot{ID: "day", SlotType: SlotTypeTime, TimeFrom: MustTimeOfDay("09:00"), TimeTo: MustTimeOfDay("12:00"), DaysOfWeek: "[1]"}
	overnight := ScheduleSlot{ID: "night", SlotType: SlotTypeTime, TimeFrom: MustTimeOfDay("22:00"), TimeTo: MustTimeOfDay("06:00"), DaysOfWeek: "[1]"}

	tests := []struct {
		name string
		slot ScheduleSlot
		now  string
		want bool
	}{
		{"inside window", daytime, "2026-03-02 09:00", true},
		{"end is exclusive", daytime, "2026-03-02 12:00", false},
		{"wrong weekday", daytime, "2026-03-03 10:00", false},
		{"overnight evening on start day", overnight, "2026-03-02 23:00", true},
		{"overnight morning after start day", overnight, "2026-03-03 05:00", true},
		{"overnight morning on start day", overnight, "2026-03-02 05:00", false},
		{"overnight gap", overnight, "2026-03-03 07:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.IsCurrentlyActive(at(t, tt.now)); got != tt.want {
				t.Fatalf("IsCurrentlyActive(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestDefaultSlotNeverActive(t *testing.T) {
	slot := ScheduleSlot{ID: "d", SlotType: SlotTypeDefault, IsDefault: true, TimeFrom: 0, TimeTo: MustTimeOfDay("23:59")}
	if slot.IsCurrentlyActive(at(t, "2026-03-02 10:00")) {
		t.Fatal("default slot reported itself active")
	}
}

func TestEventDateConstraints(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 4}
	end := Date{Year: 2026, Month: time.March, Day: 6}
	base := ScheduleSlot{ID: "e", SlotType: SlotTypeEvent, NoLoop: true, TimeFrom: MustTimeOfDay("10:00"), TimeTo: MustTimeOfDay("10:30"), DaysOfWeek: "[]"}

	oneShot := base
	oneShot.StartDate = &d
	ranged := base
	ranged.StartDate = &d
	ranged.EndDate = &end
	until := base
	until.EndDate = &end

	tests := []struct {
		name string
		slot ScheduleSlot
		now  string
		want bool
	}{
		{"one-shot on its date", oneShot, "2026-03-04 10:10", true},
		{"one-shot day before", oneShot, "2026-03-03 10:10", false},
		{"one-shot day after", oneShot, "2026-03-05 10:10", false},
		{"range inside", ranged, "2026-03-05 10:00", true},
		{"range past end", ranged, "2026-03-07 10:00", false},
		{"until before end", until, "2026-03-01 10:00", true},
		{"until after end", until, "2026-03-07 10:00", false},
		{"outside time window", oneShot, "2026-03-04 10:30", false},
		{"unconstrained", base, "2026-09-09 10:05", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.IsCurrentlyActive(at(t, tt.now)); got != tt.want {
				t.Fatalf("IsCurrentlyActive(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestMalformedDaysFallBackToAllDays(t *testing.T) {
	slot := ScheduleSlot{ID: "x", DaysOfWeek: "not json"}
	days, err := slot.ParseDays()
	if !errors.Is(err, ErrInvalidDays) {
		t.Fatalf("expected ErrInvalidDays, got %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("expected all days, got %v", days)
	}
}

func TestEffectiveDuration(t *testing.T) {
	override := int64(15)
	asset := &Asset{ID: "a", Duration: 30}

	if got := (ScheduleSlotItem{Asset: asset}).EffectiveDuration(); got != 30 {
		t.Fatalf("without override = %d, want 30", got)
	}
	item := ScheduleSlotItem{Asset: asset, DurationOverride: &override}
	if got := item.EffectiveDuration(); got != 15 {
		t.Fatalf("with override = %d, want 15", got)
	}
	item.DurationOverride = nil
	if got := item.EffectiveDuration(); got != 30 {
		t.Fatalf("after clearing override = %d, want 30", got)
	}
}

func TestNormalizeAndValidate(t *testing.T) {
	event := ScheduleSlot{SlotType: SlotTypeEvent, IsDefault: true, TimeFrom: MustTimeOfDay("10:00")}
	event.Normalize()
	if event.IsDefault || !event.NoLoop {
		t.Fatalf("event not normalized: default=%v no_loop=%v", event.IsDefault, event.NoLoop)
	}

	def := ScheduleSlot{SlotType: SlotTypeDefault}
	def.Normalize()
	if !def.IsDefault {
		t.Fatal("default kind must set IsDefault")
	}

	same := ScheduleSlot{SlotType: SlotTypeTime, TimeFrom: MustTimeOfDay("08:00"), TimeTo: MustTimeOfDay("08:00")}
	if err := same.Validate(); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot for from == to, got %v", err)
	}
}

func TestValidateAgainstOverlap(t *testing.T) {
	existing := []ScheduleSlot{
		{ID: "n", Name: "night", SlotType: SlotTypeTime, TimeFrom: MustTimeOfDay("22:00"), TimeTo: MustTimeOfDay("06:00"), DaysOfWeek: "[1,2]"},
		{ID: "d", Name: "fallback", SlotType: SlotTypeDefault, IsDefault: true},
	}

	early := ScheduleSlot{ID: "x", SlotType: SlotTypeTime, TimeFrom: MustTimeOfDay("05:00"), TimeTo: MustTimeOfDay("07:00"), DaysOfWeek: "[2]"}
	if err := early.ValidateAgainst(existing); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	otherDay := early
	otherDay.DaysOfWeek = "[5]"
	if err := otherDay.ValidateAgainst(existing); err != nil {
		t.Fatalf("no shared day, got %v", err)
	}

	second := ScheduleSlot{ID: "y", SlotType: SlotTypeDefault, IsDefault: true}
	if err := second.ValidateAgainst(existing); !errors.Is(err, ErrDefaultExists) {
		t.Fatalf("expected ErrDefaultExists, got %v", err)
	}
}

func TestEncodeDays(t *testing.T) {
	got, err := EncodeDays([]int{5, 1, 5, 3})
	if err != nil {
		t.Fatalf("EncodeDays: %v", err)
	}
	if got != "[1,3,5]" {
		t.Fatalf("EncodeDays = %s, want [1,3,5]", got)
	}
	if _, err := EncodeDays([]int{0}); err == nil {
		t.Fatal("expected error for day 0")
	}
}

func TestRecalculateEventEnd(t *testing.T) {
	override := int64(90)
	slot := ScheduleSlot{
		SlotType: SlotTypeEvent,
		TimeFrom: MustTimeOfDay("23:59"),
		Items: []ScheduleSlotItem{
			{Asset: &Asset{Duration: 30}},
			{Asset: &Asset{Duration: 600}, DurationOverride: &override},
		},
	}
	slot.RecalculateEventEnd()
	if want := MustTimeOfDay("00:01:00"); slot.TimeTo != want {
		t.Fatalf("TimeTo = %s, want %s", slot.TimeTo, want)
	}
}

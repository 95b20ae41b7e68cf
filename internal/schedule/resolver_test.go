package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func item(assetID string, order int) models.ScheduleSlotItem {
	return models.ScheduleSlotItem{
		ID:        "item-" + assetID,
		AssetID:   assetID,
		SortOrder: order,
		Asset:     &models.Asset{ID: assetID, Name: assetID, MimeType: "image", Duration: 10, IsEnabled: true},
	}
}

func timeSlot(id, from, to, days string, items ...models.ScheduleSlotItem) models.ScheduleSlot {
	return models.ScheduleSlot{
		ID: id, Name: id, SlotType: models.SlotTypeTime,
		TimeFrom: models.MustTimeOfDay(from), TimeTo: models.MustTimeOfDay(to),
		DaysOfWeek: days, Items: items,
	}
}

func eventSlot(id, from, to string, items ...models.ScheduleSlotItem) models.ScheduleSlot {
	return models.ScheduleSlot{
		ID: id, Name: id, SlotType: models.SlotTypeEvent, NoLoop: true,
		TimeFrom: models.MustTimeOfDay(from), TimeTo: models.MustTimeOfDay(to),
		DaysOfWeek: "[]", Items: items,
	}
}

func defaultSlot(items ...models.ScheduleSlotItem) models.ScheduleSlot {
	return models.ScheduleSlot{
		ID: "default", Name: "default", SlotType: models.SlotTypeDefault, IsDefault: true,
		TimeFrom: 0, TimeTo: models.MustTimeOfDay("23:59"), Items: items,
	}
}

func TestResolvePriority(t *testing.T) {
	// 2026-03-02 is a Monday.
	now := mustTime(t, "2026-03-02 10:05:00")

	tests := []struct {
		name         string
		slots        []models.ScheduleSlot
		skip         string
		wantSlot     string
		wantPlayable bool
		wantDefault  bool
	}{
		{
			name: "event beats time",
			slots: []models.ScheduleSlot{
				timeSlot("morning", "09:00", "12:00", "[1]", item("a", 0)),
				eventSlot("promo", "10:00", "10:30", item("b", 0)),
				defaultSlot(item("c", 0)),
			},
			wantSlot: "promo", wantPlayable: true,
		},
		{
			name: "empty event falls through to time",
			slots: []models.ScheduleSlot{
				timeSlot("morning", "09:00", "12:00", "[1]", item("a", 0)),
				eventSlot("promo", "10:00", "10:30"),
			},
			wantSlot: "morning", wantPlayable: true,
		},
		{
			name: "skipped event resumes time",
			slots: []models.ScheduleSlot{
				timeSlot("morning", "09:00", "12:00", "[1]", item("a", 0)),
				eventSlot("promo", "10:00", "10:30", item("b", 0)),
			},
			skip:     "promo",
			wantSlot: "morning", wantPlayable: true,
		},
		{
			name: "default when nothing matches",
			slots: []models.ScheduleSlot{
				timeSlot("evening", "18:00", "20:00", "[1]", item("a", 0)),
				defaultSlot(item("c", 0)),
			},
			wantSlot: "default", wantPlayable: true, wantDefault: true,
		},
		{
			name: "no items anywhere keeps best candidate",
			slots: []models.ScheduleSlot{
				timeSlot("morning", "09:00", "12:00", "[1]"),
				defaultSlot(),
			},
			wantSlot: "morning", wantPlayable: false,
		},
		{
			name: "nothing active and no default",
			slots: []models.ScheduleSlot{
				timeSlot("evening", "18:00", "20:00", "[1]", item("a", 0)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(now, tt.slots, tt.skip)
			got := ""
			if res.Slot != nil {
				got = res.Slot.ID
			}
			if got != tt.wantSlot {
				t.Fatalf("slot = %q, want %q", got, tt.wantSlot)
			}
			if tt.wantSlot == "" {
				return
			}
			if res.Playable != tt.wantPlayable {
				t.Fatalf("playable = %v, want %v", res.Playable, tt.wantPlayable)
			}
			if res.UsingDefault != tt.wantDefault {
				t.Fatalf("using default = %v, want %v", res.UsingDefault, tt.wantDefault)
			}
			if !tt.wantPlayable && !errors.Is(res.Err(), ErrNoPlayableSlot) {
				t.Fatalf("expected ErrNoPlayableSlot, got %v", res.Err())
			}
		})
	}
}

func TestStatusUsingDefault(t *testing.T) {
	now := mustTime(t, "2026-03-02 07:00:00")
	slots := []models.ScheduleSlot{
		timeSlot("morning", "09:00", "12:00", "[1,2,3,4,5]", item("a", 0)),
		defaultSlot(item("c", 0)),
	}

	status := StatusAt(now, slots)
	if !status.Enabled || status.TotalSlots != 2 {
		t.Fatalf("unexpected status header: %+v", status)
	}
	if !status.UsingDefault || status.CurrentSlot == nil || status.CurrentSlot.ID != "default" {
		t.Fatalf("expected default slot in use, got %+v", status)
	}
	if status.NextChangeAt == nil || !status.NextChangeAt.Equal(mustTime(t, "2026-03-02 09:00:00")) {
		t.Fatalf("next change = %v, want 09:00 today", status.NextChangeAt)
	}
	for _, s := range slots {
		if s.IsDefault && s.IsCurrentlyActive(now) {
			t.Fatal("default slot must not report itself as active")
		}
	}
}

func TestStatusWithoutSlots(t *testing.T) {
	status := StatusAt(time.Now(), nil)
	if status.Enabled || status.CurrentSlot != nil || status.UsingDefault {
		t.Fatalf("expected disabled status, got %+v", status)
	}
}

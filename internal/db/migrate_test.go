package db

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/marquee/internal/models"
)

func TestMigrateNormalizesLegacySlots(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	legacy := []models.ScheduleSlot{
		{ID: "d", Name: "fallback", IsDefault: true, TimeFrom: models.MustTimeOfDay("00:00"), TimeTo: models.MustTimeOfDay("00:00")},
		{ID: "t", Name: "morning", TimeFrom: models.MustTimeOfDay("08:00"), TimeTo: models.MustTimeOfDay("12:00")},
		{ID: "e", Name: "launch", SlotType: models.SlotTypeEvent, IsDefault: true, TimeFrom: models.MustTimeOfDay("09:00"), TimeTo: models.MustTimeOfDay("09:10")},
	}
	if err := database.Create(&legacy).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Simulate rows written before slot_type existed.
	if err := database.Exec("UPDATE schedule_slots SET slot_type = '' WHERE slot_id IN ('d','t')").Error; err != nil {
		t.Fatalf("blank slot types: %v", err)
	}

	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	tests := []struct {
		id        string
		slotType  models.SlotType
		isDefault bool
		noLoop    bool
	}{
		{"d", models.SlotTypeDefault, true, false},
		{"t", models.SlotTypeTime, false, false},
		{"e", models.SlotTypeEvent, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var slot models.ScheduleSlot
			if err := database.First(&slot, "slot_id = ?", tt.id).Error; err != nil {
				t.Fatalf("load: %v", err)
			}
			if slot.SlotType != tt.slotType || slot.IsDefault != tt.isDefault || slot.NoLoop != tt.noLoop {
				t.Fatalf("slot = %s default=%v noloop=%v", slot.SlotType, slot.IsDefault, slot.NoLoop)
			}
		})
	}
}

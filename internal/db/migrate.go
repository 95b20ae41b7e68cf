/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/marquee/internal/models"
)

// Migrate applies the catalogue schema using GORM auto-migrate, then
// repairs rows written by older management UIs.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Asset{},
		&models.ScheduleSlot{},
		&models.ScheduleSlotItem{},
		&models.PlaybackLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := normalizeLegacySlots(database); err != nil {
		return err
	}
	return nil
}

// MigratePlaybackLog creates the viewlog table in a standalone playback
// log database.
func MigratePlaybackLog(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.PlaybackLog{}); err != nil {
		return fmt.Errorf("auto-migrate playback log: %w", err)
	}
	return nil
}

// normalizeLegacySlots fills in slot_type for rows that predate it and
// re-applies the kind-derived flags.
func normalizeLegacySlots(database *gorm.DB) error {
	if err := database.Model(&models.ScheduleSlot{}).
		Where("(slot_type IS NULL OR slot_type = '') AND is_default = ?", true).
		Update("slot_type", models.SlotTypeDefault).Error; err != nil {
		return fmt.Errorf("backfill default slot type: %w", err)
	}
	if err := database.Model(&models.ScheduleSlot{}).
		Where("slot_type IS NULL OR slot_type = ''").
		Update("slot_type", models.SlotTypeTime).Error; err != nil {
		return fmt.Errorf("backfill time slot type: %w", err)
	}
	if err := database.Model(&models.ScheduleSlot{}).
		Where("slot_type = ?", models.SlotTypeEvent).
		Updates(map[string]any{"no_loop": true, "is_default": false}).Error; err != nil {
		return fmt.Errorf("normalize event slots: %w", err)
	}
	return nil
}

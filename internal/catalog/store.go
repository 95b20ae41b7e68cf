/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog is the gorm-backed store of assets, schedule slots and the
// playback log. The management UI writes the same tables; the store only
// tracks that something changed so the scheduler can recompute.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/marquee/internal/models"
)

var (
	// ErrAssetNotFound is returned when an asset id is unknown.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrSlotNotFound is returned when a slot id is unknown.
	ErrSlotNotFound = errors.New("schedule slot not found")
)

// Store reads and writes the catalogue.
type Store struct {
	db     *gorm.DB
	logs   *gorm.DB // playback log; db unless UsePlaybackLog was called
	logger zerolog.Logger
	marker atomic.Int64
}

// NewStore wraps an open, migrated database.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	s := &Store{
		db:     db,
		logs:   db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
	s.marker.Store(time.Now().UnixNano())
	return s
}

// ChangeMarker returns a value that changes after every catalogue write,
// local or observed through a watcher.
func (s *Store) ChangeMarker(context.Context) (int64, error) {
	return s.marker.Load(), nil
}

// Bump records an external catalogue change.
func (s *Store) Bump() {
	s.marker.Add(1)
}

// ListSlots returns every slot with its items and their assets, in sort order.
func (s *Store) ListSlots(ctx context.Context) ([]models.ScheduleSlot, error) {
	var slots []models.ScheduleSlot
	err := s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC") }).
		Preload("Items.Asset").
		Order("sort_order ASC").Order("time_from ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// GetSlot loads one slot with its items.
func (s *Store) GetSlot(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	var slot models.ScheduleSlot
	err := s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC") }).
		Preload("Items.Asset").
		First(&slot, "slot_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return &slot, nil
}

// ListAssets returns assets in play order.
func (s *Store) ListAssets(ctx context.Context, enabledOnly bool) ([]models.Asset, error) {
	q := s.db.WithContext(ctx).Order("play_order ASC")
	if enabledOnly {
		q = q.Where("is_enabled = ?", true)
	}
	var assets []models.Asset
	if err := q.Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// GetAsset loads one asset.
func (s *Store) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).First(&asset, "asset_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &asset, nil
}

// SaveAsset inserts or replaces an asset. An empty id is generated.
func (s *Store) SaveAsset(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(asset).Error; err != nil {
		return fmt.Errorf("save asset %s: %w", asset.ID, err)
	}
	s.Bump()
	return nil
}

// DeleteAsset removes an asset and its slot memberships.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ?", id).Delete(&models.ScheduleSlotItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("asset_id = ?", id).Delete(&models.Asset{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAssetNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	s.Bump()
	return nil
}

// SaveSlot validates and stores a slot without touching its items.
// Kind-derived flags are normalized first; an empty id is generated.
func (s *Store) SaveSlot(ctx context.Context, slot *models.ScheduleSlot) error {
	slot.Normalize()
	if err := slot.Validate(); err != nil {
		return err
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var others []models.ScheduleSlot
		if err := tx.Where("slot_id <> ?", slot.ID).Find(&others).Error; err != nil {
			return err
		}
		if err := slot.ValidateAgainst(others); err != nil {
			return err
		}
		return tx.Omit("Items").Clauses(clause.OnConflict{UpdateAll: true}).Create(slot).Error
	})
	if err != nil {
		return fmt.Errorf("save slot %q: %w", slot.Name, err)
	}
	s.Bump()
	return nil
}

// DeleteSlot removes a slot and its items.
func (s *Store) DeleteSlot(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slot_id = ?", id).Delete(&models.ScheduleSlotItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("slot_id = ?", id).Delete(&models.ScheduleSlot{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSlotNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	s.Bump()
	return nil
}

// SetSlotItems replaces a slot's items in the given order. For events the
// end time is recomputed from the item durations.
func (s *Store) SetSlotItems(ctx context.Context, slotID string, items []models.ScheduleSlotItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot models.ScheduleSlot
		if err := tx.First(&slot, "slot_id = ?", slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSlotNotFound
			}
			return err
		}

		if err := tx.Where("slot_id = ?", slotID).Delete(&models.ScheduleSlotItem{}).Error; err != nil {
			return err
		}

		slot.Items = slot.Items[:0]
		for i := range items {
			item := items[i]
			item.SlotID = slotID
			item.SortOrder = i
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.Asset == nil {
				var asset models.Asset
				if err := tx.First(&asset, "asset_id = ?", item.AssetID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: %s", ErrAssetNotFound, item.AssetID)
					}
					return err
				}
				item.Asset = &asset
			}
			slot.Items = append(slot.Items, item)
		}
		if len(slot.Items) > 0 {
			if err := tx.Omit("Asset").Create(&slot.Items).Error; err != nil {
				return err
			}
		}

		if slot.IsEvent() {
			slot.RecalculateEventEnd()
			if err := tx.Model(&models.ScheduleSlot{}).Where("slot_id = ?", slotID).
				Update("time_to", slot.TimeTo).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set items for slot %s: %w", slotID, err)
	}
	s.Bump()
	return nil
}

// UsePlaybackLog moves playback log reads and writes to a separate
// database. Call it before the store is shared.
func (s *Store) UsePlaybackLog(db *gorm.DB) {
	s.logs = db
}

// AppendPlaybackLog records one presentation. It does not move the change
// marker.
func (s *Store) AppendPlaybackLog(ctx context.Context, entry models.PlaybackLog) error {
	if err := s.logs.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append playback log: %w", err)
	}
	return nil
}

// RecentPlayback returns the newest log entries first.
func (s *Store) RecentPlayback(ctx context.Context, limit int) ([]models.PlaybackLog, error) {
	var logs []models.PlaybackLog
	err := s.logs.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("recent playback: %w", err)
	}
	return logs, nil
}

// PrunePlaybackLog deletes entries older than the cutoff.
func (s *Store) PrunePlaybackLog(ctx context.Context, before time.Time) (int64, error) {
	res := s.logs.WithContext(ctx).Where("started_at < ?", before).Delete(&models.PlaybackLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune playback log: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug().Int64("deleted", res.RowsAffected).Msg("pruned playback log")
	}
	return res.RowsAffected, nil
}

// Fingerprint hashes every catalogue row so pollers can detect changes
// made by other processes. The playback log is not part of it.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	var (
		assets []models.Asset
		slots  []models.ScheduleSlot
		items  []models.ScheduleSlotItem
	)
	db := s.db.WithContext(ctx)
	if err := db.Order("asset_id").Find(&assets).Error; err != nil {
		return "", fmt.Errorf("fingerprint assets: %w", err)
	}
	if err := db.Order("slot_id").Find(&slots).Error; err != nil {
		return "", fmt.Errorf("fingerprint slots: %w", err)
	}
	if err := db.Order("item_id").Find(&items).Error; err != nil {
		return "", fmt.Errorf("fingerprint items: %w", err)
	}

	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, v := range []any{assets, slots, items} {
		if err := enc.Encode(v); err != nil {
			return "", fmt.Errorf("fingerprint: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

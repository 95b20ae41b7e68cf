/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/marquee/internal/models"
)

// Seed is a YAML catalogue description used to provision a player.
type Seed struct {
	Assets []SeedAsset `yaml:"assets"`
	Slots  []SeedSlot  `yaml:"slots"`
}

// SeedAsset describes one asset.
type SeedAsset struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	URI       string     `yaml:"uri"`
	MimeType  string     `yaml:"mimetype"`
	Duration  int64      `yaml:"duration"`
	Enabled   *bool      `yaml:"enabled"`
	StartDate *time.Time `yaml:"start_date"`
	EndDate   *time.Time `yaml:"end_date"`
	SkipCheck bool       `yaml:"skip_asset_check"`
}

// SeedSlot describes one slot and its items, by asset id.
type SeedSlot struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Type      string     `yaml:"type"`
	From      string     `yaml:"from"`
	To        string     `yaml:"to"`
	Days      []int      `yaml:"days"`
	StartDate string     `yaml:"start_date"`
	EndDate   string     `yaml:"end_date"`
	NoLoop    bool       `yaml:"no_loop"`
	Items     []SeedItem `yaml:"items"`
}

// SeedItem places an asset in a slot.
type SeedItem struct {
	Asset    string `yaml:"asset"`
	Duration *int64 `yaml:"duration"`
	Volume   *int   `yaml:"volume"`
	Mute     bool   `yaml:"mute"`
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// Import writes the seed's assets, then its slots with their items. Slot
// validation applies; the first invalid slot aborts the import.
func (s *Store) Import(ctx context.Context, seed *Seed) error {
	for i, a := range seed.Assets {
		asset := models.Asset{
			ID:             a.ID,
			Name:           a.Name,
			URI:            a.URI,
			MimeType:       a.MimeType,
			Duration:       a.Duration,
			IsEnabled:      a.Enabled == nil || *a.Enabled,
			StartDate:      a.StartDate,
			EndDate:        a.EndDate,
			PlayOrder:      i,
			SkipAssetCheck: a.SkipCheck,
		}
		if err := s.SaveAsset(ctx, &asset); err != nil {
			return err
		}
	}

	for i, sl := range seed.Slots {
		slot, err := sl.toModel(i)
		if err != nil {
			return fmt.Errorf("slot %q: %w", sl.Name, err)
		}
		if err := s.SaveSlot(ctx, slot); err != nil {
			return err
		}
		items := make([]models.ScheduleSlotItem, 0, len(sl.Items))
		for _, it := range sl.Items {
			items = append(items, models.ScheduleSlotItem{
				AssetID:          it.Asset,
				DurationOverride: it.Duration,
				Volume:           it.Volume,
				Mute:             it.Mute,
			})
		}
		if err := s.SetSlotItems(ctx, slot.ID, items); err != nil {
			return err
		}
	}
	return nil
}

func (sl SeedSlot) toModel(order int) (*models.ScheduleSlot, error) {
	slot := &models.ScheduleSlot{
		ID:        sl.ID,
		Name:      sl.Name,
		SlotType:  models.SlotType(sl.Type),
		NoLoop:    sl.NoLoop,
		SortOrder: order,
	}
	var err error
	if sl.From != "" {
		if slot.TimeFrom, err = models.ParseTimeOfDay(sl.From); err != nil {
			return nil, err
		}
	}
	if sl.To != "" {
		if slot.TimeTo, err = models.ParseTimeOfDay(sl.To); err != nil {
			return nil, err
		}
	}
	if sl.Days != nil {
		if slot.DaysOfWeek, err = models.EncodeDays(sl.Days); err != nil {
			return nil, err
		}
	}
	if sl.StartDate != "" {
		d, err := models.ParseDate(sl.StartDate)
		if err != nil {
			return nil, err
		}
		slot.StartDate = &d
	}
	if sl.EndDate != "" {
		d, err := models.ParseDate(sl.EndDate)
		if err != nil {
			return nil, err
		}
		slot.EndDate = &d
	}
	return slot, nil
}

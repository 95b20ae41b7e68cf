/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"crypto/rand"
	"math/big"
	"sort"
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// Shuffler reorders a playlist in place.
type Shuffler func([]Entry)

// SecureShuffle is a Fisher-Yates shuffle driven by crypto/rand.
func SecureShuffle(entries []Entry) {
	for i := len(entries) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// The system RNG failing leaves the list in its stored order.
			return
		}
		j := int(n.Int64())
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// BuildPlaylist turns a slot's items into entries in sort order, dropping
// disabled assets and applying item overrides. No-loop slots keep their
// order even when shuffling is requested.
func BuildPlaylist(slot models.ScheduleSlot, shuffle bool, shuffler Shuffler) []Entry {
	items := slot.SortedItems()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.Asset == nil || !item.Asset.IsEnabled {
			continue
		}
		entries = append(entries, EntryFromAsset(*item.Asset, item.DurationOverride, item.Volume, item.Mute))
	}
	if shuffle && !slot.NoLoop {
		shuffleWith(shuffler, entries)
	}
	return entries
}

// BuildLegacyPlaylist is used when no slots exist: every enabled asset whose
// own window contains now, by play order. The deadline is the earliest
// upcoming window boundary of any asset.
func BuildLegacyPlaylist(now time.Time, assets []models.Asset, shuffle bool, shuffler Shuffler) ([]Entry, time.Time, bool) {
	ordered := append([]models.Asset(nil), assets...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PlayOrder < ordered[j].PlayOrder
	})

	var (
		entries  []Entry
		deadline time.Time
		found    bool
	)
	for _, a := range ordered {
		var boundary *time.Time
		if a.IsActive(now) {
			entries = append(entries, EntryFromAsset(a, nil, nil, false))
			boundary = a.EndDate
		} else {
			boundary = a.StartDate
		}
		if boundary != nil && boundary.After(now) && (!found || boundary.Before(deadline)) {
			deadline = *boundary
			found = true
		}
	}
	if shuffle {
		shuffleWith(shuffler, entries)
	}
	return entries, deadline, found
}

func shuffleWith(shuffler Shuffler, entries []Entry) {
	if shuffler == nil {
		shuffler = SecureShuffle
	}
	shuffler(entries)
}

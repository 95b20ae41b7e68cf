/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule resolves which slot is active, builds its playlist and
// computes when the result stops being valid. Everything here is a pure
// function of the clock and the catalogue snapshot handed in.
package schedule

import (
	"time"

	"github.com/friendsincode/marquee/internal/models"
)

// Entry is one playable item with the overrides of the slot that produced it.
type Entry struct {
	AssetID        string
	Name           string
	URI            string
	MimeType       string
	Duration       int64 // seconds, 0 means indefinite
	Volume         *int
	Mute           bool
	SkipAssetCheck bool
	NoCache        bool
}

// EntryFromAsset converts an asset with optional slot overrides.
func EntryFromAsset(a models.Asset, durationOverride *int64, volume *int, mute bool) Entry {
	e := Entry{
		AssetID:        a.ID,
		Name:           a.Name,
		URI:            a.URI,
		MimeType:       a.MimeType,
		Duration:       a.Duration,
		Volume:         volume,
		Mute:           mute,
		SkipAssetCheck: a.SkipAssetCheck,
		NoCache:        a.NoCache,
	}
	if durationOverride != nil {
		e.Duration = *durationOverride
	}
	return e
}

// Kind returns the content kind of the entry.
func (e Entry) Kind() models.ContentKind {
	return models.KindFromMimeType(e.MimeType)
}

// PlayFor returns the display duration. Zero means indefinite.
func (e Entry) PlayFor() time.Duration {
	return time.Duration(e.Duration) * time.Second
}

// Equal compares entries by value.
func (e Entry) Equal(other Entry) bool {
	if e.AssetID != other.AssetID || e.Name != other.Name || e.URI != other.URI ||
		e.MimeType != other.MimeType || e.Duration != other.Duration || e.Mute != other.Mute ||
		e.SkipAssetCheck != other.SkipAssetCheck || e.NoCache != other.NoCache {
		return false
	}
	switch {
	case e.Volume == nil && other.Volume == nil:
		return true
	case e.Volume == nil || other.Volume == nil:
		return false
	default:
		return *e.Volume == *other.Volume
	}
}

// EqualEntries compares two playlists element by element.
func EqualEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

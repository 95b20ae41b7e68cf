/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// ContentKind classifies how an asset is presented.
type ContentKind string

const (
	KindImage     ContentKind = "image"
	KindWeb       ContentKind = "web"
	KindVideo     ContentKind = "video"
	KindStreaming ContentKind = "streaming"
	KindUnknown   ContentKind = "unknown"
)

// KindFromMimeType maps a stored mimetype onto a content kind.
// Stored values are loose ("image", "webpage", "video/mp4", "streaming").
func KindFromMimeType(mimetype string) ContentKind {
	m := strings.ToLower(mimetype)
	switch {
	case strings.Contains(m, "image"):
		return KindImage
	case strings.Contains(m, "web"):
		return KindWeb
	case strings.Contains(m, "video"):
		return KindVideo
	case strings.Contains(m, "streaming"):
		return KindStreaming
	default:
		return KindUnknown
	}
}

// Asset is a piece of displayable content.
type Asset struct {
	ID             string `gorm:"column:asset_id;type:varchar(64);primaryKey"`
	Name           string
	URI            string `gorm:"column:uri"`
	MD5            string `gorm:"column:md5"`
	StartDate      *time.Time
	EndDate        *time.Time
	Duration       int64  // seconds, 0 means indefinite
	MimeType       string `gorm:"column:mimetype"`
	IsEnabled      bool   `gorm:"index"`
	IsProcessing   bool
	NoCache        bool `gorm:"column:nocache"`
	PlayOrder      int  `gorm:"index"`
	SkipAssetCheck bool
}

// TableName keeps the catalogue compatible with existing player databases.
func (Asset) TableName() string { return "assets" }

// Kind returns the content kind derived from the mimetype.
func (a Asset) Kind() ContentKind { return KindFromMimeType(a.MimeType) }

// IsActive reports whether the asset's own window contains now.
// Assets without both bounds are never active.
func (a Asset) IsActive(now time.Time) bool {
	if !a.IsEnabled || a.StartDate == nil || a.EndDate == nil {
		return false
	}
	return a.StartDate.Before(now) && now.Before(*a.EndDate)
}

// Playable reports whether the asset may be handed to the presentation loop.
func (a Asset) Playable() bool {
	return a.IsEnabled && !a.IsProcessing
}

// PlaybackLog records one actual presentation of an asset.
type PlaybackLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	AssetID   string `gorm:"type:varchar(64);index"`
	AssetName string
	MimeType  string    `gorm:"column:mimetype"`
	StartedAt time.Time `gorm:"index"`
}

// TableName matches the player's view log table.
func (PlaybackLog) TableName() string { return "viewlog" }

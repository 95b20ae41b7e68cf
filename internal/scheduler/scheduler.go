/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/models"
	"github.com/friendsincode/marquee/internal/schedule"
	"github.com/friendsincode/marquee/internal/telemetry"
)

// ReshuffleThreshold is the number of completed passes after which a
// shuffled playlist is regenerated.
const ReshuffleThreshold = 5

// Catalog is the read side of the asset and slot store.
type Catalog interface {
	ListSlots(ctx context.Context) ([]models.ScheduleSlot, error)
	ListAssets(ctx context.Context, enabledOnly bool) ([]models.Asset, error)
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	// ChangeMarker returns a value that changes whenever slots or assets change.
	ChangeMarker(ctx context.Context) (int64, error)
}

// Settings exposes the player settings the scheduler depends on.
type Settings interface {
	ShufflePlaylist() bool
}

// Snapshot is a read-only view of the scheduler state.
type Snapshot struct {
	SlotID         string    `json:"slot_id,omitempty"`
	SlotName       string    `json:"slot_name,omitempty"`
	Legacy         bool      `json:"legacy"`
	Items          int       `json:"items"`
	Index          int       `json:"index"`
	Cycles         int       `json:"cycles"`
	NoLoop         bool      `json:"no_loop"`
	Deadline       time.Time `json:"deadline,omitempty"`
	CurrentAssetID string    `json:"current_asset_id,omitempty"`
	RefreshedAt    time.Time `json:"refreshed_at,omitempty"`
}

// Scheduler owns the current playlist and the cursor into it. The playlist
// is recomputed lazily, when the next item is requested after it went stale.
type Scheduler struct {
	catalog  Catalog
	settings Settings
	signal   *Signal
	bus      *events.Bus
	logger   zerolog.Logger
	timer    *DeadlineTimer
	shuffler schedule.Shuffler
	now      func() time.Time

	// refreshMu serializes recomputation; catalogue I/O happens under it but
	// never under mu.
	refreshMu sync.Mutex

	mu               sync.Mutex
	loaded           bool
	playlist         []schedule.Entry
	index            int
	counter          int
	deadline         time.Time
	hasDeadline      bool
	noLoop           bool
	noLoopDone       bool
	reverse          bool
	override         string
	currentAssetID   string
	activeSlotID     string
	activeSlotName   string
	legacy           bool
	completedEventID string
	marker           int64
	refreshedAt      time.Time
}

// New constructs a scheduler. The playlist is loaded on the first call to
// Next or Refresh.
func New(catalog Catalog, settings Settings, signal *Signal, bus *events.Bus, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		catalog:  catalog,
		settings: settings,
		signal:   signal,
		bus:      bus,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
	s.timer = NewDeadlineTimer(signal.Set, s.logger)
	return s
}

// Next returns the item to present now, or false when nothing is scheduled.
// A pending override is served first; otherwise the playlist is refreshed if
// stale and the cursor advances.
func (s *Scheduler) Next(ctx context.Context) (schedule.Entry, bool) {
	if entry, ok := s.takeOverride(ctx); ok {
		return entry, true
	}

	s.refreshIfStale(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.playlist)
	if n == 0 {
		s.currentAssetID = ""
		return schedule.Entry{}, false
	}

	var idx int
	if s.reverse {
		idx = mod(s.index-2, n)
		s.index = mod(s.index-1, n)
		s.reverse = false
	} else {
		idx = s.index
		s.index = (s.index + 1) % n
	}

	if s.noLoop && s.index == 0 {
		s.noLoopDone = true
		s.logger.Info().Str("slot", s.activeSlotID).Msg("no-loop slot finished its last item")
	}
	if s.shuffle() && s.index == 0 && !s.noLoop {
		s.counter++
	}

	entry := s.playlist[idx]
	s.currentAssetID = entry.AssetID
	s.logger.Debug().
		Int("position", idx+1).
		Int("of", n).
		Int("cycles", s.counter).
		Str("asset", entry.AssetID).
		Msg("next item")
	return entry, true
}

// Navigate makes the given asset the next item, once, and interrupts the
// current presentation.
func (s *Scheduler) Navigate(assetID string) {
	s.mu.Lock()
	s.override = assetID
	s.mu.Unlock()
	s.signal.Set()
}

// Skip interrupts the current presentation. With back set the item before
// the current one is presented next.
func (s *Scheduler) Skip(back bool) {
	if back {
		s.mu.Lock()
		s.reverse = true
		s.mu.Unlock()
	}
	s.signal.Set()
}

// CurrentAssetID returns the id of the item most recently handed out.
func (s *Scheduler) CurrentAssetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAssetID
}

// ShouldRefresh reports whether the catalogue changed or the deadline
// passed since the last recompute. It does not recompute.
func (s *Scheduler) ShouldRefresh(ctx context.Context) bool {
	marker, err := s.catalog.ChangeMarker(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("change marker unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return true
	}
	if err == nil && marker != s.marker {
		return true
	}
	return s.hasDeadline && !s.deadline.After(s.now())
}

// Refresh forces a recompute.
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.recompute(ctx, false, "forced")
}

// Snapshot returns the current state for status reporting.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SlotID:         s.activeSlotID,
		SlotName:       s.activeSlotName,
		Legacy:         s.legacy,
		Items:          len(s.playlist),
		Index:          s.index,
		Cycles:         s.counter,
		NoLoop:         s.noLoop,
		CurrentAssetID: s.currentAssetID,
		RefreshedAt:    s.refreshedAt,
	}
	if s.hasDeadline {
		snap.Deadline = s.deadline
	}
	return snap
}

// Close cancels the pending deadline timer.
func (s *Scheduler) Close() {
	s.timer.Cancel()
}

func (s *Scheduler) takeOverride(ctx context.Context) (schedule.Entry, bool) {
	s.mu.Lock()
	id := s.override
	s.override = ""
	s.mu.Unlock()
	if id == "" {
		return schedule.Entry{}, false
	}

	asset, err := s.catalog.GetAsset(ctx, id)
	if err != nil || asset == nil || asset.IsProcessing {
		s.logger.Error().Err(err).Str("asset", id).Msg("requested asset not found or still processing")
		return schedule.Entry{}, false
	}

	s.mu.Lock()
	s.currentAssetID = asset.ID
	s.mu.Unlock()
	return schedule.EntryFromAsset(*asset, nil, nil, false), true
}

func (s *Scheduler) refreshIfStale(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	marker, markerErr := s.catalog.ChangeMarker(ctx)
	now := s.now()

	s.mu.Lock()
	var reason string
	fromEventDone := false
	switch {
	case !s.loaded:
		reason = "initial"
	case s.noLoop && s.noLoopDone:
		s.completedEventID = s.activeSlotID
		s.noLoop = false
		s.noLoopDone = false
		fromEventDone = true
		reason = "no_loop_done"
	case markerErr == nil && marker != s.marker:
		reason = "catalog_changed"
	case s.shuffle() && s.counter >= ReshuffleThreshold:
		reason = "reshuffle"
	case s.hasDeadline && !s.deadline.After(now):
		reason = "deadline"
	}
	s.mu.Unlock()

	if reason == "" {
		return
	}
	if err := s.recompute(ctx, fromEventDone, reason); err != nil {
		s.logger.Warn().Err(err).Str("reason", reason).Msg("playlist refresh failed, keeping current playlist")
	}
}

// recompute regenerates the playlist. Callers hold refreshMu.
func (s *Scheduler) recompute(ctx context.Context, fromEventDone bool, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.recompute", attribute.String("reason", reason))
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	s.timer.Cancel()

	marker, markerErr := s.catalog.ChangeMarker(ctx)

	s.mu.Lock()
	skip := ""
	if fromEventDone {
		skip = s.completedEventID
	} else {
		s.completedEventID = ""
	}
	s.mu.Unlock()

	slots, err := s.catalog.ListSlots(ctx)
	var assets []models.Asset
	if err == nil && len(slots) == 0 {
		assets, err = s.catalog.ListAssets(ctx, true)
	}
	if err != nil {
		spanErr = err
		telemetry.ScheduleRecomputesTotal.WithLabelValues(reason, "error").Inc()
		s.rearm()
		return fmt.Errorf("load catalogue: %w", err)
	}

	now := s.now()
	plan := schedule.Generate(now, slots, assets, schedule.Options{
		Shuffle:     s.shuffle(),
		SkipEventID: skip,
		Shuffler:    s.shuffler,
	})

	s.mu.Lock()
	if markerErr == nil {
		s.marker = marker
	}
	s.refreshedAt = now
	if s.loaded && schedule.EqualEntries(plan.Entries, s.playlist) &&
		plan.HasDeadline == s.hasDeadline && plan.Deadline.Equal(s.deadline) &&
		plan.NoLoop == s.noLoop {
		if reason == "reshuffle" && len(plan.Entries) <= 1 {
			// Nothing to reorder. Longer playlists keep the counter so an
			// identical shuffle is retried on the next advance.
			s.counter = 0
		}
		s.armLocked(now)
		s.mu.Unlock()
		telemetry.ScheduleRecomputesTotal.WithLabelValues(reason, "unchanged").Inc()
		return nil
	}

	s.loaded = true
	s.playlist = plan.Entries
	s.deadline = plan.Deadline
	s.hasDeadline = plan.HasDeadline
	s.noLoop = plan.NoLoop
	s.activeSlotID = plan.SlotID
	s.activeSlotName = plan.SlotName
	s.legacy = plan.Legacy
	s.noLoopDone = false
	s.counter = 0
	if n := len(s.playlist); n > 0 {
		s.index %= n
	} else {
		s.index = 0
	}
	s.armLocked(now)
	payload := events.Payload{
		"slot_id":  s.activeSlotID,
		"slot":     s.activeSlotName,
		"items":    len(s.playlist),
		"no_loop":  s.noLoop,
		"legacy":   s.legacy,
		"reason":   reason,
		"deadline": s.deadline,
	}
	s.mu.Unlock()

	telemetry.ScheduleRecomputesTotal.WithLabelValues(reason, "changed").Inc()
	telemetry.PlaylistSize.Set(float64(len(plan.Entries)))
	s.bus.Publish(events.EventScheduleChanged, payload)
	s.logger.Info().
		Str("reason", reason).
		Str("slot", plan.SlotName).
		Int("items", len(plan.Entries)).
		Bool("no_loop", plan.NoLoop).
		Bool("legacy", plan.Legacy).
		Time("deadline", plan.Deadline).
		Msg("playlist updated")
	return nil
}

func (s *Scheduler) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(s.now())
}

func (s *Scheduler) armLocked(now time.Time) {
	if s.hasDeadline {
		s.timer.Arm(s.deadline, now)
	}
}

func (s *Scheduler) shuffle() bool {
	return s.settings != nil && s.settings.ShufflePlaylist()
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

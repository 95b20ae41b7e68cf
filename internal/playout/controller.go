/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout runs the presentation loop: it pulls items from the
// scheduler, keeps the TV in step and hands each item to the browser or a
// media player for as long as it should stay on screen.
package playout

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/models"
	"github.com/friendsincode/marquee/internal/schedule"
	"github.com/friendsincode/marquee/internal/scheduler"
	"github.com/friendsincode/marquee/internal/scheduler/state"
	"github.com/friendsincode/marquee/internal/telemetry"
)

const (
	ScheduleCheckInterval = 5 * time.Second
	EmptyPlaylistDelay    = 5 * time.Second
	UnavailableWait       = 500 * time.Millisecond
	MediaPollInterval     = 2 * time.Second
	SplashDelay           = 60 * time.Second
	stoppedPoll           = 100 * time.Millisecond
)

// Outcome describes how one loop iteration ended.
type Outcome string

const (
	OutcomeEmpty           Outcome = "empty"
	OutcomeUnavailable     Outcome = "unavailable"
	OutcomeCompleted       Outcome = "completed"
	OutcomeInterrupted     Outcome = "interrupted"
	OutcomeScheduleChanged Outcome = "schedule_changed"
	OutcomeFailed          Outcome = "failed"
	OutcomeUnknownKind     Outcome = "unknown_kind"
	OutcomeCancelled       Outcome = "cancelled"
)

// Source hands out the next item to show.
type Source interface {
	Next(ctx context.Context) (schedule.Entry, bool)
	ShouldRefresh(ctx context.Context) bool
}

// Display is the TV the player is attached to.
type Display interface {
	Wake(ctx context.Context)
	Standby(ctx context.Context)
	ApplyAudio(ctx context.Context, volume *int, mute bool)
}

// PlaybackRecorder persists the append-only playback log.
type PlaybackRecorder interface {
	AppendPlaybackLog(ctx context.Context, entry models.PlaybackLog) error
}

// Checker reports whether an asset URI is reachable.
type Checker interface {
	Reachable(ctx context.Context, uri string) bool
}

// CameraStarter negotiates camera feed streams.
type CameraStarter interface {
	RequestStart(ctx context.Context, uri string) (string, error)
	Keepalive(ctx context.Context, uri string)
}

// Dependencies are the collaborators of the controller. Display, Recorder,
// Camera, History and Bus may be nil.
type Dependencies struct {
	Source   Source
	Signal   *scheduler.Signal
	Renderer Renderer
	Players  *Manager
	Checker  Checker
	Display  Display
	Recorder PlaybackRecorder
	Camera   CameraStarter
	History  *state.Store
	Bus      *events.Bus
}

// Options holds the fixed screens shown outside the schedule.
type Options struct {
	StandbyImage string
	SplashURL    string
	HotspotURL   string
	SplashDelay  time.Duration
}

type screenRequest struct {
	url       string
	hold      time.Duration
	stopAfter bool
}

// Controller is the presentation loop. Only the goroutine running Run
// issues presentation commands; everything else reaches it through the
// shared signal.
type Controller struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	checkInterval   time.Duration
	emptyDelay      time.Duration
	unavailableWait time.Duration
	pollInterval    time.Duration

	stopped atomic.Bool

	mu      sync.Mutex
	pending []screenRequest
}

// NewController creates the presentation loop.
func NewController(deps Dependencies, opts Options, logger zerolog.Logger) *Controller {
	if opts.SplashDelay <= 0 {
		opts.SplashDelay = SplashDelay
	}
	return &Controller{
		deps:            deps,
		opts:            opts,
		logger:          logger.With().Str("component", "playout").Logger(),
		now:             time.Now,
		checkInterval:   ScheduleCheckInterval,
		emptyDelay:      EmptyPlaylistDelay,
		unavailableWait: UnavailableWait,
		pollInterval:    MediaPollInterval,
	}
}

// Run shows the standby screen and then loops until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info().Msg("playout loop started")
	if c.opts.StandbyImage != "" {
		if err := c.deps.Renderer.ShowImage(ctx, c.opts.StandbyImage); err != nil {
			c.logger.Warn().Err(err).Msg("standby screen failed")
		}
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info().Msg("playout loop stopped")
			return ctx.Err()
		}
		if c.showPending(ctx) {
			continue
		}
		if c.stopped.Load() {
			_ = sleepContext(ctx, stoppedPoll)
			continue
		}
		c.RunOnce(ctx)
	}
}

// Stop pauses the loop after interrupting the current item.
func (c *Controller) Stop() {
	c.stopped.Store(true)
	c.deps.Signal.Set()
	c.logger.Info().Msg("playout loop paused")
}

// Play resumes a paused loop.
func (c *Controller) Play() {
	if c.stopped.Swap(false) {
		c.logger.Info().Msg("playout loop resumed")
	}
}

// Stopped reports whether the loop is paused.
func (c *Controller) Stopped() bool {
	return c.stopped.Load()
}

// ShowSplash displays the splash page for the splash delay and then resumes
// the loop.
func (c *Controller) ShowSplash() {
	if c.opts.SplashURL == "" {
		return
	}
	c.enqueue(screenRequest{url: c.opts.SplashURL, hold: c.opts.SplashDelay})
}

// ShowHotspot pauses the loop and displays the network setup page with the
// given query parameters (network, ssid_pswd, address).
func (c *Controller) ShowHotspot(params map[string]string) {
	if c.opts.HotspotURL == "" {
		return
	}
	target := c.opts.HotspotURL
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}
	c.enqueue(screenRequest{url: target, stopAfter: true})
}

func (c *Controller) enqueue(req screenRequest) {
	c.mu.Lock()
	c.pending = append(c.pending, req)
	c.mu.Unlock()
	c.deps.Signal.Set()
}

func (c *Controller) showPending(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	req := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	if req.stopAfter {
		c.stopped.Store(true)
	}
	if err := c.deps.Renderer.ShowWeb(ctx, req.url); err != nil {
		c.logger.Warn().Err(err).Str("url", req.url).Msg("screen failed")
	}
	if req.hold > 0 {
		_ = sleepContext(ctx, req.hold)
		c.stopped.Store(false)
	}
	return true
}

// RunOnce shows a single item, or waits when there is nothing to show.
func (c *Controller) RunOnce(ctx context.Context) Outcome {
	// Anything raised before this point was aimed at the previous item.
	c.deps.Signal.Clear()

	entry, ok := c.deps.Source.Next(ctx)
	if !ok {
		c.logger.Info().Msg("playlist is empty, tv standby, waiting for content")
		if c.deps.Display != nil {
			c.deps.Display.Standby(ctx)
		}
		c.deps.Signal.Wait(ctx, c.emptyDelay)
		return OutcomeEmpty
	}

	if c.deps.Display != nil {
		c.deps.Display.Wake(ctx)
		c.deps.Display.ApplyAudio(ctx, entry.Volume, entry.Mute)
	}

	if !entry.SkipAssetCheck && !c.deps.Checker.Reachable(ctx, entry.URI) {
		c.logger.Info().Str("asset", entry.Name).Str("uri", entry.URI).Msg("asset is not available, skipping")
		c.skipped(entry, "unreachable")
		if c.deps.Signal.Wait(ctx, c.unavailableWait) {
			c.logger.Info().Msg("skip detected during unavailability wait")
		}
		return OutcomeUnavailable
	}

	ctx, span := telemetry.StartSpan(ctx, "playout.item",
		attribute.String("asset.id", entry.AssetID),
		attribute.String("asset.kind", string(entry.Kind())),
	)
	defer span.End()

	c.logger.Info().Str("asset", entry.Name).Str("mimetype", entry.MimeType).Msg("showing asset")
	c.logger.Debug().Str("uri", entry.URI).Msg("asset uri")
	c.record(ctx, entry)

	outcome := c.present(ctx, entry)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if c.deps.History != nil {
		c.deps.History.Finish(entry.AssetID, string(outcome))
	}
	return outcome
}

func (c *Controller) present(ctx context.Context, entry schedule.Entry) Outcome {
	switch kind := entry.Kind(); kind {
	case models.KindImage:
		if err := c.deps.Renderer.ShowImage(ctx, entry.URI); err != nil {
			c.logger.Warn().Err(err).Str("asset", entry.Name).Msg("show image failed")
		}
		return c.hold(ctx, entry.PlayFor())
	case models.KindWeb:
		if c.deps.Camera != nil && IsCameraURL(entry.URI) {
			return c.playCamera(ctx, entry)
		}
		if err := c.deps.Renderer.ShowWeb(ctx, entry.URI); err != nil {
			c.logger.Warn().Err(err).Str("asset", entry.Name).Msg("show web page failed")
		}
		return c.hold(ctx, entry.PlayFor())
	case models.KindVideo, models.KindStreaming:
		return c.playMedia(ctx, kind, entry.URI, entry.PlayFor())
	default:
		c.logger.Error().Str("mimetype", entry.MimeType).Str("asset", entry.Name).Msg("unknown mimetype")
		c.skipped(entry, "unknown_kind")
		return OutcomeUnknownKind
	}
}

// hold keeps the current screen for d (zero means until something changes),
// re-checking the schedule every check interval.
func (c *Controller) hold(ctx context.Context, d time.Duration) Outcome {
	infinite := d == 0
	if infinite {
		c.logger.Info().Msg("infinite duration, playing until schedule change")
	} else {
		c.logger.Info().Dur("duration", d).Msg("sleeping")
	}

	remaining := d
	for {
		wait := c.checkInterval
		if !infinite && remaining < wait {
			wait = remaining
		}
		if c.deps.Signal.Wait(ctx, wait) {
			c.logger.Info().Msg("skip detected, moving to next asset")
			return OutcomeInterrupted
		}
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		if !infinite {
			remaining -= wait
			if remaining <= 0 {
				return OutcomeCompleted
			}
		}
		if c.deps.Source.ShouldRefresh(ctx) {
			c.logger.Info().Msg("schedule changed during playback, moving on")
			return OutcomeScheduleChanged
		}
	}
}

// playMedia hands uri to a media player and polls until it finishes, the
// duration elapses, the signal fires or the schedule changes.
func (c *Controller) playMedia(ctx context.Context, kind models.ContentKind, uri string, d time.Duration) Outcome {
	player := c.deps.Players.Player(kind)
	if err := player.Play(ctx, uri); err != nil {
		c.logger.Warn().Err(err).Str("uri", uri).Msg("media player failed to start")
		return OutcomeFailed
	}
	defer func() {
		if err := player.Stop(); err != nil {
			c.logger.Debug().Err(err).Msg("stop media player")
		}
	}()
	if err := c.deps.Renderer.Blank(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("blank browser")
	}

	infinite := d == 0
	remaining := d
	var sinceCheck time.Duration
	for infinite || remaining > 0 {
		wait := c.pollInterval
		if !infinite && remaining < wait {
			wait = remaining
		}
		if c.deps.Signal.Wait(ctx, wait) {
			c.logger.Info().Msg("skip detected during video playback, stopping video")
			return OutcomeInterrupted
		}
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		if !infinite {
			remaining -= wait
		}
		if !player.IsPlaying() {
			c.logger.Info().Msg("video playback ended, moving on")
			return OutcomeCompleted
		}
		sinceCheck += wait
		if sinceCheck >= c.checkInterval {
			sinceCheck = 0
			if c.deps.Source.ShouldRefresh(ctx) {
				c.logger.Info().Msg("schedule changed during video, interrupting")
				return OutcomeScheduleChanged
			}
		}
	}
	return OutcomeCompleted
}

func (c *Controller) playCamera(ctx context.Context, entry schedule.Entry) Outcome {
	hls, err := c.deps.Camera.RequestStart(ctx, entry.URI)
	if err != nil {
		c.logger.Info().Err(err).Str("asset", entry.Name).Msg("camera stream unavailable, skipping")
		c.skipped(entry, "camera_unavailable")
		c.deps.Signal.Wait(ctx, c.unavailableWait)
		return OutcomeUnavailable
	}

	c.logger.Info().Str("stream", hls).Msg("playing camera stream")
	kaCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.deps.Camera.Keepalive(kaCtx, entry.URI)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	return c.playMedia(ctx, models.KindStreaming, hls, entry.PlayFor())
}

func (c *Controller) record(ctx context.Context, entry schedule.Entry) {
	started := c.now().UTC()
	telemetry.ItemsPlayedTotal.WithLabelValues(string(entry.Kind())).Inc()

	if c.deps.Recorder != nil {
		err := c.deps.Recorder.AppendPlaybackLog(ctx, models.PlaybackLog{
			AssetID:   entry.AssetID,
			AssetName: entry.Name,
			MimeType:  entry.MimeType,
			StartedAt: started,
		})
		if err != nil {
			c.logger.Debug().Err(err).Msg("failed to write playback log")
		}
	}
	if c.deps.History != nil {
		c.deps.History.Add(state.Play{AssetID: entry.AssetID, Name: entry.Name, MimeType: entry.MimeType, StartedAt: started})
	}
	c.deps.Bus.Publish(events.EventNowPlaying, events.Payload{
		"asset_id":   entry.AssetID,
		"name":       entry.Name,
		"mimetype":   entry.MimeType,
		"duration":   entry.Duration,
		"started_at": started,
	})
}

func (c *Controller) skipped(entry schedule.Entry, reason string) {
	telemetry.ItemsSkippedTotal.WithLabelValues(reason).Inc()
	c.deps.Bus.Publish(events.EventPlaybackSkipped, events.Payload{
		"asset_id": entry.AssetID,
		"name":     entry.Name,
		"reason":   reason,
	})
}

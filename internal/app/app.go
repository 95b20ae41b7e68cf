/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package app assembles the player from its components and supervises
// their goroutines.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/friendsincode/marquee/internal/catalog"
	"github.com/friendsincode/marquee/internal/command"
	"github.com/friendsincode/marquee/internal/config"
	"github.com/friendsincode/marquee/internal/db"
	"github.com/friendsincode/marquee/internal/eventbus"
	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/logbuffer"
	"github.com/friendsincode/marquee/internal/logging"
	"github.com/friendsincode/marquee/internal/models"
	"github.com/friendsincode/marquee/internal/playout"
	"github.com/friendsincode/marquee/internal/scheduler"
	"github.com/friendsincode/marquee/internal/scheduler/state"
	"github.com/friendsincode/marquee/internal/server"
	"github.com/friendsincode/marquee/internal/storage"
	"github.com/friendsincode/marquee/internal/telemetry"
	"github.com/friendsincode/marquee/internal/tv"
	"github.com/friendsincode/marquee/internal/version"
)

const (
	historySize       = 200
	playbackRetention = 30 * 24 * time.Hour
	pollInterval      = 10 * time.Second
	metricsInterval   = 30 * time.Second
)

// App is a fully wired player.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	database   *gorm.DB
	viewlog    *gorm.DB // nil when the playback log shares database
	catalog    *catalog.Store
	settings   *config.SettingsHolder
	bus        *events.Bus
	signal     *scheduler.Signal
	scheduler  *scheduler.Scheduler
	tv         *tv.Controller
	ir         *tv.IRController
	players    *playout.Manager
	renderer   *playout.RodRenderer
	controller *playout.Controller
	history    *state.Store
	dispatcher *command.Dispatcher
	sources    []eventbus.Source
	server     *server.Server
	updates    *version.Checker
	tracer     *telemetry.TracerProvider
}

// New connects the catalogue and builds every component. Nothing runs
// until Run.
func New(ctx context.Context, cfg *config.Config, logs *logbuffer.Buffer, logger zerolog.Logger) (*App, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, bus: events.NewBus(), signal: scheduler.NewSignal()}

	tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "marquee",
		ServiceVersion: version.Version,
		DeviceID:       cfg.MQTTDeviceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	a.tracer = tracer

	settings, err := config.NewSettingsHolder(cfg.SettingsFile, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("settings file unreadable, using defaults")
	}
	a.settings = settings
	logging.SetDebug(cfg.Environment == "development" || settings.Get().DebugLogging)

	database, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.database = database
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("migrate catalogue: %w", err)
	}
	a.catalog = catalog.NewStore(database, logger)

	viewlog, err := db.ConnectPlaybackLog(cfg, database, logger)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}
	if viewlog != database {
		if err := db.MigratePlaybackLog(viewlog); err != nil {
			_ = db.Close(viewlog)
			_ = db.Close(database)
			return nil, err
		}
		a.viewlog = viewlog
		a.catalog.UsePlaybackLog(viewlog)
	}

	a.scheduler = scheduler.New(a.catalog, settings, a.signal, a.bus, logger)

	runner := tv.ExecRunner{}
	a.ir = tv.NewIRController(runner, logger)
	tvCfg := tv.DefaultConfig()
	tvCfg.Binary = cfg.CECBinary
	tvCfg.Devices = cfg.CECDevices
	tvCfg.IRProtocol = cfg.IRProtocol
	tvCfg.IRScancode = cfg.IRScancode
	a.tv = tv.New(tvCfg, runner, a.ir, a.bus, logger)

	playerCfg := playout.PlayerConfig{
		Binary:      cfg.MediaPlayerBin,
		Args:        cfg.MediaPlayerArgs,
		Env:         []string{"SDL_VIDEODRIVER=kmsdrm", "SDL_AUDIODRIVER=alsa"},
		AudioDevice: a.audioDevice,
	}
	a.players = playout.NewManager(playout.NewProcessPlayer(playerCfg, "video", logger), logger)
	streamCfg := playerCfg
	streamCfg.Args = append(append([]string{}, cfg.MediaPlayerArgs...), "-fflags", "nobuffer")
	a.players.Register(models.KindStreaming, playout.NewProcessPlayer(streamCfg, "stream", logger))

	a.renderer = playout.NewRodRenderer(playout.BrowserConfig{
		Bin:        cfg.BrowserBin,
		ControlURL: cfg.BrowserControlURL,
		Headless:   cfg.BrowserHeadless,
	}, logger)

	var objects storage.ObjectStore
	if cfg.S3Region != "" || cfg.S3Endpoint != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKeyID,
			SecretKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("s3 client unavailable, s3:// assets will be skipped")
		} else {
			objects = s3
		}
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}

	a.history = state.NewStore(historySize)
	a.controller = playout.NewController(playout.Dependencies{
		Source:   a.scheduler,
		Signal:   a.signal,
		Renderer: a.renderer,
		Players:  a.players,
		Checker:  playout.NewReachabilityChecker(httpClient, objects, logger),
		Display:  a.tv,
		Recorder: a.catalog,
		Camera:   playout.NewCameraFeed(httpClient, logger),
		History:  a.history,
		Bus:      a.bus,
	}, playout.Options{
		StandbyImage: cfg.StandbyImage,
		SplashURL:    cfg.SplashURL,
		HotspotURL:   cfg.HotspotURL,
	}, logger)

	a.dispatcher = command.NewDispatcher(&target{
		nav:      a.scheduler,
		screen:   a.controller,
		settings: a.settings,
		catalog:  a.catalog,
		signal:   a.signal,
		logger:   logger,
	}, a.bus, logger)
	a.sources = a.commandSources()
	a.updates = version.NewChecker("", logger)

	var commands eventbus.Handler
	if cfg.WebsocketInput {
		commands = a.dispatcher.Handle
	}
	a.server = server.New(cfg.HTTPAddr(), server.Dependencies{
		Slots:     a.catalog,
		Scheduler: a.scheduler,
		TV:        a.tv,
		History:   a.history,
		Logs:      logs,
		Bus:       a.bus,
		Updates:   a.updates,
		Commands:  commands,
	}, logger)

	settings.OnChange(a.applySettings)
	return a, nil
}

func (a *App) commandSources() []eventbus.Source {
	node := eventbus.NodeID()
	var sources []eventbus.Source
	if a.cfg.RedisAddr != "" {
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = a.cfg.RedisAddr
		rc.Password = a.cfg.RedisPassword
		rc.DB = a.cfg.RedisDB
		rc.CommandChannel = a.cfg.RedisChannel
		sources = append(sources, eventbus.NewRedisSource(rc, a.bus, node, a.logger))
	}
	if a.cfg.NATSURL != "" {
		nc := eventbus.DefaultNATSConfig()
		nc.URL = a.cfg.NATSURL
		nc.Token = a.cfg.NATSToken
		nc.CommandSubject = a.cfg.NATSSubject
		sources = append(sources, eventbus.NewNATSSource(nc, a.bus, node, a.logger))
	}
	if a.cfg.MQTTBroker != "" {
		sources = append(sources, eventbus.NewMQTTSource(eventbus.MQTTConfig{
			BrokerURL: a.cfg.MQTTBroker,
			DeviceID:  a.cfg.MQTTDeviceID,
			Username:  a.cfg.MQTTUsername,
			Password:  a.cfg.MQTTPassword,
			QoS:       1,
		}, a.bus, node, a.logger))
	}
	return sources
}

// Run starts every component and blocks until ctx ends or one of them
// fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Str("version", version.Version).Msg("marquee starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.ir.Detect(ctx, a.cfg.IRBinary)
		a.tv.Start(ctx)
		return nil
	})
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error {
		if err := a.settings.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("settings watch unavailable, reload on command only")
		}
		return nil
	})
	g.Go(func() error { return a.updates.Run(ctx) })
	g.Go(func() error { return a.watchCatalogue(ctx) })
	g.Go(func() error { return a.housekeeping(ctx) })

	for _, src := range a.sources {
		g.Go(func() error {
			a.logger.Info().Str("transport", src.Name()).Msg("command transport starting")
			if err := src.Run(ctx, a.dispatcher.Handle); err != nil {
				a.logger.Error().Err(err).Str("transport", src.Name()).Msg("command transport stopped")
			}
			return nil
		})
	}

	if a.settings.Get().ShowSplash {
		a.controller.ShowSplash()
	}
	g.Go(func() error {
		if err := a.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info().Msg("marquee stopped")
	return err
}

// watchCatalogue keeps the change marker current for writes made by the
// management UI.
func (a *App) watchCatalogue(ctx context.Context) error {
	switch a.cfg.DBBackend {
	case config.DatabaseSQLite:
		path, ok := a.cfg.SQLitePath()
		if !ok {
			return nil
		}
		if err := a.catalog.WatchFile(ctx, path); err != nil {
			a.logger.Warn().Err(err).Msg("catalogue file watch unavailable, polling instead")
			return a.catalog.Poll(ctx, pollInterval)
		}
		return nil
	case config.DatabasePostgres:
		if err := a.catalog.ListenPostgres(ctx, a.cfg.DBDSN, a.cfg.PGNotifyChannel); err != nil {
			a.logger.Warn().Err(err).Msg("catalogue notifications unavailable, polling instead")
			return a.catalog.Poll(ctx, pollInterval)
		}
		return nil
	default:
		return a.catalog.Poll(ctx, pollInterval)
	}
}

func (a *App) housekeeping(ctx context.Context) error {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	lastPrune := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			db.UpdateConnectionMetrics(a.database)
			if now.Sub(lastPrune) < 24*time.Hour {
				continue
			}
			lastPrune = now
			if _, err := a.catalog.PrunePlaybackLog(ctx, now.Add(-playbackRetention)); err != nil {
				a.logger.Warn().Err(err).Msg("prune playback log")
			}
		}
	}
}

func (a *App) applySettings(s config.Settings) {
	logging.SetDebug(a.cfg.Environment == "development" || s.DebugLogging)
	// Shuffle is read on recompute; force one.
	a.catalog.Bump()
	a.bus.Publish(events.EventSettingsChanged, events.Payload{
		"shuffle_playlist": s.ShufflePlaylist,
		"debug_logging":    s.DebugLogging,
		"audio_output":     s.AudioOutput,
	})
}

// audioDevice maps the audio_output setting to an ALSA device.
func (a *App) audioDevice() string {
	if a.settings.Get().AudioOutput == "local" {
		return "default:CARD=Headphones"
	}
	return "default:CARD=vc4hdmi0"
}

// Close releases the browser, players, tracer and database.
func (a *App) Close() error {
	a.scheduler.Close()
	var errs []error
	if err := a.players.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("stop players: %w", err))
	}
	if err := a.renderer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if a.viewlog != nil {
		if err := db.Close(a.viewlog); err != nil {
			errs = append(errs, fmt.Errorf("close playback log: %w", err))
		}
	}
	if err := db.Close(a.database); err != nil {
		errs = append(errs, fmt.Errorf("close catalogue: %w", err))
	}
	return errors.Join(errs...)
}

var (
	_ scheduler.Catalog        = (*catalog.Store)(nil)
	_ playout.PlaybackRecorder = (*catalog.Store)(nil)
	_ server.SlotLister        = (*catalog.Store)(nil)
	_ playout.Display          = (*tv.Controller)(nil)
	_ server.TVStatus          = (*tv.Controller)(nil)
)

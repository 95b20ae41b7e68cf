package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/config"
	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/logbuffer"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MARQUEE_DATA_DIR", dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, err := New(context.Background(), cfg, logbuffer.New(100), zerolog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return a
}

func TestNewWiresSQLiteCatalogue(t *testing.T) {
	a := newTestApp(t)

	if _, err := os.Stat(filepath.Join(a.cfg.DataDir, "marquee.db")); err != nil {
		t.Fatalf("catalogue file not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.DataDir, "viewlog.db")); err != nil || a.viewlog == nil {
		t.Fatalf("playback log not split from the watched catalogue: %v", err)
	}
	slots, err := a.catalog.ListSlots(context.Background())
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("fresh catalogue has %d slots", len(slots))
	}
	if len(a.sources) != 0 {
		t.Fatalf("no transports configured, got %d sources", len(a.sources))
	}
}

func TestSettingsChangeForcesRecompute(t *testing.T) {
	a := newTestApp(t)
	sub := a.bus.Subscribe(events.EventSettingsChanged)
	defer a.bus.Unsubscribe(events.EventSettingsChanged, sub)

	before, _ := a.catalog.ChangeMarker(context.Background())

	s := config.DefaultSettings()
	s.ShufflePlaylist = true
	s.AudioOutput = "local"
	if err := config.WriteSettings(a.cfg.SettingsFile, s); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if err := a.settings.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	after, _ := a.catalog.ChangeMarker(context.Background())
	if after == before {
		t.Fatal("settings change must bump the change marker")
	}
	select {
	case payload := <-sub:
		if payload["shuffle_playlist"] != true {
			t.Fatalf("payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no settings_changed event")
	}
	if got := a.audioDevice(); got != "default:CARD=Headphones" {
		t.Fatalf("audio device = %q", got)
	}
}

func TestCommandSourcesFromConfig(t *testing.T) {
	a := newTestApp(t)
	a.cfg.RedisAddr = "localhost:6379"
	a.cfg.MQTTBroker = "tcp://localhost:1883"

	var names []string
	for _, src := range a.commandSources() {
		names = append(names, src.Name())
	}
	if len(names) != 2 || names[0] != "redis" || names[1] != "mqtt" {
		t.Fatalf("sources = %v, want [redis mqtt]", names)
	}
}

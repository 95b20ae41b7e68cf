package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/command"
)

type fakePlayer struct {
	calls   []string
	hotspot map[string]string
	bumps   int
	signals int
	reload  error
}

func (f *fakePlayer) Skip(back bool) {
	if back {
		f.calls = append(f.calls, "back")
		return
	}
	f.calls = append(f.calls, "forward")
}

func (f *fakePlayer) Navigate(assetID string) {
	f.calls = append(f.calls, "navigate:"+assetID)
}

func (f *fakePlayer) CurrentAssetID() string { return "current" }

func (f *fakePlayer) Stop() {
	f.calls = append(f.calls, "stop")
}

func (f *fakePlayer) Play() {
	f.calls = append(f.calls, "play")
}

func (f *fakePlayer) ShowSplash() {
	f.calls = append(f.calls, "splash")
}

func (f *fakePlayer) ShowHotspot(params map[string]string) {
	f.calls = append(f.calls, "hotspot")
	f.hotspot = params
}

func (f *fakePlayer) Reload(context.Context) error {
	f.calls = append(f.calls, "reload")
	return f.reload
}

func (f *fakePlayer) Bump() { f.bumps++ }
func (f *fakePlayer) Set()  { f.signals++ }

func newFakeTarget() (*target, *fakePlayer) {
	f := &fakePlayer{}
	return &target{nav: f, screen: f, settings: f, catalog: f, signal: f, logger: zerolog.Nop()}, f
}

func TestTargetRoutesCommands(t *testing.T) {
	tgt, f := newFakeTarget()
	d := command.NewDispatcher(tgt, nil, zerolog.Nop())

	for _, raw := range []string{"next", "previous", "asset&a1", "stop", "play", "show_splash", "reload"} {
		d.Handle(context.Background(), []byte(raw), "test")
	}

	want := []string{"forward", "back", "navigate:a1", "stop", "play", "splash", "reload"}
	if !reflect.DeepEqual(f.calls, want) {
		t.Fatalf("calls = %v, want %v", f.calls, want)
	}
	if f.bumps != 1 {
		t.Fatalf("reload bumped the catalogue %d times, want 1", f.bumps)
	}
	if f.signals != 1 {
		t.Fatalf("reload raised the interrupt %d times, want 1", f.signals)
	}
}

func TestTargetReloadFailureKeepsMarker(t *testing.T) {
	tgt, f := newFakeTarget()
	f.reload = errors.New("bad yaml")

	if err := tgt.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if f.bumps != 0 || f.signals != 0 {
		t.Fatal("failed reload must not force a recompute")
	}
}

func TestTargetSetupWifi(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]string
	}{
		{"params", `{"network":"marquee-setup","ssid_pswd":"secret"}`, map[string]string{"network": "marquee-setup", "ssid_pswd": "secret"}},
		{"empty", "", map[string]string{}},
		{"malformed", "not json", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt, f := newFakeTarget()
			tgt.SetupWifi(tt.payload)
			if !reflect.DeepEqual(f.hotspot, tt.want) {
				t.Fatalf("hotspot params = %v, want %v", f.hotspot, tt.want)
			}
		})
	}
}

package playout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestParseCameraURL(t *testing.T) {
	tests := []struct {
		uri      string
		base, id string
		ok       bool
	}{
		{"http://fleet:9000/cctv/lobby/", "http://fleet:9000", "lobby", true},
		{"http://fleet:9000/cctv/lobby", "http://fleet:9000", "lobby", true},
		{"http://fleet:9000/dashboard", "", "", false},
		{"/cctv/lobby", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			base, id, ok := ParseCameraURL(tt.uri)
			if base != tt.base || id != tt.id || ok != tt.ok {
				t.Fatalf("got %q %q %v", base, id, ok)
			}
		})
	}
	if hls, _ := HLSURL("http://fleet:9000/cctv/lobby/"); hls != "http://fleet:9000/media/cctv/lobby/stream.m3u8" {
		t.Fatalf("hls = %q", hls)
	}
}

func newFleetServer(t *testing.T, startStatus int, readyAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var starts, heads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cctv/lobby/request-start/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		starts.Add(1)
		w.WriteHeader(startStatus)
	})
	mux.HandleFunc("/media/cctv/lobby/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		if heads.Add(1) < readyAfter {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &starts
}

func TestCameraRequestStart(t *testing.T) {
	srv, starts := newFleetServer(t, http.StatusOK, 3)
	feed := NewCameraFeed(srv.Client(), zerolog.Nop())
	feed.ReadyInterval = time.Millisecond

	hls, err := feed.RequestStart(context.Background(), srv.URL+"/cctv/lobby/")
	if err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if hls != srv.URL+"/media/cctv/lobby/stream.m3u8" {
		t.Fatalf("hls = %q", hls)
	}
	if starts.Load() != 1 {
		t.Fatalf("starts = %d", starts.Load())
	}
}

func TestCameraRequestStartProceedsWhenNeverReady(t *testing.T) {
	srv, _ := newFleetServer(t, http.StatusOK, 1000)
	feed := NewCameraFeed(srv.Client(), zerolog.Nop())
	feed.ReadyInterval = time.Millisecond
	feed.ReadyAttempts = 3

	if _, err := feed.RequestStart(context.Background(), srv.URL+"/cctv/lobby/"); err != nil {
		t.Fatalf("expected to proceed anyway, got %v", err)
	}
}

func TestCameraRequestStartRefused(t *testing.T) {
	srv, _ := newFleetServer(t, http.StatusServiceUnavailable, 0)
	feed := NewCameraFeed(srv.Client(), zerolog.Nop())

	_, err := feed.RequestStart(context.Background(), srv.URL+"/cctv/lobby/")
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("err = %v, want ErrCameraUnavailable", err)
	}
}

func TestCameraKeepalive(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, starts := newFleetServer(t, http.StatusOK, 0)
	feed := NewCameraFeed(srv.Client(), zerolog.Nop())
	feed.KeepaliveInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Keepalive(ctx, srv.URL+"/cctv/lobby/")
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("keepalive not sent")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	srv.Close()
}

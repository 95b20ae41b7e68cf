package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/marquee/internal/command"
	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/logbuffer"
	"github.com/friendsincode/marquee/internal/models"
	"github.com/friendsincode/marquee/internal/scheduler"
	"github.com/friendsincode/marquee/internal/scheduler/state"
	"github.com/friendsincode/marquee/internal/tv"
)

type fakeSlots []models.ScheduleSlot

func (f fakeSlots) ListSlots(context.Context) ([]models.ScheduleSlot, error) { return f, nil }

type fakeScheduler scheduler.Snapshot

func (f fakeScheduler) Snapshot() scheduler.Snapshot { return scheduler.Snapshot(f) }

type fakeTV tv.Status

func (f fakeTV) Status(context.Context) tv.Status { return tv.Status(f) }

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	s := New("127.0.0.1:0", deps, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestStatusEndpoint(t *testing.T) {
	history := state.NewStore(10)
	history.Add(state.Play{AssetID: "a", Name: "Welcome", StartedAt: time.Now()})

	s := newTestServer(t, Dependencies{
		Slots: fakeSlots{{
			ID: "day", Name: "Day", SlotType: models.SlotTypeTime,
			TimeFrom: models.MustTimeOfDay("09:00"), TimeTo: models.MustTimeOfDay("17:00"),
		}},
		Scheduler: fakeScheduler{CurrentAssetID: "a", SlotID: "day", Items: 3},
		TV:        fakeTV{CECAvailable: true, CECDevice: "/dev/cec0", TVOn: true},
		History:   history,
	})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}

	var body struct {
		CurrentAssetID string `json:"current_asset_id"`
		Schedule       struct {
			Enabled     bool `json:"schedule_enabled"`
			CurrentSlot struct {
				ID string `json:"slot_id"`
			} `json:"current_slot"`
		} `json:"schedule"`
		TV struct {
			CECAvailable bool `json:"cec_available"`
		} `json:"tv"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.CurrentAssetID != "a" || !body.Schedule.Enabled || body.Schedule.CurrentSlot.ID != "day" {
		t.Fatalf("body = %+v", body)
	}
	if !body.TV.CECAvailable {
		t.Fatal("tv status missing")
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Welcome") {
		t.Fatalf("history = %d %s", rr.Code, rr.Body)
	}
}

func TestOptionalDependencies(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodGet, "/api/v1/schedule", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/tv", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/logs", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/commands", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d", tt.method, tt.path, rr.Code, tt.want)
			}
		})
	}
}

func TestLogsEndpoint(t *testing.T) {
	logs := logbuffer.New(10)
	logger := zerolog.New(logbuffer.NewWriter(logs, nil))
	logger.Info().Str("component", "tv").Msg("CEC available")
	logger.Error().Str("component", "playout").Msg("player exited")

	s := newTestServer(t, Dependencies{Logs: logs})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/logs?level=error", nil))

	var body struct {
		Entries []logbuffer.LogEntry `json:"entries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Message != "player exited" {
		t.Fatalf("entries = %+v", body.Entries)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/logs?since=yesterday", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid since = %d", rr.Code)
	}
}

func TestCommandEndpoint(t *testing.T) {
	var got []string
	s := newTestServer(t, Dependencies{
		Commands: func(ctx context.Context, raw []byte, transport string) command.Reply {
			got = append(got, transport+":"+string(raw))
			if string(raw) == "current_asset_id" {
				return command.Reply{"current_asset_id": "a"}
			}
			return nil
		},
	})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader("next")))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("next = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader("current_asset_id")))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"current_asset_id":"a"`) {
		t.Fatalf("reply = %d %s", rr.Code, rr.Body)
	}

	if len(got) != 2 || got[0] != "http:next" {
		t.Fatalf("handled = %v", got)
	}
}

func TestEventsWebsocket(t *testing.T) {
	bus := events.NewBus()
	s := newTestServer(t, Dependencies{
		Bus: bus,
		Commands: func(ctx context.Context, raw []byte, transport string) command.Reply {
			return command.Reply{"current_asset_id": "a", "transport": transport}
		},
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	read := func() wsMessage {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}

	// The reply proves the handler has subscribed.
	if err := conn.Write(ctx, ws.MessageText, []byte("current_asset_id")); err != nil {
		t.Fatal(err)
	}
	msg := read()
	if msg.Type != events.EventCommandReply {
		t.Fatalf("first message = %+v", msg)
	}
	if payload, _ := msg.Payload.(map[string]any); payload["transport"] != "websocket" {
		t.Fatalf("reply payload = %+v", msg.Payload)
	}

	bus.Publish(events.EventNowPlaying, events.Payload{"asset_id": "b"})
	msg = read()
	if msg.Type != events.EventNowPlaying {
		t.Fatalf("event = %+v", msg)
	}
}

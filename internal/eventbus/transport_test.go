package eventbus

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/friendsincode/marquee/internal/events"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := marshalEnvelope(events.EventCommandReply, events.Payload{"current_asset_id": "a1"}, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := unmarshalEnvelope(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.EventType != events.EventCommandReply || msg.NodeID != "node-1" || msg.Payload["current_asset_id"] != "a1" {
		t.Fatalf("envelope = %+v", msg)
	}
	if msg.MessageID == "" || msg.Timestamp.IsZero() {
		t.Fatal("message id and timestamp must be set")
	}
	if _, err := unmarshalEnvelope([]byte("{")); err == nil {
		t.Fatal("expected error")
	}
}

func TestNodeIDIsUniquePerCall(t *testing.T) {
	a, b := NodeID(), NodeID()
	if a == b {
		t.Fatalf("node ids collide: %s", a)
	}
	if !strings.Contains(a, "-") {
		t.Fatalf("node id %q has no suffix", a)
	}
}

func TestMQTTTopics(t *testing.T) {
	cfg := MQTTConfig{DeviceID: "lobby-1"}
	if cfg.CommandTopic() != "tv/lobby-1/commands" || cfg.StatusTopic() != "tv/lobby-1/status" {
		t.Fatalf("topics = %s %s", cfg.CommandTopic(), cfg.StatusTopic())
	}
}

func TestForwardMirrorsBusEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []events.EventType
	done := make(chan struct{})
	go func() {
		defer close(done)
		forward(ctx, bus, func(et events.EventType, p events.Payload) error {
			mu.Lock()
			got = append(got, et)
			mu.Unlock()
			return nil
		}, zerolog.Nop())
	}()

	// Wait for the subscriptions to be registered.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.EventNowPlaying, events.Payload{"asset_id": "a"})
	bus.Publish(events.EventSettingsChanged, events.Payload{})
	bus.Publish(events.EventTVPower, events.Payload{"tv_on": false})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("forwarded %v, want now_playing and tv_power only", got)
	}
}

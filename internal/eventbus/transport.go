/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus connects the player to remote command channels (Redis,
// NATS, MQTT) and mirrors local events back to the fleet.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/command"
	"github.com/friendsincode/marquee/internal/events"
)

// Handler processes one raw command and returns an optional reply.
type Handler func(ctx context.Context, raw []byte, transport string) command.Reply

// Source is an inbound command transport. Run blocks until ctx ends.
type Source interface {
	Name() string
	Run(ctx context.Context, handle Handler) error
}

// MirroredEvents are forwarded from the in-process bus to remote channels.
var MirroredEvents = []events.EventType{
	events.EventNowPlaying,
	events.EventPlaybackSkipped,
	events.EventScheduleChanged,
	events.EventTVPower,
}

// envelope is the wire format of messages published by the player.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &msg, nil
}

// NodeID identifies this player on shared channels: hostname plus a short
// random suffix.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "marquee"
	}
	return host + "-" + uuid.NewString()[:8]
}

// forward publishes every mirrored bus event until ctx ends.
func forward(ctx context.Context, bus *events.Bus, publish func(events.EventType, events.Payload) error, logger zerolog.Logger) {
	if bus == nil {
		return
	}
	type tagged struct {
		eventType events.EventType
		payload   events.Payload
	}
	merged := make(chan tagged, 32)
	subs := make([]events.Subscriber, len(MirroredEvents))
	done := make(chan struct{})
	for i, et := range MirroredEvents {
		subs[i] = bus.Subscribe(et)
		go func(et events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- tagged{et, payload}:
				case <-done:
				}
			}
		}(et, subs[i])
	}
	defer func() {
		close(done)
		for i, et := range MirroredEvents {
			bus.Unsubscribe(et, subs[i])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-merged:
			if err := publish(ev.eventType, ev.payload); err != nil {
				logger.Debug().Err(err).Str("event_type", string(ev.eventType)).Msg("mirror event failed")
			}
		}
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/telemetry"
)

// Target is the player surface commands act on. Every action that changes
// what is on screen raises the playback loop's interruption signal.
type Target interface {
	Next()
	Previous()
	JumpTo(assetID string)
	Reload(ctx context.Context) error
	Stop()
	Play()
	CurrentAssetID() string
	SetupWifi(payload string)
	ShowSplash(payload string)
}

// Reply is sent back for commands that answer.
type Reply map[string]any

// Dispatcher applies decoded messages to a Target.
type Dispatcher struct {
	target Target
	bus    *events.Bus
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(target Target, bus *events.Bus, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		target: target,
		bus:    bus,
		logger: logger.With().Str("component", "commands").Logger(),
	}
}

// Dispatch runs msg. The reply is nil for commands without an answer;
// answers are also published as command_reply events. Unknown commands
// return ErrUnknownCommand and are otherwise ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, transport string) (Reply, error) {
	kind := msg.Kind()
	telemetry.CommandsReceivedTotal.WithLabelValues(kind.String(), transport).Inc()
	d.logger.Debug().Str("command", msg.Name).Str("transport", transport).Msg("command received")

	switch kind {
	case KindNext:
		d.target.Next()
	case KindPrevious:
		d.target.Previous()
	case KindAsset:
		if msg.Payload == "" {
			return nil, fmt.Errorf("asset command needs an asset id")
		}
		d.target.JumpTo(msg.Payload)
	case KindReload:
		if err := d.target.Reload(ctx); err != nil {
			return nil, fmt.Errorf("reload: %w", err)
		}
	case KindStop:
		d.target.Stop()
	case KindPlay:
		d.target.Play()
	case KindCurrentAssetID:
		reply := Reply{"current_asset_id": d.target.CurrentAssetID()}
		d.bus.Publish(events.EventCommandReply, events.Payload(reply))
		return reply, nil
	case KindSetupWifi:
		d.target.SetupWifi(msg.Payload)
	case KindShowSplash:
		d.target.ShowSplash(msg.Payload)
	default:
		d.logger.Warn().Str("command", msg.Name).Msg("command not found")
		return nil, fmt.Errorf("%q: %w", msg.Name, ErrUnknownCommand)
	}
	return nil, nil
}

// Handle decodes raw and dispatches it, logging failures. Transports call it
// from their subscriber goroutines.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, transport string) Reply {
	msg, err := Decode(raw)
	if err != nil {
		d.logger.Warn().Err(err).Str("transport", transport).Msg("malformed command")
		return nil
	}
	reply, err := d.Dispatch(ctx, msg, transport)
	if err != nil {
		d.logger.Warn().Err(err).Str("command", msg.Name).Msg("command failed")
	}
	return reply
}

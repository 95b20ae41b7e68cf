/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// CommandSubject receives commands; events go to EventsPrefix.<type>.
	CommandSubject string
	EventsPrefix   string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		CommandSubject: "marquee.commands",
		EventsPrefix:   "marquee.events",
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		Timeout:        5 * time.Second,
	}
}

// NATSSource receives commands on a NATS subject. Request/reply messages get
// their answer on the reply inbox.
type NATSSource struct {
	cfg    NATSConfig
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger
}

// NewNATSSource creates a NATS command source.
func NewNATSSource(cfg NATSConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) *NATSSource {
	return &NATSSource{cfg: cfg, bus: bus, nodeID: nodeID, logger: logger.With().Str("transport", "nats").Logger()}
}

// Name implements Source.
func (ns *NATSSource) Name() string { return "nats" }

func (ns *NATSSource) options() []nats.Option {
	opts := []nats.Option{
		nats.Name("marquee-" + ns.nodeID),
		nats.MaxReconnects(ns.cfg.MaxReconnects),
		nats.ReconnectWait(ns.cfg.ReconnectWait),
		nats.Timeout(ns.cfg.Timeout),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				ns.logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			ns.logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if ns.cfg.Token != "" {
		opts = append(opts, nats.Token(ns.cfg.Token))
	}
	return opts
}

// Run connects and serves commands until ctx ends.
func (ns *NATSSource) Run(ctx context.Context, handle Handler) error {
	nc, err := nats.Connect(ns.cfg.URL, ns.options()...)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	publish := func(eventType events.EventType, payload events.Payload) error {
		data, err := marshalEnvelope(eventType, payload, ns.nodeID)
		if err != nil {
			return err
		}
		return nc.Publish(ns.cfg.EventsPrefix+"."+string(eventType), data)
	}

	sub, err := nc.Subscribe(ns.cfg.CommandSubject, func(m *nats.Msg) {
		reply := handle(ctx, m.Data, ns.Name())
		if reply == nil {
			return
		}
		data, err := marshalEnvelope(events.EventCommandReply, events.Payload(reply), ns.nodeID)
		if err != nil {
			ns.logger.Error().Err(err).Msg("marshal reply")
			return
		}
		if m.Reply != "" {
			err = m.Respond(data)
		} else {
			err = nc.Publish(ns.cfg.EventsPrefix+"."+string(events.EventCommandReply), data)
		}
		if err != nil {
			ns.logger.Error().Err(err).Msg("failed to send reply")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ns.cfg.CommandSubject, err)
	}
	ns.logger.Info().Str("url", ns.cfg.URL).Str("subject", ns.cfg.CommandSubject).Msg("nats command subject subscribed")

	forward(ctx, ns.bus, publish, ns.logger)

	if err := sub.Unsubscribe(); err != nil {
		ns.logger.Debug().Err(err).Msg("nats unsubscribe")
	}
	if err := nc.Drain(); err != nil {
		ns.logger.Debug().Err(err).Msg("nats drain")
	}
	return nil
}

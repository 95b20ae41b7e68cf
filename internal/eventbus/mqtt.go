/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/events"
)

// MQTTConfig configures the MQTT transport. Commands arrive on
// tv/<device>/commands; replies and events go to tv/<device>/status.
type MQTTConfig struct {
	BrokerURL string
	DeviceID  string
	Username  string
	Password  string
	QoS       byte
}

// CommandTopic is the topic the device subscribes to.
func (c MQTTConfig) CommandTopic() string { return fmt.Sprintf("tv/%s/commands", c.DeviceID) }

// StatusTopic is the topic the device publishes to.
func (c MQTTConfig) StatusTopic() string { return fmt.Sprintf("tv/%s/status", c.DeviceID) }

// MQTTSource receives commands from an MQTT broker.
type MQTTSource struct {
	cfg    MQTTConfig
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger
}

// NewMQTTSource creates an MQTT command source.
func NewMQTTSource(cfg MQTTConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) *MQTTSource {
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	return &MQTTSource{cfg: cfg, bus: bus, nodeID: nodeID, logger: logger.With().Str("transport", "mqtt").Logger()}
}

// Name implements Source.
func (ms *MQTTSource) Name() string { return "mqtt" }

// Run connects to the broker and serves commands until ctx ends. The client
// reconnects and resubscribes on its own.
func (ms *MQTTSource) Run(ctx context.Context, handle Handler) error {
	var client mqtt.Client

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		reply := handle(ctx, msg.Payload(), ms.Name())
		if reply == nil {
			return
		}
		if err := ms.publish(client, events.EventCommandReply, events.Payload(reply)); err != nil {
			ms.logger.Error().Err(err).Msg("failed to publish reply")
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(ms.cfg.BrokerURL)
	opts.SetClientID(fmt.Sprintf("tv-%s", ms.cfg.DeviceID))
	opts.SetUsername(ms.cfg.Username)
	opts.SetPassword(ms.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetCleanSession(false)
	opts.OnConnect = func(c mqtt.Client) {
		ms.logger.Info().Str("broker", ms.cfg.BrokerURL).Str("topic", ms.cfg.CommandTopic()).Msg("connected to mqtt broker")
		if token := c.Subscribe(ms.cfg.CommandTopic(), ms.cfg.QoS, onMessage); token.Wait() && token.Error() != nil {
			ms.logger.Error().Err(token.Error()).Str("topic", ms.cfg.CommandTopic()).Msg("failed to subscribe")
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		ms.logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	client = mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(250)
		return nil
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("connect mqtt broker: %w", token.Error())
		}
	}

	forward(ctx, ms.bus, func(et events.EventType, p events.Payload) error {
		return ms.publish(client, et, p)
	}, ms.logger)

	client.Disconnect(250)
	return nil
}

func (ms *MQTTSource) publish(client mqtt.Client, eventType events.EventType, payload events.Payload) error {
	data, err := marshalEnvelope(eventType, payload, ms.nodeID)
	if err != nil {
		return err
	}
	token := client.Publish(ms.cfg.StatusTopic(), ms.cfg.QoS, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", ms.cfg.StatusTopic())
	}
	return token.Error()
}

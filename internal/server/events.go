/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/marquee/internal/eventbus"
	"github.com/friendsincode/marquee/internal/events"
)

const wsPingInterval = 15 * time.Second

type wsMessage struct {
	Type    events.EventType `json:"type"`
	Payload any              `json:"payload,omitempty"`
}

// handleEvents streams bus events to the client. When command input is
// enabled, text frames from the client are dispatched as commands and the
// reply, if any, is written back as a command_reply message.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = eventbus.MirroredEvents
	}

	out := make(chan wsMessage, 16)
	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		sub := s.deps.Bus.Subscribe(eventType)
		subscribers = append(subscribers, sub)
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case out <- wsMessage{Type: eventType, Payload: payload}:
				case <-ctx.Done():
				}
			}
		}(eventType, sub)
	}
	defer func() {
		for i, sub := range subscribers {
			s.deps.Bus.Unsubscribe(eventTypes[i], sub)
		}
	}()

	if s.deps.Commands != nil {
		go s.readCommands(ctx, cancel, conn, out)
	} else {
		ctx = conn.CloseRead(ctx)
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "closing")
			return
		case <-ticker.C:
			if err := s.writeMessage(ctx, conn, wsMessage{Type: "ping"}); err != nil {
				s.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case msg := <-out:
			if err := s.writeMessage(ctx, conn, msg); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *ws.Conn, out chan<- wsMessage) {
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		reply := s.deps.Commands(ctx, data, "websocket")
		if reply == nil {
			continue
		}
		select {
		case out <- wsMessage{Type: events.EventCommandReply, Payload: reply}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeMessage(ctx context.Context, conn *ws.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, events.EventType(part))
		}
	}
	return out
}

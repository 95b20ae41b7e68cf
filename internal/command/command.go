/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package command decodes inbound control messages and applies them to the
// player.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned for names outside the command table.
var ErrUnknownCommand = errors.New("unknown command")

// Kind is a closed set of command names.
type Kind int

const (
	KindUnknown Kind = iota
	KindNext
	KindPrevious
	KindAsset
	KindReload
	KindStop
	KindPlay
	KindCurrentAssetID
	KindSetupWifi
	KindShowSplash
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindNext:           "next",
	KindPrevious:       "previous",
	KindAsset:          "asset",
	KindReload:         "reload",
	KindStop:           "stop",
	KindPlay:           "play",
	KindCurrentAssetID: "current_asset_id",
	KindSetupWifi:      "setup_wifi",
	KindShowSplash:     "show_splash",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a message name to its kind; unrecognised names are
// KindUnknown.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Message is one inbound command.
type Message struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// Kind returns the parsed command kind.
func (m Message) Kind() Kind {
	return ParseKind(m.Name)
}

type wireMessage struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a raw message. Accepted forms are a JSON object
// {"name": ..., "payload": ...}, the "name&payload" text form, and a bare
// name. A "viewer " topic prefix is ignored. Non-string JSON payloads are
// kept as their JSON text.
func Decode(raw []byte) (Message, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Message{}, errors.New("empty command")
	}

	if strings.HasPrefix(text, "{") {
		var w wireMessage
		if err := json.Unmarshal([]byte(text), &w); err != nil {
			return Message{}, fmt.Errorf("decode command: %w", err)
		}
		if w.Name == "" {
			return Message{}, errors.New("command has no name")
		}
		msg := Message{Name: w.Name}
		if len(w.Payload) > 0 && string(w.Payload) != "null" {
			var s string
			if err := json.Unmarshal(w.Payload, &s); err == nil {
				msg.Payload = s
			} else {
				msg.Payload = string(w.Payload)
			}
		}
		return msg, nil
	}

	text = strings.TrimPrefix(text, "viewer ")
	name, payload, _ := strings.Cut(text, "&")
	return Message{Name: strings.TrimSpace(name), Payload: payload}, nil
}

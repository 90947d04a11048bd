// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Control actions accepted on the control topic and the web socket.
const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionRecalibrate = "recalibrate"
)

// ControlMessage is the payload of the control topic.
type ControlMessage struct {
	Action string `json:"action"`
}

// Controls is the part of the session controller a remote user can drive.
type Controls interface {
	Start() error
	Stop()
	Recalibrate()
}

// DecodeControl parses a control payload. A bare action word is accepted
// as well as JSON, so `mosquitto_pub -m start` works.
func DecodeControl(payload []byte) (ControlMessage, error) {
	text := strings.TrimSpace(string(payload))
	var msg ControlMessage
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return ControlMessage{}, fmt.Errorf("control message: %w", err)
		}
	} else {
		msg.Action = text
	}
	msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
	switch msg.Action {
	case ActionStart, ActionStop, ActionRecalibrate:
		return msg, nil
	default:
		return ControlMessage{}, fmt.Errorf("unknown control action %q", msg.Action)
	}
}

// ApplyControl runs one action against the controller.
func ApplyControl(c Controls, action string) error {
	switch action {
	case ActionStart:
		return c.Start()
	case ActionStop:
		c.Stop()
	case ActionRecalibrate:
		c.Recalibrate()
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
	return nil
}

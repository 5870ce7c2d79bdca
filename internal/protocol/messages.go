// Package protocol defines the websocket chat payloads.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage    MessageType = "client_message"
	TypeClientControl    MessageType = "client_control"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage carries one user chat message over the socket. SessionID may
// be empty on the first message; the server replies with the assigned id.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id"`
	Text      string      `json:"text"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

// ClientControl carries session lifecycle actions, currently only "end".
type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type AssistantMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
	FactCount int         `json:"fact_count"`
	Degraded  bool        `json:"degraded,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewAssistantMessage(sessionID, turnID, text string, factCount int, degraded bool) AssistantMessage {
	return AssistantMessage{
		Type:      TypeAssistantMessage,
		SessionID: sessionID,
		TurnID:    turnID,
		Text:      text,
		FactCount: factCount,
		Degraded:  degraded,
	}
}

func NewErrorEvent(sessionID, code, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{
		Type:      TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: retryable,
		Detail:    detail,
	}
}

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientMessage:
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.UserID) == "" {
			return nil, errors.New("client_message missing user_id")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("client_message missing text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

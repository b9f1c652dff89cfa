package domain

import (
	"encoding/json"
	"fmt"
)

// Outbound event names.
const (
	EventMessage      = "message"
	EventGroupMessage = "group_message"
	EventGroupJoined  = "group_joined"
	EventError        = "error"
)

// Inbound event names.
const (
	EventJoinGroup = "join_group"
)

// Envelope is the frame pushed to a connection. Data is encoded once per delivery
// and shared by every recipient.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %q payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GroupJoinedPayload struct {
	Message string  `json:"message"`
	GroupID GroupID `json:"groupId"`
}

type JoinGroupRequest struct {
	GroupID GroupID `json:"groupId"`
}

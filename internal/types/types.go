package types

import (
	"encoding/json"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

// Server message types.
const (
	MsgState  = "State"
	MsgEvent  = "Event"
	MsgResult = "Result"
	MsgError  = "Error"
)

type ClientMessage struct {
	Type    string          `json:"type"` // "Action" | "Timeout" | "Sync"
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type   string             `json:"type"` // "State" | "Event" | "Result" | "Error"
	State  *engine.MatchState `json:"state,omitempty"`
	Event  *engine.Event      `json:"event,omitempty"`
	Result *engine.Result     `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Code   string             `json:"code,omitempty"`
}

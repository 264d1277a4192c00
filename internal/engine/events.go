package engine

import (
	"context"
	"time"
)

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtPlayerLeft     EventType = "PlayerLeft"
	EvtActionRecorded EventType = "ActionRecorded"
	EvtTurnTimedOut   EventType = "TurnTimedOut"
	EvtTurnStarted    EventType = "TurnStarted"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtRoundEnded     EventType = "RoundEnded"
	EvtGameEnded      EventType = "GameEnded"
)

/*
	StartGame           -> RoundStarted
	ProcessAction       -> ActionRecorded [-> TurnStarted | RoundEnded -> RoundStarted | RoundEnded -> GameEnded]
	Timeout             -> TurnTimedOut   [-> same transition tail]
	ResumeRound         -> RoundStarted
	Finalize            -> GameEnded
	Join / Leave        -> PlayerJoined / PlayerLeft

	Transition events are published only after the snapshot that produced
	them is saved.
*/

// Event is immutable once built; Payload is one of the *Payload types below.
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"matchId"`
	Version int64     `json:"version"`
	Round   int       `json:"round"`
	Turn    int       `json:"turn"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// EventSink receives committed events. Publish must not block on delivery
// and has no way to report failure back to the engine.
type EventSink interface {
	Publish(ctx context.Context, evt Event)
}

type PlayerPayload struct {
	PlayerID string `json:"playerId"`
}

type ActionRecordedPayload struct {
	PlayerID    string         `json:"playerId"`
	Action      string         `json:"action"`
	ScoreDeltas map[string]int `json:"scoreDeltas,omitempty"`
	Concluded   bool           `json:"concluded"`
}

type TurnStartedPayload struct {
	Holder           string            `json:"holder,omitempty"`
	Pending          []string          `json:"pending,omitempty"`
	Roles            map[string]string `json:"roles"`
	TimeLimitSeconds *int              `json:"timeLimitSeconds,omitempty"`
}

type RoundStartedPayload struct {
	Round       int `json:"round"`
	TotalRounds int `json:"totalRounds"`
	TurnStartedPayload
}

type RoundEndedPayload struct {
	Round  int            `json:"round"`
	Scores map[string]int `json:"scores"`
}

type GameEndedPayload struct {
	Ranking []Standing `json:"ranking"`
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}

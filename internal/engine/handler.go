package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Handler is the contract every concrete game implements. It reads the
// match through View and expresses every change through Outcome; the engine
// applies the outcome and never inspects which game it is running.
type Handler interface {
	OnAction(v View, playerID, action string, payload json.RawMessage) (Outcome, error)
}

// RoundStarter is implemented by games that prepare per-round data (a new
// question, a new word). The returned bytes replace MatchState.GameData;
// nil leaves it untouched.
type RoundStarter interface {
	OnRoundStart(v View) (json.RawMessage, error)
}

// Defaulter supplies the settings a game runs with when the creator leaves
// them unset.
type Defaulter interface {
	Defaults() Settings
}

type Outcome struct {
	Accepted      bool
	Reason        string
	ConcludesTurn bool
	ScoreDeltas   map[string]int
	GameData      json.RawMessage
	Eliminations  []Elimination
}

type Elimination struct {
	PlayerID  string
	Permanent bool
}

func Accept() Outcome { return Outcome{Accepted: true} }

func Reject(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

// View is a read-only projection of the match handed to games. State is a
// deep copy, so writes through it are dropped.
type View struct {
	State *MatchState
	Now   time.Time
}

func newView(st *MatchState, now time.Time) View {
	return View{State: st.Clone(), Now: now}
}

func (v View) Round() int { return v.State.Round.CurrentRound }

func (v View) RoleOf(playerID string) string { return v.State.Roles.PlayerRoles[playerID] }

func (v View) Score(playerID string) int { return v.State.Scores.Scores[playerID] }

// RemainingTime is false when the turn has no time limit.
func (v View) RemainingTime() (time.Duration, bool) {
	return NewTurnManager(&v.State.Turn).RemainingTime(v.Now)
}

func (v View) Holder() (string, bool) {
	return NewTurnManager(&v.State.Turn).Holder()
}

// DecodeGameData unmarshals the game's own persisted state; empty data
// leaves out untouched.
func (v View) DecodeGameData(out any) error {
	if len(v.State.GameData) == 0 {
		return nil
	}
	return json.Unmarshal(v.State.GameData, out)
}

// Registry maps game types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(gameType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[gameType] = h
}

func (r *Registry) Lookup(gameType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameType)
	}
	return h, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

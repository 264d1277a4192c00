package engine

import (
	"encoding/json"
	"slices"
	"time"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseScoring  Phase = "scoring"
	PhaseFinished Phase = "finished"
)

type TurnMode string

const (
	TurnSequential   TurnMode = "sequential"
	TurnSimultaneous TurnMode = "simultaneous"
)

// TurnTimer is the timer name restarted at the start of every turn.
const TurnTimer = "turn_timer"

// Settings is the per-match configuration fixed at creation.
type Settings struct {
	TotalRounds                 int      `json:"totalRounds"`
	TurnMode                    TurnMode `json:"turnMode"`
	RoundPerTurn                bool     `json:"roundPerTurn"`
	TurnTimeLimitSeconds        *int     `json:"turnTimeLimitSeconds,omitempty"`
	Roles                       []string `json:"roles,omitempty"`
	AllowMultiplePlayersPerRole bool     `json:"allowMultiplePlayersPerRole"`
	ScoringIntermission         bool     `json:"scoringIntermission"`
	MinPlayers                  int      `json:"minPlayers"`
}

type RoundSnapshot struct {
	CurrentRound          int      `json:"currentRound"`
	TotalRounds           int      `json:"totalRounds"`
	IsComplete            bool     `json:"isComplete"`
	PermanentlyEliminated []string `json:"permanentlyEliminated"`
	TemporarilyEliminated []string `json:"temporarilyEliminated"`
}

type TurnSnapshot struct {
	Mode             TurnMode `json:"mode"`
	TurnOrder        []string `json:"turnOrder"`
	CurrentTurnIndex int      `json:"currentTurnIndex"`
	PendingPlayers   []string `json:"pendingPlayers"`
	CompletedPlayers []string `json:"completedPlayers"`
	RoundComplete    bool     `json:"roundComplete"`
	TimeLimitSeconds *int     `json:"timeLimitSeconds"`
	Sequence         int      `json:"sequence"`
	StartedAt        int64    `json:"startedAtEpochMs"`
	Concluded        bool     `json:"concluded"`
	// Advanced is set when the holder left after concluding their turn and
	// the follower already sits at CurrentTurnIndex.
	Advanced bool `json:"advanced,omitempty"`
}

type RoleSnapshot struct {
	PlayerRoles                 map[string]string `json:"playerRoles"`
	AvailableRoles              []string          `json:"availableRoles"`
	AllowMultiplePlayersPerRole bool              `json:"allowMultiplePlayersPerRole"`
	Rotation                    int               `json:"rotation"`
}

type ScoreSnapshot struct {
	Scores   map[string]int `json:"scores"`
	Departed map[string]int `json:"departed,omitempty"`
}

type Timer struct {
	DurationSeconds int   `json:"durationSeconds"`
	StartedAt       int64 `json:"startedAtEpochMs"`
}

type TimerSnapshot struct {
	Timers map[string]Timer `json:"timers"`
}

type LockEntry struct {
	Timestamp int64 `json:"timestamp"`
}

// ActionLock is scoped to one round and phase; entries from an older scope
// are discarded wholesale.
type ActionLock struct {
	Round  int                  `json:"round"`
	Phase  Phase                `json:"phase"`
	Locked map[string]LockEntry `json:"locked"`
}

type Standing struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// MatchState is the persisted aggregate. It is rebuilt from storage on
// every engine call and only ever written back whole.
type MatchState struct {
	ID        string          `json:"id"`
	GameType  string          `json:"gameType"`
	Version   int64           `json:"version"`
	Phase     Phase           `json:"phase"`
	Players   []string        `json:"players"`
	Settings  Settings        `json:"settings"`
	Round     RoundSnapshot   `json:"round"`
	Turn      TurnSnapshot    `json:"turn"`
	Roles     RoleSnapshot    `json:"roles"`
	Scores    ScoreSnapshot   `json:"scores"`
	Timers    TimerSnapshot   `json:"timers"`
	Locks     ActionLock      `json:"locks"`
	GameData  json.RawMessage `json:"gameData,omitempty"`
	Ranking   []Standing      `json:"ranking,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Key identifies one transition critical section.
type Key struct {
	Round int
	Phase string
}

func (s *MatchState) IsActive(playerID string) bool {
	_, ok := slices.BinarySearch(s.Players, playerID)
	return ok
}

// TransitionKey is the (round, phase) pair the round-transition lock is taken on.
func (s *MatchState) TransitionKey() Key {
	return Key{Round: s.Round.CurrentRound, Phase: phaseKey(s.Phase, s.Turn.Sequence)}
}

// Clone returns a deep copy, used for the read-only view handed to games.
func (s *MatchState) Clone() *MatchState {
	c := *s
	c.Players = slices.Clone(s.Players)
	c.Settings.Roles = slices.Clone(s.Settings.Roles)
	c.Settings.TurnTimeLimitSeconds = cloneIntPtr(s.Settings.TurnTimeLimitSeconds)
	c.Round.PermanentlyEliminated = slices.Clone(s.Round.PermanentlyEliminated)
	c.Round.TemporarilyEliminated = slices.Clone(s.Round.TemporarilyEliminated)
	c.Turn.TurnOrder = slices.Clone(s.Turn.TurnOrder)
	c.Turn.PendingPlayers = slices.Clone(s.Turn.PendingPlayers)
	c.Turn.CompletedPlayers = slices.Clone(s.Turn.CompletedPlayers)
	c.Turn.TimeLimitSeconds = cloneIntPtr(s.Turn.TimeLimitSeconds)
	c.Roles.PlayerRoles = cloneMap(s.Roles.PlayerRoles)
	c.Roles.AvailableRoles = slices.Clone(s.Roles.AvailableRoles)
	c.Scores.Scores = cloneMap(s.Scores.Scores)
	c.Scores.Departed = cloneMap(s.Scores.Departed)
	c.Timers.Timers = cloneMap(s.Timers.Timers)
	c.Locks.Locked = cloneMap(s.Locks.Locked)
	c.GameData = slices.Clone(s.GameData)
	c.Ranking = slices.Clone(s.Ranking)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Marshal and Unmarshal are the storage encoding of a MatchState.
func Marshal(s *MatchState) ([]byte, error) {
	return json.Marshal(s)
}

func Unmarshal(data []byte) (*MatchState, error) {
	var s MatchState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

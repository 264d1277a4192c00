package engine

import (
	"fmt"
	"slices"
	"time"
)

// NewMatchState builds every snapshot fresh for a match in the waiting
// phase. Players keep the given order as turn order; duplicates are dropped.
func NewMatchState(id, gameType string, settings Settings, players []string, now time.Time) *MatchState {
	order := make([]string, 0, len(players))
	for _, p := range players {
		if p != "" && !slices.Contains(order, p) {
			order = append(order, p)
		}
	}
	sorted := slices.Clone(order)
	slices.Sort(sorted)

	roles := slices.Clone(settings.Roles)
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}

	s := &MatchState{
		ID:       id,
		GameType: gameType,
		Phase:    PhaseWaiting,
		Players:  sorted,
		Settings: settings,
		Round: RoundSnapshot{
			TotalRounds:           settings.TotalRounds,
			PermanentlyEliminated: []string{},
			TemporarilyEliminated: []string{},
		},
		Turn: TurnSnapshot{
			Mode:             settings.TurnMode,
			TurnOrder:        order,
			PendingPlayers:   []string{},
			CompletedPlayers: []string{},
			TimeLimitSeconds: cloneIntPtr(settings.TurnTimeLimitSeconds),
		},
		Roles: RoleSnapshot{
			PlayerRoles:                 map[string]string{},
			AvailableRoles:              roles,
			AllowMultiplePlayersPerRole: settings.AllowMultiplePlayersPerRole,
		},
		Scores:    ScoreSnapshot{Scores: make(map[string]int, len(order))},
		Timers:    TimerSnapshot{Timers: map[string]Timer{}},
		Locks:     ActionLock{Phase: PhaseWaiting, Locked: map[string]LockEntry{}},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	for _, p := range order {
		s.Scores.Scores[p] = 0
	}
	NewRoleManager(&s.Roles).Assign(order)
	return s
}

// ValidateSettings fills the defaults every game shares and rejects
// impossible configurations.
func ValidateSettings(s Settings) (Settings, error) {
	if s.TurnMode == "" {
		s.TurnMode = TurnSequential
	}
	if s.TurnMode != TurnSequential && s.TurnMode != TurnSimultaneous {
		return s, fmt.Errorf("%w: turn mode %q", ErrInvalidSettings, s.TurnMode)
	}
	if s.TotalRounds <= 0 {
		return s, fmt.Errorf("%w: totalRounds must be positive", ErrInvalidSettings)
	}
	if s.TurnTimeLimitSeconds != nil && *s.TurnTimeLimitSeconds <= 0 {
		return s, fmt.Errorf("%w: turn time limit must be positive", ErrInvalidSettings)
	}
	if s.MinPlayers <= 0 {
		s.MinPlayers = 1
	}
	return s, nil
}

// MergeSettings overlays the fields set in s onto the game's defaults.
func MergeSettings(def, s Settings) Settings {
	out := def
	if s.TotalRounds != 0 {
		out.TotalRounds = s.TotalRounds
	}
	if s.TurnMode != "" {
		out.TurnMode = s.TurnMode
	}
	if s.TurnTimeLimitSeconds != nil {
		out.TurnTimeLimitSeconds = cloneIntPtr(s.TurnTimeLimitSeconds)
	}
	if len(s.Roles) > 0 {
		out.Roles = slices.Clone(s.Roles)
	}
	if s.MinPlayers != 0 {
		out.MinPlayers = s.MinPlayers
	}
	out.RoundPerTurn = out.RoundPerTurn || s.RoundPerTurn
	out.AllowMultiplePlayersPerRole = out.AllowMultiplePlayersPerRole || s.AllowMultiplePlayersPerRole
	out.ScoringIntermission = out.ScoringIntermission || s.ScoringIntermission
	return out
}

func phaseKey(phase Phase, sequence int) string {
	return fmt.Sprintf("%s/turn-%d", phase, sequence)
}

func contains(set []string, v string) bool {
	return slices.Contains(set, v)
}

func removeValue(set []string, v string) []string {
	i := slices.Index(set, v)
	if i < 0 {
		return set
	}
	return slices.Delete(set, i, i+1)
}

func insertSorted(set []string, v string) []string {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	return slices.Insert(set, i, v)
}

package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func TestSequentialTurns_FullCycleSignalsOnce(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		order := make([]string, n)
		for i := range order {
			order[i] = string(rune('a' + i))
		}
		s := &TurnSnapshot{Mode: TurnSequential, TurnOrder: order}
		tm := NewTurnManager(s)
		tm.StartTurn(t0, nil)
		start := s.CurrentTurnIndex

		signals := 0
		for i := 0; i < n; i++ {
			tm.Advance()
			if tm.CycleComplete() {
				signals++
			}
		}
		if s.CurrentTurnIndex != start {
			t.Fatalf("n=%d: index %d after a full cycle, want %d", n, s.CurrentTurnIndex, start)
		}
		if signals != 1 {
			t.Fatalf("n=%d: got %d cycle signals, want 1", n, signals)
		}
	}
}

func TestSequentialTurns_Holder(t *testing.T) {
	s := &TurnSnapshot{Mode: TurnSequential, TurnOrder: []string{"a", "b", "c"}}
	tm := NewTurnManager(s)
	tm.StartTurn(t0, nil)

	got := []string{}
	for range 4 {
		h, ok := tm.Holder()
		require.True(t, ok)
		got = append(got, h)
		tm.Advance()
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestSequentialTurns_Remove(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		remove    string
		wantIndex int
		wantClose bool
	}{
		{"before holder", 2, "a", 1, false},
		{"after holder", 0, "c", 0, false},
		{"holder mid order", 1, "b", 1, false},
		{"last holder", 2, "c", 1, true},
		{"unknown", 1, "z", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &TurnSnapshot{Mode: TurnSequential, TurnOrder: []string{"a", "b", "c"}, CurrentTurnIndex: tt.index}
			closes := NewTurnManager(s).Remove(tt.remove)
			assert.Equal(t, tt.wantClose, closes)
			assert.Equal(t, tt.wantIndex, s.CurrentTurnIndex)
		})
	}
}

func TestSimultaneousTurns_CompleteIffAllMarked(t *testing.T) {
	s := &TurnSnapshot{Mode: TurnSimultaneous, TurnOrder: []string{"a", "b", "c"}}
	tm := NewTurnManager(s)
	tm.StartTurn(t0, nil)

	for i, p := range []string{"b", "a", "c"} {
		if tm.CycleComplete() {
			t.Fatalf("complete after %d of 3 actions", i)
		}
		tm.MarkAction(p)
	}
	if !tm.CycleComplete() {
		t.Fatalf("not complete after every player acted")
	}
	assert.Empty(t, s.PendingPlayers)
	assert.Equal(t, []string{"b", "a", "c"}, s.CompletedPlayers)

	// marking twice is harmless
	tm.MarkAction("a")
	assert.Len(t, s.CompletedPlayers, 3)
}

func TestSimultaneousTurns_ExcludedAndSkipped(t *testing.T) {
	s := &TurnSnapshot{Mode: TurnSimultaneous, TurnOrder: []string{"a", "b", "c"}}
	tm := NewTurnManager(s)
	tm.StartTurn(t0, []string{"c"})
	assert.Equal(t, []string{"a", "b"}, s.PendingPlayers)

	tm.MarkAction("a")
	tm.Skip("b")
	assert.True(t, tm.CycleComplete())

	tm.StartTurn(t0, []string{"a", "b", "c"})
	assert.True(t, tm.CycleComplete(), "nobody eligible")
}

func TestSimultaneousTurns_RemoveLastPendingCloses(t *testing.T) {
	s := &TurnSnapshot{Mode: TurnSimultaneous, TurnOrder: []string{"a", "b"}}
	tm := NewTurnManager(s)
	tm.StartTurn(t0, nil)
	tm.MarkAction("a")

	assert.True(t, tm.Remove("b"))
	assert.True(t, tm.CycleComplete())
	assert.False(t, tm.Remove("a"), "a already acted")
}

func TestTurns_StartBumpsSequence(t *testing.T) {
	s := &TurnSnapshot{Mode: TurnSequential, TurnOrder: []string{"a"}, Concluded: true, TimeLimitSeconds: intPtr(30)}
	tm := NewTurnManager(s)
	tm.StartTurn(t0, nil)
	tm.StartTurn(t0.Add(time.Second), nil)

	assert.Equal(t, 2, s.Sequence)
	assert.False(t, s.Concluded)
	left, ok := tm.RemainingTime(t0.Add(11 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, left)
}

func TestRoles_StrictRotation(t *testing.T) {
	s := &RoleSnapshot{AvailableRoles: []string{"x", "y", "z"}}
	rm := NewRoleManager(s)
	order := []string{"a", "b", "c", "d"}
	rm.Assign(order)
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "z", "d": "x"}, s.PlayerRoles)

	rm.Rotate(order)
	assert.Equal(t, map[string]string{"a": "y", "b": "z", "c": "x", "d": "y"}, s.PlayerRoles)
}

func TestRoles_MultiPolicyRotatesOffset(t *testing.T) {
	s := &RoleSnapshot{AvailableRoles: []string{"drawer", "guesser"}, AllowMultiplePlayersPerRole: true}
	rm := NewRoleManager(s)
	order := []string{"a", "b", "c"}
	rm.Assign(order)
	assert.Equal(t, []string{"a"}, rm.Holders(order, "drawer"))

	for _, want := range []string{"b", "c", "a"} {
		rm.Rotate(order)
		assert.Equal(t, []string{want}, rm.Holders(order, "drawer"))
		assert.Len(t, rm.Holders(order, "guesser"), 2)
	}
}

func TestRoles_RemoveKeepsFirstRoleFilled(t *testing.T) {
	s := &RoleSnapshot{AvailableRoles: []string{"drawer", "guesser"}, AllowMultiplePlayersPerRole: true, Rotation: 2}
	rm := NewRoleManager(s)
	order := []string{"a", "b", "c"}
	rm.Assign(order)
	require.Equal(t, "drawer", rm.RoleOf("c"))

	order = []string{"a", "b"}
	rm.Remove(order, "c")
	assert.Equal(t, "drawer", rm.RoleOf("a"))
	assert.Empty(t, rm.RoleOf("c"))
}

func TestRoles_DefaultRole(t *testing.T) {
	s := &RoleSnapshot{}
	rm := NewRoleManager(s)
	rm.Assign([]string{"a", "b"})
	assert.Equal(t, DefaultRole, rm.RoleOf("b"))
}

func TestScoring_RankingSharesTies(t *testing.T) {
	s := &ScoreSnapshot{}
	sc := NewScoringSystem(s)
	for _, p := range []string{"d", "c", "b", "a"} {
		sc.Add(p)
	}
	sc.Award("a", 10)
	sc.Award("b", 30)
	sc.Award("c", 10)
	sc.Award("d", -5)

	assert.Equal(t, []Standing{
		{PlayerID: "b", Score: 30, Rank: 1},
		{PlayerID: "a", Score: 10, Rank: 2},
		{PlayerID: "c", Score: 10, Rank: 2},
		{PlayerID: "d", Score: -5, Rank: 4},
	}, sc.Ranking())

	sc.Remove("b")
	assert.Equal(t, map[string]int{"b": 30}, s.Departed)
	assert.Equal(t, "a", sc.Ranking()[0].PlayerID)
}

func TestTimers(t *testing.T) {
	s := &TimerSnapshot{}
	ts := NewTimerService(s)

	if ts.IsExpired("t", t0) {
		t.Fatalf("unknown timer must not be expired")
	}
	ts.Start("t", 10, t0)
	assert.Equal(t, 4*time.Second, ts.Remaining("t", t0.Add(6*time.Second)))
	assert.False(t, ts.IsExpired("t", t0.Add(9*time.Second)))
	assert.True(t, ts.IsExpired("t", t0.Add(10*time.Second)))
	assert.Equal(t, time.Duration(0), ts.Remaining("t", t0.Add(time.Hour)))

	ts.Stop("t")
	assert.False(t, ts.Has("t"))
}

func TestRounds(t *testing.T) {
	s := &RoundSnapshot{TotalRounds: 2}
	rm := NewRoundManager(s)

	rm.StartRound()
	rm.EliminateTemporarily("a")
	rm.EliminatePermanently("b")
	assert.True(t, rm.IsEliminated("a"))
	rm.CompleteRound()
	assert.False(t, rm.IsComplete())

	rm.StartRound()
	assert.Equal(t, 2, rm.Current())
	assert.False(t, rm.IsEliminated("a"), "temporary elimination lifted")
	assert.True(t, rm.IsEliminated("b"))

	rm.CompleteRound()
	assert.True(t, rm.IsComplete())
	rm.StartRound()
	assert.Equal(t, 2, rm.Current(), "complete match never opens another round")
}

func TestPlayerActionLock(t *testing.T) {
	s := &ActionLock{}
	l := NewPlayerActionLock(s, 1, PhasePlaying)
	require.True(t, l.TryLock("a", t0))
	require.False(t, l.TryLock("a", t0))

	// a different scope ignores stale entries
	l = NewPlayerActionLock(s, 2, PhasePlaying)
	assert.False(t, l.IsLocked("a"))

	l.TryLock("b", t0)
	l.Rescope(3, PhaseScoring)
	assert.False(t, l.IsLocked("b"))
	assert.Equal(t, 3, s.Round)
}

func TestSettings(t *testing.T) {
	tests := []struct {
		name    string
		in      Settings
		wantErr bool
	}{
		{"defaults applied", Settings{TotalRounds: 1}, false},
		{"no rounds", Settings{}, true},
		{"bad mode", Settings{TotalRounds: 1, TurnMode: "chaos"}, true},
		{"zero timer", Settings{TotalRounds: 1, TurnTimeLimitSeconds: intPtr(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSettings(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSettings) {
					t.Fatalf("want ErrInvalidSettings, got %v", err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TurnSequential, got.TurnMode)
			assert.Equal(t, 1, got.MinPlayers)
		})
	}

	merged := MergeSettings(
		Settings{TotalRounds: 3, TurnMode: TurnSimultaneous, RoundPerTurn: true, Roles: []string{"x"}},
		Settings{TotalRounds: 5},
	)
	assert.Equal(t, 5, merged.TotalRounds)
	assert.Equal(t, TurnSimultaneous, merged.TurnMode)
	assert.True(t, merged.RoundPerTurn)
	assert.Equal(t, []string{"x"}, merged.Roles)
}

func TestMatchState_JSONRoundTrip(t *testing.T) {
	st := NewMatchState("m1", "g", Settings{
		TotalRounds:          2,
		TurnMode:             TurnSimultaneous,
		TurnTimeLimitSeconds: intPtr(15),
		Roles:                []string{"x", "y"},
	}, []string{"b", "a", "b"}, t0)
	st.Phase = PhasePlaying
	st.Round.CurrentRound = 1
	st.Round.TemporarilyEliminated = []string{"a"}
	st.Turn.PendingPlayers = []string{"b"}
	st.Turn.CompletedPlayers = []string{"a"}
	st.Turn.Sequence = 4
	st.Scores.Scores["a"] = 12
	st.Scores.Departed = map[string]int{"z": 3}
	st.Timers.Timers[TurnTimer] = Timer{DurationSeconds: 15, StartedAt: t0.UnixMilli()}
	st.Locks = ActionLock{Round: 1, Phase: PhasePlaying, Locked: map[string]LockEntry{"a": {Timestamp: t0.UnixMilli()}}}
	st.GameData = json.RawMessage(`{"k":"v"}`)

	data, err := Marshal(st)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	assert.Equal(t, []string{"a", "b"}, got.Players)
	assert.Equal(t, []string{"b", "a"}, got.Turn.TurnOrder)
	assert.True(t, got.IsActive("a"))
	assert.False(t, got.IsActive("z"))
}

func TestMatchState_CloneIsDeep(t *testing.T) {
	st := NewMatchState("m1", "g", Settings{TotalRounds: 1}, []string{"a", "b"}, t0)
	c := st.Clone()
	c.Players[0] = "zz"
	c.Scores.Scores["a"] = 99
	c.Turn.TurnOrder[1] = "zz"
	c.Roles.PlayerRoles["a"] = "zz"

	assert.Equal(t, []string{"a", "b"}, st.Players)
	assert.Equal(t, 0, st.Scores.Scores["a"])
	assert.Equal(t, []string{"a", "b"}, st.Turn.TurnOrder)
	assert.Equal(t, DefaultRole, st.Roles.PlayerRoles["a"])
}

package engine

import (
	"slices"
	"time"
)

// TurnManager decides whose turn it is. Sequential hands the turn to one
// holder at a time; Simultaneous lets every eligible player act once per
// cycle. CycleComplete is the only signal the round logic reads.
type TurnManager interface {
	StartTurn(now time.Time, excluded []string)
	Advance()
	MarkAction(playerID string)
	// Skip takes an eliminated player out of the current cycle without
	// counting them as having acted.
	Skip(playerID string)
	CycleComplete() bool
	RemainingTime(now time.Time) (time.Duration, bool)
	Holder() (string, bool)
	Add(playerID string)
	// Remove reports whether dropping the player leaves the current turn
	// waiting only for its concluding advance.
	Remove(playerID string) bool
}

func NewTurnManager(s *TurnSnapshot) TurnManager {
	if s.Mode == TurnSimultaneous {
		return &simultaneousTurns{turnBase{s: s}}
	}
	return &sequentialTurns{turnBase{s: s}}
}

type turnBase struct {
	s *TurnSnapshot
}

func (b *turnBase) start(now time.Time) {
	b.s.Sequence++
	b.s.StartedAt = now.UnixMilli()
	b.s.RoundComplete = false
	b.s.Concluded = false
	b.s.Advanced = false
}

func (b *turnBase) CycleComplete() bool { return b.s.RoundComplete }

// RemainingTime is false when the turn has no time limit.
func (b *turnBase) RemainingTime(now time.Time) (time.Duration, bool) {
	if b.s.TimeLimitSeconds == nil {
		return 0, false
	}
	return remaining(b.s.StartedAt, *b.s.TimeLimitSeconds, now), true
}

func (b *turnBase) Add(playerID string) {
	if !slices.Contains(b.s.TurnOrder, playerID) {
		b.s.TurnOrder = append(b.s.TurnOrder, playerID)
	}
}

type sequentialTurns struct {
	turnBase
}

func (t *sequentialTurns) StartTurn(now time.Time, _ []string) {
	t.start(now)
	if n := len(t.s.TurnOrder); n > 0 {
		t.s.CurrentTurnIndex %= n
	} else {
		t.s.CurrentTurnIndex = 0
	}
}

// Advance moves to the next holder; wrapping back to index 0 is the cycle
// signal. With a single player every advance wraps. An advance already
// taken by a departure is consumed without moving.
func (t *sequentialTurns) Advance() {
	n := len(t.s.TurnOrder)
	if n == 0 {
		return
	}
	if t.s.Advanced {
		t.s.Advanced = false
		t.s.RoundComplete = false
		return
	}
	t.s.CurrentTurnIndex = (t.s.CurrentTurnIndex + 1) % n
	t.s.RoundComplete = t.s.CurrentTurnIndex == 0
}

func (t *sequentialTurns) MarkAction(string) {}

func (t *sequentialTurns) Holder() (string, bool) {
	if len(t.s.TurnOrder) == 0 {
		return "", false
	}
	return t.s.TurnOrder[t.s.CurrentTurnIndex%len(t.s.TurnOrder)], true
}

func (t *sequentialTurns) Remove(playerID string) bool {
	i := slices.Index(t.s.TurnOrder, playerID)
	if i < 0 {
		return false
	}
	t.s.TurnOrder = slices.Delete(t.s.TurnOrder, i, i+1)
	n := len(t.s.TurnOrder)
	switch {
	case n == 0:
		t.s.CurrentTurnIndex = 0
	case i < t.s.CurrentTurnIndex:
		t.s.CurrentTurnIndex--
	case i == t.s.CurrentTurnIndex && i >= n:
		// The last holder of the cycle left. Point at the new last player so
		// the concluding advance wraps to 0 and reports the cycle.
		t.s.CurrentTurnIndex = n - 1
		return true
	}
	return false
}

// Skip is a no-op: eliminated holders are passed over when the turn advances.
func (t *sequentialTurns) Skip(string) {}

type simultaneousTurns struct {
	turnBase
}

func (t *simultaneousTurns) StartTurn(now time.Time, excluded []string) {
	t.start(now)
	pending := make([]string, 0, len(t.s.TurnOrder))
	for _, id := range t.s.TurnOrder {
		if !slices.Contains(excluded, id) {
			pending = append(pending, id)
		}
	}
	t.s.PendingPlayers = pending
	t.s.CompletedPlayers = []string{}
	t.s.RoundComplete = len(pending) == 0
}

// Advance closes the current simultaneous turn: one turn is one cycle.
func (t *simultaneousTurns) Advance() {
	t.s.RoundComplete = true
}

func (t *simultaneousTurns) MarkAction(playerID string) {
	i := slices.Index(t.s.PendingPlayers, playerID)
	if i < 0 {
		return
	}
	t.s.PendingPlayers = slices.Delete(t.s.PendingPlayers, i, i+1)
	t.s.CompletedPlayers = append(t.s.CompletedPlayers, playerID)
	t.s.RoundComplete = len(t.s.PendingPlayers) == 0
}

func (t *simultaneousTurns) Skip(playerID string) {
	before := len(t.s.PendingPlayers)
	t.s.PendingPlayers = removeValue(t.s.PendingPlayers, playerID)
	if len(t.s.PendingPlayers) != before {
		t.s.RoundComplete = len(t.s.PendingPlayers) == 0
	}
}

func (t *simultaneousTurns) Holder() (string, bool) { return "", false }

func (t *simultaneousTurns) Remove(playerID string) bool {
	t.s.TurnOrder = removeValue(t.s.TurnOrder, playerID)
	t.s.CompletedPlayers = removeValue(t.s.CompletedPlayers, playerID)
	wasPending := slices.Contains(t.s.PendingPlayers, playerID)
	t.s.PendingPlayers = removeValue(t.s.PendingPlayers, playerID)
	if wasPending && len(t.s.PendingPlayers) == 0 && !t.s.RoundComplete {
		t.s.RoundComplete = true
		return true
	}
	return false
}

package engine

import "time"

// PlayerActionLock keeps a player from acting twice in the same turn. It is
// scoped to a round and phase and cleared whenever a turn starts; entries
// left over from another scope are treated as absent.
type PlayerActionLock struct {
	s     *ActionLock
	round int
	phase Phase
}

func NewPlayerActionLock(s *ActionLock, round int, phase Phase) *PlayerActionLock {
	if s.Locked == nil || s.Round != round || s.Phase != phase {
		s.Locked = map[string]LockEntry{}
		s.Round = round
		s.Phase = phase
	}
	return &PlayerActionLock{s: s, round: round, phase: phase}
}

// TryLock is false when the player already acted (AlreadyActed).
func (l *PlayerActionLock) TryLock(playerID string, now time.Time) bool {
	if l.IsLocked(playerID) {
		return false
	}
	l.s.Locked[playerID] = LockEntry{Timestamp: now.UnixMilli()}
	return true
}

func (l *PlayerActionLock) IsLocked(playerID string) bool {
	_, ok := l.s.Locked[playerID]
	return ok
}

func (l *PlayerActionLock) Unlock(playerID string) {
	delete(l.s.Locked, playerID)
}

func (l *PlayerActionLock) UnlockAll() {
	clear(l.s.Locked)
}

// Rescope moves the lock to a new round/phase, dropping every entry.
func (l *PlayerActionLock) Rescope(round int, phase Phase) {
	l.round, l.phase = round, phase
	l.s.Round, l.s.Phase = round, phase
	l.UnlockAll()
}

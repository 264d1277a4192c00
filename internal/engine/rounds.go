package engine

// RoundManager owns the round counter and elimination bookkeeping. It never
// looks at turns: the engine decides when a round is complete.
type RoundManager struct {
	s *RoundSnapshot
}

func NewRoundManager(s *RoundSnapshot) *RoundManager {
	return &RoundManager{s: s}
}

// StartRound opens the next round (0 -> 1 on the first call) and lifts
// temporary eliminations.
func (r *RoundManager) StartRound() {
	if r.s.IsComplete {
		return
	}
	r.s.CurrentRound++
	r.s.TemporarilyEliminated = []string{}
}

// CompleteRound closes the current round. Once the last round is closed the
// match is complete and further calls do nothing.
func (r *RoundManager) CompleteRound() {
	if r.s.IsComplete {
		return
	}
	if r.s.CurrentRound >= r.s.TotalRounds {
		r.s.IsComplete = true
	}
}

func (r *RoundManager) IsComplete() bool { return r.s.IsComplete }

func (r *RoundManager) Current() int { return r.s.CurrentRound }

func (r *RoundManager) EliminateTemporarily(playerID string) {
	if !r.IsEliminated(playerID) {
		r.s.TemporarilyEliminated = append(r.s.TemporarilyEliminated, playerID)
	}
}

func (r *RoundManager) EliminatePermanently(playerID string) {
	r.s.TemporarilyEliminated = removeValue(r.s.TemporarilyEliminated, playerID)
	if !contains(r.s.PermanentlyEliminated, playerID) {
		r.s.PermanentlyEliminated = append(r.s.PermanentlyEliminated, playerID)
	}
}

func (r *RoundManager) IsEliminated(playerID string) bool {
	return contains(r.s.PermanentlyEliminated, playerID) || contains(r.s.TemporarilyEliminated, playerID)
}

// Eliminated lists everyone sitting out the current round.
func (r *RoundManager) Eliminated() []string {
	out := make([]string, 0, len(r.s.PermanentlyEliminated)+len(r.s.TemporarilyEliminated))
	out = append(out, r.s.PermanentlyEliminated...)
	return append(out, r.s.TemporarilyEliminated...)
}

func (r *RoundManager) Forget(playerID string) {
	r.s.TemporarilyEliminated = removeValue(r.s.TemporarilyEliminated, playerID)
	r.s.PermanentlyEliminated = removeValue(r.s.PermanentlyEliminated, playerID)
}

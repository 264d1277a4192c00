package engine

import (
	"cmp"
	"slices"
)

// ScoringSystem is a per-player accumulator. It does not deduplicate; the
// engine's action lock is what keeps one request from scoring twice.
type ScoringSystem struct {
	s *ScoreSnapshot
}

func NewScoringSystem(s *ScoreSnapshot) *ScoringSystem {
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	return &ScoringSystem{s: s}
}

func (sc *ScoringSystem) Add(playerID string) {
	if _, ok := sc.s.Scores[playerID]; !ok {
		sc.s.Scores[playerID] = 0
	}
}

// Award adds delta (zero and negative allowed) to the player's total.
func (sc *ScoringSystem) Award(playerID string, delta int) {
	sc.s.Scores[playerID] += delta
}

func (sc *ScoringSystem) Score(playerID string) int {
	return sc.s.Scores[playerID]
}

// Remove moves a leaving player's total into the departed ledger.
func (sc *ScoringSystem) Remove(playerID string) {
	score, ok := sc.s.Scores[playerID]
	if !ok {
		return
	}
	if sc.s.Departed == nil {
		sc.s.Departed = map[string]int{}
	}
	sc.s.Departed[playerID] = score
	delete(sc.s.Scores, playerID)
}

// Ranking sorts by score descending, ties broken by player id. Equal scores
// share a rank.
func (sc *ScoringSystem) Ranking() []Standing {
	out := make([]Standing, 0, len(sc.s.Scores))
	for id, score := range sc.s.Scores {
		out = append(out, Standing{PlayerID: id, Score: score})
	}
	slices.SortStableFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

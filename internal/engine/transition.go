package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// errStale marks a transition someone else already committed.
var errStale = errors.New("transition already applied")

// drive runs the pending advance for key if this caller wins the transition
// lock. Losers do nothing: the winner owns the advance. Failures leave the
// turn concluded so that the next call on the match can drive it again.
func (e *Engine) drive(ctx context.Context, matchID string, key Key, res *Result) {
	// A turn with nobody left to act starts out concluded, so keep going
	// until the match settles.
	for {
		st := e.driveOnce(ctx, matchID, key, res)
		if st == nil || st.Phase != PhasePlaying || !st.Turn.Concluded {
			return
		}
		key = st.TransitionKey()
	}
}

// driveOnce returns the committed state, or nil when this caller did not
// commit the advance.
func (e *Engine) driveOnce(ctx context.Context, matchID string, key Key, res *Result) *MatchState {
	log := e.log.With(zap.String("match_id", matchID), zap.Int("round", key.Round), zap.String("phase", key.Phase))

	ok, err := e.locks.TryAcquire(ctx, matchID, key.Round, key.Phase)
	if err != nil {
		log.Warn("transition lock unavailable", zap.Error(err))
		res.TransitionPending = true
		return nil
	}
	if !ok {
		log.Debug("transition lost")
		res.TransitionLost = true
		return nil
	}
	defer e.release(ctx, matchID, key)

	st, err := e.commitAt(ctx, matchID, key, func(st *MatchState, h Handler) ([]Event, error) {
		if st.Phase != PhasePlaying || !st.Turn.Concluded {
			return nil, errStale
		}
		return e.advance(st, h)
	})
	if err != nil {
		log.Error("round transition failed", zap.Error(err))
		res.TransitionPending = true
		return nil
	}
	if st == nil {
		res.TransitionLost = true
		return nil
	}
	recorded := res.Recorded
	*res = resultOf(st)
	res.Recorded = recorded
	res.Transitioned = true
	log.Debug("transition committed", zap.Int("next_round", st.Round.CurrentRound), zap.String("next_phase", string(st.Phase)))
	return st
}

// release runs after the transition's snapshot is saved. A failed delete is
// harmless: the key is never reused and the TTL clears it.
func (e *Engine) release(ctx context.Context, matchID string, key Key) {
	if err := e.locks.Release(ctx, matchID, key.Round, key.Phase); err != nil {
		e.log.Warn("release transition lock",
			zap.String("match_id", matchID),
			zap.Int("round", key.Round),
			zap.Error(err),
		)
	}
}

// commitAt applies fn to the freshest state as long as it is still at key.
// A nil state with a nil error means the transition was already applied.
func (e *Engine) commitAt(ctx context.Context, matchID string, key Key, fn func(*MatchState, Handler) ([]Event, error)) (*MatchState, error) {
	for attempt := 1; ; attempt++ {
		st, err := e.store.Load(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if st.TransitionKey() != key {
			return nil, nil
		}
		h, err := e.games.Lookup(st.GameType)
		if err != nil {
			return nil, err
		}
		events, err := fn(st, h)
		if errors.Is(err, errStale) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		st.UpdatedAt = e.now().UTC()
		err = e.store.Save(ctx, st)
		if errors.Is(err, ErrVersionConflict) && attempt < e.maxAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save match %s: %w", matchID, err)
		}
		e.publish(ctx, stamp(events, st.Version))
		return st, nil
	}
}

// advance is the transition branch: move the turn, rotate roles, and close
// the round when the cycle (or, in round-per-turn mode, the turn) is done.
func (e *Engine) advance(st *MatchState, h Handler) ([]Event, error) {
	now := e.now()
	m := reconstruct(st)

	m.turns.Advance()
	cycle := m.turns.CycleComplete()
	if st.Turn.Mode == TurnSequential {
		for range st.Turn.TurnOrder {
			holder, ok := m.turns.Holder()
			if !ok || !m.rounds.IsEliminated(holder) {
				break
			}
			m.turns.Advance()
			cycle = cycle || m.turns.CycleComplete()
		}
	}
	m.roles.Rotate(st.Turn.TurnOrder)

	if !st.Settings.RoundPerTurn && !cycle {
		e.startTurn(st, m, now)
		return []Event{e.event(st, EvtTurnStarted, turnStarted(st, m))}, nil
	}
	return e.closeRound(st, m, h, now)
}

func (e *Engine) closeRound(st *MatchState, m *modules, h Handler, now time.Time) ([]Event, error) {
	ended := st.Round.CurrentRound
	m.rounds.CompleteRound()
	events := []Event{e.event(st, EvtRoundEnded, RoundEndedPayload{
		Round:  ended,
		Scores: cloneMap(st.Scores.Scores),
	})}

	if m.rounds.IsComplete() {
		return append(events, e.finish(st, m)...), nil
	}
	if st.Settings.ScoringIntermission {
		st.Phase = PhaseScoring
		st.Turn.Concluded = false
		m.timers.Stop(TurnTimer)
		m.locks.Rescope(st.Round.CurrentRound, PhaseScoring)
		return events, nil
	}
	next, err := e.openRound(st, m, h, now)
	if err != nil {
		return nil, err
	}
	return append(events, next...), nil
}

func (e *Engine) openRound(st *MatchState, m *modules, h Handler, now time.Time) ([]Event, error) {
	m.rounds.StartRound()
	m.locks.Rescope(st.Round.CurrentRound, st.Phase)
	if !st.Settings.RoundPerTurn {
		// a round is one full pass starting from the head of the order
		st.Turn.CurrentTurnIndex = 0
	}
	e.startTurn(st, m, now)

	if rs, ok := h.(RoundStarter); ok {
		data, err := rs.OnRoundStart(newView(st, now))
		if err != nil {
			return nil, fmt.Errorf("game %s round start: %w", st.GameType, err)
		}
		if data != nil {
			st.GameData = data
		}
	}
	return []Event{e.event(st, EvtRoundStarted, RoundStartedPayload{
		Round:              st.Round.CurrentRound,
		TotalRounds:        st.Round.TotalRounds,
		TurnStartedPayload: turnStarted(st, m),
	})}, nil
}

// startTurn begins a new turn and restarts its countdown. Sequential turns
// never start on an eliminated holder.
func (e *Engine) startTurn(st *MatchState, m *modules, now time.Time) {
	m.turns.StartTurn(now, m.rounds.Eliminated())
	m.locks.UnlockAll()
	if st.Turn.Mode == TurnSequential {
		for range st.Turn.TurnOrder {
			holder, ok := m.turns.Holder()
			if !ok || !m.rounds.IsEliminated(holder) {
				break
			}
			m.turns.Advance()
		}
		st.Turn.RoundComplete = false
	} else if m.turns.CycleComplete() {
		// nobody is eligible to act, so the turn is over as soon as it starts
		st.Turn.Concluded = true
	}
	if st.Turn.TimeLimitSeconds != nil {
		m.timers.Start(TurnTimer, *st.Turn.TimeLimitSeconds, now)
	} else {
		m.timers.Stop(TurnTimer)
	}
}

func (e *Engine) finish(st *MatchState, m *modules) []Event {
	st.Phase = PhaseFinished
	st.Turn.Concluded = false
	m.timers.Stop(TurnTimer)
	st.Ranking = m.scores.Ranking()
	return []Event{e.event(st, EvtGameEnded, GameEndedPayload{Ranking: st.Ranking})}
}

func turnStarted(st *MatchState, m *modules) TurnStartedPayload {
	holder, _ := m.turns.Holder()
	return TurnStartedPayload{
		Holder:           holder,
		Pending:          slices.Clone(st.Turn.PendingPlayers),
		Roles:            cloneMap(st.Roles.PlayerRoles),
		TimeLimitSeconds: cloneIntPtr(st.Turn.TimeLimitSeconds),
	}
}

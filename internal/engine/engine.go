package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionTimeout is the reserved action that closes a turn whose timer ran out.
const ActionTimeout = "timeout"

const defaultMaxAttempts = 8

// Store persists whole match snapshots. Save is a compare-and-swap on
// MatchState.Version: it fails with ErrVersionConflict when the stored
// version moved on, and bumps s.Version on success.
type Store interface {
	Create(ctx context.Context, s *MatchState) error
	Load(ctx context.Context, id string) (*MatchState, error)
	Save(ctx context.Context, s *MatchState) error
	Delete(ctx context.Context, id string) error
}

// TransitionLock grants the round-transition critical section for one
// (match, round, phase) to at most one caller. TryAcquire never waits.
type TransitionLock interface {
	TryAcquire(ctx context.Context, matchID string, round int, phase string) (bool, error)
	Release(ctx context.Context, matchID string, round int, phase string) error
}

// Result describes what one engine call committed.
type Result struct {
	MatchID string `json:"matchId"`
	Phase   Phase  `json:"phase"`
	Round   int    `json:"round"`
	Turn    int    `json:"turn"`
	// Recorded is true when the caller's own action was committed.
	Recorded bool `json:"recorded"`
	// Transitioned is true when this call committed the turn/round advance.
	Transitioned bool `json:"transitioned"`
	// TransitionLost is true when another caller owns the advance.
	TransitionLost bool `json:"transitionLost"`
	// TransitionPending is true when the turn concluded but the advance
	// could not run yet; the next call on the match picks it up.
	TransitionPending bool `json:"transitionPending"`
}

// TimeoutRequest pins a timeout to the turn the caller observed. Zero
// values mean "whatever turn is current".
type TimeoutRequest struct {
	Round int `json:"round"`
	Turn  int `json:"turn"`
}

// Engine is the stateless match coordinator. Every call rebuilds the
// match from the store, mutates it through the module types, and writes it
// back whole; no match state lives in the Engine between calls.
type Engine struct {
	store       Store
	locks       TransitionLock
	sink        EventSink
	games       *Registry
	log         *zap.Logger
	now         func() time.Time
	newID       func() string
	maxAttempts int
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// WithMaxAttempts bounds how often a call reloads and retries after a
// version conflict.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func New(store Store, locks TransitionLock, sink EventSink, games *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		locks:       locks,
		sink:        sink,
		games:       games,
		log:         zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
		maxAttempts: defaultMaxAttempts,
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Games() *Registry { return e.games }

// modules is the per-call reconstruction of every module over one state.
type modules struct {
	rounds *RoundManager
	turns  TurnManager
	roles  *RoleManager
	scores *ScoringSystem
	timers *TimerService
	locks  *PlayerActionLock
}

func reconstruct(st *MatchState) *modules {
	return &modules{
		rounds: NewRoundManager(&st.Round),
		turns:  NewTurnManager(&st.Turn),
		roles:  NewRoleManager(&st.Roles),
		scores: NewScoringSystem(&st.Scores),
		timers: NewTimerService(&st.Timers),
		locks:  NewPlayerActionLock(&st.Locks, st.Round.CurrentRound, st.Phase),
	}
}

// Create initializes a match in the waiting phase. Unset settings fall
// back to the game's defaults.
func (e *Engine) Create(ctx context.Context, gameType string, settings Settings, players []string) (*MatchState, error) {
	h, err := e.games.Lookup(gameType)
	if err != nil {
		return nil, err
	}
	if d, ok := h.(Defaulter); ok {
		settings = MergeSettings(d.Defaults(), settings)
	}
	settings, err = ValidateSettings(settings)
	if err != nil {
		return nil, err
	}

	st := NewMatchState(e.newID(), gameType, settings, players, e.now())
	if err := e.store.Create(ctx, st); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	e.log.Info("match created",
		zap.String("match_id", st.ID),
		zap.String("game", gameType),
		zap.Strings("players", st.Players),
	)
	return st, nil
}

func (e *Engine) Get(ctx context.Context, matchID string) (*MatchState, error) {
	return e.store.Load(ctx, matchID)
}

// Join adds a player while the match is still waiting.
func (e *Engine) Join(ctx context.Context, matchID, playerID string) (*MatchState, error) {
	return e.mutate(ctx, matchID, func(st *MatchState) ([]Event, error) {
		if st.Phase != PhaseWaiting {
			return nil, ErrInvalidPhase
		}
		if playerID == "" {
			return nil, ErrPlayerNotActive
		}
		if st.IsActive(playerID) {
			return nil, ErrPlayerExists
		}
		m := reconstruct(st)
		st.Players = insertSorted(st.Players, playerID)
		m.turns.Add(playerID)
		m.roles.Add(st.Turn.TurnOrder, playerID)
		m.scores.Add(playerID)
		return []Event{e.event(st, EvtPlayerJoined, PlayerPayload{PlayerID: playerID})}, nil
	})
}

// StartGame moves a waiting match into round 1.
func (e *Engine) StartGame(ctx context.Context, matchID string) (*MatchState, error) {
	return e.mutate(ctx, matchID, func(st *MatchState) ([]Event, error) {
		if st.Phase != PhaseWaiting {
			return nil, ErrInvalidPhase
		}
		if len(st.Players) < max(st.Settings.MinPlayers, 1) {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(st.Players), st.Settings.MinPlayers)
		}
		h, err := e.games.Lookup(st.GameType)
		if err != nil {
			return nil, err
		}
		st.Phase = PhasePlaying
		m := reconstruct(st)
		st.Roles.Rotation = 0
		m.roles.Assign(st.Turn.TurnOrder)
		return e.openRound(st, m, h, e.now())
	})
}

// ProcessAction validates and records one player action, then, if the
// action concluded the turn, tries to run the turn/round transition.
func (e *Engine) ProcessAction(ctx context.Context, matchID, playerID, action string, payload json.RawMessage) (Result, error) {
	if action == ActionTimeout {
		var req TimeoutRequest
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return Result{}, fmt.Errorf("%w: bad timeout payload: %v", ErrHandlerRejected, err)
			}
		}
		return e.Timeout(ctx, matchID, playerID, req)
	}

	log := e.log.With(zap.String("match_id", matchID), zap.String("player_id", playerID), zap.String("action", action))

	var (
		res       Result
		concluded bool
		key       Key
	)
	for attempt := 1; ; attempt++ {
		st, err := e.store.Load(ctx, matchID)
		if err != nil {
			return Result{}, err
		}
		h, err := e.games.Lookup(st.GameType)
		if err != nil {
			return Result{}, err
		}
		key = st.TransitionKey()

		var events []Event
		res, concluded, events, err = e.record(st, h, playerID, action, payload, log)
		if errors.Is(err, ErrTurnConcluded) {
			// the action is refused, but the owed advance may still be
			// waiting for someone to drive it
			log.Debug("action rejected", zap.Error(err))
			e.drive(ctx, matchID, key, &res)
			return res, err
		}
		if err != nil {
			if IsRejection(err) {
				log.Debug("action rejected", zap.Error(err))
			}
			return res, err
		}

		err = e.store.Save(ctx, st)
		if errors.Is(err, ErrVersionConflict) && attempt < e.maxAttempts {
			log.Debug("version conflict, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("save match %s: %w", matchID, err)
		}
		e.publish(ctx, stamp(events, st.Version))
		break
	}

	if concluded {
		e.drive(ctx, matchID, key, &res)
	}
	return res, nil
}

// record applies steps 1-4 of an action to st in memory. The bool result
// reports that the turn is concluded and a transition should be driven.
func (e *Engine) record(st *MatchState, h Handler, playerID, action string, payload json.RawMessage, log *zap.Logger) (Result, bool, []Event, error) {
	now := e.now()
	res := resultOf(st)

	if st.Phase != PhasePlaying {
		return res, false, nil, fmt.Errorf("%w: match is %s", ErrInvalidPhase, st.Phase)
	}
	if !st.IsActive(playerID) {
		return res, false, nil, ErrPlayerNotActive
	}
	m := reconstruct(st)
	if m.rounds.IsEliminated(playerID) {
		return res, false, nil, ErrPlayerEliminated
	}
	if m.locks.IsLocked(playerID) {
		return res, false, nil, ErrAlreadyActed
	}
	if st.Turn.Mode == TurnSequential {
		if holder, ok := m.turns.Holder(); !ok || holder != playerID {
			return res, false, nil, ErrNotYourTurn
		}
	}
	if st.Turn.Concluded {
		return res, false, nil, ErrTurnConcluded
	}
	m.locks.TryLock(playerID, now)

	out, err := h.OnAction(newView(st, now), playerID, action, payload)
	if err != nil {
		return res, false, nil, fmt.Errorf("game %s: %w", st.GameType, err)
	}
	if !out.Accepted {
		return res, false, nil, fmt.Errorf("%w: %s", ErrHandlerRejected, out.Reason)
	}

	for _, id := range sortedKeys(out.ScoreDeltas) {
		if !st.IsActive(id) {
			log.Warn("score delta for inactive player dropped", zap.String("target", id))
			continue
		}
		m.scores.Award(id, out.ScoreDeltas[id])
	}
	if out.GameData != nil {
		st.GameData = out.GameData
	}
	for _, el := range out.Eliminations {
		if !st.IsActive(el.PlayerID) {
			continue
		}
		if el.Permanent {
			m.rounds.EliminatePermanently(el.PlayerID)
		} else {
			m.rounds.EliminateTemporarily(el.PlayerID)
		}
		m.turns.Skip(el.PlayerID)
	}
	m.turns.MarkAction(playerID)

	concluded := out.ConcludesTurn || (st.Turn.Mode == TurnSimultaneous && m.turns.CycleComplete())
	st.Turn.Concluded = concluded
	st.UpdatedAt = now.UTC()
	res.Recorded = true

	evt := e.event(st, EvtActionRecorded, ActionRecordedPayload{
		PlayerID:    playerID,
		Action:      action,
		ScoreDeltas: out.ScoreDeltas,
		Concluded:   concluded,
	})
	return res, concluded, []Event{evt}, nil
}

// Timeout closes the current turn once its timer has expired. Any active
// player, or an external scheduler passing an empty player id, may call it.
func (e *Engine) Timeout(ctx context.Context, matchID, playerID string, req TimeoutRequest) (Result, error) {
	var (
		res Result
		key Key
	)
	for attempt := 1; ; attempt++ {
		st, err := e.store.Load(ctx, matchID)
		if err != nil {
			return Result{}, err
		}
		res = resultOf(st)
		if req.stale(st) {
			res.TransitionLost = true
			return res, nil
		}
		if st.Phase != PhasePlaying {
			return res, fmt.Errorf("%w: match is %s", ErrInvalidPhase, st.Phase)
		}
		if playerID != "" && !st.IsActive(playerID) {
			return res, ErrPlayerNotActive
		}
		key = st.TransitionKey()
		if st.Turn.Concluded {
			res.TransitionLost = true
			break
		}
		now := e.now()
		if !reconstruct(st).timers.IsExpired(TurnTimer, now) {
			return res, ErrTimerRunning
		}
		st.Turn.Concluded = true
		st.UpdatedAt = now.UTC()
		evt := e.event(st, EvtTurnTimedOut, PlayerPayload{PlayerID: playerID})

		err = e.store.Save(ctx, st)
		if errors.Is(err, ErrVersionConflict) && attempt < e.maxAttempts {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("save match %s: %w", matchID, err)
		}
		e.publish(ctx, stamp([]Event{evt}, st.Version))
		res.Recorded = true
		break
	}
	e.drive(ctx, matchID, key, &res)
	return res, nil
}

func (r TimeoutRequest) stale(st *MatchState) bool {
	if r.Round == 0 {
		return false
	}
	if r.Round != st.Round.CurrentRound {
		return true
	}
	return r.Turn != 0 && r.Turn != st.Turn.Sequence
}

// ResumeRound ends a scoring intermission and opens the next round. Only
// one concurrent caller performs it; the rest get TransitionLost.
func (e *Engine) ResumeRound(ctx context.Context, matchID string) (Result, error) {
	st, err := e.store.Load(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	res := resultOf(st)
	if st.Phase != PhaseScoring {
		return res, fmt.Errorf("%w: match is %s", ErrInvalidPhase, st.Phase)
	}
	key := st.TransitionKey()
	ok, err := e.locks.TryAcquire(ctx, matchID, key.Round, key.Phase)
	if err != nil {
		return res, fmt.Errorf("acquire transition lock: %w", err)
	}
	if !ok {
		res.TransitionLost = true
		return res, nil
	}
	defer e.release(ctx, matchID, key)

	st, err = e.commitAt(ctx, matchID, key, func(st *MatchState, h Handler) ([]Event, error) {
		if st.Phase != PhaseScoring {
			return nil, errStale
		}
		st.Phase = PhasePlaying
		return e.openRound(st, reconstruct(st), h, e.now())
	})
	if err != nil {
		return res, err
	}
	if st == nil {
		res.TransitionLost = true
		return res, nil
	}
	res = resultOf(st)
	res.Transitioned = true
	if st.Phase == PhasePlaying && st.Turn.Concluded {
		e.drive(ctx, matchID, st.TransitionKey(), &res)
	}
	return res, nil
}

// Finalize freezes the match and returns its ranking. Calling it on a
// finished match returns the stored ranking without new events.
func (e *Engine) Finalize(ctx context.Context, matchID string) ([]Standing, error) {
	st, err := e.mutate(ctx, matchID, func(st *MatchState) ([]Event, error) {
		if st.Phase == PhaseFinished {
			return nil, errAlreadyFinished
		}
		return e.finish(st, reconstruct(st)), nil
	})
	if errors.Is(err, errAlreadyFinished) {
		st, err = e.store.Load(ctx, matchID)
	}
	if err != nil {
		return nil, err
	}
	return st.Ranking, nil
}

var errAlreadyFinished = errors.New("already finished")

// Leave removes a player from every snapshot in one commit. If their
// departure closes the current cycle the transition is driven right away.
func (e *Engine) Leave(ctx context.Context, matchID, playerID string) (Result, error) {
	st, err := e.store.Load(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	if st.Phase == PhasePlaying && st.Turn.Concluded {
		// Settle the pending advance first so the departure cannot shift
		// the turn index underneath it.
		var res Result
		e.drive(ctx, matchID, st.TransitionKey(), &res)
	}

	var (
		concluded bool
		key       Key
	)
	st, err = e.mutate(ctx, matchID, func(st *MatchState) ([]Event, error) {
		if st.Phase == PhaseFinished {
			return nil, ErrInvalidPhase
		}
		if !st.IsActive(playerID) {
			return nil, ErrPlayerNotActive
		}
		now := e.now()
		m := reconstruct(st)
		holder, _ := m.turns.Holder()
		wasConcluded := st.Turn.Concluded

		st.Players = removeValue(st.Players, playerID)
		closes := m.turns.Remove(playerID)
		m.roles.Remove(st.Turn.TurnOrder, playerID)
		m.scores.Remove(playerID)
		m.locks.Unlock(playerID)
		m.rounds.Forget(playerID)

		events := []Event{e.event(st, EvtPlayerLeft, PlayerPayload{PlayerID: playerID})}
		concluded = false
		if st.Phase != PhasePlaying {
			return events, nil
		}
		switch {
		case len(st.Players) == 0:
			return append(events, e.finish(st, m)...), nil
		case wasConcluded:
			if st.Turn.Mode == TurnSequential && holder == playerID && !closes {
				// the follower slid into the index, so the owed advance must
				// not move past them
				st.Turn.Advanced = true
			}
			concluded = true
		case closes:
			st.Turn.Concluded = true
			concluded = true
		case st.Turn.Mode == TurnSequential && holder == playerID:
			e.startTurn(st, m, now)
			events = append(events, e.event(st, EvtTurnStarted, turnStarted(st, m)))
		}
		key = st.TransitionKey()
		return events, nil
	})
	if err != nil {
		return Result{}, err
	}
	res := resultOf(st)
	res.Recorded = true
	if concluded {
		e.drive(ctx, matchID, key, &res)
	}
	return res, nil
}

// mutate runs fn against a freshly loaded state and saves the result,
// retrying from a new load on version conflicts. Events are published
// after the save.
func (e *Engine) mutate(ctx context.Context, matchID string, fn func(st *MatchState) ([]Event, error)) (*MatchState, error) {
	for attempt := 1; ; attempt++ {
		st, err := e.store.Load(ctx, matchID)
		if err != nil {
			return nil, err
		}
		events, err := fn(st)
		if err != nil {
			return st, err
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

func (e *Engine) event(st *MatchState, t EventType, payload any) Event {
	return Event{
		Type:    t,
		MatchID: st.ID,
		Round:   st.Round.CurrentRound,
		Turn:    st.Turn.Sequence,
		Payload: payload,
		At:      e.now().UTC(),
	}
}

func (e *Engine) publish(ctx context.Context, events []Event) {
	for _, evt := range events {
		e.sink.Publish(ctx, evt)
	}
}

func stamp(events []Event, version int64) []Event {
	for i := range events {
		events[i].Version = version
	}
	return events
}

func resultOf(st *MatchState) Result {
	return Result{
		MatchID: st.ID,
		Phase:   st.Phase,
		Round:   st.Round.CurrentRound,
		Turn:    st.Turn.Sequence,
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

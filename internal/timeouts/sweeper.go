// Package timeouts closes turns whose timer ran out. The engine only checks
// expiry when asked, so something has to ask.
package timeouts

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

const (
	DefaultInterval = time.Second
	maxInFlight     = 8
)

type Lister interface {
	ListByPhase(ctx context.Context, phase engine.Phase) ([]string, error)
}

type Matches interface {
	Get(ctx context.Context, matchID string) (*engine.MatchState, error)
	Timeout(ctx context.Context, matchID, playerID string, req engine.TimeoutRequest) (engine.Result, error)
}

// LockSweeper drops expired transition locks from stores that keep them
// around, such as the Postgres lock table.
type LockSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type Sweeper struct {
	list     Lister
	matches  Matches
	locks    LockSweeper
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLockSweeper(l LockSweeper) Option {
	return func(s *Sweeper) { s.locks = l }
}

func New(list Lister, matches Matches, log *zap.Logger, opts ...Option) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		list:     list,
		matches:  matches,
		interval: DefaultInterval,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("timeout sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep fires the timeout of every playing match whose turn timer expired
// and retries transitions that were left pending. It returns how many
// matches it moved forward.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.locks != nil {
		if n, err := s.locks.Sweep(ctx); err != nil {
			s.log.Warn("sweep transition locks", zap.Error(err))
		} else if n > 0 {
			s.log.Debug("expired transition locks removed", zap.Int64("count", n))
		}
	}

	ids, err := s.list.ListByPhase(ctx, engine.PhasePlaying)
	if err != nil {
		return 0, err
	}

	var fired atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, id := range ids {
		g.Go(func() error {
			ok, err := s.sweepOne(gctx, id)
			if err != nil {
				s.log.Warn("timeout failed", zap.String("match_id", id), zap.Error(err))
				return nil
			}
			if ok {
				fired.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	return int(fired.Load()), err
}

func (s *Sweeper) sweepOne(ctx context.Context, id string) (bool, error) {
	st, err := s.matches.Get(ctx, id)
	if err != nil {
		if errors.Is(err, engine.ErrMatchNotFound) {
			return false, nil
		}
		return false, err
	}
	if st.Phase != engine.PhasePlaying {
		return false, nil
	}
	if !st.Turn.Concluded && !engine.NewTimerService(&st.Timers).IsExpired(engine.TurnTimer, s.now()) {
		return false, nil
	}

	res, err := s.matches.Timeout(ctx, id, "", engine.TimeoutRequest{
		Round: st.Round.CurrentRound,
		Turn:  st.Turn.Sequence,
	})
	if errors.Is(err, engine.ErrTimerRunning) || errors.Is(err, engine.ErrInvalidPhase) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.Transitioned, nil
}

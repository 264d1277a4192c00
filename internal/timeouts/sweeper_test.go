package timeouts

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/lock"
	"github.com/DoyleJ11/party-engine/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type passGame struct{}

func (passGame) OnAction(engine.View, string, string, json.RawMessage) (engine.Outcome, error) {
	out := engine.Accept()
	out.ConcludesTurn = true
	return out, nil
}

func setup(t *testing.T) (*engine.Engine, *store.Memory, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := engine.NewRegistry()
	reg.Register("pass", passGame{})
	st := store.NewMemory()
	eng := engine.New(st,
		lock.NewRoundTransitionLock(lock.NewMemoryStore().WithClock(clk.Now), lock.DefaultTTL),
		nil, reg,
		engine.WithClock(clk.Now),
	)
	return eng, st, clk
}

func TestSweep_FiresExpiredTurnsOnly(t *testing.T) {
	ctx := context.Background()
	eng, st, clk := setup(t)

	limit := 10
	timed, err := eng.Create(ctx, "pass", engine.Settings{TotalRounds: 1, TurnTimeLimitSeconds: &limit}, []string{"a", "b"})
	require.NoError(t, err)
	_, err = eng.StartGame(ctx, timed.ID)
	require.NoError(t, err)

	untimed, err := eng.Create(ctx, "pass", engine.Settings{TotalRounds: 1}, []string{"a", "b"})
	require.NoError(t, err)
	_, err = eng.StartGame(ctx, untimed.ID)
	require.NoError(t, err)

	// waiting matches are never swept
	_, err = eng.Create(ctx, "pass", engine.Settings{TotalRounds: 1, TurnTimeLimitSeconds: &limit}, []string{"a"})
	require.NoError(t, err)

	sw := New(st, eng, nil, WithClock(clk.Now))

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clk.Advance(11 * time.Second)
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := eng.Get(ctx, timed.ID)
	require.NoError(t, err)
	holder, _ := engine.NewTurnManager(&got.Turn).Holder()
	assert.Equal(t, "b", holder)
	assert.Equal(t, 2, got.Turn.Sequence)

	got, err = eng.Get(ctx, untimed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Turn.Sequence)

	// the new turn restarted its timer
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweep_LastTimeoutFinishesMatch(t *testing.T) {
	ctx := context.Background()
	eng, st, clk := setup(t)

	limit := 5
	m, err := eng.Create(ctx, "pass", engine.Settings{TotalRounds: 1, TurnTimeLimitSeconds: &limit}, []string{"a"})
	require.NoError(t, err)
	_, err = eng.StartGame(ctx, m.ID)
	require.NoError(t, err)

	sw := New(st, eng, nil, WithClock(clk.Now))
	clk.Advance(6 * time.Second)
	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := eng.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseFinished, got.Phase)

	ids, err := st.ListByPhase(ctx, engine.PhasePlaying)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRun_StopsWithContext(t *testing.T) {
	eng, st, _ := setup(t)
	sw := New(st, eng, nil, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, sw.Run(ctx))
}

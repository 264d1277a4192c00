//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

var repo *Postgres

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("party"),
		postgres.WithUsername("party"),
		postgres.WithPassword("party"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	repo, err = NewPostgres(dsn, nil)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	_ = repo.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	st := newMatch("pg-1")

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, st))
		assert.Equal(t, int64(1), st.Version)
	})

	t.Run("Create_Duplicate", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, newMatch("pg-1")), engine.ErrMatchExists)
	})

	t.Run("Load", func(t *testing.T) {
		got, err := repo.Load(ctx, "pg-1")
		require.NoError(t, err)
		assert.Equal(t, st.Players, got.Players)
		assert.Equal(t, st.Turn.TurnOrder, got.Turn.TurnOrder)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := repo.Load(ctx, "ghost")
		assert.ErrorIs(t, err, engine.ErrMatchNotFound)
	})

	t.Run("Save_CompareAndSwap", func(t *testing.T) {
		first, err := repo.Load(ctx, "pg-1")
		require.NoError(t, err)
		second, err := repo.Load(ctx, "pg-1")
		require.NoError(t, err)

		first.Phase = engine.PhasePlaying
		require.NoError(t, repo.Save(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		second.Phase = engine.PhaseFinished
		assert.ErrorIs(t, repo.Save(ctx, second), engine.ErrVersionConflict)
		assert.Equal(t, int64(1), second.Version)

		got, err := repo.Load(ctx, "pg-1")
		require.NoError(t, err)
		assert.Equal(t, engine.PhasePlaying, got.Phase)
	})

	t.Run("Save_NotFound", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, newMatch("ghost")), engine.ErrMatchNotFound)
	})

	t.Run("ListByPhase", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newMatch("pg-2")))
		ids, err := repo.ListByPhase(ctx, engine.PhasePlaying)
		require.NoError(t, err)
		assert.Equal(t, []string{"pg-1"}, ids)

		ids, err = repo.ListByPhase(ctx, engine.PhaseWaiting)
		require.NoError(t, err)
		assert.Equal(t, []string{"pg-2"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "pg-2"))
		_, err := repo.Load(ctx, "pg-2")
		assert.ErrorIs(t, err, engine.ErrMatchNotFound)
	})
}
